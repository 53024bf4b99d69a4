//go:build integration

package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/facegate/internal/models"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "facegate_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/facegate_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestPostgresStore_LoginLogLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations must be idempotent")

	s := &PostgresStore{pool: pool}

	admin := &models.AdminUser{
		Email:             "ops@example.com",
		FullName:          "Ops Admin",
		IDCardNumber:      "ID-0001",
		IDCardStatus:      models.IDCardStatusRevoked,
		ReferencePhotoURL: "http://minio:9000/facegate/admins/ops.jpg",
	}
	require.NoError(t, s.CreateAdminUser(ctx, admin))

	got, err := s.GetAdminUser(ctx, admin.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.IDCardStatusRevoked, got.IDCardStatus)

	missing, err := s.GetAdminUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	img := "data:image/jpeg;base64,AAAA"
	base := time.Now().UTC().Truncate(time.Second)
	failed := &models.LoginLogEntry{UserID: admin.ID, Status: models.LoginStatusFailed, CapturedImageURL: &img, LoginTime: base}
	success := &models.LoginLogEntry{UserID: admin.ID, Status: models.LoginStatusSuccess, CapturedImageURL: &img, LoginTime: base.Add(time.Minute)}
	require.NoError(t, s.InsertLoginLog(ctx, failed))
	require.NoError(t, s.InsertLoginLog(ctx, success))

	rows, err := s.ListLoginLogs(ctx, models.LoginLogFilter{UserID: &admin.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, success.ID, rows[0].ID, "newest first")
	assert.Nil(t, rows[0].LogoutTime)

	n, err := s.CountLoginLogs(ctx, models.LoginLogFilter{UserID: &admin.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err := s.ListLoginLogs(ctx, models.LoginLogFilter{UserID: &admin.ID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, failed.ID, page[0].ID)

	require.ErrorIs(t, s.SetLogout(ctx, failed.ID, admin.ID, time.Now()), ErrNoOpenLogin)
	require.NoError(t, s.SetLogout(ctx, success.ID, admin.ID, time.Now()))
	require.ErrorIs(t, s.SetLogout(ctx, success.ID, admin.ID, time.Now()), ErrNoOpenLogin)

	rows, err = s.ListLoginLogs(ctx, models.LoginLogFilter{UserID: &admin.ID, Limit: 1})
	require.NoError(t, err)
	assert.NotNil(t, rows[0].LogoutTime)
}
