package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage/migrations"
)

// ErrNoOpenLogin is returned when there is no login row without a logout
// time for the given id and user.
var ErrNoOpenLogin = errors.New("no open login for this user")

// pgxPool is the subset of *pgxpool.Pool the store uses.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type PostgresStore struct {
	pool pgxPool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, *pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, pool, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var gooseUp = goose.UpContext

// Migrate applies the embedded schema through a database/sql handle
// borrowed from the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return migrate(ctx, db)
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUp(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// --- Login logs ---

// InsertLoginLog stores one attempt. ID and LoginTime are filled in when
// zero.
func (s *PostgresStore) InsertLoginLog(ctx context.Context, e *models.LoginLogEntry) error {
	if !e.Status.Valid() {
		return fmt.Errorf("insert login log: invalid status %q", e.Status)
	}
	if e.CapturedImageURL == nil || *e.CapturedImageURL == "" {
		return errors.New("insert login log: captured image is required")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.LoginTime.IsZero() {
		e.LoginTime = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO admin_login_logs (id, user_id, status, captured_image_url, login_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.UserID, e.Status, *e.CapturedImageURL, e.LoginTime,
	)
	if err != nil {
		return fmt.Errorf("insert login log: %w", err)
	}
	return nil
}

// SetLogout records the logout time once. A second call, or one for a
// foreign user, yields ErrNoOpenLogin.
func (s *PostgresStore) SetLogout(ctx context.Context, logID, userID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE admin_login_logs SET logout_time = $3
		 WHERE id = $1 AND user_id = $2 AND status = 'success' AND logout_time IS NULL`,
		logID, userID, at,
	)
	if err != nil {
		return fmt.Errorf("set logout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoOpenLogin
	}
	return nil
}

// logWhere renders the filter as a WHERE clause with positional args.
func logWhere(f models.LoginLogFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.From != nil {
		add("login_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("login_time < $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListLoginLogs returns matching rows newest first. A zero Limit returns
// every row.
func (s *PostgresStore) ListLoginLogs(ctx context.Context, f models.LoginLogFilter) ([]models.LoginLogEntry, error) {
	where, args := logWhere(f)
	q := `SELECT id, user_id, status, captured_image_url, login_time, logout_time
		  FROM admin_login_logs` + where + ` ORDER BY login_time DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list login logs: %w", err)
	}
	defer rows.Close()

	entries := []models.LoginLogEntry{}
	for rows.Next() {
		var e models.LoginLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Status, &e.CapturedImageURL, &e.LoginTime, &e.LogoutTime); err != nil {
			return nil, fmt.Errorf("scan login log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login logs: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) CountLoginLogs(ctx context.Context, f models.LoginLogFilter) (int, error) {
	where, args := logWhere(f)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM admin_login_logs`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count login logs: %w", err)
	}
	return n, nil
}

// --- Admin users ---

// GetAdminUser returns nil, nil when no such user exists.
func (s *PostgresStore) GetAdminUser(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	u := &models.AdminUser{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, full_name, id_card_number, id_card_status, reference_photo_url, created_at
		 FROM admin_users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.FullName, &u.IDCardNumber, &u.IDCardStatus, &u.ReferencePhotoURL, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get admin user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateAdminUser(ctx context.Context, u *models.AdminUser) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.IDCardStatus == "" {
		u.IDCardStatus = models.IDCardStatusActive
	}
	if !u.IDCardStatus.Valid() {
		return fmt.Errorf("create admin user: invalid id card status %q", u.IDCardStatus)
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO admin_users (id, email, full_name, id_card_number, id_card_status, reference_photo_url)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		u.ID, u.Email, u.FullName, u.IDCardNumber, u.IDCardStatus, u.ReferencePhotoURL,
	).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	return nil
}
