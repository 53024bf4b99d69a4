// Package reference loads an admin's stored reference photo.
package reference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/retry"
)

// URLFetcher downloads a URL directly.
type URLFetcher interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// ObjectStore reads objects from the bucket photos are kept in.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	KeyFromURL(raw string) (string, bool)
}

type Loader struct {
	http   URLFetcher
	store  ObjectStore
	policy retry.Policy
}

func NewLoader(http URLFetcher, store ObjectStore, policy retry.Policy) *Loader {
	return &Loader{http: http, store: store, policy: policy}
}

// Load fetches the photo at rawURL. The public URL is tried first; when it
// fails and the URL belongs to our bucket, the object is read through the
// storage client instead. Both failing is a NetworkFailure.
func (l *Loader) Load(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, apperr.New(apperr.KindInvalidReferenceImage, "No reference photo on file", nil)
	}

	data, httpErr := l.http.Get(ctx, rawURL)
	if httpErr == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	key, ok := l.store.KeyFromURL(rawURL)
	if !ok {
		return nil, apperr.New(apperr.KindNetworkFailure, "", fmt.Errorf("fetch reference photo: %w", httpErr))
	}
	slog.Warn("direct reference fetch failed, reading from storage", "key", key, "error", httpErr)

	var storeErr error
	err := retry.Do(ctx, l.policy, func(ctx context.Context) error {
		data, storeErr = l.store.GetObject(ctx, key)
		return storeErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.New(apperr.KindNetworkFailure, "",
			fmt.Errorf("fetch reference photo: %w", errors.Join(httpErr, err)))
	}
	return data, nil
}
