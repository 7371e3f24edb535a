// Package storage keeps candidate files in an S3-compatible bucket and hands
// out short-lived signed URLs for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is returned when no object store is configured or the
// backend fails.
var ErrUnavailable = errors.New("object storage unavailable")

// Unavailable marks a backend failure as ErrUnavailable and keeps the cause.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// ObjectStore is the subset of an S3 API the service needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Disabled is the ObjectStore used when storage is not configured.
type Disabled struct{}

func (Disabled) Put(context.Context, string, []byte, string) error { return ErrUnavailable }
func (Disabled) Remove(context.Context, string) error              { return ErrUnavailable }
func (Disabled) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", ErrUnavailable
}

// PhotoKey and CVKey lay objects out per tenant and candidate. A random
// suffix keeps a replaced file from being served from a stale URL.
func PhotoKey(companyID, candidateID, suffix, ext string) string {
	return "companies/" + companyID + "/candidates/" + candidateID + "/photo-" + suffix + ext
}

func CVKey(companyID, candidateID, suffix, ext string) string {
	return "companies/" + companyID + "/candidates/" + candidateID + "/cv-" + suffix + ext
}
