package storage

import (
	"context"
	"errors"
	"fmt"

	"camtrap/internal/models"
)

// Backend is the cloud file store the camera traps upload into.
type Backend interface {
	// ListFolder returns every entry directly inside path. A missing folder
	// fails with *NotFoundError.
	ListFolder(ctx context.Context, path string) ([]models.StorageEntry, error)
	// GetTemporaryLink returns a short-lived URL that can be fetched without
	// credentials.
	GetTemporaryLink(ctx context.Context, path string) (models.TemporaryLink, error)
	// GetMetadata describes path. A missing path fails with *NotFoundError.
	GetMetadata(ctx context.Context, path string) (models.Metadata, error)
}

var ErrNotFound = errors.New("storage path not found")

// NotFoundError reports a storage path that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("storage path not found: %s", e.Path)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// BackendError is any other failure reported by, or while talking to, the
// backend: auth, rate limits, network.
type BackendError struct {
	Op         string
	Path       string
	StatusCode int
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: backend status %d: %s", e.Op, e.Path, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the path does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
