package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/elearning-factory/pkg/logger"
	"github.com/feichai0017/elearning-factory/pkg/storage/minio"
	"github.com/feichai0017/elearning-factory/pkg/storage/s3"
)

// StorageType names a blob storage backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
	StorageTypeNone  StorageType = "none"
)

var ErrNotConfigured = errors.New("blob storage not configured")

// Storage is a bucket-scoped blob store.
type Storage interface {
	// Store writes reader under key and returns the key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL returns a presigned GET URL valid for ttl.
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// CleanupBefore deletes objects last modified before threshold and
	// reports how many were removed.
	CleanupBefore(ctx context.Context, threshold time.Time) (int, error)
	Bucket() string
	Type() string
}

// NewStorage creates the storage backend named by storageType. StorageTypeNone
// and backends without credentials yield ErrNotConfigured.
func NewStorage(ctx context.Context, storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		st, err := s3.GetClient(ctx, log)
		if errors.Is(err, s3.ErrNotConfigured) {
			return nil, ErrNotConfigured
		}
		if err != nil {
			return nil, err
		}
		return st, nil
	case StorageTypeMinio:
		st, err := minio.GetClient(ctx, log)
		if errors.Is(err, minio.ErrNotConfigured) {
			return nil, ErrNotConfigured
		}
		if err != nil {
			return nil, err
		}
		return st, nil
	case StorageTypeNone, "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// NewKey builds a unique object key under prefix, keeping the base name of
// the original file so objects stay recognizable.
func NewKey(prefix, filename string, now time.Time) string {
	base := sanitize(filepath.Base(filename))
	return path.Join(prefix, now.UTC().Format("2006/01/02"), uuid.NewString()+"-"+base)
}

func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
