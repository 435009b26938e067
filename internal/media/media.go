// Package media stores binary attachments for elements (portraits,
// maps, handouts) behind a thin S3-like abstraction. Attachment keys
// follow the scheme projects/<project-id>/elements/<element-id>/<name>.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Driver identifies a concrete media storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // User metadata (small, flat key-value)
}

// SignedURLOptions holds options for generating a pre-signed URL.
type SignedURLOptions struct {
	Method  string        // GET|PUT (currently only GET used internally)
	Expiry  time.Duration // default 15m
	Headers map[string]string
}

// Info describes a stored attachment.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store provides a thin S3-like abstraction used by higher layers.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = errors.New("media: unsupported operation")

// ElementKey builds the attachment key for a named file on an element.
func ElementKey(projectID, elementID, name string) (string, error) {
	for _, part := range []string{projectID, elementID, name} {
		if strings.TrimSpace(part) == "" {
			return "", fmt.Errorf("media: empty key component")
		}
		if strings.Contains(part, "/") || strings.Contains(part, "..") {
			return "", fmt.Errorf("media: invalid key component %q", part)
		}
	}
	return fmt.Sprintf("projects/%s/elements/%s/%s", projectID, elementID, name), nil
}

// ElementPrefix is the key prefix covering all attachments of an element.
func ElementPrefix(projectID, elementID string) string {
	return fmt.Sprintf("projects/%s/elements/%s/", projectID, elementID)
}

// Config parameterizes Open.
type Config struct {
	Driver          Driver
	Root            string // fs root directory
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string // optional static credentials; default AWS chain otherwise
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Open constructs the configured media store. An empty driver defaults
// to the filesystem backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystemStore(cfg.Root)
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverS3:
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
			PathStyle:       cfg.PathStyle,
		})
	default:
		return nil, fmt.Errorf("media: unknown driver %s", driver)
	}
}
