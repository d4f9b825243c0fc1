package storage

import (
	"context"
	"io"
)

// Blobs stores file container content by key.
type Blobs interface {
	// Get returns the content stored under key.
	// The caller is responsible for closing the returned reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put stores size bytes from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Head returns metadata for key without reading its content.
	Head(ctx context.Context, key string) (*Object, error)
}

// Object describes a stored blob.
type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// Config holds S3-compatible storage configuration.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string `yaml:"bucket" env:"BUCKET"`

	// AccessKey is the AWS access key ID (required).
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`

	// SecretKey is the AWS secret access key (required).
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`

	// Endpoint is the custom S3 endpoint URL (optional, for MinIO or other S3-compatible services).
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`

	// Region is the AWS region (default: us-east-1).
	Region string `yaml:"region" env:"REGION"`

	// PathStyle enables path-style URLs (required for MinIO).
	PathStyle bool `yaml:"path_style" env:"PATH_STYLE"`
}

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "us-east-1"

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
}

func (c *Config) validate() error {
	if c.Bucket == "" || c.AccessKey == "" || c.SecretKey == "" {
		return ErrInvalidConfig
	}
	return nil
}

// Enabled reports whether an S3 bucket is configured.
func (c *Config) Enabled() bool {
	return c.Bucket != ""
}
