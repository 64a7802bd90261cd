package blob

import (
	"context"
	"errors"
	"fmt"
)

const (
	BackendDisk = "disk"
	BackendS3   = "s3"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid key")
)

// Backend stores file content keyed by vault path. The ledger keeps the
// revision index; a Backend only holds bytes.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, content []byte) error
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Backend string    `mapstructure:"backend"`
	Dir     string    `mapstructure:"dir"`
	S3      *S3Config `mapstructure:"s3"`
}

type S3Config struct {
	BucketName    string `mapstructure:"bucket_name"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Endpoint      string `mapstructure:"endpoint"`
	UseAccelerate bool   `mapstructure:"use_accelerate"`
}

func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendDisk:
		if c.Dir == "" {
			return errors.New("blob dir is required for the disk backend")
		}
	case BackendS3:
		if c.S3 == nil || c.S3.BucketName == "" {
			return errors.New("s3 bucket name is required")
		}
		if c.S3.Region == "" {
			return errors.New("s3 region is required")
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.Backend)
	}
	return nil
}

// New builds the backend cfg selects.
func New(cfg *Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == BackendS3 {
		return NewS3BackendWithConfig(cfg.S3)
	}
	return NewOSDiskBackend(cfg.Dir)
}
