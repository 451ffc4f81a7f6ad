package artifact

import (
	"context"
	"fmt"

	apperrors "github.com/fieldline/geostack/internal/errors"
)

// Config selects and parameterizes an artifact backend.
type Config struct {
	// Driver is one of "memory", "fs", "s3". Empty defaults to "fs".
	Driver string
	// Root is the base directory for the fs driver.
	Root string
	// S3 parameterizes the s3 driver.
	S3 S3Config
}

// Open constructs the Store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "fs":
		return NewFilesystem(cfg.Root)
	case "memory":
		return NewMemory(), nil
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("%w: unknown artifact driver %q", apperrors.ErrInvalidConfig, cfg.Driver)
	}
}
