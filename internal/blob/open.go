package blob

import (
	"context"
	"fmt"

	"morphocore/internal/infra/blob/fs"
	memorystore "morphocore/internal/infra/blob/memory"
	infraS3 "morphocore/internal/infra/blob/s3"
)

// S3Config configures the S3 backend.
type S3Config = infraS3.Config

// Config selects and configures a backend. An empty Driver means fs.
type Config struct {
	Driver Driver
	// FSRoot is the directory of the fs driver.
	FSRoot string
	S3     S3Config
}

// Open constructs the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewMemory returns a process-local store. Asset tests outside this package
// use it instead of importing the backend.
func NewMemory() Store { return memorystore.New() }

// NewMockS3ForTests returns an S3 store whose HTTP transport is an in-process
// fake bucket.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
