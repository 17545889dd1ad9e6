package bundle

import (
	"context"
	"io"
	"time"

	deployer "github.com/kattsoftware/phassets-amazon-s3-deployer"
)

// Deployer is what a bundle deploy needs from the asset deployer.
type Deployer interface {
	Lookup(ctx context.Context, a deployer.Asset) (string, bool)
	Deploy(ctx context.Context, a deployer.Asset) (string, error)
}

// BuildConfig configures bundle creation.
type BuildConfig struct {
	AssetsDir string
	Output    string
	Signer    *Signer
	Now       func() time.Time
	Stdout    io.Writer
}

// DeployConfig configures deploying a bundle's assets.
type DeployConfig struct {
	BundlePath string
	Deployer   Deployer
	Signer     *Signer
	Stdout     io.Writer
}
