// Package api exposes the asset deployer over HTTP for build-pipeline
// sidecars that shell out to deployd instead of linking the library.
package api

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	deployer "github.com/kattsoftware/phassets-amazon-s3-deployer"
)

// Deployer is the slice of the deployer surface the handlers need.
type Deployer interface {
	Lookup(ctx context.Context, a deployer.Asset) (string, bool)
	Deploy(ctx context.Context, a deployer.Asset) (string, error)
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	// AssetRoot confines deployable paths to one directory. Required: the
	// service refuses to serve arbitrary filesystem reads.
	AssetRoot string
}

// API wires the deployer, the optional ledger pool, and configuration for
// the HTTP handlers.
type API struct {
	deployer Deployer
	pool     *pgxpool.Pool
	logger   *log.Logger
	config   Config
}

// New initialises the API layer. pool may be nil when no ledger database
// is configured; the recent-deployments endpoint then reports the
// dependency as missing.
func New(d Deployer, pool *pgxpool.Pool, logger *log.Logger, cfg Config) (*API, error) {
	if d == nil {
		return nil, errors.New("deployer is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	cfg.AssetRoot = strings.TrimSpace(cfg.AssetRoot)
	if cfg.AssetRoot == "" {
		return nil, errors.New("asset root is required")
	}
	root, err := filepath.Abs(cfg.AssetRoot)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("asset root must be a directory")
	}
	cfg.AssetRoot = root

	return &API{
		deployer: d,
		pool:     pool,
		logger:   logger,
		config:   cfg,
	}, nil
}

// resolveAsset maps a client-supplied relative path to a FileAsset under
// the configured asset root, rejecting escapes.
func (a *API) resolveAsset(relPath string) (*deployer.FileAsset, error) {
	relPath = strings.TrimSpace(relPath)
	if relPath == "" {
		return nil, errors.New("path is required")
	}
	if filepath.IsAbs(relPath) {
		return nil, errors.New("path must be relative to the asset root")
	}

	full := filepath.Join(a.config.AssetRoot, filepath.FromSlash(relPath))
	if full != a.config.AssetRoot && !strings.HasPrefix(full, a.config.AssetRoot+string(os.PathSeparator)) {
		return nil, errors.New("path escapes the asset root")
	}

	return deployer.NewFileAsset(full)
}
