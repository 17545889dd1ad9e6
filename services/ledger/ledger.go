// Package ledger records successful deploys in Postgres by consuming the
// deploy-event stream. The ledger is an audit trail, not a second source
// of truth: the deployer never reads it.
package ledger

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	deployer "github.com/kattsoftware/phassets-amazon-s3-deployer"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/pkg/bus"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/pkg/db"
)

// Recorder subscribes to deploy events and persists one row per event.
type Recorder struct {
	orm *gorm.DB
	bus *bus.Bus

	subsMu sync.Mutex
	subs   []io.Closer
}

// NewRecorder creates a recorder bound to the provided dependencies.
func NewRecorder(orm *gorm.DB, b *bus.Bus) (*Recorder, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}

	return &Recorder{orm: orm, bus: b}, nil
}

// Start registers the durable NATS subscription and begins recording.
func (r *Recorder) Start(ctx context.Context) error {
	if r == nil {
		return errors.New("nil recorder")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	closer, err := r.bus.SubscribeDeployed(ctx, "ledger-deployments", r.handleDeployed)
	if err != nil {
		return err
	}

	r.subsMu.Lock()
	r.subs = append(r.subs, closer)
	r.subsMu.Unlock()
	return nil
}

// Close tears down active subscriptions.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}

	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	var firstErr error
	for _, sub := range r.subs {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.subs = nil
	return firstErr
}

func (r *Recorder) handleDeployed(ctx context.Context, evt deployer.DeployedEvent) error {
	if evt.ID == uuid.Nil {
		return errors.New("event id missing")
	}
	if evt.ObjectKey == "" || evt.URL == "" {
		return errors.New("object key and url are required")
	}

	model := modelFromEvent(evt)

	// Redeliveries reuse the event ID; recording them once is enough.
	return r.orm.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

// Recent returns the most recently deployed assets, newest first.
func Recent(ctx context.Context, pool *pgxpool.Pool, limit int) ([]Deployment, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	var rows []Deployment
	err := db.Select(ctx, pool, &rows,
		`SELECT id, bucket, object_key, url, trigger, size_bytes, deployed_at
		 FROM deployments
		 ORDER BY deployed_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
