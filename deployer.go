// Package deployer publishes locally processed static assets to an Amazon
// S3 bucket and keeps re-deploys of unchanged assets from re-uploading.
//
// An asset's remote identity (its object key) is derived from its name and
// a configured change trigger, so an unchanged asset always maps to the
// same key. A shared lookup cache short-circuits the "already deployed?"
// question; on cache miss the bucket itself is consulted before any upload
// happens.
package deployer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	gos3 "github.com/kattsoftware/phassets-amazon-s3-deployer/pkg/s3"
)

// CacheTTL bounds how long a deployed URL is trusted without re-validating
// against the bucket.
const CacheTTL = 3600 * time.Second

// ObjectStore is the narrow remote-bucket contract the deployer needs.
type ObjectStore interface {
	// Exists reports whether bucket/key holds an object.
	Exists(ctx context.Context, bucket, key string) (bool, error)
	// PutPublic uploads body under bucket/key with a public-read policy and
	// returns the object's public URL. contentType may be "".
	PutPublic(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error)
	// URL returns the public URL bucket/key would be served from, without
	// touching the network.
	URL(bucket, key string) string
}

// Cache is the shared lookup cache. A present entry means the object was
// recently known to exist; an absent entry means nothing (it may simply
// have expired or been written by another process).
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Save(ctx context.Context, key, value string, ttl time.Duration) error
}

// DeployedEvent describes one successful upload. It is published
// best-effort after the cache write.
type DeployedEvent struct {
	ID         uuid.UUID `json:"id"`
	Bucket     string    `json:"bucket"`
	ObjectKey  string    `json:"object_key"`
	URL        string    `json:"url"`
	Trigger    Trigger   `json:"trigger"`
	SizeBytes  int64     `json:"size_bytes"`
	DeployedAt time.Time `json:"deployed_at"`
}

// EventPublisher receives DeployedEvents. Publish failures never fail a
// deploy.
type EventPublisher interface {
	PublishDeployed(ctx context.Context, evt DeployedEvent) error
}

// Deployer uploads assets and answers "already deployed?". A Deployer is
// always ready: Activate (or New) is the only way to obtain one, so the
// unconfigured state of the readiness machine is simply the absence of a
// Deployer value.
type Deployer struct {
	store  ObjectStore
	cache  Cache
	events EventPublisher
	now    func() time.Time

	bucket     string
	trigger    Trigger
	autodetect bool
}

// Option adjusts optional Deployer collaborators.
type Option func(*Deployer)

// WithEvents makes the Deployer publish a DeployedEvent after each
// successful upload.
func WithEvents(p EventPublisher) Option {
	return func(d *Deployer) { d.events = p }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Deployer) { d.now = now }
}

// Activate validates cfg, constructs the S3 client from its credential
// pair and region, and returns a ready Deployer. Client construction
// failures come back as an ActivationError; the caller decides whether
// that is fatal or means "skip this deployer".
func Activate(ctx context.Context, cfg Config, cache Cache, opts ...Option) (*Deployer, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	store, err := gos3.New(ctx, gos3.Config{
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Region:    cfg.Region,
	})
	if err != nil {
		return nil, &ActivationError{Err: err}
	}

	return New(cfg, store, cache, opts...)
}

// New builds a Deployer around an existing store, bypassing client
// construction. Tests and callers with a preconfigured client use this.
func New(cfg Config, store ObjectStore, cache Cache, opts ...Option) (*Deployer, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if cache == nil {
		return nil, errors.New("cache is required")
	}

	trigger := cfg.Trigger
	if trigger == "" {
		trigger = TriggerModTime
	}

	d := &Deployer{
		store:      store,
		cache:      cache,
		now:        time.Now,
		bucket:     cfg.Bucket,
		trigger:    trigger,
		autodetect: cfg.AutodetectMIME,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func validate(cfg Config) error {
	for _, required := range []struct {
		key   string
		value string
	}{
		{KeyAccessKey, cfg.AccessKey},
		{KeySecretKey, cfg.SecretKey},
		{KeyBucket, cfg.Bucket},
		{KeyBucketRegion, cfg.Region},
	} {
		if required.value == "" {
			return &ConfigError{Field: required.key}
		}
	}
	return nil
}

// Trigger returns the change trigger this Deployer was activated with.
func (d *Deployer) Trigger() Trigger {
	if d == nil {
		return TriggerModTime
	}
	return d.trigger
}

// Bucket returns the destination bucket.
func (d *Deployer) Bucket() string {
	if d == nil {
		return ""
	}
	return d.bucket
}

// Lookup reports whether the asset, in its current state, is already
// deployed, returning the public URL when it is. The cache answers first;
// only on a miss is the bucket consulted, and a bucket hit back-fills the
// cache. Cache and existence-check failures degrade to "not deployed" so
// a broken optimisation path can never block the deploy path. On a hit
// the asset's output URL is set.
func (d *Deployer) Lookup(ctx context.Context, a Asset) (string, bool) {
	if d == nil || a == nil {
		return "", false
	}

	key, err := ObjectKey(a, d.trigger)
	if err != nil {
		return "", false
	}
	cacheKey := CacheKey(key)

	if url, ok, err := d.cache.Get(ctx, cacheKey); err == nil && ok {
		a.SetOutputURL(url)
		return url, true
	}

	exists, err := d.store.Exists(ctx, d.bucket, key)
	if err != nil || !exists {
		return "", false
	}

	url := d.store.URL(d.bucket, key)
	_ = d.cache.Save(ctx, cacheKey, url, CacheTTL)
	a.SetOutputURL(url)
	return url, true
}

// Deploy uploads the asset unconditionally and returns its public URL.
// Callers wanting the skip-if-unchanged behaviour check Lookup first.
// On success the URL is cached under the derived cache key and written to
// the asset; on provider failure a DeployError wrapping the provider error
// is returned and the cache is left untouched.
func (d *Deployer) Deploy(ctx context.Context, a Asset) (string, error) {
	if d == nil {
		return "", errors.New("nil deployer")
	}
	if a == nil {
		return "", errors.New("nil asset")
	}

	key, err := ObjectKey(a, d.trigger)
	if err != nil {
		return "", err
	}

	body, err := a.Contents()
	if err != nil {
		return "", err
	}

	var contentType string
	if d.autodetect {
		contentType = detectContentType(a)
	}

	url, err := d.store.PutPublic(ctx, d.bucket, key, body, contentType)
	if err != nil {
		return "", &DeployError{ObjectKey: key, Err: err}
	}

	_ = d.cache.Save(ctx, CacheKey(key), url, CacheTTL)
	a.SetOutputURL(url)
	d.publishDeployed(ctx, key, url, int64(len(body)))

	return url, nil
}

func (d *Deployer) publishDeployed(ctx context.Context, key, url string, size int64) {
	if d.events == nil {
		return
	}
	_ = d.events.PublishDeployed(ctx, DeployedEvent{
		ID:         uuid.New(),
		Bucket:     d.bucket,
		ObjectKey:  key,
		URL:        url,
		Trigger:    d.trigger,
		SizeBytes:  size,
		DeployedAt: d.now().UTC(),
	})
}
