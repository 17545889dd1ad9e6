package cache

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

// KV is a cache backed by a NATS JetStream key-value bucket, shared by
// every deployer process pointed at the same NATS endpoint.
type KV struct {
	conn *nats.Conn
	kv   nats.KeyValue
}

// NewKV connects to url and binds to the named key-value bucket, creating
// it with the given TTL when it does not exist yet. JetStream expires
// entries bucket-wide, so the TTL is fixed at creation; the per-call TTL
// passed to Save is validated against it.
func NewKV(url, bucket string, ttl time.Duration, opts ...nats.Option) (*KV, error) {
	if bucket == "" {
		return nil, errors.New("cache bucket is required")
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: bucket,
			TTL:    ttl,
		})
	}
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &KV{conn: nc, kv: kv}, nil
}

// Close shuts down the underlying NATS connection.
func (c *KV) Close() {
	if c == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

// Get returns the value stored under key, if present and not yet expired
// by the bucket TTL.
func (c *KV) Get(_ context.Context, key string) (string, bool, error) {
	if c == nil {
		return "", false, errors.New("nil cache")
	}

	entry, err := c.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(entry.Value()), true, nil
}

// Save stores value under key. Expiry follows the bucket TTL configured at
// creation, not the per-call ttl, which only guards against callers
// expecting a different lifetime.
func (c *KV) Save(_ context.Context, key, value string, ttl time.Duration) error {
	if c == nil {
		return errors.New("nil cache")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	_, err := c.kv.PutString(key, value)
	return err
}
