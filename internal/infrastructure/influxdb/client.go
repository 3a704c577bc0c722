package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/devagent/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	// Samples arrive every few seconds, so small batches keep the bucket
	// close to real time.
	defaultBatchSize     = 20
	defaultFlushInterval = 10 * time.Second

	// sourceTag is added to every point so mirrored agent data can be told
	// apart from other writers in a shared bucket.
	sourceTag = "devagent"
)

// Client mirrors telemetry into one InfluxDB bucket.
//
// Writes go through the library's batching WriteAPI and never block the
// caller. All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string

	mu      sync.RWMutex
	closed  bool
	onError func(err error)

	queued   atomic.Uint64
	failures atomic.Uint64
	done     chan struct{}
}

// Connect builds the client and pings the server once.
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: Mirror settings; cfg.Enabled must be true
//
// Returns:
//   - *Client: Ready mirror
//   - error: ErrDisabled, or ErrUnreachable/ErrUnhealthy wrapping the cause
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		done:     make(chan struct{}),
	}
	go c.drainErrors(c.writeAPI.Errors())

	return c, nil
}

// clientOptions maps config onto library options, filling defaults.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())).
		AddDefaultTag("source", sourceTag)
}

func ping(ctx context.Context, client influxdb2.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ready, err := client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !ready {
		return ErrUnhealthy
	}
	return nil
}

// drainErrors counts async batch failures and hands them to the callback.
// It exits when the WriteAPI closes its error channel.
func (c *Client) drainErrors(errs <-chan error) {
	defer close(c.done)
	for err := range errs {
		c.failures.Add(1)

		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// SetOnError sets the callback for failed batch writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Bucket returns the target bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Queued returns how many points have been handed to the write buffer.
func (c *Client) Queued() uint64 {
	return c.queued.Load()
}

// Failures returns how many batch writes the server rejected or that
// could not be delivered.
func (c *Client) Failures() uint64 {
	return c.failures.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return ping(ctx, c.client)
}

// Close flushes buffered points and releases the client. It returns once
// failures from the final batch have reached the error callback. Safe to
// call more than once.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	// Closing the client closes the error channel; wait until every
	// failure from the final flush has reached the callback.
	<-c.done
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
