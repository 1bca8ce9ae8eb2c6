// Package natsclient manages the NATS connection and exposes the key-value
// substrate the registry and pattern library replicate through.
//
// The KV interface is deliberately small (get/put/create/update/keys with
// revisions) so the registry can run against JetStream KV in production and
// the in-memory implementation in tests.
package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
)

// Options configures the NATS client.
type Options struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultOptions returns sensible connection defaults.
func DefaultOptions() Options {
	return Options{
		URL:           nats.DefaultURL,
		Name:          "bridgekit",
		MaxReconnects: -1, // reconnect forever
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Client manages a NATS connection and its JetStream context.
type Client struct {
	conn      *nats.Conn
	js        jetstream.JetStream
	logger    *slog.Logger
	metrics   *metric.Metrics
	connected atomic.Bool
}

// Connect establishes a NATS connection with reconnect handling. Connection
// state transitions are logged and, when metrics are provided, exported.
func Connect(opts Options, logger *slog.Logger, metrics *metric.Metrics) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{logger: logger, metrics: metrics}

	natsOpts := []nats.Option{
		nats.Name(opts.Name),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.Timeout(opts.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.connected.Store(false)
			if metrics != nil {
				metrics.NATSConnected.Set(0)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.connected.Store(true)
			if metrics != nil {
				metrics.NATSConnected.Set(1)
				metrics.NATSReconnects.Inc()
			}
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Connect", "nats dial")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.WrapFatal(err, "Client", "Connect", "jetstream context")
	}

	c.conn = conn
	c.js = js
	c.connected.Store(true)
	if metrics != nil {
		metrics.NATSConnected.Set(1)
	}

	return c, nil
}

// Conn returns the underlying NATS connection.
func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// IsConnected reports connection health.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.conn != nil && c.conn.IsConnected()
}

// KeyValue opens (or creates) a JetStream KV bucket and wraps it in the KV
// interface.
func (c *Client) KeyValue(ctx context.Context, bucket string) (KV, error) {
	kv, err := c.js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
		if err != nil {
			return nil, errors.WrapTransient(err, "Client", "KeyValue",
				fmt.Sprintf("open bucket %s", bucket))
		}
	}
	return &jetstreamKV{bucket: kv}, nil
}

// Close drains and closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.connected.Store(false)
	if c.metrics != nil {
		c.metrics.NATSConnected.Set(0)
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return errors.WrapTransient(err, "Client", "Close", "drain")
	}
	return nil
}
