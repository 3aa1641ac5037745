package natsx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinPulse/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Client holds a NATS connection and its JetStream context.
type Client struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log *logger.Logger
}

// Connect dials url and reconnects forever on disconnect.
func Connect(url string, log *logger.Logger) (*Client, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	nc, err := nats.Connect(url,
		nats.Name("finpulse"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Client{nc: nc, js: js, log: log}, nil
}

// EnsureStream creates or updates a file-backed stream capturing subjects.
func (c *Client) EnsureStream(ctx context.Context, name string, subjects []string, maxAge time.Duration) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    maxAge,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}
	c.log.Info("jetstream stream ready", logger.String("stream", name), logger.Strings("subjects", subjects))
	return nil
}

// Publish writes data to subject and waits for the JetStream ack.
// msgID enables server-side de-duplication when non-empty.
func (c *Client) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	if _, err := c.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Connected reports the connection state.
func (c *Client) Connected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Close drains pending publishes and closes the connection.
func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}
