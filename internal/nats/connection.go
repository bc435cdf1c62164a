// Package nats holds the shared NATS connection plumbing used by the
// event publisher.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ConnectionConfig holds configuration for a NATS connection.
type ConnectionConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for identifying this connection.
	Name string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for unlimited reconnects.
	MaxReconnects int

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// Timeout is the connection timeout.
	Timeout time.Duration

	// Token is an optional authentication token.
	Token string

	// Username is an optional username for authentication.
	Username string

	// Password is an optional password for authentication.
	Password string

	// PublishMaxRetries is the maximum number of retry attempts when
	// publishing an event fails. Default is 3 retries with a 1 second
	// delay between attempts.
	PublishMaxRetries int

	// SubjectPrefix is prepended to every event subject. Environment
	// specific (e.g., "workflow.uat", "workflow.prod"). Default is
	// "workflow".
	SubjectPrefix string
}

// DefaultConnectionConfig returns a configuration with sensible defaults.
func DefaultConnectionConfig(url string) *ConnectionConfig {
	return &ConnectionConfig{
		URL:               url,
		Name:              "workflow-engine",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		Timeout:           5 * time.Second,
		PublishMaxRetries: 3,
		SubjectPrefix:     "workflow",
	}
}

// Connect establishes a connection to NATS with the provided
// configuration. Connection state transitions are logged through the
// supplied logger; a nil logger disables them.
func Connect(ctx context.Context, config *ConnectionConfig, logger *zap.Logger) (*nats.Conn, error) {
	if config == nil {
		return nil, fmt.Errorf("connection config cannot be nil")
	}
	if config.URL == "" {
		return nil, fmt.Errorf("NATS URL cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.Timeout(config.Timeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	if config.Token != "" {
		opts = append(opts, nats.Token(config.Token))
	} else if config.Username != "" && config.Password != "" {
		opts = append(opts, nats.UserInfo(config.Username, config.Password))
	}

	type result struct {
		conn *nats.Conn
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		conn, err := nats.Connect(config.URL, opts...)
		resultCh <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", res.err)
		}
		return res.conn, nil
	}
}

// Close safely closes a NATS connection, draining in-flight messages
// first.
func Close(conn *nats.Conn) error {
	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("error draining connection: %w", err)
	}
	return nil
}

// IsConnected checks if the connection is active.
func IsConnected(conn *nats.Conn) bool {
	return conn != nil && conn.IsConnected()
}
