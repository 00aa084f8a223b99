package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guilherme-santos/calcmd/internal"
)

const DefaultConnectTimeout = 10 * time.Second

var (
	ErrNotConnected   = errors.New("calendar client is not connected")
	ErrConnectTimeout = errors.New("calendar backend connection timed out")
	// ErrClosed is returned by a transport whose connection went away.
	ErrClosed = errors.New("calendar transport closed")
)

// Transport is one way of reaching the calendar backend.
type Transport interface {
	Open(context.Context) error
	Invoke(_ context.Context, op string, _ internal.Args) (json.RawMessage, error)
	Close() error
}

// RemoteError is an error reported by the backend itself.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Client owns the single connection to the calendar backend. Concurrent
// Connect calls share one in-flight attempt.
type Client struct {
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	connected bool
	attempt   *attempt
	// stale is closed once an Open that outlived its timeout has returned
	// and, if it succeeded, the transport was closed again.
	stale     chan struct{}
}

type attempt struct {
	done      chan struct{}
	err       error
	abandoned bool
}

var _ internal.Client = (*Client)(nil)

func NewClient(t Transport, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Client{
		transport: t,
		timeout:   timeout,
		logger:    logger,
	}
}

// Connect opens the transport unless it is already open. The attempt is
// bounded by the client timeout; on failure the client stays disconnected.
// An attempt that outlives Disconnect is closed instead of published.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	a := c.attempt
	if a == nil {
		a = &attempt{done: make(chan struct{})}
		c.attempt = a
		go c.open(a)
	}
	c.mu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) open(a *attempt) {
	c.mu.Lock()
	stale := c.stale
	c.mu.Unlock()
	// The transport is opened by one attempt at a time.
	if stale != nil {
		<-stale
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- c.transport.Open(ctx)
	}()

	var err error
	select {
	case err = <-result:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %v", ErrConnectTimeout, c.timeout, err)
		}
	case <-ctx.Done():
		err = fmt.Errorf("%w after %s", ErrConnectTimeout, c.timeout)
		done := make(chan struct{})
		c.mu.Lock()
		c.stale = done
		c.mu.Unlock()
		go func() {
			if lateErr := <-result; lateErr == nil {
				_ = c.transport.Close()
			}
			c.mu.Lock()
			if c.stale == done {
				c.stale = nil
			}
			c.mu.Unlock()
			close(done)
		}()
	}

	c.mu.Lock()
	if err == nil && a.abandoned {
		// Disconnect ran while opening; new Connect calls still join a.
		c.mu.Unlock()
		_ = c.transport.Close()
		err = fmt.Errorf("%w: disconnected while connecting", ErrClosed)
		c.mu.Lock()
	}
	c.connected = err == nil
	c.attempt = nil
	a.err = err
	close(a.done)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("calendar.connect_failed", "error", err.Error())
		return
	}
	c.logger.Debug("calendar.connected")
}

func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Call invokes op on the backend. It never connects implicitly.
func (c *Client) Call(ctx context.Context, op string, args internal.Args) (json.RawMessage, error) {
	if !c.Ready() {
		return nil, ErrNotConnected
	}
	c.logger.Debug("calendar.call", "op", op)

	res, err := c.transport.Invoke(ctx, op, args)
	if errors.Is(err, ErrClosed) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.logger.Warn("calendar.disconnected", "op", op)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.attempt != nil {
		c.attempt.abandoned = true
	}
	c.mu.Unlock()

	if !wasConnected {
		return nil
	}
	c.logger.Debug("calendar.disconnect")
	return c.transport.Close()
}
