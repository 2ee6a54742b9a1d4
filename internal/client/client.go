// Package client is the caller side of the runner protocol: it merges the
// parameter containers of concurrent logical calls into one batched
// invocation, sends it to a runner replica, and splits the batched result
// back into one payload per call.
package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"runnerd/internal/batch"
	"runnerd/internal/params"
	"runnerd/internal/payload"
	"runnerd/internal/wire"
	"runnerd/internal/ws"
)

// ErrNoReplicas is returned when no replica is selectable.
var ErrNoReplicas = errors.New("client: no replicas available")

// ErrAllReplicasFailed is returned when every selectable replica failed.
var ErrAllReplicasFailed = errors.New("client: all replicas failed")

// CallError is a failure reported by the runner itself. Caller errors
// (4xx) are never retried.
type CallError struct {
	Status  int
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("runner returned %d: %s", e.Status, e.Message)
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	Enabled     bool
	MaxAttempts int
}

// Options configures a Client.
type Options struct {
	Replicas []ReplicaConfig
	Retry    RetryConfig

	// Timeout bounds one HTTP invocation; zero means no timeout.
	Timeout time.Duration

	// FailureThreshold consecutive failures take a replica out of
	// rotation until RecoveryTimeout elapses.
	FailureThreshold int
	RecoveryTimeout  time.Duration

	// WSPoolSize bounds the cached WebSocket connections (one per
	// replica); evicted connections are closed.
	WSPoolSize int
}

// Client calls runner replicas with batched parameter containers.
type Client struct {
	replicas []*replica
	balancer *weightedRoundRobin

	httpClient *http.Client
	wsConns    *lru.Cache[string, *ws.Client]

	retry            RetryConfig
	failureThreshold int
	recoveryTimeout  time.Duration
	logger           zerolog.Logger
}

// New creates a Client for a set of runner replicas.
func New(opts Options, logger zerolog.Logger) (*Client, error) {
	if len(opts.Replicas) == 0 {
		return nil, ErrNoReplicas
	}

	replicas := make([]*replica, len(opts.Replicas))
	for i, cfg := range opts.Replicas {
		if cfg.URL == "" {
			return nil, fmt.Errorf("client: replica %q has no URL", cfg.Name)
		}
		replicas[i] = newReplica(cfg)
	}

	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = 30 * time.Second
	}
	if opts.WSPoolSize <= 0 {
		opts.WSPoolSize = len(opts.Replicas)
	}

	wsConns, err := lru.NewWithEvict(opts.WSPoolSize, func(_ string, conn *ws.Client) {
		conn.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("client: create connection pool: %w", err)
	}

	return &Client{
		replicas:         replicas,
		balancer:         newWeightedRoundRobin(),
		httpClient:       &http.Client{Timeout: opts.Timeout},
		wsConns:          wsConns,
		retry:            opts.Retry,
		failureThreshold: opts.FailureThreshold,
		recoveryTimeout:  opts.RecoveryTimeout,
		logger:           logger.With().Str("component", "client").Logger(),
	}, nil
}

// Call merges the given per-call parameter containers into one batched
// invocation of the named method over HTTP and returns one result payload
// per call, in input order.
func (c *Client) Call(ctx context.Context, method string, calls []params.Params[*payload.Payload], batchDim int) ([]*payload.Payload, error) {
	return c.call(ctx, method, calls, batchDim, c.doHTTP)
}

// CallWS is Call over the persistent WebSocket transport.
func (c *Client) CallWS(ctx context.Context, method string, calls []params.Params[*payload.Payload], batchDim int) ([]*payload.Payload, error) {
	return c.call(ctx, method, calls, batchDim, c.doWS)
}

type sendFunc func(ctx context.Context, r *replica, method string, body []byte, contentType, requestID string) (*payload.Payload, error)

func (c *Client) call(ctx context.Context, method string, calls []params.Params[*payload.Payload], batchDim int, send sendFunc) ([]*payload.Payload, error) {
	batched, indices, err := batch.AggregateToBatch(payload.Auto, calls, batchDim)
	if err != nil {
		return nil, err
	}

	body, contentType, err := wire.EncodeParams(batched)
	if err != nil {
		return nil, err
	}

	result, err := c.execute(ctx, method, body, contentType, newRequestID(), send)
	if err != nil {
		return nil, err
	}

	return batch.SplitBatchResult(payload.Auto, result, indices, batchDim)
}

// execute runs one invocation with retry across replicas. The request ID
// stays stable across attempts so the runner can deduplicate a batch it
// already executed.
func (c *Client) execute(ctx context.Context, method string, body []byte, contentType, requestID string, send sendFunc) (*payload.Payload, error) {
	maxAttempts := 1
	if c.retry.Enabled && c.retry.MaxAttempts > 1 {
		maxAttempts = c.retry.MaxAttempts
	}

	tried := make(map[string]bool)
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		r := c.next(tried)
		if r == nil {
			break
		}

		result, err := send(ctx, r, method, body, contentType, requestID)
		if err == nil {
			r.RecordSuccess()
			return result, nil
		}

		var callErr *CallError
		if errors.As(err, &callErr) && callErr.Status < http.StatusInternalServerError {
			// Caller error: the batch itself is bad, retrying cannot help.
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		r.RecordFailure()
		tried[r.Name()] = true
		lastErr = err

		c.logger.Warn().
			Int("attempt", attempt+1).
			Int("maxAttempts", maxAttempts).
			Str("method", method).
			Str("replica", r.Name()).
			Err(err).
			Msg("invocation failed, retrying")
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllReplicasFailed, lastErr)
	}
	return nil, ErrNoReplicas
}

// next selects an available replica not yet tried in this invocation.
func (c *Client) next(tried map[string]bool) *replica {
	available := make([]*replica, 0, len(c.replicas))
	for _, r := range c.replicas {
		if r.Available(c.failureThreshold, c.recoveryTimeout) {
			available = append(available, r)
		}
	}
	return c.balancer.Next(available, tried)
}

// doHTTP posts one invocation to a replica.
func (c *Client) doHTTP(ctx context.Context, r *replica, method string, body []byte, contentType, requestID string) (*payload.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL()+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(wire.RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: post to %s: %w", r.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrorBody(resp)
		return nil, &CallError{Status: resp.StatusCode, Message: msg}
	}
	return wire.ReadPayload(resp.Header, resp.Body)
}

// doWS sends one invocation over the replica's pooled WebSocket
// connection, dialing on first use.
func (c *Client) doWS(ctx context.Context, r *replica, method string, body []byte, contentType, requestID string) (*payload.Payload, error) {
	conn, err := c.wsConn(ctx, r)
	if err != nil {
		return nil, err
	}

	result, err := conn.Call(ctx, method, body, contentType)
	if err != nil {
		// The connection may be dead; drop it so the next attempt redials.
		if errors.Is(err, ws.ErrClosed) {
			c.wsConns.Remove(r.URL())
		}
		return nil, err
	}
	return result, nil
}

// wsConn returns the pooled connection for a replica, dialing if needed.
func (c *Client) wsConn(ctx context.Context, r *replica) (*ws.Client, error) {
	if conn, ok := c.wsConns.Get(r.URL()); ok {
		return conn, nil
	}

	conn, err := ws.Dial(ctx, wsURL(r.URL()), c.logger)
	if err != nil {
		return nil, err
	}
	c.wsConns.Add(r.URL(), conn)
	return conn, nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.wsConns.Purge()
}

// wsURL converts a replica base URL to its WebSocket endpoint.
func wsURL(base string) string {
	if rest, ok := strings.CutPrefix(base, "https://"); ok {
		base = "wss://" + rest
	} else if rest, ok := strings.CutPrefix(base, "http://"); ok {
		base = "ws://" + rest
	}
	return base + "/ws"
}

// readErrorBody extracts the error message from a failure response.
func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return resp.Status
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return string(data)
}

// newRequestID generates the idempotency key for one invocation.
func newRequestID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
