// Package ledgerclient talks to the ledger service on behalf of an operator
// console. Every remote call is a single attempt: failures and timeouts are
// reported, never retried.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/exceva/property-ledger/internal/platform/httpx"
	"github.com/exceva/property-ledger/internal/shared"
)

// DefaultTimeout bounds each remote call.
const DefaultTimeout = 15 * time.Second

// Client wraps the ledger HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	actorID    int64
	logger     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithActor stamps every request with the operator id.
func WithActor(actorID int64) Option {
	return func(c *Client) { c.actorID = actorID }
}

// WithLogger sets the logger used for failed calls.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a new client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type call struct {
	op             string
	method         string
	path           string
	body           any
	idempotencyKey string
}

// do performs one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if cl.body != nil {
		raw, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("ledgerclient: %s: encode: %w", cl.op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return fmt.Errorf("ledgerclient: %s: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.idempotencyKey != "" {
		req.Header.Set(httpx.IdempotencyHeader, cl.idempotencyKey)
	}
	if c.actorID != 0 {
		req.Header.Set(httpx.ActorHeader, strconv.FormatInt(c.actorID, 10))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		failure := &shared.RemoteFailure{Op: cl.op, Timeout: isTimeout(ctx, err), Err: err}
		c.logger.Warn("ledger call failed", slog.String("op", cl.op), slog.Bool("timeout", failure.Timeout), slog.Any("error", err))
		return failure
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return c.decodeProblem(cl.op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &shared.RemoteFailure{Op: cl.op, Timeout: isTimeout(ctx, err), Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) decodeProblem(op string, resp *http.Response) error {
	var problem httpx.ProblemDetail
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = json.Unmarshal(raw, &problem)

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		problems := problem.Problems
		if len(problems) == 0 && problem.Detail != "" {
			problems = []string{problem.Detail}
		}
		if len(problems) == 0 {
			problems = []string{"request was rejected"}
		}
		return shared.NewValidationError(problems)
	case resp.StatusCode == http.StatusConflict && problem.Type == httpx.ProblemDuplicate:
		return fmt.Errorf("ledgerclient: %s: %w", op, shared.ErrIdempotencyConflict)
	case resp.StatusCode == http.StatusConflict && problem.Type == httpx.ProblemInFlight:
		return fmt.Errorf("ledgerclient: %s: %w", op, shared.ErrLockHeld)
	case resp.StatusCode == http.StatusConflict:
		return &shared.StateError{Op: op, State: problem.State, Reason: problem.Detail}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("ledgerclient: %s: %w", op, shared.ErrNotFound)
	}
	c.logger.Warn("ledger call rejected", slog.String("op", op), slog.Int("status", resp.StatusCode))
	return &shared.RemoteFailure{Op: op, Status: resp.StatusCode}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
