// Package httpagent talks to remote agent endpoints over HTTP.
package httpagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/metrics"
	"github.com/alanyang/job-dispatch/internal/observability"
	portclient "github.com/alanyang/job-dispatch/internal/port/agentclient"
)

var _ portclient.Client = (*Client)(nil)

const (
	maxBodyBytes     = 4 << 20
	maxRetryInterval = 5 * time.Minute
)

// ErrMalformedResponse means a 2xx response whose JSON body could not be decoded.
var ErrMalformedResponse = errors.New("malformed agent response")

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent returned status %d", e.Code)
	}
	return fmt.Sprintf("agent returned status %d: %s", e.Code, e.Body)
}

// AgentError is a failure reported by the agent itself in a 2xx JSON body.
type AgentError struct{ Message string }

func (e *AgentError) Error() string { return "agent reported error: " + e.Message }

// DefaultRetryable retries connection refused, connection reset, timeouts and 5xx responses.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return false
}

type Config struct {
	HealthTimeout time.Duration
	CancelTimeout time.Duration
}

// NewBackOff turns policy into a deterministic exponential schedule: BaseDelay, then
// BaseDelay*Multiplier, and so on, stopping after MaxRetries retries.
func NewBackOff(policy portclient.RetryPolicy) backoff.BackOff {
	multiplier := policy.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     policy.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          multiplier,
		MaxInterval:         maxRetryInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	retries := policy.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// Client is stateless with respect to agents; it is safe for concurrent use.
type Client struct {
	http    *http.Client
	cfg     Config
	metrics *metrics.Collector
}

// New builds a client. Per-request deadlines come from contexts, so the http.Client has no
// global timeout.
func New(cfg Config, m *metrics.Collector) *Client {
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = 5 * time.Second
	}
	return &Client{
		http:    &http.Client{},
		cfg:     cfg,
		metrics: m,
	}
}

// Call POSTs payload to address, retrying per policy. The returned error is non-nil only when
// ctx ends; every remote failure is reported through AgentResponse.
func (c *Client) Call(ctx context.Context, address string, payload portclient.Payload, policy portclient.RetryPolicy) (portclient.AgentResponse, error) {
	ctx, span := observability.StartSpan(ctx, "agent.call",
		attribute.String("agent.address", address),
		attribute.String("agent.task_id", payload.TaskID),
	)

	body, err := json.Marshal(payload)
	if err != nil {
		observability.EndSpan(span, err)
		return portclient.AgentResponse{Error: fmt.Sprintf("encoding payload: %v", err)}, nil
	}

	retryable := policy.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	start := time.Now()
	var resp portclient.AgentResponse
	attempt := 0
	operation := func() error {
		attempt++
		result, code, err := c.execute(ctx, address, body, policy.RequestTimeout)
		resp = portclient.AgentResponse{
			StatusCode: code,
			Attempts:   attempt,
			Elapsed:    time.Since(start),
		}
		if err == nil {
			resp.Success = true
			resp.Result = result
			return nil
		}
		resp.Error = err.Error()
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(error, time.Duration) { c.metrics.AgentCallRetry() }
	_ = backoff.RetryNotify(operation, backoff.WithContext(NewBackOff(policy), ctx), notify)

	if err := ctx.Err(); err != nil && !resp.Success {
		span.SetAttributes(attribute.Int("agent.attempts", resp.Attempts))
		observability.EndSpan(span, err)
		return resp, err
	}

	span.SetAttributes(
		attribute.Int("agent.attempts", resp.Attempts),
		attribute.Bool("agent.success", resp.Success),
	)
	var spanErr error
	if !resp.Success {
		spanErr = fmt.Errorf("%w: %s", apperr.ErrRemoteCall, resp.Error)
	}
	observability.EndSpan(span, spanErr)
	return resp, nil
}

func (c *Client) execute(ctx context.Context, address string, body []byte, timeout time.Duration) (string, int, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, code, err := c.doExecute(ctx, address, body)
	c.metrics.AgentCall("call", err == nil, time.Since(start))
	return result, code, err
}

func (c *Client) doExecute(ctx context.Context, address string, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: snippet(raw)}
	}

	result, err := decodeResult(resp.Header.Get("Content-Type"), raw)
	return result, resp.StatusCode, err
}

type executeResponse struct {
	Result *string `json:"result"`
	Output *string `json:"output"`
	Error  string  `json:"error"`
}

func decodeResult(contentType string, raw []byte) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/json" {
		return string(raw), nil
	}
	var body executeResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.Error != "" {
		return "", &AgentError{Message: body.Error}
	}
	switch {
	case body.Result != nil:
		return *body.Result, nil
	case body.Output != nil:
		return *body.Output, nil
	}
	return string(raw), nil
}

// HealthCheck calls <address>/health once. Every failure is folded into an unhealthy status.
func (c *Client) HealthCheck(ctx context.Context, address string) portclient.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	start := time.Now()
	err := c.ping(ctx, address)
	elapsed := time.Since(start)
	c.metrics.AgentCall("health", err == nil, elapsed)

	status := portclient.HealthStatus{IsHealthy: err == nil, ResponseTimeMs: elapsed.Milliseconds()}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (c *Client) ping(ctx context.Context, address string) error {
	raw, err := c.get(ctx, endpoint(address, "health"))
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch strings.ToLower(body.Status) {
	case "ok", "healthy":
		return nil
	}
	return fmt.Errorf("agent reports status %q", body.Status)
}

// Cancel asks the agent to stop taskID. It never fails; false means the request did not succeed.
func (c *Client) Cancel(ctx context.Context, address, taskID string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CancelTimeout)
	defer cancel()

	start := time.Now()
	ok := c.cancel(ctx, address, taskID)
	c.metrics.AgentCall("cancel", ok, time.Since(start))
	return ok
}

func (c *Client) cancel(ctx context.Context, address, taskID string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(address, "cancel", url.PathEscape(taskID)), nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Status reads the optional load report at <address>/status.
func (c *Client) Status(ctx context.Context, address string) (portclient.AgentLoad, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	start := time.Now()
	raw, err := c.get(ctx, endpoint(address, "status"))
	c.metrics.AgentCall("status", err == nil, time.Since(start))
	if err != nil {
		return portclient.AgentLoad{}, fmt.Errorf("agent status: %w: %v", apperr.ErrRemoteCall, err)
	}
	var load portclient.AgentLoad
	if err := json.Unmarshal(raw, &load); err != nil {
		return portclient.AgentLoad{}, fmt.Errorf("agent status: %w: %v", apperr.ErrRemoteCall, ErrMalformedResponse)
	}
	return load, nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(raw)}
	}
	return raw, nil
}

func endpoint(address string, parts ...string) string {
	return strings.TrimRight(address, "/") + "/" + strings.Join(parts, "/")
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
