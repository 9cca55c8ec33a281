// Package notify delivers order events to the automation webhook with
// per-endpoint retries and a secondary fallback endpoint.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/krumbkraft/orderflow/internal/errors"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetryAttempts = 3
	DefaultUserAgent     = "KrumbKraft-App/1.0"
	DefaultSource        = "krumbkraft-app"

	maxResponseBody = 1 << 20
)

// Metric names emitted by the dispatcher.
const (
	MetricDispatchSucceeded = "WebhookDispatchSucceeded"
	MetricDispatchFailed    = "WebhookDispatchFailed"
	MetricDispatchAttempts  = "WebhookDispatchAttempts"
)

type Config struct {
	PrimaryURL    string
	SecondaryURL  string
	Timeout       time.Duration
	RetryAttempts int
	APIKey        string
	UserAgent     string
	Source        string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryAttempts < 1 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	return c
}

// Recorder receives dispatch counters. *aws.MetricsRecorder satisfies it.
type Recorder interface {
	Count(ctx context.Context, name string, value float64, dimensions map[string]string) error
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result describes the attempt that succeeded.
type Result struct {
	Endpoint   string         `json:"endpoint"`
	Attempts   int            `json:"attempts"`
	StatusCode int            `json:"status_code"`
	Body       map[string]any `json:"body"`
}

type Dispatcher struct {
	cfg      Config
	client   HTTPDoer
	logger   *zap.Logger
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

type Option func(*Dispatcher)

func WithHTTPClient(c HTTPDoer) Option { return func(d *Dispatcher) { d.client = c } }

func WithRecorder(r Recorder) Option { return func(d *Dispatcher) { d.recorder = r } }

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

func WithClock(fn func() time.Time) Option { return func(d *Dispatcher) { d.now = fn } }

func NewDispatcher(cfg Config, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		cfg:    cfg.withDefaults(),
		client: http.DefaultClient,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enabled reports whether a primary endpoint is configured.
func (d *Dispatcher) Enabled() bool {
	return d.cfg.PrimaryURL != ""
}

// Backoff returns the wait after failed attempt n (1-based): 2^n seconds.
func Backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Dispatch sends p to the primary endpoint and, once that is exhausted, to
// the secondary. Without a primary endpoint it does nothing and returns nil, nil.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) (*Result, error) {
	if !d.Enabled() {
		d.logger.Warn("webhook url not configured, skipping dispatch",
			zap.String("eventType", p.EventType),
			zap.String("orderId", p.Order.OrderID),
		)
		return nil, nil
	}

	if p.Source == "" {
		p.Source = d.cfg.Source
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = d.now()
	}
	query := p.Query().Encode()

	endpoints := []string{d.cfg.PrimaryURL}
	if d.cfg.SecondaryURL != "" {
		endpoints = append(endpoints, d.cfg.SecondaryURL)
	}

	var (
		tried    []string
		attempts int
		lastErr  error
	)
	for i, endpoint := range endpoints {
		tried = append(tried, endpoint)
		res, n, err := d.sendWithRetry(ctx, endpoint, query, p)
		attempts += n
		if err == nil {
			d.count(ctx, MetricDispatchSucceeded, 1, p.EventType)
			d.count(ctx, MetricDispatchAttempts, float64(attempts), p.EventType)
			d.logger.Info("webhook dispatched",
				zap.String("eventType", p.EventType),
				zap.String("orderId", p.Order.OrderID),
				zap.String("endpoint", redact(endpoint)),
				zap.Int("attempts", attempts),
			)
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < len(endpoints)-1 {
			d.logger.Warn("primary webhook failed, trying secondary",
				zap.String("orderId", p.Order.OrderID),
				zap.Error(err),
			)
		}
	}

	d.count(ctx, MetricDispatchFailed, 1, p.EventType)
	d.count(ctx, MetricDispatchAttempts, float64(attempts), p.EventType)
	d.logger.Error("webhook dispatch failed",
		zap.String("eventType", p.EventType),
		zap.String("orderId", p.Order.OrderID),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return nil, apperrors.NewDispatchError(redactAll(tried), attempts, lastErr)
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, endpoint, query string, p Payload) (*Result, int, error) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.RetryAttempts; attempt++ {
		d.logger.Debug("sending webhook",
			zap.String("endpoint", redact(endpoint)),
			zap.String("orderId", p.Order.OrderID),
			zap.Int("attempt", attempt),
		)
		res, err := d.send(ctx, endpoint, query)
		if err == nil {
			res.Attempts = attempt
			return res, attempt, nil
		}
		lastErr = err
		d.logger.Warn("webhook attempt failed",
			zap.String("endpoint", redact(endpoint)),
			zap.String("orderId", p.Order.OrderID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == d.cfg.RetryAttempts {
			break
		}
		if err := d.sleep(ctx, Backoff(attempt)); err != nil {
			return nil, attempt, err
		}
	}
	return nil, d.cfg.RetryAttempts, lastErr
}

func (d *Dispatcher) send(ctx context.Context, endpoint, query string) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	target := endpoint
	if query != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		target = endpoint + sep + query
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	if d.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", d.cfg.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook failed: %d - %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		body = map[string]any{"success": true}
	}
	return &Result{
		Endpoint:   redact(endpoint),
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

func (d *Dispatcher) count(ctx context.Context, name string, value float64, eventType string) {
	if d.recorder == nil {
		return
	}
	// metrics still go out when the dispatch itself ran out of time
	if err := d.recorder.Count(context.WithoutCancel(ctx), name, value, map[string]string{"EventType": eventType}); err != nil {
		d.logger.Debug("record metric failed", zap.String("metric", name), zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// redact drops the query string so secrets in webhook URLs stay out of logs.
func redact(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

func redactAll(endpoints []string) []string {
	out := make([]string, len(endpoints))
	for i, e := range endpoints {
		out[i] = redact(e)
	}
	return out
}
