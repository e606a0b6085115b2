// Package notion implements the client for the remote document API: a
// retrying transport, a pagination collector, and a bounded-concurrency
// block service with a run-scoped response cache.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jaehyun-p/notion-ingest/internal/metrics"
)

// DefaultAPIVersion is the document API revision this client speaks.
const DefaultAPIVersion = "2022-06-28"

// Config controls transport behavior.
type Config struct {
	BaseURL    string
	Token      string
	APIVersion string
	// MaxRetries is the total number of attempts per request.
	MaxRetries int
	// BackoffBase is the unit of the exponential backoff (2^attempt * base).
	BackoffBase time.Duration
	// RequestsPerSecond enables client-side pacing when > 0.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// APIError is a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.StatusCode)
	}
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
}

// RateLimited reports whether the error is the API's rate-limit signal.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Transport wraps remote calls with exponential backoff on rate-limit and
// transient errors.
type Transport struct {
	cfg    Config
	client *http.Client
	pacer  *rate.Limiter
	log    *zap.Logger
}

// NewTransport builds a Transport.
func NewTransport(cfg Config, log *zap.Logger) *Transport {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	var pacer *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Transport{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		pacer:  pacer,
		log:    log,
	}
}

// Get performs a GET request against the API path.
func (t *Transport) Get(ctx context.Context, path string) ([]byte, error) {
	return t.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body against the API path.
func (t *Transport) Post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return t.do(ctx, http.MethodPost, path, payload)
}

func (t *Transport) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < t.cfg.MaxRetries; attempt++ {
		data, err := t.once(ctx, method, path, body)
		if err == nil {
			metrics.ObserveAPIRequest(method, "ok")
			return data, nil
		}
		lastErr = err
		metrics.ObserveAPIRequest(method, "error")
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		if attempt == t.cfg.MaxRetries-1 {
			break
		}

		delay := t.cfg.BackoffBase << attempt
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RateLimited() {
			t.log.Info("rate limit hit, retrying",
				zap.String("path", path),
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1),
			)
		} else {
			t.log.Info("request failed, retrying",
				zap.String("path", path),
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}
		metrics.ObserveRetry()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		case <-time.After(delay):
		}
	}
	t.log.Error("request failed after retries",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("attempts", t.cfg.MaxRetries),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("%s %s failed after %d attempts: %w", method, path, t.cfg.MaxRetries, lastErr)
}

func (t *Transport) once(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if t.pacer != nil {
		if err := t.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pace request: %w", err)
		}
	}

	url := strings.TrimRight(t.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", t.cfg.APIVersion)
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    apiErrorMessage(data),
		}
	}
	return data, nil
}

func apiErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}
