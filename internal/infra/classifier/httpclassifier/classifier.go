// Package httpclassifier classifies text through a JSON-over-HTTP entity
// detection service that speaks the Comprehend entity shape.
package httpclassifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/piiguard/internal/domain/detection"
	"github.com/ahrav/piiguard/pkg/common"
)

var _ detection.Classifier = (*Client)(nil)

// maxErrorBody caps how much of an error response is quoted in errors.
const maxErrorBody = 512

// minThrottledRPS is the lowest rate a throttling response can push the
// shared limiter down to.
const minThrottledRPS = 0.5

type request struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
}

type entity struct {
	Type        string  `json:"type"`
	Score       float64 `json:"score"`
	BeginOffset int     `json:"begin_offset"`
	EndOffset   int     `json:"end_offset"`
}

type response struct {
	Entities []entity `json:"entities"`
}

// Client posts each chunk to the service endpoint. Server errors and 429s are
// retried with exponential backoff; other 4xx responses fail immediately. A 429
// also halves the rate of the limiter, which all workers share.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *common.RateLimiter
	retry      common.RetryPolicy
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter paces requests through limiter.
func WithRateLimiter(limiter *common.RateLimiter) Option {
	return func(c *Client) { c.limiter = limiter }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p common.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// New creates a Client for endpoint. Requests time out after timeout.
func New(endpoint string, timeout time.Duration, tracer trace.Tracer, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: common.NewRateLimiter(0, 1),
		retry:   common.RetryPolicy{MaxElapsedTime: 30 * time.Second},
		tracer:  tracer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the entities the service finds in text. The service reports
// character offsets; they are converted to byte offsets into text.
func (c *Client) Classify(ctx context.Context, text, languageCode string) ([]detection.Entity, error) {
	ctx, span := c.tracer.Start(ctx, "http_classifier.classify",
		trace.WithAttributes(
			attribute.String("endpoint", c.endpoint),
			attribute.Int("text.bytes", len(text)),
		))
	defer span.End()

	body, err := json.Marshal(request{Text: text, LanguageCode: languageCode})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal classify request: %w", err)
	}

	var (
		resp     response
		attempts int
	)
	operation := func() error {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait failed: %w", err))
		}
		return c.do(ctx, body, &resp)
	}

	if err := common.RetryWithBackoff(ctx, c.retry, operation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		span.SetAttributes(attribute.Int("attempts", attempts))
		return nil, fmt.Errorf("failed to classify text after %d attempt(s): %w", attempts, err)
	}

	entities := make([]detection.Entity, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		begin, end := detection.RuneSpanToBytes(text, e.BeginOffset, e.EndOffset)
		entities = append(entities, detection.Entity{Type: e.Type, Score: e.Score, Begin: begin, End: end})
	}

	span.SetAttributes(
		attribute.Int("attempts", attempts),
		attribute.Int("entities.count", len(entities)),
	)
	return entities, nil
}

func (c *Client) do(ctx context.Context, body []byte, out *response) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create classify request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("non-2xx response code %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
		if resp.StatusCode == http.StatusTooManyRequests {
			c.throttle()
			return err
		}
		if resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	*out = response{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode classify response: %w", err))
	}
	return nil
}

// throttle halves the limiter's rate, down to minThrottledRPS. An unlimited
// limiter has no rate to lower and is paced by the retry backoff alone.
func (c *Client) throttle() {
	rps := c.limiter.Limit()
	if math.IsInf(rps, 1) || rps <= minThrottledRPS {
		return
	}
	c.limiter.UpdateLimits(max(rps/2, minThrottledRPS), c.limiter.Burst())
}
