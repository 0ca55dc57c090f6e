package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"golang.org/x/time/rate"
)

// ExecutionClient talks to the evaluation service. It never retries: a run
// or a submission must reach the service at most once.
type ExecutionClient struct {
	http    *resty.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewExecutionClient creates an ExecutionClient for cfg.BaseURL.
func NewExecutionClient(cfg config.GatewayConfig, m *metrics.Metrics, log zerolog.Logger) *ExecutionClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "exstem-proctor/1.0")

	return &ExecutionClient{
		http:    client,
		limiter: newLimiter(cfg.RequestsPerSecond),
		metrics: m,
		log:     log.With().Str("component", "execution_client").Logger(),
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// StartSession initializes an execution sandbox for sessionID.
func (c *ExecutionClient) StartSession(ctx context.Context, sessionID uuid.UUID) error {
	return c.post(ctx, "start_session", "/evaluate/session/start", model.StartSessionRequest{SessionID: sessionID.String()}, nil)
}

// Run executes code in the session sandbox.
func (c *ExecutionClient) Run(ctx context.Context, req model.RunRequest) (*model.RunResponse, error) {
	var out model.RunResponse
	if err := c.post(ctx, "run", "/evaluate/run", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate grades code against the hidden tests of a task.
func (c *ExecutionClient) Validate(ctx context.Context, req model.ValidateRequest) (*model.ValidateResponse, error) {
	var out model.ValidateResponse
	if err := c.post(ctx, "validate", "/evaluate/validate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit records the final answers of a session.
func (c *ExecutionClient) Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResponse, error) {
	var out model.SubmitResponse
	if err := c.post(ctx, "submit", "/evaluate/submit", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ExecutionClient) post(ctx context.Context, method, path string, body, result interface{}) (err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", method, err)
	}

	start := time.Now()
	defer func() {
		c.metrics.RecordGatewayCall(method, err, time.Since(start))
	}()

	r := c.http.R().SetContext(ctx).SetBody(body)
	if result != nil {
		r.SetResult(result)
	}
	resp, err := r.Post(path)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Msg("Gateway unreachable")
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.IsError() {
		c.log.Warn().Int("status", resp.StatusCode()).Str("method", method).Msg("Gateway rejected request")
		return &StatusError{Method: method, Code: resp.StatusCode()}
	}
	return nil
}
