package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ContentClient reads the course configuration and task lists. Reads are
// idempotent, so transient failures are retried.
type ContentClient struct {
	baseURL string
	http    *retryablehttp.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewContentClient creates a ContentClient for cfg.BaseURL.
func NewContentClient(cfg config.GatewayConfig, m *metrics.Metrics, log zerolog.Logger) *ContentClient {
	log = log.With().Str("component", "content_client").Logger()

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.ContentRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = logger.NewLeveled(log)

	return &ContentClient{
		baseURL: cfg.BaseURL,
		http:    rc,
		metrics: m,
		log:     log,
	}
}

// FetchSecurityConfig returns the security block of the course configuration.
// On failure it returns the fail-secure configuration along with the error.
// A reachable service without a security block also yields fail-secure.
func (c *ContentClient) FetchSecurityConfig(ctx context.Context) (model.SecurityConfig, error) {
	var course model.CourseConfig
	if err := c.getJSON(ctx, "courses", "/courses", &course); err != nil {
		return model.FailSecureConfig(), err
	}
	if course.Security == nil {
		c.log.Warn().Msg("Course config has no security block, using fail-secure defaults")
		return model.FailSecureConfig(), nil
	}
	return *course.Security, nil
}

// FetchTasks returns the tasks of a subject level, each flattened onto its
// first part.
func (c *ContentClient) FetchTasks(ctx context.Context, subject, level string) ([]model.Task, error) {
	var remote []model.RemoteTask
	path := "/questions/" + url.PathEscape(subject) + "/" + url.PathEscape(level)
	if err := c.getJSON(ctx, "questions", path, &remote); err != nil {
		return nil, err
	}

	tasks := make([]model.Task, 0, len(remote))
	for _, rt := range remote {
		tasks = append(tasks, rt.Flatten())
	}
	return tasks, nil
}

func (c *ContentClient) getJSON(ctx context.Context, method, path string, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordGatewayCall(method, err, time.Since(start))
	}()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	return nil
}
