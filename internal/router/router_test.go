package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const routerSecret = "router-secret"

type stubEvents struct{}

func (stubEvents) List(context.Context, repository.ProctorEventFilter, int, int) ([]model.ProctorEvent, int64, int, int, error) {
	return nil, 0, 1, 50, nil
}

type stubSecurity struct{}

func (stubSecurity) FetchSecurityConfig(context.Context) (model.SecurityConfig, error) {
	return model.FailSecureConfig(), nil
}

func token(t *testing.T, tokenType service.TokenType, permissions ...string) string {
	t.Helper()
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		TokenType:        tokenType,
		Username:         "router-user",
		Permissions:      permissions,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(routerSecret))
	require.NoError(t, err)
	return signed
}

func newTestRouter(t *testing.T, limiter *middleware.RateLimiter) http.Handler {
	t.Helper()
	cfg := &config.Config{GinMode: "test", JWTSecret: routerSecret}
	log := zerolog.Nop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SessionStarted("python")

	handlers := &Handlers{
		SecurityConfig: handler.NewSecurityConfigHandler(stubSecurity{}, log),
		ProctorEvents:  handler.NewProctorEventHandler(stubEvents{}, log),
		Health:         handler.NewHealthHandler(nil, log),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	return SetupRouter(service.NewAuthService(cfg), limiter, handlers, cfg)
}

func do(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_Access(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		name     string
		path     string
		bearer   string
		wantCode int
	}{
		{"health", "/health", "", http.StatusOK},
		{"public security config", "/api/v1/public/security-config", "", http.StatusOK},
		{"admin without token", "/api/v1/admin/proctor-events", "", http.StatusUnauthorized},
		{"admin with examinee token", "/api/v1/admin/proctor-events", token(t, service.TokenTypeExaminee), http.StatusForbidden},
		{"admin without permission", "/api/v1/admin/proctor-events", token(t, service.TokenTypeAdmin), http.StatusForbidden},
		{"admin with permission", "/api/v1/admin/proctor-events", token(t, service.TokenTypeAdmin, string(model.PermissionProctorEventsRead)), http.StatusOK},
		{"examinee route with admin token", "/api/v1/examinee/sessions/active", token(t, service.TokenTypeAdmin), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, do(r, tt.path, tt.bearer).Code)
		})
	}
}

func TestSetupRouter_Metrics(t *testing.T) {
	w := do(newTestRouter(t, nil), "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "proctor_sessions_total"))
}

func TestSetupRouter_RateLimitSparesProbes(t *testing.T) {
	r := newTestRouter(t, middleware.NewRateLimiter(1, 1))

	assert.Equal(t, http.StatusOK, do(r, "/api/v1/public/security-config", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "/api/v1/public/security-config", "").Code)
	assert.Equal(t, http.StatusOK, do(r, "/health", "").Code)
}
