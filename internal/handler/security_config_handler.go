package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// SecurityConfigSource fetches the course security configuration.
type SecurityConfigSource interface {
	FetchSecurityConfig(ctx context.Context) (model.SecurityConfig, error)
}

// SecurityConfigHandler exposes the active security configuration so the
// page can show which checks apply before the exam starts.
type SecurityConfigHandler struct {
	content SecurityConfigSource
	log     zerolog.Logger
}

// NewSecurityConfigHandler creates a new SecurityConfigHandler.
func NewSecurityConfigHandler(content SecurityConfigSource, log zerolog.Logger) *SecurityConfigHandler {
	return &SecurityConfigHandler{
		content: content,
		log:     log.With().Str("component", "security_config_handler").Logger(),
	}
}

// GetSecurityConfig godoc
// GET /api/v1/public/security-config
// Never fails: an unreachable content service yields every check enabled.
func (h *SecurityConfigHandler) GetSecurityConfig(c *gin.Context) {
	cfg, err := h.content.FetchSecurityConfig(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Security config unavailable, serving fail-secure defaults")
	}
	response.Success(c, http.StatusOK, gin.H{
		"security":  cfg,
		"monitored": cfg.Monitored(),
	})
}
