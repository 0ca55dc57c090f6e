package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// SnapshotLookup reads cached session snapshots.
type SnapshotLookup interface {
	Get(ctx context.Context, sessionID string) (*model.SessionSnapshot, error)
	GetActive(ctx context.Context, username string) (*model.SessionSnapshot, error)
}

// SessionHandler serves the examinee's view of past and current sessions.
type SessionHandler struct {
	snapshots SnapshotLookup
	log       zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(snapshots SnapshotLookup, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		snapshots: snapshots,
		log:       log.With().Str("component", "session_handler").Logger(),
	}
}

// GetSession godoc
// GET /api/v1/examinee/sessions/:session_id
// Returns the latest snapshot of one of the examinee's sessions.
func (h *SessionHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	snap, err := h.snapshots.Get(c.Request.Context(), sessionID.String())
	h.respond(c, claims.Username, snap, err)
}

// GetActiveSession godoc
// GET /api/v1/examinee/sessions/active
// Returns the snapshot of the session the examinee sat last.
func (h *SessionHandler) GetActiveSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	snap, err := h.snapshots.GetActive(c.Request.Context(), claims.Username)
	h.respond(c, claims.Username, snap, err)
}

func (h *SessionHandler) respond(c *gin.Context, username string, snap *model.SessionSnapshot, err error) {
	if err != nil {
		if errors.Is(err, service.ErrSnapshotNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Str("examinee", username).Msg("Failed to read session snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	// Another examinee's session is reported as missing.
	if snap.Session.Examinee != username {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"snapshot": snap})
}
