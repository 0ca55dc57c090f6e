package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// ProctorEventReader pages through the persisted audit trail.
type ProctorEventReader interface {
	List(ctx context.Context, filter repository.ProctorEventFilter, page, perPage int) ([]model.ProctorEvent, int64, int, int, error)
}

// ProctorEventHandler exposes the audit trail to staff.
type ProctorEventHandler struct {
	events ProctorEventReader
	log    zerolog.Logger
}

// NewProctorEventHandler creates a new ProctorEventHandler.
func NewProctorEventHandler(events ProctorEventReader, log zerolog.Logger) *ProctorEventHandler {
	return &ProctorEventHandler{
		events: events,
		log:    log.With().Str("component", "proctor_event_handler").Logger(),
	}
}

type listProctorEventsQuery struct {
	Subject   string `form:"subject" json:"subject" binding:"omitempty,max=64"`
	Level     string `form:"level" json:"level" binding:"omitempty,max=32"`
	Examinee  string `form:"examinee" json:"examinee" binding:"omitempty,max=128"`
	SessionID string `form:"session_id" json:"session_id" binding:"omitempty,uuid"`
	Kind      string `form:"kind" json:"kind" binding:"omitempty,oneof=STARTED VIOLATION SUBMITTED"`
	Page      int    `form:"page" json:"page" binding:"omitempty,min=1"`
	PerPage   int    `form:"per_page" json:"per_page" binding:"omitempty,min=1"`
}

// ListProctorEvents godoc
// GET /api/v1/admin/proctor-events
func (h *ProctorEventHandler) ListProctorEvents(c *gin.Context) {
	var q listProctorEventsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	filter := repository.ProctorEventFilter{
		Subject:  q.Subject,
		Level:    q.Level,
		Examinee: q.Examinee,
		Kind:     model.ProctorEventKind(q.Kind),
	}
	if q.SessionID != "" {
		id, err := uuid.Parse(q.SessionID)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		filter.SessionID = &id
	}

	events, total, page, perPage, err := h.events.List(c.Request.Context(), filter, q.Page, q.PerPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list proctor events")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if events == nil {
		events = []model.ProctorEvent{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"events": events}, response.NewPagination(page, perPage, total))
}
