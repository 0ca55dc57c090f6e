package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// LiveFeed opens the live proctor event channel of a subject level.
type LiveFeed interface {
	Subscribe(ctx context.Context, subject, level string) *redis.PubSub
}

// LevelProgressReader builds the monitor view of a subject level.
type LevelProgressReader interface {
	GetLevelProgress(ctx context.Context, subject, level string) (*service.LevelProgress, error)
}

// MonitorHandler streams a subject level's proctor events to staff.
type MonitorHandler struct {
	feed     LiveFeed
	progress LevelProgressReader
	log      zerolog.Logger
}

func NewMonitorHandler(feed LiveFeed, progress LevelProgressReader, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		feed:     feed,
		progress: progress,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorLevelSSE godoc
// GET /api/v1/admin/exams/:subject/:level/monitor
func (h *MonitorHandler) MonitorLevelSSE(c *gin.Context) {
	subject, level := c.Param("subject"), c.Param("level")
	if subject == "" || level == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	// Subscribe before the snapshot so nothing published in between is lost.
	pubsub := h.feed.Subscribe(reqCtx, subject, level)
	defer pubsub.Close()
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Msg("Failed to subscribe to live monitor channel")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendProgress(c, reqCtx, "snapshot", subject, level)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refreshes until the level shows some activity.
	active := false

	logger := h.log.With().Str("subject", subject).Str("level", level).Logger()
	logger.Info().Msg("Proctor attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			logger.Info().Msg("Proctor disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are already JSON; forward them as-is.
			writeSSEData(c, []byte(msg.Payload))
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			h.sendProgress(c, reqCtx, "refresh", subject, level)

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) sendProgress(c *gin.Context, parentCtx context.Context, kind, subject, level string) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.progress.GetLevelProgress(ctx, subject, level)
	if err != nil {
		h.log.Warn().Err(err).Str("type", kind).Msg("Failed to fetch level progress")
		if kind != "snapshot" {
			return
		}
		progress = &service.LevelProgress{Sessions: []service.SessionProgress{}}
	}

	c.SSEvent("message", map[string]interface{}{
		"type":    kind,
		"subject": subject,
		"level":   level,
		"data":    progress,
	})
	c.Writer.Flush()
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
