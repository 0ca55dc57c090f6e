package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AuditService feeds the proctor audit trail. Events are queued for the
// persistence worker and published live for proctors watching the level.
type AuditService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(rdb *redis.Client, log zerolog.Logger) *AuditService {
	return &AuditService{
		rdb: rdb,
		log: log.With().Str("component", "audit_service").Logger(),
	}
}

// Record queues and publishes event. Failures are logged, never returned:
// the exam must not stall on the audit trail.
func (s *AuditService) Record(ctx context.Context, event model.ProctorEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal proctor event")
		return
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistProctorEventsQueue, payload)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(event.Subject, event.Level), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).
			Str("session_id", event.SessionID.String()).
			Str("kind", string(event.Kind)).
			Msg("Failed to record proctor event")
	}
}

// Subscribe opens the live feed of a subject level.
func (s *AuditService) Subscribe(ctx context.Context, subject, level string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(subject, level))
}
