package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

var proctorEventColumns = []string{
	"id", "session_id", "examinee", "subject", "level", "kind", "reason", "count", "recorded_at",
}

// ProctorEventFilter narrows a proctor event listing. Empty fields match all.
type ProctorEventFilter struct {
	Subject   string
	Level     string
	Examinee  string
	SessionID *uuid.UUID
	Kind      model.ProctorEventKind
}

// SessionSummary aggregates the audit trail of one exam session.
type SessionSummary struct {
	SessionID    uuid.UUID  `json:"session_id"`
	Examinee     string     `json:"examinee"`
	Violations   int64      `json:"violations"`
	Started      bool       `json:"started"`
	Submitted    bool       `json:"submitted"`
	SubmitReason string     `json:"submit_reason,omitempty"`
	LastEventAt  *time.Time `json:"last_event_at"`
}

// ProctorEventRepository handles proctor audit trail data access.
type ProctorEventRepository struct {
	pool *pgxpool.Pool
}

// NewProctorEventRepository creates a new ProctorEventRepository.
func NewProctorEventRepository(pool *pgxpool.Pool) *ProctorEventRepository {
	return &ProctorEventRepository{pool: pool}
}

// CopyEvents bulk-inserts a batch with the COPY protocol. The batch is
// written entirely or not at all.
func (r *ProctorEventRepository) CopyEvents(ctx context.Context, events []model.ProctorEvent) (int64, error) {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{
			e.ID, e.SessionID, e.Examinee, e.Subject, e.Level, string(e.Kind), e.Reason, e.Count, e.RecordedAt,
		})
	}
	return r.pool.CopyFrom(ctx, pgx.Identifier{"proctor_events"}, proctorEventColumns, pgx.CopyFromRows(rows))
}

// Insert writes a single event. Re-inserting an event id is a no-op, so a
// requeued event is never stored twice.
func (r *ProctorEventRepository) Insert(ctx context.Context, e model.ProctorEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO proctor_events (id, session_id, examinee, subject, level, kind, reason, count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.SessionID, e.Examinee, e.Subject, e.Level, string(e.Kind), e.Reason, e.Count, e.RecordedAt,
	)
	return err
}

// List retrieves events matching filter, newest first, with pagination.
func (r *ProctorEventRepository) List(ctx context.Context, filter ProctorEventFilter, page, perPage int) ([]model.ProctorEvent, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := ` FROM proctor_events WHERE 1=1`
	args := []any{}

	if filter.Subject != "" {
		args = append(args, filter.Subject)
		baseQuery += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	if filter.Level != "" {
		args = append(args, filter.Level)
		baseQuery += fmt.Sprintf(" AND level = $%d", len(args))
	}
	if filter.Examinee != "" {
		args = append(args, filter.Examinee)
		baseQuery += fmt.Sprintf(" AND examinee = $%d", len(args))
	}
	if filter.SessionID != nil {
		args = append(args, *filter.SessionID)
		baseQuery += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		baseQuery += fmt.Sprintf(" AND kind = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, session_id, examinee, subject, level, kind, reason, count, recorded_at` + baseQuery +
		fmt.Sprintf(` ORDER BY recorded_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := make([]model.ProctorEvent, 0, perPage)
	for rows.Next() {
		var e model.ProctorEvent
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Examinee, &e.Subject, &e.Level, &kind, &e.Reason, &e.Count, &e.RecordedAt); err != nil {
			return nil, 0, err
		}
		e.Kind = model.ProctorEventKind(kind)
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// SummarizeLevel returns one row per session of a subject level, most
// recently active first.
func (r *ProctorEventRepository) SummarizeLevel(ctx context.Context, subject, level string, limit int) ([]SessionSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, examinee,
		        COUNT(*) FILTER (WHERE kind = $3),
		        BOOL_OR(kind = $4),
		        BOOL_OR(kind = $5),
		        COALESCE(MAX(reason) FILTER (WHERE kind = $5), ''),
		        MAX(recorded_at)
		 FROM proctor_events
		 WHERE subject = $1 AND level = $2
		 GROUP BY session_id, examinee
		 ORDER BY MAX(recorded_at) DESC
		 LIMIT $6`,
		subject, level,
		string(model.EventKindViolation), string(model.EventKindStarted), string(model.EventKindSubmitted),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.SessionID, &s.Examinee, &s.Violations, &s.Started, &s.Submitted, &s.SubmitReason, &s.LastEventAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
