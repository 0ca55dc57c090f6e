package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ProctorEventStore persists audit trail events.
type ProctorEventStore interface {
	CopyEvents(ctx context.Context, events []model.ProctorEvent) (int64, error)
	Insert(ctx context.Context, event model.ProctorEvent) error
}

// ProctorEventWorker drains the proctor event queue into Postgres in batches.
type ProctorEventWorker struct {
	store   ProctorEventStore
	rdb     *redis.Client
	metrics *metrics.Metrics
	log     zerolog.Logger

	queue          string
	batchSize      int
	batchTimeout   time.Duration
	requeueBackoff time.Duration
}

func NewProctorEventWorker(store ProctorEventStore, rdb *redis.Client, m *metrics.Metrics, log zerolog.Logger) *ProctorEventWorker {
	return &ProctorEventWorker{
		store:          store,
		rdb:            rdb,
		metrics:        m,
		log:            log.With().Str("component", "proctor_event_worker").Logger(),
		queue:          config.WorkerKey.PersistProctorEventsQueue,
		batchSize:      BatchSize,
		batchTimeout:   BatchTimeout,
		requeueBackoff: 2 * time.Second,
	}
}

// Backlog returns the number of events waiting in the queue.
func (w *ProctorEventWorker) Backlog(ctx context.Context) (int64, error) {
	return w.rdb.LLen(ctx, w.queue).Result()
}

func (w *ProctorEventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProctorEventWorker started")

	buffer := make([]model.ProctorEvent, 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= w.batchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}
		event, ok := w.decode(result[1])
		if !ok {
			continue
		}
		buffer = append(buffer, event)
	}
}

// decode parses one queued payload. Malformed payloads cannot be retried and
// are discarded.
func (w *ProctorEventWorker) decode(raw string) (model.ProctorEvent, bool) {
	var event model.ProctorEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed JSON")
		w.metrics.RecordPersisted("dropped", 1)
		return event, false
	}
	if event.ID == uuid.Nil || event.SessionID == uuid.Nil {
		w.log.Error().Str("data", raw).Msg("Discarding proctor event without ids")
		w.metrics.RecordPersisted("dropped", 1)
		return event, false
	}
	return event, true
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *ProctorEventWorker) flushSafe(ctx context.Context, batch []model.ProctorEvent) {
	n, err := w.store.CopyEvents(ctx, batch)
	if err == nil {
		w.metrics.RecordPersisted("copied", int(n))
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *ProctorEventWorker) fallbackInsert(ctx context.Context, batch []model.ProctorEvent) {
	requeueList := make([]model.ProctorEvent, 0)
	inserted := 0

	for _, e := range batch {
		if err := w.store.Insert(ctx, e); err != nil {
			w.log.Error().Err(err).
				Str("session_id", e.SessionID.String()).
				Str("kind", string(e.Kind)).
				Msg("Insert failed, requeueing")
			requeueList = append(requeueList, e)
			continue
		}
		inserted++
	}
	w.metrics.RecordPersisted("inserted", inserted)

	// If we have items to requeue (DB was down), push them back to Redis
	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ProctorEventWorker) requeue(ctx context.Context, items []model.ProctorEvent) {
	// The shutdown context may already be done; requeueing must still happen.
	ctx = context.WithoutCancel(ctx)

	pipe := w.rdb.Pipeline()
	for _, e := range items {
		data, _ := json.Marshal(e)
		pipe.RPush(ctx, w.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		w.metrics.RecordPersisted("dropped", len(items))
		return
	}

	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	w.metrics.RecordPersisted("requeued", len(items))
	// Avoid thrashing if the DB is down hard
	time.Sleep(w.requeueBackoff)
}

func (w *ProctorEventWorker) shutdown(buffer []model.ProctorEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
