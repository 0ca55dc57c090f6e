package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestIdentityService_RoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	svc := NewIdentityService(rdb, time.Hour)
	ctx := context.Background()

	got, err := svc.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	profile := model.ExamineeProfile{Username: "alice", RollNo: "R-7", Progress: map[string]map[string]string{"python": {"2": "unlocked"}}}
	require.NoError(t, svc.UpdateProfile(ctx, profile))
	assert.Equal(t, time.Hour, mr.TTL(config.CacheKey.ExamineeProfileKey("alice")))

	got, err = svc.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &profile, got)

	assert.Error(t, svc.UpdateProfile(ctx, model.ExamineeProfile{}))
}

func TestSnapshotService_SaveAndGet(t *testing.T) {
	_, rdb := newTestRedis(t)
	svc := NewSnapshotService(rdb, time.Hour)
	ctx := context.Background()

	_, err := svc.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	snap := model.SessionSnapshot{
		Session: model.ExamSession{
			SessionID: uuid.New(),
			Examinee:  "alice",
			Subject:   "python",
			Level:     "1",
			Phase:     model.PhaseCompleted,
		},
		SubmissionMessage: "Exam submitted successfully.",
		Tasks:             []model.TaskView{},
	}
	require.NoError(t, svc.Save(ctx, snap))

	got, err := svc.Get(ctx, snap.Session.SessionID.String())
	require.NoError(t, err)
	assert.Equal(t, snap.Session.SessionID, got.Session.SessionID)
	assert.Equal(t, model.PhaseCompleted, got.Session.Phase)
	assert.Equal(t, snap.SubmissionMessage, got.SubmissionMessage)

	active, err := svc.GetActive(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, snap.Session.SessionID, active.Session.SessionID)

	_, err = svc.GetActive(ctx, "bob")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestAuditService_QueuesAndPublishes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	svc := NewAuditService(rdb, zerolog.Nop())
	ctx := context.Background()

	sub := svc.Subscribe(ctx, "python", "1")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	event := model.ProctorEvent{
		ID:         uuid.New(),
		SessionID:  uuid.New(),
		Examinee:   "alice",
		Subject:    "python",
		Level:      "1",
		Kind:       model.EventKindViolation,
		Reason:     string(model.ReasonSwitchedTabs),
		Count:      1,
		RecordedAt: time.Now().UTC().Truncate(time.Second),
	}
	svc.Record(ctx, event)

	queued, err := mr.List(config.WorkerKey.PersistProctorEventsQueue)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	var decoded model.ProctorEvent
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &decoded))
	assert.Equal(t, event.SessionID, decoded.SessionID)
	assert.Equal(t, model.EventKindViolation, decoded.Kind)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, config.CacheKey.ExamMonitorChannel("python", "1"), msg.Channel)
		assert.JSONEq(t, queued[0], msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no live event published")
	}
}
