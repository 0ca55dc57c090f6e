package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

type recordingWriter struct {
	mu     sync.Mutex
	writes []interface{}
}

func (w *recordingWriter) WriteTyped(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, v)
	return nil
}

func (w *recordingWriter) fullscreenRequestID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, v := range w.writes {
		if req, ok := v.(ws.RequestFullscreenResponse); ok {
			return req.RequestID
		}
	}
	return ""
}

func TestSessionPresenter_RequestFullscreen(t *testing.T) {
	cases := []struct {
		name    string
		success bool
		reason  string
		wantErr string
	}{
		{"granted", true, "", ""},
		{"denied with reason", false, "NotAllowedError", "NotAllowedError"},
		{"denied", false, "", errFullscreenDenied.Error()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &recordingWriter{}
			p := newSessionPresenter(w, nil, zerolog.Nop())

			errCh := make(chan error, 1)
			go func() { errCh <- p.RequestFullscreen(context.Background()) }()

			var id string
			require.Eventually(t, func() bool {
				id = w.fullscreenRequestID()
				return id != ""
			}, time.Second, 5*time.Millisecond)

			assert.False(t, p.resolveFullscreen("other", true, ""), "unknown id")
			assert.True(t, p.resolveFullscreen(id, tc.success, tc.reason))
			assert.False(t, p.resolveFullscreen(id, true, ""), "already answered")

			err := <-errCh
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tc.wantErr)
			}
		})
	}
}

func TestSessionPresenter_RequestFullscreenTimeout(t *testing.T) {
	p := newSessionPresenter(&recordingWriter{}, nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.RequestFullscreen(ctx), context.DeadlineExceeded)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.pending)
}

func TestSessionPresenter_OnTick(t *testing.T) {
	w := &recordingWriter{}
	p := newSessionPresenter(w, nil, zerolog.Nop())

	p.OnTick(42)
	require.Len(t, w.writes, 1)
	assert.Equal(t, ws.TickResponse{Event: ws.EventTick, TimeLeft: 42}, w.writes[0])
}
