package handler

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

var errFullscreenDenied = errors.New("fullscreen request was denied")

// eventWriter is the outbound half of an examinee connection.
type eventWriter interface {
	WriteTyped(v interface{}) error
}

type fullscreenResult struct {
	success bool
	reason  string
}

// sessionPresenter pushes session state to the examinee's page and relays
// fullscreen requests, correlated by request id.
type sessionPresenter struct {
	conn    eventWriter
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan fullscreenResult
}

func newSessionPresenter(conn eventWriter, m *metrics.Metrics, log zerolog.Logger) *sessionPresenter {
	return &sessionPresenter{
		conn:    conn,
		metrics: m,
		log:     log,
		pending: make(map[string]chan fullscreenResult),
	}
}

func (p *sessionPresenter) send(event ws.Event, v interface{}) {
	p.metrics.RecordWSMessage("out", string(event))
	if err := p.conn.WriteTyped(v); err != nil {
		p.log.Debug().Err(err).Str("event", string(event)).Msg("Write failed")
	}
}

func (p *sessionPresenter) OnSnapshot(snapshot model.SessionSnapshot) {
	p.send(ws.EventState, ws.StateResponse{Event: ws.EventState, Snapshot: snapshot})
}

func (p *sessionPresenter) OnTaskUpdated(view model.TaskView) {
	p.send(ws.EventTask, ws.TaskResponse{Event: ws.EventTask, Task: view})
}

func (p *sessionPresenter) OnArmed(kinds []proctor.SignalKind) {
	p.send(ws.EventArmed, ws.ArmedResponse{Event: ws.EventArmed, Kinds: kinds})
}

func (p *sessionPresenter) OnDisarmed(kinds []proctor.SignalKind) {
	p.send(ws.EventDisarmed, ws.DisarmedResponse{Event: ws.EventDisarmed, Kinds: kinds})
}

func (p *sessionPresenter) OnWarning(message string, violations model.ViolationState) {
	p.send(ws.EventWarning, ws.WarningResponse{Event: ws.EventWarning, Message: message, Violations: violations})
}

func (p *sessionPresenter) OnNotice(message string) {
	p.send(ws.EventNotice, ws.NoticeResponse{Event: ws.EventNotice, Message: message})
}

func (p *sessionPresenter) OnTick(timeLeft int) {
	p.send(ws.EventTick, ws.TickResponse{Event: ws.EventTick, TimeLeft: timeLeft})
}

func (p *sessionPresenter) OnConfirmSubmit(prompt string) {
	p.send(ws.EventConfirmSubmit, ws.ConfirmSubmitResponse{Event: ws.EventConfirmSubmit, Prompt: prompt})
}

func (p *sessionPresenter) OnSubmitted(outcome model.SubmissionOutcome) {
	p.send(ws.EventSubmitted, ws.SubmittedResponse{Event: ws.EventSubmitted, Outcome: outcome})
}

func (p *sessionPresenter) OnIdentity(profile model.ExamineeProfile) {
	p.send(ws.EventIdentity, ws.IdentityResponse{Event: ws.EventIdentity, Profile: profile})
}

// RequestFullscreen asks the page to enter fullscreen and blocks until it
// answers with a matching fullscreen_result or ctx ends.
func (p *sessionPresenter) RequestFullscreen(ctx context.Context) error {
	id := uuid.NewString()
	ch := make(chan fullscreenResult, 1)

	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	p.send(ws.EventRequestFullscreen, ws.RequestFullscreenResponse{Event: ws.EventRequestFullscreen, RequestID: id})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.success {
			return nil
		}
		if res.reason != "" {
			return errors.New(res.reason)
		}
		return errFullscreenDenied
	}
}

// resolveFullscreen delivers the page's answer. It reports false for an
// unknown or already answered request.
func (p *sessionPresenter) resolveFullscreen(requestID string, success bool, reason string) bool {
	p.mu.Lock()
	ch, ok := p.pending[requestID]
	if ok {
		delete(p.pending, requestID)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- fullscreenResult{success: success, reason: reason}
	return true
}
