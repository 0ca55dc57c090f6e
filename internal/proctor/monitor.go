package proctor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ViolationSink receives every violation the monitor detects. It is always
// called without the monitor lock held, so it may call back into Disarm.
type ViolationSink func(reason model.ViolationReason)

// MonitorOptions tunes the timing heuristics. Zero values fall back to the
// defaults below.
type MonitorOptions struct {
	Clock             clockwork.Clock
	BlurGrace         time.Duration
	DevtoolsThreshold int
	PollInterval      time.Duration
	// Busy, when set, is consulted before the devtools poll raises a
	// violation. The poll is skipped while it returns true.
	Busy func() bool
}

const (
	DefaultBlurGrace         = 100 * time.Millisecond
	DefaultDevtoolsThreshold = 160
	DefaultPollInterval      = time.Second
)

type signalHandler func(sig Signal, prev documentState) (Outcome, model.ViolationReason)

type documentState struct {
	fullscreen bool
	focused    bool
	hidden     bool
	window     *WindowMetrics
}

// Monitor turns raw browser signals into violations according to the
// session's SecurityConfig. Only the handlers implied by the config are
// registered; everything else is tracked but otherwise ignored.
type Monitor struct {
	mu   sync.Mutex
	opts MonitorOptions
	sink ViolationSink
	log  zerolog.Logger

	handlers   map[SignalKind]signalHandler
	cancelPoll context.CancelFunc
	grace      clockwork.Timer
	epoch      uint64

	doc documentState
}

// NewMonitor creates a disarmed monitor.
func NewMonitor(opts MonitorOptions, sink ViolationSink, log zerolog.Logger) *Monitor {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.BlurGrace <= 0 {
		opts.BlurGrace = DefaultBlurGrace
	}
	if opts.DevtoolsThreshold <= 0 {
		opts.DevtoolsThreshold = DefaultDevtoolsThreshold
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Monitor{
		opts: opts,
		sink: sink,
		log:  log.With().Str("component", "violation_monitor").Logger(),
		doc:  documentState{focused: true},
	}
}

// Arm registers the handlers implied by cfg, replacing any previous set,
// and returns the armed signal kinds.
func (m *Monitor) Arm(cfg model.SecurityConfig) []SignalKind {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disarmLocked()

	handlers := make(map[SignalKind]signalHandler)
	if cfg.TabSwitchWarning {
		handlers[SignalVisibilityChange] = m.onVisibilityChange
		handlers[SignalBlur] = m.onBlur
		handlers[SignalKeyDown] = m.onKeyDown
	}
	if cfg.Fullscreen {
		handlers[SignalFullscreenChange] = m.onFullscreenChange
	}
	if cfg.TabSwitchWarning || cfg.Fullscreen {
		handlers[SignalContextMenu] = suppress
		handlers[SignalDragStart] = suppress
	}
	if cfg.Select {
		handlers[SignalSelectStart] = suppress
	}
	if cfg.Copy {
		handlers[SignalCopy] = blockClipboard
	}
	if cfg.Paste {
		handlers[SignalPaste] = blockClipboard
	}
	if cfg.Cut {
		handlers[SignalCut] = blockClipboard
	}
	m.handlers = handlers
	m.doc.focused = true

	if cfg.TabSwitchWarning {
		m.startPollLocked()
	}

	kinds := m.kindsLocked()
	m.log.Debug().Interface("kinds", kinds).Msg("Monitor armed")
	return kinds
}

// Disarm removes every handler, stops the devtools poll and cancels a
// pending blur grace timer. It returns the kinds that were armed and is
// safe to call repeatedly.
func (m *Monitor) Disarm() []SignalKind {
	m.mu.Lock()
	defer m.mu.Unlock()

	kinds := m.kindsLocked()
	m.disarmLocked()
	if len(kinds) > 0 {
		m.log.Debug().Interface("kinds", kinds).Msg("Monitor disarmed")
	}
	return kinds
}

// Armed returns the currently armed signal kinds.
func (m *Monitor) Armed() []SignalKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kindsLocked()
}

// IsArmed reports whether any handler is registered.
func (m *Monitor) IsArmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers) > 0
}

// Fullscreen reports the last known fullscreen state of the page.
func (m *Monitor) Fullscreen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.fullscreen
}

// SetFullscreen records a fullscreen state confirmed out of band, e.g. by a
// successful fullscreen request.
func (m *Monitor) SetFullscreen(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc.fullscreen = active
}

// HandleSignal tracks the document state carried by sig and, if a handler is
// armed for its kind, applies it.
func (m *Monitor) HandleSignal(sig Signal) Outcome {
	m.mu.Lock()
	prev := m.doc
	m.trackLocked(sig)

	h, ok := m.handlers[sig.Kind]
	if !ok {
		m.mu.Unlock()
		return Outcome{}
	}
	out, reason := h(sig, prev)
	m.mu.Unlock()

	if reason != "" {
		m.sink(reason)
	}
	return out
}

func (m *Monitor) trackLocked(sig Signal) {
	if sig.Window != nil {
		w := *sig.Window
		m.doc.window = &w
	}
	switch sig.Kind {
	case SignalVisibilityChange:
		m.doc.hidden = sig.Hidden
	case SignalFullscreenChange:
		m.doc.fullscreen = sig.Fullscreen
	case SignalBlur:
		m.doc.focused = false
	case SignalFocus:
		m.doc.focused = true
		m.stopGraceLocked()
	}
}

func (m *Monitor) disarmLocked() {
	m.handlers = nil
	m.epoch++
	if m.cancelPoll != nil {
		m.cancelPoll()
		m.cancelPoll = nil
	}
	m.stopGraceLocked()
}

func (m *Monitor) stopGraceLocked() {
	if m.grace != nil {
		m.grace.Stop()
		m.grace = nil
	}
}

func (m *Monitor) kindsLocked() []SignalKind {
	if len(m.handlers) == 0 {
		return nil
	}
	kinds := make([]SignalKind, 0, len(m.handlers))
	for k := range m.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (m *Monitor) onVisibilityChange(sig Signal, _ documentState) (Outcome, model.ViolationReason) {
	if sig.Hidden {
		return Outcome{}, model.ReasonSwitchedTabs
	}
	return Outcome{}, ""
}

// onBlur only counts a blur while fullscreen, and only if focus does not come
// back within the grace delay. Dialogs and the fullscreen transition itself
// blur the window briefly.
func (m *Monitor) onBlur(_ Signal, _ documentState) (Outcome, model.ViolationReason) {
	if !m.doc.fullscreen || m.grace != nil {
		return Outcome{}, ""
	}
	epoch := m.epoch
	m.grace = m.opts.Clock.AfterFunc(m.opts.BlurGrace, func() {
		m.graceElapsed(epoch)
	})
	return Outcome{}, ""
}

func (m *Monitor) graceElapsed(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.grace = nil
	fire := !m.doc.focused
	m.mu.Unlock()

	if fire {
		m.sink(model.ReasonSwitchedWindow)
	}
}

func (m *Monitor) onFullscreenChange(sig Signal, prev documentState) (Outcome, model.ViolationReason) {
	if prev.fullscreen && !sig.Fullscreen {
		return Outcome{}, model.ReasonExitedFullscreen
	}
	return Outcome{}, ""
}

func (m *Monitor) onKeyDown(sig Signal, _ documentState) (Outcome, model.ViolationReason) {
	reason, ok := classifyKey(sig)
	if !ok {
		return Outcome{}, ""
	}
	return Outcome{PreventDefault: true}, reason
}

func suppress(Signal, documentState) (Outcome, model.ViolationReason) {
	return Outcome{PreventDefault: true}, ""
}

func blockClipboard(sig Signal, _ documentState) (Outcome, model.ViolationReason) {
	return Outcome{PreventDefault: true, Notice: clipboardNotice(sig.Kind)}, ""
}

func (m *Monitor) startPollLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelPoll = cancel
	ticker := m.opts.Clock.NewTicker(m.opts.PollInterval)
	epoch := m.epoch

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				m.checkDevtools(epoch)
			}
		}
	}()
}

// checkDevtools compares the latest window sample against the threshold and
// reports whether a violation was raised.
func (m *Monitor) checkDevtools(epoch uint64) bool {
	m.mu.Lock()
	if epoch != m.epoch || m.doc.window == nil {
		m.mu.Unlock()
		return false
	}
	open := m.doc.window.Exceeds(m.opts.DevtoolsThreshold)
	m.mu.Unlock()

	if !open {
		return false
	}
	if m.opts.Busy != nil && m.opts.Busy() {
		return false
	}
	m.sink(model.ReasonDevtoolsOpened)
	return true
}
