package proctor

import (
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// SignalKind names a browser event forwarded by the exam page.
type SignalKind string

const (
	SignalVisibilityChange SignalKind = "visibilitychange"
	SignalBlur             SignalKind = "blur"
	SignalFocus            SignalKind = "focus"
	SignalFullscreenChange SignalKind = "fullscreenchange"
	SignalKeyDown          SignalKind = "keydown"
	SignalResize           SignalKind = "resize"
	SignalSelectStart      SignalKind = "selectstart"
	SignalCopy             SignalKind = "copy"
	SignalPaste            SignalKind = "paste"
	SignalCut              SignalKind = "cut"
	SignalContextMenu      SignalKind = "contextmenu"
	SignalDragStart        SignalKind = "dragstart"
)

// Signal is one browser event together with the document state it carries.
type Signal struct {
	Kind       SignalKind     `json:"kind" validate:"required"`
	Hidden     bool           `json:"hidden,omitempty"`
	Fullscreen bool           `json:"fullscreen,omitempty"`
	Key        string         `json:"key,omitempty"`
	Ctrl       bool           `json:"ctrl,omitempty"`
	Alt        bool           `json:"alt,omitempty"`
	Shift      bool           `json:"shift,omitempty"`
	Window     *WindowMetrics `json:"window,omitempty"`
}

// WindowMetrics are the outer and inner window sizes in CSS pixels.
type WindowMetrics struct {
	OuterWidth  int `json:"outer_width"`
	InnerWidth  int `json:"inner_width"`
	OuterHeight int `json:"outer_height"`
	InnerHeight int `json:"inner_height"`
}

// Exceeds reports whether either outer-minus-inner delta is above threshold,
// which is how a docked developer tools panel shows up.
func (w WindowMetrics) Exceeds(threshold int) bool {
	return w.OuterWidth-w.InnerWidth > threshold || w.OuterHeight-w.InnerHeight > threshold
}

// Outcome tells the page what to do with the event it reported.
type Outcome struct {
	PreventDefault bool   `json:"prevent_default"`
	Notice         string `json:"notice,omitempty"`
}

var (
	restrictedCtrlKeys = map[string]bool{"t": true, "n": true, "w": true, "p": true, "s": true, "o": true, "u": true}
	devtoolsCtrlShift  = map[string]bool{"i": true, "j": true, "c": true}
)

// classifyKey maps a keydown to a violation reason. ok is false for keys that
// are not restricted.
func classifyKey(sig Signal) (reason model.ViolationReason, ok bool) {
	key := strings.ToLower(sig.Key)
	switch {
	case sig.Ctrl && restrictedCtrlKeys[key]:
		return model.ReasonRestrictedShortcut, true
	case (sig.Ctrl || sig.Alt) && sig.Key == "Tab":
		return model.ReasonSwitchAttempt, true
	case sig.Key == "F12", sig.Ctrl && sig.Shift && devtoolsCtrlShift[key]:
		return model.ReasonDevtoolsAttempt, true
	}
	return "", false
}

func clipboardNotice(kind SignalKind) string {
	return `The "` + string(kind) + `" action is disabled during the exam.`
}
