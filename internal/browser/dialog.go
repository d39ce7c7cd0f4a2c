package browser

import (
	"context"
	"sync"
	"time"

	"github.com/kuitang/modulista-e2e/internal/logutil"
	"github.com/kuitang/modulista-e2e/internal/obs"
)

// DialogResponse is how an intercepted dialog is resolved.
type DialogResponse int

const (
	DialogDismiss DialogResponse = iota
	DialogAccept
)

func (r DialogResponse) String() string {
	if r == DialogAccept {
		return "accept"
	}
	return "dismiss"
}

// DialogEvent describes a dialog the session resolved.
type DialogEvent struct {
	Type     string // alert, confirm, prompt, beforeunload
	Message  string
	Response DialogResponse
	At       time.Time
}

// DialogInterceptor is the one-shot handler behind a session's persistent
// dialog listener. Driver callbacks call Handle from their own goroutines.
type DialogInterceptor struct {
	mu       sync.Mutex
	armed    bool
	response DialogResponse
	ch       chan DialogEvent
	// logCtx carries correlation fields for dialogs nobody expected.
	logCtx context.Context
}

// NewDialogInterceptor returns a disarmed interceptor.
func NewDialogInterceptor(logCtx context.Context) *DialogInterceptor {
	if logCtx == nil {
		logCtx = context.Background()
	}
	return &DialogInterceptor{logCtx: logCtx}
}

// Arm prepares to capture the next dialog and resolve it with resp. Arming
// again replaces the previous expectation.
func (d *DialogInterceptor) Arm(ctx context.Context, resp DialogResponse) <-chan DialogEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	d.response = resp
	d.ch = make(chan DialogEvent, 1)
	if ctx != nil {
		d.logCtx = ctx
	}
	return d.ch
}

// Disarm drops a pending expectation. Later dialogs are treated as unexpected.
func (d *DialogInterceptor) Disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = false
	d.ch = nil
}

// Handle records a dialog raised by the page and reports whether it should be
// accepted. Unexpected dialogs are dismissed.
func (d *DialogInterceptor) Handle(dialogType, message string) bool {
	d.mu.Lock()
	armed, resp, ch, logCtx := d.armed, d.response, d.ch, d.logCtx
	d.armed = false
	d.ch = nil
	d.mu.Unlock()

	if !armed {
		obs.From(logCtx).Warn("unexpected_dialog",
			"type", dialogType,
			"message", logutil.TruncateForLog(message, 200),
			"response", DialogDismiss.String(),
		)
		return false
	}

	ch <- DialogEvent{Type: dialogType, Message: message, Response: resp, At: time.Now()}
	obs.From(logCtx).Debug("dialog_intercepted",
		"type", dialogType,
		"message", logutil.TruncateForLog(message, 200),
		"response", resp.String(),
	)
	return resp == DialogAccept
}
