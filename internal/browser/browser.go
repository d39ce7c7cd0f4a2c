// Package browser drives a real browser for scenario runs. A Launcher owns
// the browser process; each Session is an isolated browser context with a
// single page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kuitang/modulista-e2e/internal/errs"
)

// Session is one isolated browser context. Methods are not safe for
// concurrent use; the runner drives a session from a single goroutine.
type Session interface {
	Goto(ctx context.Context, url string, timeout time.Duration) error
	Click(ctx context.Context, loc Locator, timeout time.Duration) error
	Fill(ctx context.Context, loc Locator, text string, timeout time.Duration) error
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	WaitHidden(ctx context.Context, loc Locator, timeout time.Duration) error
	// ArmDialog intercepts the next dialog. The channel receives at most one
	// event.
	ArmDialog(ctx context.Context, resp DialogResponse) <-chan DialogEvent
	DisarmDialog()
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher creates sessions against one browser process.
type Launcher interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Options configures a launcher.
type Options struct {
	Headless bool
	// RemoteURL connects chromedp to an already running Chrome DevTools
	// endpoint instead of starting one.
	RemoteURL string
	// DefaultTimeout bounds any driver call that is not given an explicit
	// timeout.
	DefaultTimeout time.Duration
	ViewportWidth  int
	ViewportHeight int
}

func (o Options) withDefaults() Options {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = 5 * time.Second
	}
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = 1280
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = 720
	}
	return o
}

// ErrUnavailable reports that the requested browser could not be started.
var ErrUnavailable = errors.New("browser: driver unavailable")

// errWaitTimeout marks a bounded wait that expired.
var errWaitTimeout = errors.New("wait timed out")

// NewLauncher starts the named driver ("playwright" or "chromedp").
func NewLauncher(ctx context.Context, driver string, opts Options) (Launcher, error) {
	switch driver {
	case "", "playwright":
		return NewPlaywrightLauncher(opts)
	case "chromedp":
		return NewChromedpLauncher(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown browser driver %q", driver)
	}
}

func effectiveTimeout(timeout, fallback time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return fallback
}

func canceledError(ctx context.Context, op string) error {
	return errs.Wrap(errs.Canceled, op+" canceled", ctx.Err())
}

func navigationError(url string, timeout time.Duration, err error) error {
	if errors.Is(err, errWaitTimeout) {
		return errs.Wrap(errs.NavigationError, fmt.Sprintf("navigation to %s timed out after %s", url, timeout), err)
	}
	return errs.Wrap(errs.NavigationError, fmt.Sprintf("navigation to %s failed", url), err)
}

func lookupError(loc Locator, timeout time.Duration, err error) error {
	if errors.Is(err, errWaitTimeout) {
		return errs.Wrap(errs.ElementNotFound, fmt.Sprintf("element %s not found within %s", loc, timeout), err)
	}
	return errs.Wrap(errs.Internal, fmt.Sprintf("interact with %s", loc), err)
}

func stateError(loc Locator, state string, timeout time.Duration, err error) error {
	if errors.Is(err, errWaitTimeout) {
		return errs.Wrap(errs.AssertionTimeout, fmt.Sprintf("%s did not become %s within %s", loc, state, timeout), err)
	}
	return errs.Wrap(errs.Internal, fmt.Sprintf("wait for %s to be %s", loc, state), err)
}

func notEditableError(loc Locator) error {
	return errs.New(errs.ElementNotEditable, fmt.Sprintf("element %s cannot accept text", loc))
}
