package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/modulista-e2e/internal/obs"
)

// PlaywrightLauncher runs one Playwright driver and one Chromium process.
// Every session gets its own BrowserContext.
type PlaywrightLauncher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
}

// NewPlaywrightLauncher starts Playwright and launches Chromium. It returns
// an error wrapping ErrUnavailable when either is missing.
func NewPlaywrightLauncher(opts Options) (*PlaywrightLauncher, error) {
	opts = opts.withDefaults()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: playwright: %v", ErrUnavailable, err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: launch chromium: %v", ErrUnavailable, err)
	}
	return &PlaywrightLauncher{pw: pw, browser: b, opts: opts}, nil
}

// NewSession opens a fresh browser context with one page.
func (l *PlaywrightLauncher) NewSession(ctx context.Context) (Session, error) {
	bctx, err := l.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: l.opts.ViewportWidth, Height: l.opts.ViewportHeight},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	bctx.SetDefaultTimeout(toMS(l.opts.DefaultTimeout))
	bctx.SetDefaultNavigationTimeout(toMS(l.opts.DefaultTimeout))

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	s := &playwrightSession{
		bctx:           bctx,
		page:           page,
		dialogs:        NewDialogInterceptor(ctx),
		logCtx:         ctx,
		defaultTimeout: l.opts.DefaultTimeout,
	}
	page.OnDialog(s.onDialog)
	return s, nil
}

// Close shuts down the browser and the Playwright driver.
func (l *PlaywrightLauncher) Close() error {
	return errors.Join(l.browser.Close(), l.pw.Stop())
}

type playwrightSession struct {
	bctx    playwright.BrowserContext
	page    playwright.Page
	dialogs *DialogInterceptor
	logCtx  context.Context
	// defaultTimeout replaces zero timeouts; Playwright reads 0 as "no limit".
	defaultTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (s *playwrightSession) onDialog(d playwright.Dialog) {
	accept := s.dialogs.Handle(d.Type(), d.Message())
	// Resolve off the event goroutine so the driver connection is not blocked.
	go func() {
		var err error
		if accept {
			err = d.Accept()
		} else {
			err = d.Dismiss()
		}
		if err != nil {
			obs.From(s.logCtx).Warn("dialog_resolve_failed", "error", err)
		}
	}()
}

// do runs a blocking Playwright call and abandons it when ctx ends. Closing
// the browser context makes the pending call return.
func (s *playwrightSession) do(ctx context.Context, op string, fn func() error) error {
	if ctx.Err() != nil {
		return canceledError(ctx, op)
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return pwErr(err)
	case <-ctx.Done():
		_ = s.Close()
		return canceledError(ctx, op)
	}
}

func pwErr(err error) error {
	if err != nil && errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", errWaitTimeout, err)
	}
	return err
}

func (s *playwrightSession) locate(loc Locator) playwright.Locator {
	var l playwright.Locator
	switch loc.Kind {
	case ByText:
		l = s.page.GetByText(loc.Value, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)})
	case ByTestID:
		l = s.page.GetByTestId(loc.Value)
	case ByRole:
		opts := playwright.PageGetByRoleOptions{}
		if loc.Name != "" {
			opts.Name = loc.Name
			opts.Exact = playwright.Bool(true)
		}
		l = s.page.GetByRole(playwright.AriaRole(loc.Value), opts)
	default:
		l = s.page.Locator(loc.Value)
	}
	return l
}

// firstVisible resolves to the first match that is currently visible. It is
// re-evaluated on every poll, so waiting for it to be hidden waits until no
// match is visible at all.
func (s *playwrightSession) firstVisible(loc Locator) playwright.Locator {
	return s.locate(loc).Filter(playwright.LocatorFilterOptions{Visible: playwright.Bool(true)}).First()
}

func (s *playwrightSession) Goto(ctx context.Context, url string, timeout time.Duration) error {
	timeout = effectiveTimeout(timeout, s.defaultTimeout)
	err := s.do(ctx, "navigate", func() error {
		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateLoad,
			Timeout:   playwright.Float(toMS(timeout)),
		})
		return err
	})
	if err != nil && ctx.Err() == nil {
		return navigationError(url, timeout, err)
	}
	return err
}

func (s *playwrightSession) Click(ctx context.Context, loc Locator, timeout time.Duration) error {
	timeout = effectiveTimeout(timeout, s.defaultTimeout)
	err := s.do(ctx, "click", func() error {
		return s.firstVisible(loc).Click(playwright.LocatorClickOptions{Timeout: playwright.Float(toMS(timeout))})
	})
	if err != nil && ctx.Err() == nil {
		return lookupError(loc, timeout, err)
	}
	return err
}

func (s *playwrightSession) Fill(ctx context.Context, loc Locator, text string, timeout time.Duration) error {
	timeout = effectiveTimeout(timeout, s.defaultTimeout)
	l := s.firstVisible(loc)
	err := s.do(ctx, "fill", func() error {
		return l.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(toMS(timeout)),
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return lookupError(loc, timeout, err)
	}

	var editable bool
	err = s.do(ctx, "fill", func() error {
		var err error
		editable, err = l.IsEditable(playwright.LocatorIsEditableOptions{Timeout: playwright.Float(toMS(timeout))})
		return err
	})
	if ctx.Err() != nil {
		return err
	}
	// IsEditable rejects elements that are not form controls.
	if err != nil || !editable {
		return notEditableError(loc)
	}

	err = s.do(ctx, "fill", func() error {
		return l.Fill(text, playwright.LocatorFillOptions{Timeout: playwright.Float(toMS(timeout))})
	})
	if err != nil && ctx.Err() == nil {
		return lookupError(loc, timeout, err)
	}
	return err
}

func (s *playwrightSession) waitState(ctx context.Context, loc Locator, state *playwright.WaitForSelectorState, name string, timeout time.Duration) error {
	timeout = effectiveTimeout(timeout, s.defaultTimeout)
	err := s.do(ctx, "wait", func() error {
		return s.firstVisible(loc).WaitFor(playwright.LocatorWaitForOptions{
			State:   state,
			Timeout: playwright.Float(toMS(timeout)),
		})
	})
	if err != nil && ctx.Err() == nil {
		return stateError(loc, name, timeout, err)
	}
	return err
}

func (s *playwrightSession) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	return s.waitState(ctx, loc, playwright.WaitForSelectorStateVisible, "visible", timeout)
}

func (s *playwrightSession) WaitHidden(ctx context.Context, loc Locator, timeout time.Duration) error {
	return s.waitState(ctx, loc, playwright.WaitForSelectorStateHidden, "hidden", timeout)
}

func (s *playwrightSession) ArmDialog(ctx context.Context, resp DialogResponse) <-chan DialogEvent {
	return s.dialogs.Arm(ctx, resp)
}

func (s *playwrightSession) DisarmDialog() {
	s.dialogs.Disarm()
}

func (s *playwrightSession) Screenshot(ctx context.Context) ([]byte, error) {
	// The call may outlive ctx, so the bytes travel over a channel instead of
	// a shared variable.
	shot := make(chan []byte, 1)
	err := s.do(ctx, "screenshot", func() error {
		data, err := s.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
		shot <- data
		return err
	})
	if err != nil {
		return nil, err
	}
	return <-shot, nil
}

func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.bctx.Close()
	})
	return s.closeErr
}

func toMS(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
