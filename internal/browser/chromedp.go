package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/kuitang/modulista-e2e/internal/obs"
)

const pollInterval = 100 * time.Millisecond

// ChromedpLauncher drives Chrome over the DevTools protocol, either by
// starting a local Chrome or by attaching to RemoteURL. Sessions are tabs in
// separate browser contexts.
type ChromedpLauncher struct {
	opts          Options
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewChromedpLauncher starts (or connects to) Chrome. The browser outlives
// ctx and is released by Close.
func NewChromedpLauncher(ctx context.Context, opts Options) (*ChromedpLauncher, error) {
	opts = opts.withDefaults()
	base := context.WithoutCancel(ctx)

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(base, opts.RemoteURL)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(base, allocOpts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: chromedp: %v", ErrUnavailable, err)
	}

	obs.From(ctx).Info("chromedp_started", "remote", opts.RemoteURL != "", "headless", opts.Headless)
	return &ChromedpLauncher{
		opts:          opts,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// NewSession opens a tab in a new browser context.
func (l *ChromedpLauncher) NewSession(ctx context.Context) (Session, error) {
	tabCtx, cancel := chromedp.NewContext(l.browserCtx, chromedp.WithNewBrowserContext())
	s := &chromedpSession{
		ctx:            tabCtx,
		cancel:         cancel,
		dialogs:        NewDialogInterceptor(ctx),
		logCtx:         ctx,
		defaultTimeout: l.opts.DefaultTimeout,
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		accept := s.dialogs.Handle(e.Type.String(), e.Message)
		// Listener callbacks must not block on further protocol calls.
		go func() {
			if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(accept)); err != nil {
				obs.From(s.logCtx).Warn("dialog_resolve_failed", "error", err)
			}
		}()
	})

	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("could not open tab: %w", err)
	}
	return s, nil
}

// Close shuts down the browser (or disconnects from a remote one).
func (l *ChromedpLauncher) Close() error {
	l.browserCancel()
	l.allocCancel()
	return nil
}

type chromedpSession struct {
	ctx            context.Context
	cancel         context.CancelFunc
	dialogs        *DialogInterceptor
	logCtx         context.Context
	defaultTimeout time.Duration

	closeOnce sync.Once
}

// run executes actions in the tab, bounded by timeout and by the caller's ctx.
func (s *chromedpSession) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	if ctx.Err() != nil {
		return canceledError(ctx, op)
	}
	cctx, cancel := context.WithTimeout(s.ctx, effectiveTimeout(timeout, s.defaultTimeout))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(cctx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		_ = s.Close()
		return canceledError(ctx, op)
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errWaitTimeout, err)
	}
	return err
}

// probeResult is what the in-page scripts report about a locator. "visible"
// means at least one match is visible; point and fill act on the first
// visible match.
type probeResult struct {
	State string  `json:"state"` // missing, hidden, visible, not_editable, ok
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// locateJS resolves a locator to every matching element in document order.
const locateJS = `function(css, xpath) {
  if (xpath) {
    const snap = document.evaluate(xpath, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    const out = [];
    for (let i = 0; i < snap.snapshotLength; i++) out.push(snap.snapshotItem(i));
    return out;
  }
  return Array.from(document.querySelectorAll(css));
}`

const visibleJS = `function(el) {
  if (!el || !el.isConnected) return false;
  const r = el.getBoundingClientRect();
  if (r.width === 0 && r.height === 0) return false;
  return getComputedStyle(el).visibility !== 'hidden';
}`

const probeJS = `(function(css, xpath, mode, text) {
  const locate = ` + locateJS + `;
  const visible = ` + visibleJS + `;
  const all = locate(css, xpath);
  if (all.length === 0) return {state: 'missing'};
  const el = all.find(visible);
  if (!el) return {state: 'hidden'};
  if (mode === 'point') {
    el.scrollIntoView({block: 'center', inline: 'center'});
    const r = el.getBoundingClientRect();
    return {state: 'visible', x: r.left + r.width / 2, y: r.top + r.height / 2};
  }
  if (mode === 'fill') {
    const tag = el.tagName.toLowerCase();
    const editableInput = (tag === 'input' || tag === 'textarea') && !el.disabled && !el.readOnly;
    if (!editableInput && !el.isContentEditable) return {state: 'not_editable'};
    el.focus();
    if (el.isContentEditable && !editableInput) {
      el.textContent = text;
    } else {
      const proto = tag === 'textarea' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
      Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, text);
    }
    el.dispatchEvent(new Event('input', {bubbles: true}));
    el.dispatchEvent(new Event('change', {bubbles: true}));
    return {state: 'ok'};
  }
  return {state: 'visible'};
})`

func probeExpr(loc Locator, mode, text string) (string, error) {
	css, xpath := "", ""
	if x, ok := loc.XPath(); ok {
		xpath = x
	} else {
		css = loc.Value
	}
	args, err := json.Marshal([]string{css, xpath, mode, text})
	if err != nil {
		return "", err
	}
	// Strip the brackets to splice the JSON array in as an argument list.
	return fmt.Sprintf("%s(%s)", probeJS, args[1:len(args)-1]), nil
}

func (s *chromedpSession) probe(ctx context.Context, loc Locator, mode, text string, timeout time.Duration) (probeResult, error) {
	expr, err := probeExpr(loc, mode, text)
	if err != nil {
		return probeResult{}, err
	}
	var res probeResult
	err = s.run(ctx, "probe", timeout, chromedp.Evaluate(expr, &res))
	return res, err
}

// poll re-evaluates loc until done accepts the result or timeout elapses.
func (s *chromedpSession) poll(ctx context.Context, loc Locator, mode, text string, timeout time.Duration, done func(probeResult) bool) (probeResult, error) {
	timeout = effectiveTimeout(timeout, s.defaultTimeout)
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return probeResult{}, errWaitTimeout
		}
		res, err := s.probe(ctx, loc, mode, text, remaining)
		if err != nil {
			return res, err
		}
		if done(res) {
			return res, nil
		}
		select {
		case <-ctx.Done():
			_ = s.Close()
			return res, canceledError(ctx, "wait")
		case <-ticker.C:
		}
	}
}

func (s *chromedpSession) Goto(ctx context.Context, url string, timeout time.Duration) error {
	timeout = effectiveTimeout(timeout, s.defaultTimeout)
	err := s.run(ctx, "navigate", timeout, chromedp.Navigate(url))
	if err != nil && ctx.Err() == nil {
		return navigationError(url, timeout, err)
	}
	return err
}

func (s *chromedpSession) Click(ctx context.Context, loc Locator, timeout time.Duration) error {
	timeout = effectiveTimeout(timeout, s.defaultTimeout)
	start := time.Now()
	res, err := s.poll(ctx, loc, "point", "", timeout, func(r probeResult) bool { return r.State == "visible" })
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return lookupError(loc, timeout, err)
	}
	err = s.run(ctx, "click", timeout-time.Since(start), chromedp.MouseClickXY(res.X, res.Y))
	if err != nil && ctx.Err() == nil {
		return lookupError(loc, timeout, err)
	}
	return err
}

func (s *chromedpSession) Fill(ctx context.Context, loc Locator, text string, timeout time.Duration) error {
	timeout = effectiveTimeout(timeout, s.defaultTimeout)
	res, err := s.poll(ctx, loc, "fill", text, timeout, func(r probeResult) bool {
		return r.State == "ok" || r.State == "not_editable"
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return lookupError(loc, timeout, err)
	}
	if res.State == "not_editable" {
		return notEditableError(loc)
	}
	return nil
}

func (s *chromedpSession) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	timeout = effectiveTimeout(timeout, s.defaultTimeout)
	_, err := s.poll(ctx, loc, "", "", timeout, func(r probeResult) bool { return r.State == "visible" })
	if err != nil && ctx.Err() == nil {
		return stateError(loc, "visible", timeout, err)
	}
	return err
}

func (s *chromedpSession) WaitHidden(ctx context.Context, loc Locator, timeout time.Duration) error {
	timeout = effectiveTimeout(timeout, s.defaultTimeout)
	_, err := s.poll(ctx, loc, "", "", timeout, func(r probeResult) bool { return r.State != "visible" })
	if err != nil && ctx.Err() == nil {
		return stateError(loc, "hidden", timeout, err)
	}
	return err
}

func (s *chromedpSession) ArmDialog(ctx context.Context, resp DialogResponse) <-chan DialogEvent {
	return s.dialogs.Arm(ctx, resp)
}

func (s *chromedpSession) DisarmDialog() {
	s.dialogs.Disarm()
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, "screenshot", s.defaultTimeout, chromedp.FullScreenshot(&buf, 100))
	return buf, err
}

func (s *chromedpSession) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
