// Package runner executes scenarios against browser sessions and collects
// one ExecutionResult per scenario.
package runner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kuitang/modulista-e2e/internal/artifacts"
	"github.com/kuitang/modulista-e2e/internal/browser"
	"github.com/kuitang/modulista-e2e/internal/errs"
	"github.com/kuitang/modulista-e2e/internal/logutil"
	"github.com/kuitang/modulista-e2e/internal/obs"
	"github.com/kuitang/modulista-e2e/internal/scenario"
)

const (
	defaultActionTimeout     = 5 * time.Second
	defaultNavigationTimeout = 10 * time.Second
	defaultDialogTimeout     = 2 * time.Second

	resultPassed = "passed"
	resultFailed = "failed"
)

// Recorder receives per-action and per-scenario outcomes.
type Recorder interface {
	ObserveAction(kind string, result string)
	ObserveScenario(result string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAction(string, string)          {}
func (nopRecorder) ObserveScenario(string, time.Duration) {}

// Options configures a Runner. Zero values fall back to defaults.
type Options struct {
	Store             artifacts.Store
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	DialogTimeout     time.Duration
	// ActionsPerSecond paces actions; 0 runs them back to back.
	ActionsPerSecond float64
	CaptureFinal     bool
	// ShareSession runs every scenario in one browser context.
	ShareSession bool
	Metrics      Recorder
	RunID        string
}

// Runner executes scenarios. It holds no per-scenario state and may be
// reused across runs.
type Runner struct {
	opts    Options
	limiter *rate.Limiter
}

// New builds a runner, filling in defaults.
func New(opts Options) *Runner {
	if opts.Store == nil {
		opts.Store = artifacts.NewLocalStore("artifacts")
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = defaultNavigationTimeout
	}
	if opts.DialogTimeout <= 0 {
		opts.DialogTimeout = defaultDialogTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	r := &Runner{opts: opts}
	if opts.ActionsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.ActionsPerSecond), 1)
	}
	return r
}

// RunID identifies this runner's run in logs and uploaded artifact keys.
func (r *Runner) RunID() string {
	return r.opts.RunID
}

// RunAll runs scenarios sequentially in the given order. Each scenario gets a
// fresh session unless ShareSession is set. Once ctx is cancelled the
// scenarios not yet started are reported as canceled.
func (r *Runner) RunAll(ctx context.Context, launcher browser.Launcher, scenarios []scenario.Scenario) []scenario.ExecutionResult {
	ctx = obs.WithRunID(ctx, r.opts.RunID)
	logger := obs.From(ctx)
	logger.Info("run_started", "scenarios", len(scenarios), "shared_session", r.opts.ShareSession)

	results := make([]scenario.ExecutionResult, 0, len(scenarios))
	var shared browser.Session
	defer func() {
		if shared != nil {
			if err := shared.Close(); err != nil {
				logger.Warn("session_close_failed", "error", err)
			}
		}
	}()

	for i, sc := range scenarios {
		if ctx.Err() != nil {
			for _, rest := range scenarios[i:] {
				results = append(results, canceledResult(rest))
			}
			break
		}

		var res scenario.ExecutionResult
		if r.opts.ShareSession {
			if shared == nil {
				s, err := launcher.NewSession(obs.WithScenario(ctx, sc.Name))
				if err != nil {
					results = append(results, r.sessionFailure(ctx, sc, err))
					continue
				}
				shared = s
			}
			res = r.RunScenario(ctx, shared, sc)
		} else {
			res = r.runIsolated(ctx, launcher, sc)
		}
		results = append(results, res)
	}

	passed := 0
	for _, res := range results {
		if res.Passed() {
			passed++
		}
	}
	logger.Info("run_finished", "passed", passed, "failed", len(results)-passed)
	return results
}

func (r *Runner) runIsolated(ctx context.Context, launcher browser.Launcher, sc scenario.Scenario) scenario.ExecutionResult {
	sctx := obs.WithScenario(ctx, sc.Name)
	session, err := launcher.NewSession(sctx)
	if err != nil {
		return r.sessionFailure(ctx, sc, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			obs.From(sctx).Warn("session_close_failed", "error", err)
		}
	}()
	return r.RunScenario(ctx, session, sc)
}

func (r *Runner) sessionFailure(ctx context.Context, sc scenario.Scenario, err error) scenario.ExecutionResult {
	res := newResult(sc)
	if ctx.Err() != nil {
		err = errs.Wrap(errs.Canceled, "run canceled", ctx.Err())
	} else {
		err = errs.Wrap(errs.Internal, "could not open browser session", err)
	}
	failResult(&res, 0, err)
	obs.From(obs.WithScenario(ctx, sc.Name)).Error("session_open_failed", "error", err)
	r.opts.Metrics.ObserveScenario(resultFailed, 0)
	return res
}

func canceledResult(sc scenario.Scenario) scenario.ExecutionResult {
	res := newResult(sc)
	failResult(&res, 0, errs.New(errs.Canceled, "run canceled before scenario started"))
	return res
}

func newResult(sc scenario.Scenario) scenario.ExecutionResult {
	return scenario.ExecutionResult{
		Scenario:    sc.Name,
		Description: sc.Description,
		Status:      scenario.StatusPassed,
		StartedAt:   time.Now(),
		Artifacts:   []string{},
	}
}

func failResult(res *scenario.ExecutionResult, step int, err error) {
	res.Status = scenario.StatusFailed
	res.Code = errs.CodeOf(err)
	res.Reason = errs.MessageOf(err)
	res.FailedStep = step
}

// pendingDialog is an armed ExpectDialog waiting for its trigger to run.
type pendingDialog struct {
	ch     <-chan browser.DialogEvent
	action scenario.Action
	step   int
}

// RunScenario executes the scenario's actions in order on session. The first
// failing action ends the scenario; the session is left open for the caller.
func (r *Runner) RunScenario(ctx context.Context, session browser.Session, sc scenario.Scenario) scenario.ExecutionResult {
	if obs.CorrelationFromContext(ctx).RunID == "" {
		ctx = obs.WithRunID(ctx, r.opts.RunID)
	}
	ctx = obs.WithScenario(ctx, sc.Name)
	logger := obs.From(ctx)
	res := newResult(sc)
	logger.Info("scenario_started", "actions", len(sc.Actions))

	defer session.DisarmDialog()

	var pending *pendingDialog
	for i, a := range sc.Actions {
		step := i + 1
		actx := obs.WithStep(ctx, step, string(a.Kind))

		if err := r.pace(actx); err != nil {
			failResult(&res, step, err)
			break
		}

		if a.Kind == scenario.KindExpectDialog {
			pending = &pendingDialog{
				ch:     session.ArmDialog(actx, dialogResponse(a.Response)),
				action: a,
				step:   step,
			}
			obs.From(actx).Debug("dialog_armed", "substring", a.Substring, "response", string(a.Response))
			if step == len(sc.Actions) {
				// Nothing left to trigger it; wait for a dialog the page raises
				// on its own.
				err := r.awaitDialog(actx, session, pending, &res)
				r.observeAction(actx, a, err)
				if err != nil {
					failResult(&res, step, err)
				}
				pending = nil
			}
			continue
		}

		err := r.execute(actx, session, sc, step, a, &res)
		if err != nil && !errs.IsFatal(errs.CodeOf(err)) {
			r.warn(actx, &res, err)
			err = nil
		}
		r.observeAction(actx, a, err)
		if pending != nil {
			p := pending
			pending = nil
			if err == nil {
				dctx := obs.WithStep(ctx, p.step, string(p.action.Kind))
				if derr := r.awaitDialog(dctx, session, p, &res); derr != nil {
					r.observeAction(dctx, p.action, derr)
					failResult(&res, p.step, derr)
					break
				}
				r.observeAction(dctx, p.action, nil)
			} else {
				session.DisarmDialog()
			}
		}
		if err != nil {
			failResult(&res, step, err)
			break
		}
	}

	if r.opts.CaptureFinal && ctx.Err() == nil {
		key := fmt.Sprintf("%s/%02d-final.png", sc.Slug(), len(sc.Actions)+1)
		if err := r.capture(ctx, session, key, &res); err != nil && !errs.IsFatal(errs.CodeOf(err)) {
			r.warn(ctx, &res, err)
		}
	}

	res.Duration = time.Since(res.StartedAt)
	result := resultPassed
	if !res.Passed() {
		result = resultFailed
	}
	r.opts.Metrics.ObserveScenario(result, res.Duration)

	if res.Passed() {
		logger.Info("scenario_finished", "status", string(res.Status), "dur_ms", res.Duration.Milliseconds(), "artifacts", len(res.Artifacts))
	} else {
		logger.Warn("scenario_finished",
			"status", string(res.Status),
			"code", string(res.Code),
			"reason", res.Reason,
			"failed_step", res.FailedStep,
			"dur_ms", res.Duration.Milliseconds(),
		)
	}
	return res
}

func (r *Runner) pace(ctx context.Context) error {
	if ctx.Err() != nil {
		return errs.Wrap(errs.Canceled, "run canceled", ctx.Err())
	}
	if r.limiter == nil {
		return nil
	}
	// Wait also fails early when the next token lies past ctx's deadline.
	if err := r.limiter.Wait(ctx); err != nil {
		return errs.Wrap(errs.Canceled, "pacing wait aborted", err)
	}
	return nil
}

func (r *Runner) observeAction(ctx context.Context, a scenario.Action, err error) {
	result := resultPassed
	if err != nil {
		result = resultFailed
		obs.From(ctx).Warn("action_failed", "desc", a.Describe(), "code", string(errs.CodeOf(err)), "error", errs.MessageOf(err))
	} else {
		obs.From(ctx).Debug("action_done", "desc", a.Describe())
	}
	r.opts.Metrics.ObserveAction(string(a.Kind), result)
}

func (r *Runner) execute(ctx context.Context, session browser.Session, sc scenario.Scenario, step int, a scenario.Action, res *scenario.ExecutionResult) error {
	switch a.Kind {
	case scenario.KindNavigate:
		return session.Goto(ctx, a.URL, pick(a.Timeout, r.opts.NavigationTimeout))

	case scenario.KindClick:
		loc, err := browser.ParseLocator(a.Selector)
		if err != nil {
			return err
		}
		return session.Click(ctx, loc, pick(a.Timeout, r.opts.ActionTimeout))

	case scenario.KindFill:
		loc, err := browser.ParseLocator(a.Selector)
		if err != nil {
			return err
		}
		obs.From(ctx).Debug("fill", "selector", a.Selector, "value", logutil.RedactFillValue(a.Selector, a.Text))
		return session.Fill(ctx, loc, a.Text, pick(a.Timeout, r.opts.ActionTimeout))

	case scenario.KindAssertVisible, scenario.KindAssertHidden:
		loc, err := browser.ParseLocator(a.Selector)
		if err != nil {
			return err
		}
		if a.Kind == scenario.KindAssertVisible {
			return session.WaitVisible(ctx, loc, pick(a.Timeout, r.opts.ActionTimeout))
		}
		return session.WaitHidden(ctx, loc, pick(a.Timeout, r.opts.ActionTimeout))

	case scenario.KindAssertTextVisible:
		loc := browser.Locator{Kind: browser.ByText, Value: a.Text}
		return session.WaitVisible(ctx, loc, pick(a.Timeout, r.opts.ActionTimeout))

	case scenario.KindScreenshot:
		key := a.Path
		if key == "" {
			key = fmt.Sprintf("%s/%02d-%s.png", sc.Slug(), step, fileLabel(a.Label()))
		}
		return r.capture(ctx, session, key, res)

	default:
		return errs.New(errs.InvalidScenario, fmt.Sprintf("unsupported action kind %q", a.Kind))
	}
}

// capture takes a screenshot and stores it under key. Capture and write
// failures come back as screenshot_write_error.
func (r *Runner) capture(ctx context.Context, session browser.Session, key string, res *scenario.ExecutionResult) error {
	data, err := session.Screenshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(errs.Canceled, "screenshot canceled", ctx.Err())
		}
		return errs.Wrap(errs.ScreenshotWrite, fmt.Sprintf("capture %s", key), err)
	}

	loc, err := r.opts.Store.Put(ctx, key, data, "image/png")
	if loc != "" {
		res.Artifacts = append(res.Artifacts, loc)
	}
	if err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(errs.Canceled, "screenshot canceled", ctx.Err())
		}
		if errs.CodeOf(err) != errs.ScreenshotWrite {
			err = errs.Wrap(errs.ScreenshotWrite, fmt.Sprintf("write %s", key), err)
		}
		return err
	}
	obs.From(ctx).Debug("screenshot_saved", "location", loc, "bytes", len(data))
	return nil
}

func (r *Runner) warn(ctx context.Context, res *scenario.ExecutionResult, err error) {
	res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", errs.CodeOf(err), errs.MessageOf(err)))
	obs.From(ctx).Warn("screenshot_write_failed", "error", errs.MessageOf(err))
}

func (r *Runner) awaitDialog(ctx context.Context, session browser.Session, p *pendingDialog, res *scenario.ExecutionResult) error {
	timeout := pick(p.action.Timeout, r.opts.DialogTimeout)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-p.ch:
		res.Dialogs = append(res.Dialogs, ev.Message)
		if !strings.Contains(ev.Message, p.action.Substring) {
			return errs.New(errs.AssertionFailed, fmt.Sprintf("dialog message %q does not contain %q", ev.Message, p.action.Substring))
		}
		return nil
	case <-timer.C:
		session.DisarmDialog()
		return errs.New(errs.DialogTimeout, fmt.Sprintf("no dialog appeared within %s", timeout))
	case <-ctx.Done():
		session.DisarmDialog()
		return errs.Wrap(errs.Canceled, "run canceled", ctx.Err())
	}
}

func dialogResponse(r scenario.Response) browser.DialogResponse {
	if r == scenario.Accept {
		return browser.DialogAccept
	}
	return browser.DialogDismiss
}

func pick(explicit, fallback time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	return fallback
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func fileLabel(s string) string {
	out := strings.Trim(unsafeFileChars.ReplaceAllString(s, "-"), "-")
	if out == "" {
		return "screenshot"
	}
	return out
}
