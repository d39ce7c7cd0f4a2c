// Package scenario defines UI scenarios: ordered, immutable lists of browser
// actions with an expected outcome, and the per-run result they produce.
package scenario

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kuitang/modulista-e2e/internal/errs"
)

// Kind identifies an action variant.
type Kind string

const (
	KindNavigate          Kind = "navigate"
	KindClick             Kind = "click"
	KindFill              Kind = "fill"
	KindAssertVisible     Kind = "assert_visible"
	KindAssertHidden      Kind = "assert_hidden"
	KindAssertTextVisible Kind = "assert_text_visible"
	KindExpectDialog      Kind = "expect_dialog"
	KindScreenshot        Kind = "screenshot"
)

// Response is how an expected dialog is resolved.
type Response string

const (
	Accept  Response = "accept"
	Dismiss Response = "dismiss"
)

// Action is one scripted step. Only the fields relevant to Kind are set.
// A zero Timeout means the runner's default for that kind.
type Action struct {
	Kind      Kind          `yaml:"kind" validate:"required,oneof=navigate click fill assert_visible assert_hidden assert_text_visible expect_dialog screenshot"`
	Name      string        `yaml:"name,omitempty" validate:"omitempty,max=60"`
	URL       string        `yaml:"url,omitempty"`
	Selector  string        `yaml:"selector,omitempty"`
	Text      string        `yaml:"text,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
	Substring string        `yaml:"substring,omitempty"`
	Response  Response      `yaml:"response,omitempty" validate:"omitempty,oneof=accept dismiss"`
	Path      string        `yaml:"path,omitempty"`
}

// Navigate loads url in the page and waits for it to finish loading.
func Navigate(url string) Action { return Action{Kind: KindNavigate, URL: url} }

// Click clicks the first visible element matching selector.
func Click(selector string) Action { return Action{Kind: KindClick, Selector: selector} }

// Fill replaces the value of the first visible editable field matching selector.
func Fill(selector, text string) Action {
	return Action{Kind: KindFill, Selector: selector, Text: text}
}

// AssertVisible waits until at least one element matching selector is visible.
func AssertVisible(selector string, timeout time.Duration) Action {
	return Action{Kind: KindAssertVisible, Selector: selector, Timeout: timeout}
}

// AssertHidden waits until no element matching selector is visible.
func AssertHidden(selector string, timeout time.Duration) Action {
	return Action{Kind: KindAssertHidden, Selector: selector, Timeout: timeout}
}

// AssertTextVisible waits until some element whose text is exactly text is visible.
func AssertTextVisible(text string) Action {
	return Action{Kind: KindAssertTextVisible, Text: text}
}

// ExpectDialog intercepts the dialog raised by the action that follows it.
func ExpectDialog(substring string, response Response) Action {
	return Action{Kind: KindExpectDialog, Substring: substring, Response: response}
}

// Screenshot captures the page. An empty path lets the runner name the file.
func Screenshot(path string) Action { return Action{Kind: KindScreenshot, Path: path} }

// Named returns a copy of a labelled with name. Labels show up in logs and in
// generated screenshot file names.
func (a Action) Named(name string) Action {
	a.Name = name
	return a
}

// WithTimeout returns a copy of a with an explicit wait bound.
func (a Action) WithTimeout(d time.Duration) Action {
	a.Timeout = d
	return a
}

// Label is the name used for a in logs and artifact names.
func (a Action) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return strings.ReplaceAll(string(a.Kind), "_", "-")
}

// Describe renders a short human-readable form of the action for logs and
// reports.
func (a Action) Describe() string {
	switch a.Kind {
	case KindNavigate:
		return fmt.Sprintf("navigate %s", a.URL)
	case KindClick:
		return fmt.Sprintf("click %s", a.Selector)
	case KindFill:
		return fmt.Sprintf("fill %s", a.Selector)
	case KindAssertVisible:
		return fmt.Sprintf("assert visible %s", a.Selector)
	case KindAssertHidden:
		return fmt.Sprintf("assert hidden %s", a.Selector)
	case KindAssertTextVisible:
		return fmt.Sprintf("assert text visible %q", a.Text)
	case KindExpectDialog:
		return fmt.Sprintf("expect dialog containing %q (%s)", a.Substring, a.Response)
	case KindScreenshot:
		if a.Path != "" {
			return fmt.Sprintf("screenshot %s", a.Path)
		}
		return "screenshot"
	default:
		return string(a.Kind)
	}
}

// Scenario is a named, ordered list of actions.
type Scenario struct {
	Name        string   `yaml:"name" validate:"required,max=80"`
	Description string   `yaml:"description,omitempty"`
	Actions     []Action `yaml:"actions" validate:"required,min=1,dive"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug is the scenario name reduced to a path-safe directory name.
func (s Scenario) Slug() string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s.Name), "-"), "-")
	if slug == "" {
		return "scenario"
	}
	return slug
}

// Status is the outcome of one scenario run.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// ExecutionResult is produced fresh for every scenario run.
type ExecutionResult struct {
	Scenario    string
	Description string
	Status      Status
	Code        errs.Code // empty when passed
	Reason      string
	FailedStep  int // 1-based; 0 when passed or failed before the first step
	Artifacts   []string
	Dialogs     []string
	Warnings    []string // non-fatal problems such as failed screenshot writes
	StartedAt   time.Time
	Duration    time.Duration
}

// Passed reports whether every action succeeded.
func (r ExecutionResult) Passed() bool {
	return r.Status == StatusPassed
}
