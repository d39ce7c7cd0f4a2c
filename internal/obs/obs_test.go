package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestFrom_AttachesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithScenario(ctx, "duplicate-name")
	ctx = WithStep(ctx, 3, "click")
	From(ctx).Info("action_done")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	line := lines[0]
	for key, want := range map[string]string{
		"run_id":   "run-1",
		"scenario": "duplicate-name",
		"step":     "3",
		"action":   "click",
		"msg":      "action_done",
	} {
		if got, _ := line[key].(string); got != want {
			t.Fatalf("log field %s = %q, want %q", key, got, want)
		}
	}
}

func TestWithScenario_ResetsStep(t *testing.T) {
	t.Parallel()
	ctx := WithStep(WithScenario(context.Background(), "a"), 4, "fill")
	ctx = WithScenario(ctx, "b")
	corr := CorrelationFromContext(ctx)
	if corr.Step != 0 || corr.StepKind != "" {
		t.Fatalf("step not reset on new scenario: %+v", corr)
	}
	if corr.Scenario != "b" {
		t.Fatalf("scenario = %q, want b", corr.Scenario)
	}
}

func TestRunIDFromContext_DefaultsToUnknown(t *testing.T) {
	t.Parallel()
	if got := RunIDFromContext(context.Background()); got != "unknown" {
		t.Fatalf("RunIDFromContext = %q, want unknown", got)
	}
	if got := RunIDFromContext(WithRunID(context.Background(), " abc ")); got != "abc" {
		t.Fatalf("RunIDFromContext = %q, want abc", got)
	}
}

func TestRequestContextMiddleware_GeneratesAndEchoesRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationFromContext(r.Context()).RequestID
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	if !strings.HasPrefix(seen, "req-") {
		t.Fatalf("generated request id %q lacks req- prefix", seen)
	}
	if rec.Header().Get("X-Request-Id") != seen {
		t.Fatalf("response header %q != context id %q", rec.Header().Get("X-Request-Id"), seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "client-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "client-42" {
		t.Fatalf("client request id not propagated, got %q", seen)
	}
}

func TestAccessLogMiddleware_RecordsStatusAndBytes(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()
	SetLevel("debug")
	defer SetLevel("info")

	h := AccessLogMiddleware("static", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope.js", nil))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 access line, got %d", len(lines))
	}
	if lines[0]["msg"] != "http_access" {
		t.Fatalf("unexpected msg %v", lines[0]["msg"])
	}
	if status, _ := lines[0]["status"].(float64); status != http.StatusNotFound {
		t.Fatalf("status = %v, want 404", lines[0]["status"])
	}
	if n, _ := lines[0]["resp_bytes"].(float64); n != float64(len("missing")) {
		t.Fatalf("resp_bytes = %v", lines[0]["resp_bytes"])
	}
}
