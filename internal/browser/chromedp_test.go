package browser

import (
	"encoding/json"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// scriptArgs recovers the argument list spliced into the in-page script.
func scriptArgs(t testing.TB, expr string) []string {
	t.Helper()
	if !strings.HasPrefix(expr, probeJS+"(") || !strings.HasSuffix(expr, ")") {
		t.Fatalf("expression is not a call of the page script: %.80q", expr)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(expr, probeJS+"("), ")")
	var args []string
	if err := json.Unmarshal([]byte("["+inner+"]"), &args); err != nil {
		t.Fatalf("arguments are not a JSON list: %v", err)
	}
	if len(args) != 4 {
		t.Fatalf("got %d arguments, want 4", len(args))
	}
	return args
}

func TestProbeExpr_CSSLocator(t *testing.T) {
	t.Parallel()
	loc := MustParseLocator(`input[name="va'l"]`)
	text := `</script><script>alert("x")</script>`

	expr, err := probeExpr(loc, "fill", text)
	if err != nil {
		t.Fatal(err)
	}
	args := scriptArgs(t, expr)
	if args[0] != loc.Value || args[1] != "" {
		t.Fatalf("css=%q xpath=%q, want css=%q and no xpath", args[0], args[1], loc.Value)
	}
	if args[2] != "fill" || args[3] != text {
		t.Fatalf("mode=%q text=%q", args[2], args[3])
	}
	if strings.Contains(strings.TrimPrefix(expr, probeJS), "</script>") {
		t.Fatal("closing script tag appears unescaped in the expression")
	}
}

func TestProbeExpr_XPathLocators(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		`text=Diga "olá" e 'tchau'`,
		"testid=add-item-button",
		`role=button[name="Excluir Item"]`,
	} {
		loc := MustParseLocator(raw)
		want, ok := loc.XPath()
		if !ok {
			t.Fatalf("%s has no XPath form", raw)
		}
		expr, err := probeExpr(loc, "point", "")
		if err != nil {
			t.Fatal(err)
		}
		args := scriptArgs(t, expr)
		if args[0] != "" || args[1] != want {
			t.Fatalf("%s: css=%q xpath=%q, want xpath %q", raw, args[0], args[1], want)
		}
	}
}

func TestProbeExpr_ArgumentsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		value := rapid.StringMatching(`[a-z#.\[\]="' <>/-]{1,20}`).Draw(t, "css")
		text := rapid.String().Draw(t, "text")
		loc := Locator{Kind: ByCSS, Value: value}

		expr, err := probeExpr(loc, "fill", text)
		if err != nil {
			t.Fatal(err)
		}
		args := scriptArgs(t, expr)
		if args[0] != value || args[3] != text {
			t.Fatalf("args = %q, want css %q text %q", args, value, text)
		}
	})
}
