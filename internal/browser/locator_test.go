package browser

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/kuitang/modulista-e2e/internal/errs"
)

func TestParseLocator(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		kind LocatorKind
		val  string
		name string
	}{
		{"#item-name", ByCSS, "#item-name", ""},
		{`input[name="value"]`, ByCSS, `input[name="value"]`, ""},
		{"text=Carregando...", ByText, "Carregando...", ""},
		{"text=Número", ByText, "Número", ""},
		{"testid=add-item-button", ByTestID, "add-item-button", ""},
		{`role=button[name="Salvar"]`, ByRole, "button", "Salvar"},
		{`role=button[name='Excluir Item']`, ByRole, "button", "Excluir Item"},
		{"role=dialog", ByRole, "dialog", ""},
	}
	for _, tc := range cases {
		got, err := ParseLocator(tc.in)
		if err != nil {
			t.Fatalf("ParseLocator(%q): %v", tc.in, err)
		}
		if got.Kind != tc.kind || got.Value != tc.val || got.Name != tc.name {
			t.Fatalf("ParseLocator(%q) = %+v", tc.in, got)
		}
		if got.String() != tc.in {
			t.Fatalf("String() = %q, want %q", got.String(), tc.in)
		}
	}
}

func TestParseLocator_Rejects(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "   ", "text=", "testid=", "role=", `role=button[name=Salvar]`, "role=Button"} {
		if _, err := ParseLocator(in); errs.CodeOf(err) != errs.InvalidScenario {
			t.Fatalf("ParseLocator(%q) code = %s, err = %v", in, errs.CodeOf(err), err)
		}
	}
}

func TestXPath(t *testing.T) {
	t.Parallel()
	if _, ok := MustParseLocator("#a").XPath(); ok {
		t.Fatal("CSS locator should not have an XPath form")
	}
	x, _ := MustParseLocator("testid=add-item-button").XPath()
	if x != `//*[@data-testid="add-item-button"]` {
		t.Fatalf("testid xpath = %s", x)
	}
	x, _ = MustParseLocator(`role=button[name="Salvar"]`).XPath()
	for _, want := range []string{`//*[@role="button"]`, "//button[not(@role)]", "input[@type='submit']", `@title="Salvar"`} {
		if !strings.Contains(x, want) {
			t.Fatalf("role xpath %s missing %s", x, want)
		}
	}
}

func TestXPathLiteral(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		`plain`:        `"plain"`,
		`say "hi"`:     `'say "hi"'`,
		`it's "quote"`: `concat("it's ", '"', "quote", '"')`,
	}
	for in, want := range cases {
		if got := xpathLiteral(in); got != want {
			t.Fatalf("xpathLiteral(%q) = %s, want %s", in, got, want)
		}
	}
}

func testXPathLiteral_Balanced(t *rapid.T) {
	s := rapid.StringMatching(`[a-z '"]{0,20}`).Draw(t, "s")
	lit := xpathLiteral(s)
	if strings.HasPrefix(lit, "concat(") {
		if strings.Count(lit, ",") < 1 {
			t.Fatalf("concat needs two arguments: %s", lit)
		}
		return
	}
	q := lit[0]
	if lit[len(lit)-1] != q || strings.ContainsRune(lit[1:len(lit)-1], rune(q)) {
		t.Fatalf("unbalanced literal %s for %q", lit, s)
	}
}

func TestXPathLiteral_Balanced(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testXPathLiteral_Balanced)
}
