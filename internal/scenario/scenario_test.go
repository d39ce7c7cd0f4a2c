package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/modulista-e2e/internal/errs"
)

func TestBuiltin_LoadsInDeclarationOrder(t *testing.T) {
	t.Parallel()
	set, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	want := []string{"add-rename-delete", "duplicate-name", "type-change-rerender", "homepage"}
	got := set.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Names = %v, want %v", got, want)
	}

	dup, ok := set.Lookup("duplicate-name")
	if !ok {
		t.Fatal("duplicate-name missing")
	}
	var dialog Action
	for i, a := range dup.Actions {
		if a.Kind == KindExpectDialog {
			dialog = a
			if next := dup.Actions[i+1]; next.Kind != KindClick || next.Selector != `role=button[name="Salvar"]` {
				t.Fatalf("dialog trigger = %+v", next)
			}
		}
	}
	if dialog.Substring != "já existe" || dialog.Response != Dismiss {
		t.Fatalf("expect_dialog = %+v", dialog)
	}

	home, _ := set.Lookup("homepage")
	if home.Actions[1].Timeout != 10*time.Second {
		t.Fatalf("homepage loading wait = %s, want 10s", home.Actions[1].Timeout)
	}
}

func TestSet_SelectAllAndUnknown(t *testing.T) {
	t.Parallel()
	set := MustBuiltin()

	all, err := set.Select(SelectAll)
	if err != nil || len(all) != set.Len() {
		t.Fatalf("Select(all) = %d scenarios, %v", len(all), err)
	}
	picked, err := set.Select("homepage", "duplicate-name")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if picked[0].Name != "homepage" || picked[1].Name != "duplicate-name" {
		t.Fatalf("Select order not preserved: %s, %s", picked[0].Name, picked[1].Name)
	}
	if _, err := set.Select("homepage", "nope"); errs.CodeOf(err) != errs.InvalidScenario {
		t.Fatalf("unknown selection code = %s", errs.CodeOf(err))
	}
}

func TestNewSet_RejectsDuplicateNames(t *testing.T) {
	t.Parallel()
	sc := Scenario{Name: "a", Actions: []Action{Navigate("/")}}
	if _, err := NewSet(sc, sc); errs.CodeOf(err) != errs.InvalidScenario {
		t.Fatalf("expected invalid_scenario, got %v", err)
	}
}

func TestParse_Shapes(t *testing.T) {
	t.Parallel()
	single := `
name: one
actions:
  - kind: navigate
    url: index.html
`
	list := `
- name: a
  actions: [{kind: screenshot}]
- name: b
  actions: [{kind: assert_text_visible, text: Olá}]
`
	wrapped := `
scenarios:
  - name: w
    actions:
      - kind: expect_dialog
        substring: excluir
        response: accept
      - kind: click
        selector: "#delete"
`
	for name, tc := range map[string]struct {
		doc   string
		names []string
	}{
		"single":  {single, []string{"one"}},
		"list":    {list, []string{"a", "b"}},
		"wrapped": {wrapped, []string{"w"}},
	} {
		scs, err := Parse([]byte(tc.doc))
		if err != nil {
			t.Fatalf("%s: Parse: %v", name, err)
		}
		if len(scs) != len(tc.names) {
			t.Fatalf("%s: got %d scenarios", name, len(scs))
		}
		for i, sc := range scs {
			if sc.Name != tc.names[i] {
				t.Fatalf("%s: scenario %d = %q, want %q", name, i, sc.Name, tc.names[i])
			}
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown kind":        "name: x\nactions: [{kind: hover, selector: a}]\n",
		"unknown field":       "name: x\nactions: [{kind: click, selector: a, force: true}]\n",
		"missing selector":    "name: x\nactions: [{kind: click}]\n",
		"missing url":         "name: x\nactions: [{kind: navigate}]\n",
		"bad response":        "name: x\nactions: [{kind: expect_dialog, response: maybe}, {kind: click, selector: a}]\n",
		"no actions":          "name: x\nactions: []\n",
		"missing name":        "actions: [{kind: screenshot}]\n",
		"stacked dialogs":     "name: x\nactions: [{kind: expect_dialog, response: accept}, {kind: expect_dialog, response: accept}]\n",
		"negative timeout":    "name: x\nactions: [{kind: assert_visible, selector: a, timeout: -1s}]\n",
		"scalar document":     "just text\n",
		"empty document":      "",
		"empty scenario list": "scenarios: []\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if errs.CodeOf(err) != errs.InvalidScenario {
			t.Fatalf("%s: code = %s (%v)", name, errs.CodeOf(err), err)
		}
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "s.yaml")
	doc := "name: from-file\nactions:\n  - kind: assert_visible\n    selector: body\n    timeout: 250ms\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	scs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if scs[0].Actions[0].Timeout != 250*time.Millisecond {
		t.Fatalf("timeout = %s", scs[0].Actions[0].Timeout)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); errs.CodeOf(err) != errs.InvalidScenario {
		t.Fatalf("missing file code = %s", errs.CodeOf(err))
	}
}

func TestWithBase_ResolvesRelativeNavigation(t *testing.T) {
	t.Parallel()
	sc := Scenario{Name: "nav", Actions: []Action{
		Navigate("/"),
		Navigate("other.html"),
		Navigate("https://example.com/x"),
		Click("#a"),
	}}

	served, err := sc.WithBase("http://localhost:8081/")
	if err != nil {
		t.Fatal(err)
	}
	if served.Actions[0].URL != "http://localhost:8081/" || served.Actions[1].URL != "http://localhost:8081/other.html" {
		t.Fatalf("served URLs = %q, %q", served.Actions[0].URL, served.Actions[1].URL)
	}
	if served.Actions[2].URL != "https://example.com/x" {
		t.Fatalf("absolute URL rewritten: %q", served.Actions[2].URL)
	}

	local, err := sc.WithBase("file:///app/index.html")
	if err != nil {
		t.Fatal(err)
	}
	if local.Actions[0].URL != "file:///app/index.html" || local.Actions[1].URL != "file:///app/other.html" {
		t.Fatalf("file URLs = %q, %q", local.Actions[0].URL, local.Actions[1].URL)
	}
	if sc.Actions[0].URL != "/" {
		t.Fatal("WithBase mutated the original scenario")
	}
	if _, err := sc.WithBase("relative/only"); errs.CodeOf(err) != errs.InvalidScenario {
		t.Fatalf("relative base code = %s", errs.CodeOf(err))
	}
}

func testSlug_PathSafe(t *rapid.T) {
	name := rapid.String().Draw(t, "name")
	slug := Scenario{Name: name}.Slug()
	if slug == "" {
		t.Fatal("empty slug")
	}
	for _, r := range slug {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' {
			t.Fatalf("slug %q of %q contains %q", slug, name, r)
		}
	}
	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		t.Fatalf("slug %q has edge dashes", slug)
	}
}

func TestSlug_PathSafe(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSlug_PathSafe)
}

func TestActionValueSemantics(t *testing.T) {
	t.Parallel()
	base := Screenshot("")
	named := base.Named("after-save")
	if base.Name != "" || named.Name != "after-save" {
		t.Fatalf("Named mutated receiver: base=%+v named=%+v", base, named)
	}
	if named.Label() != "after-save" || base.Label() != "screenshot" {
		t.Fatalf("labels = %q, %q", named.Label(), base.Label())
	}
	if AssertTextVisible("x").Label() != "assert-text-visible" {
		t.Fatalf("kind label = %q", AssertTextVisible("x").Label())
	}
}
