package browser

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/modulista-e2e/internal/artifacts"
	"github.com/kuitang/modulista-e2e/internal/errs"
	"github.com/kuitang/modulista-e2e/internal/runner"
	"github.com/kuitang/modulista-e2e/internal/scenario"
)

var drivers = []string{"playwright", "chromedp"}

func builtinScenarios(t *testing.T, baseURL string) []scenario.Scenario {
	t.Helper()
	set, err := scenario.Builtin()
	require.NoError(t, err)
	scs, err := scenario.ResolveAll(set.All(), baseURL)
	require.NoError(t, err)
	return scs
}

func newRunner(dir string) *runner.Runner {
	return runner.New(runner.Options{
		Store:             artifacts.NewLocalStore(dir),
		NavigationTimeout: 15 * time.Second,
		CaptureFinal:      true,
		RunID:             "browser-test",
	})
}

func TestBuiltinScenarios_PassAgainstFixture(t *testing.T) {
	baseURL := startFixtureApp(t)

	for _, name := range drivers {
		t.Run(name, func(t *testing.T) {
			launcher := launchOrSkip(t, name)
			dir := t.TempDir()
			results := newRunner(dir).RunAll(context.Background(), launcher, builtinScenarios(t, baseURL))

			require.Len(t, results, 4)
			for _, r := range results {
				require.Truef(t, r.Passed(), "%s failed at step %d: %s: %s", r.Scenario, r.FailedStep, r.Code, r.Reason)
			}

			byName := make(map[string]scenario.ExecutionResult, len(results))
			for _, r := range results {
				byName[r.Scenario] = r
			}

			dup := byName["duplicate-name"]
			require.Len(t, dup.Dialogs, 1)
			require.Contains(t, dup.Dialogs[0], "já existe")

			ard := byName["add-rename-delete"]
			require.Len(t, ard.Dialogs, 1)
			require.Contains(t, ard.Dialogs[0], "excluir")

			for _, key := range []string{
				"add-rename-delete/07-added.png",
				"add-rename-delete/13-renamed.png",
				"add-rename-delete/18-deleted.png",
				"add-rename-delete/19-final.png",
				"duplicate-name/13-after-duplicate.png",
				"type-change-rerender/08-edit-form.png",
				"homepage/04-homepage-full.png",
			} {
				info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(key)))
				require.NoErrorf(t, err, "missing artifact %s", key)
				require.Positive(t, info.Size())
			}
		})
	}
}

func TestFailingScenario_DoesNotStopLaterOnes(t *testing.T) {
	baseURL := startFixtureApp(t)
	launcher := launchOrSkip(t, "playwright")

	broken := scenario.Scenario{
		Name: "missing-button",
		Actions: []scenario.Action{
			scenario.Navigate(baseURL),
			scenario.Click("#does-not-exist").WithTimeout(500 * time.Millisecond),
			scenario.AssertVisible("body", 0),
		},
	}
	fillThenSee := scenario.Scenario{
		Name: "fill-then-see",
		Actions: []scenario.Action{
			scenario.Navigate(baseURL),
			scenario.Click("testid=add-item-button"),
			scenario.Fill("#item-name", "Caderno"),
			scenario.Click(`role=button[name="Salvar"]`),
			scenario.AssertVisible("text=Caderno", 0),
			scenario.AssertHidden(`role=button[name="Salvar"]`, 0),
		},
	}

	results := newRunner(t.TempDir()).RunAll(context.Background(), launcher, []scenario.Scenario{broken, fillThenSee})
	require.Len(t, results, 2)

	require.False(t, results[0].Passed())
	require.Equal(t, errs.ElementNotFound, results[0].Code)
	require.Equal(t, 2, results[0].FailedStep)

	require.Truef(t, results[1].Passed(), "%s: %s", results[1].Code, results[1].Reason)
}

func TestUnexpectedDialog_NeverFiresExpectation(t *testing.T) {
	baseURL := startFixtureApp(t)
	launcher := launchOrSkip(t, "playwright")

	sc := scenario.Scenario{
		Name: "no-confirm-on-cancel",
		Actions: []scenario.Action{
			scenario.Navigate(baseURL),
			scenario.Click("testid=add-item-button"),
			scenario.ExpectDialog("excluir", scenario.Accept),
			scenario.Click(`role=button[name="Cancelar"]`),
		},
	}
	results := runner.New(runner.Options{
		Store:         artifacts.NewLocalStore(t.TempDir()),
		DialogTimeout: 300 * time.Millisecond,
	}).RunAll(context.Background(), launcher, []scenario.Scenario{sc})

	require.Len(t, results, 1)
	require.Equal(t, errs.DialogTimeout, results[0].Code)
	require.Equal(t, 3, results[0].FailedStep)
}

func TestFixture_ServedWithoutCaching(t *testing.T) {
	baseURL := startFixtureApp(t)

	for _, path := range []string{"", "app.js", "missing.js"} {
		resp, err := http.Get(baseURL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, "no-store, no-cache, must-revalidate", resp.Header.Get("Cache-Control"), path)
		require.Equal(t, "no-cache", resp.Header.Get("Pragma"), path)
		require.Equal(t, "0", resp.Header.Get("Expires"), path)
	}
}

// The built-in scenarios and the fixture must agree on the hooks they share.
func TestFixture_ExposesBuiltinHooks(t *testing.T) {
	data, err := os.ReadFile(filepath.Join(fixtureRoot(t), "app.js"))
	require.NoError(t, err)
	page, err := os.ReadFile(filepath.Join(fixtureRoot(t), "index.html"))
	require.NoError(t, err)
	src := string(data) + string(page)

	for _, hook := range []string{
		"Carregando...",
		`"data-testid": "add-item-button"`,
		`id: "item-name"`,
		`id: "type-selector-btn"`,
		`"edit-item-form-"`,
		`name: "value"`,
		`"Número"`,
		"Salvar",
		"Cancelar",
		"Excluir Item",
		"já existe",
		"excluir",
		`id: "item-list"`,
	} {
		require.Truef(t, strings.Contains(src, hook), "fixture missing %s", hook)
	}
}
