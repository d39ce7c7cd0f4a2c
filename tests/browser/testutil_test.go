// Package browser runs the built-in scenarios in a real browser against a
// small fixture copy of the Modulista item manager.
package browser

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	driver "github.com/kuitang/modulista-e2e/internal/browser"
	"github.com/kuitang/modulista-e2e/internal/static"
)

const fixtureStartTimeout = 5 * time.Second

func fixtureRoot(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate fixture directory")
	}
	return filepath.Join(filepath.Dir(file), "testdata", "app")
}

// startFixtureApp serves the fixture app on a free port through the no-cache
// static server and returns its base URL.
func startFixtureApp(t testing.TB) string {
	t.Helper()
	srv := static.New(static.Config{Root: fixtureRoot(t), Host: "127.0.0.1"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("fixture server shutdown: %v", err)
		}
	})

	select {
	case <-srv.Ready():
	case err := <-done:
		done <- nil
		t.Fatalf("fixture server failed to start: %v", err)
	case <-time.After(fixtureStartTimeout):
		t.Fatal("fixture server did not become ready")
	}
	return "http://" + srv.Addr() + "/"
}

// launchOrSkip starts the named driver, skipping the test when no browser is
// installed.
func launchOrSkip(t *testing.T, name string) driver.Launcher {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	launcher, err := driver.NewLauncher(context.Background(), name, driver.Options{Headless: true})
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	t.Cleanup(func() {
		if err := launcher.Close(); err != nil {
			t.Logf("close %s: %v", name, err)
		}
	})
	return launcher
}
