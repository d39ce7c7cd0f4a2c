// runner executes Modulista UI scenarios in a real browser and reports the
// outcome of each one.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kuitang/modulista-e2e/internal/artifacts"
	"github.com/kuitang/modulista-e2e/internal/browser"
	"github.com/kuitang/modulista-e2e/internal/config"
	"github.com/kuitang/modulista-e2e/internal/errs"
	"github.com/kuitang/modulista-e2e/internal/metrics"
	"github.com/kuitang/modulista-e2e/internal/obs"
	"github.com/kuitang/modulista-e2e/internal/report"
	"github.com/kuitang/modulista-e2e/internal/runner"
	"github.com/kuitang/modulista-e2e/internal/scenario"
	"github.com/kuitang/modulista-e2e/internal/static"
	"github.com/kuitang/modulista-e2e/internal/watch"
)

func main() {
	obs.Init()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout))
}

// usageError marks bad arguments, configuration or scenario files.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

var errScenariosFailed = errors.New("one or more scenarios failed")

func run(ctx context.Context, args []string, stdout io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errScenariosFailed):
		return 1
	}
	fmt.Fprintln(os.Stderr, "runner:", errs.MessageOf(err))
	var usage usageError
	if errors.As(err, &usage) || errs.Is(err, errs.InvalidScenario) {
		return 2
	}
	return errs.ExitCode(errs.CodeOf(err))
}

type flags struct {
	config        string
	target        string
	driver        string
	artifacts     string
	format        string
	html          string
	metricsFile   string
	logLevel      string
	serve         bool
	watch         bool
	sharedSession bool
	headed        bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "runner [scenario-file-or-name]...",
		Short: "run Modulista UI scenarios in a browser",
		Long: `Runs scenarios against the Modulista app. Arguments are scenario YAML files
or built-in scenario names; "all" (the default) selects every built-in:

  add-rename-delete, duplicate-name, type-change-rerender, homepage

Exits 0 when every scenario passes, 1 when any fails, 2 on usage errors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(f.config, f.overrides(cmd)...)
			if err != nil {
				return usageError{err}
			}
			obs.SetLevel(cfg.LogLevel)

			sel := newSelection(args)
			if _, err := sel.Load(); err != nil {
				return usageError{err}
			}
			if f.watch && len(sel.Files()) == 0 {
				return usageError{errors.New("--watch needs at least one scenario file")}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return execute(ctx, cfg, f, sel, cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.config, "config", "", "optional TOML config file")
	fs.StringVar(&f.target, "target", "", "base URL of the app under test (TARGET_URL)")
	fs.StringVar(&f.driver, "driver", "", "browser driver: playwright or chromedp (BROWSER_DRIVER)")
	fs.StringVar(&f.artifacts, "artifacts", "", "screenshot directory (ARTIFACT_DIR)")
	fs.StringVarP(&f.format, "format", "f", "text", "summary format: text, table or json")
	fs.StringVar(&f.html, "html", "", "also write an HTML report to this path")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile (METRICS_FILE)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&f.serve, "serve", false, "start the static server for the run and target it")
	fs.BoolVar(&f.watch, "watch", false, "re-run when a scenario file changes")
	fs.BoolVar(&f.sharedSession, "shared-session", false, "run every scenario in one browser context")
	fs.BoolVar(&f.headed, "headed", false, "show the browser window")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	return cmd
}

// overrides turns explicitly set flags into config options.
func (f flags) overrides(cmd *cobra.Command) []config.Option {
	var opts []config.Option
	changed := cmd.Flags().Changed
	if changed("target") {
		opts = append(opts, func(c *config.Config) { c.TargetURL = f.target })
	}
	if changed("driver") {
		opts = append(opts, func(c *config.Config) { c.Driver = f.driver })
	}
	if changed("artifacts") {
		opts = append(opts, func(c *config.Config) { c.ArtifactDir = f.artifacts })
	}
	if changed("metrics-file") {
		opts = append(opts, func(c *config.Config) { c.MetricsFile = f.metricsFile })
	}
	if changed("log-level") {
		opts = append(opts, func(c *config.Config) { c.LogLevel = f.logLevel })
	}
	if changed("shared-session") {
		opts = append(opts, func(c *config.Config) { c.SharedSession = f.sharedSession })
	}
	if changed("headed") {
		opts = append(opts, func(c *config.Config) { c.Headless = !f.headed })
	}
	return opts
}

func execute(ctx context.Context, cfg *config.Config, f flags, sel selection, out io.Writer) error {
	format, err := report.ParseFormat(f.format)
	if err != nil {
		return usageError{err}
	}
	logger := obs.Pkg("runner")

	if f.serve {
		srv := static.New(static.Config{Root: cfg.ServerRoot, Port: cfg.ServerPort})
		serveErr := make(chan error, 1)
		go func() { serveErr <- srv.Start(ctx) }()
		select {
		case <-srv.Ready():
		case err := <-serveErr:
			return err
		}
		cfg.TargetURL = srv.URL()
	}
	cfg.PrintStartupSummary()

	var upload *artifacts.S3Store
	if cfg.UploadsEnabled() {
		upload, err = artifacts.NewS3Store(ctx, artifacts.S3Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Bucket:          cfg.ArtifactBucket,
			UsePathStyle:    cfg.AWSEndpointS3 != "",
		})
		if err != nil {
			return err
		}
	}

	launcher, err := browser.NewLauncher(ctx, cfg.Driver, browser.Options{
		Headless:       cfg.Headless,
		RemoteURL:      cfg.ChromeRemoteURL,
		DefaultTimeout: cfg.ActionTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := launcher.Close(); err != nil {
			logger.Warn("launcher_close_failed", "error", err)
		}
	}()

	met := metrics.New()
	runOnce := func(ctx context.Context) ([]scenario.ExecutionResult, error) {
		scs, err := sel.Load()
		if err != nil {
			return nil, err
		}
		scs, err = scenario.ResolveAll(scs, cfg.TargetURL)
		if err != nil {
			return nil, err
		}

		runID := uuid.NewString()
		var store artifacts.Store = artifacts.NewLocalStore(cfg.ArtifactDir)
		if upload != nil {
			store = &artifacts.Mirror{Primary: store, Secondary: upload.WithPrefix("runs/" + runID)}
		}
		r := runner.New(runner.Options{
			Store:             store,
			ActionTimeout:     cfg.ActionTimeout,
			NavigationTimeout: cfg.NavigationTimeout,
			DialogTimeout:     cfg.DialogTimeout,
			ActionsPerSecond:  cfg.ActionsPerSecond,
			CaptureFinal:      cfg.CaptureFinal,
			ShareSession:      cfg.SharedSession,
			Metrics:           met,
			RunID:             runID,
		})
		results := r.RunAll(ctx, launcher, scs)
		met.MarkRunFinished(runID, time.Now())
		return results, writeOutputs(cfg, f, format, runID, results, met, out)
	}

	results, err := runOnce(ctx)
	if err != nil {
		return err
	}
	if !f.watch {
		if !report.AllPassed(results) {
			return errScenariosFailed
		}
		return nil
	}

	w, err := watch.New(sel.Files(), watch.DefaultDebounce)
	if err != nil {
		return err
	}
	logger.Info("watching_scenarios", "files", sel.Files())
	return w.Run(ctx, func(ctx context.Context) {
		if _, err := runOnce(ctx); err != nil {
			logger.Error("rerun_failed", "error", err)
			fmt.Fprintln(os.Stderr, "runner:", errs.MessageOf(err))
		}
	})
}

func writeOutputs(cfg *config.Config, f flags, format report.Format, runID string, results []scenario.ExecutionResult, met *metrics.Metrics, out io.Writer) error {
	text, err := report.Render(format, runID, results)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(out, text); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if f.html != "" {
		if err := report.WriteHTML(f.html, runID, results); err != nil {
			return err
		}
	}
	if cfg.MetricsFile != "" {
		if err := met.WriteTextfile(filepath.Clean(cfg.MetricsFile)); err != nil {
			return err
		}
	}
	return nil
}
