// server serves a directory with client caching disabled, for hosting the
// Modulista build while scenarios run against it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuitang/modulista-e2e/internal/config"
	"github.com/kuitang/modulista-e2e/internal/errs"
	"github.com/kuitang/modulista-e2e/internal/obs"
	"github.com/kuitang/modulista-e2e/internal/static"
)

func main() {
	obs.Init()
	os.Exit(run(context.Background(), os.Args[1:]))
}

// usageError marks bad arguments or configuration (exit status 2).
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

func run(ctx context.Context, args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "server:", errs.MessageOf(err))
	var usage usageError
	if errors.As(err, &usage) {
		return 2
	}
	return errs.ExitCode(errs.CodeOf(err))
}

// parsePort parses the optional positional port argument.
func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

func newRootCmd() *cobra.Command {
	var (
		flagRoot     string
		flagHost     string
		flagConfig   string
		flagLogLevel string
	)

	cmd := &cobra.Command{
		Use:   "server [port]",
		Short: "serve a directory with caching disabled",
		Long: `Serves a directory over HTTP. Every response forbids client caching so
scenario runs always see the files currently on disk. Stops cleanly on
SIGINT or SIGTERM.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []config.Option
			if len(args) == 1 {
				port, err := parsePort(args[0])
				if err != nil {
					return usageError{err}
				}
				opts = append(opts, func(c *config.Config) { c.ServerPort = port })
			}
			if cmd.Flags().Changed("root") {
				opts = append(opts, func(c *config.Config) { c.ServerRoot = flagRoot })
			}
			if flagLogLevel != "" {
				opts = append(opts, func(c *config.Config) { c.LogLevel = flagLogLevel })
			}

			cfg, err := config.LoadConfig(flagConfig, opts...)
			if err != nil {
				return usageError{err}
			}
			obs.SetLevel(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := static.New(static.Config{Root: cfg.ServerRoot, Port: cfg.ServerPort, Host: flagHost})
			go func() {
				select {
				case <-srv.Ready():
					fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s at %s\n", cfg.ServerRoot, srv.URL())
				case <-ctx.Done():
				}
			}()
			if err := srv.Start(ctx); err != nil {
				obs.Pkg("server").Error("server_failed", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagRoot, "root", ".", "directory to serve (SERVER_ROOT)")
	cmd.Flags().StringVar(&flagHost, "host", "", "interface to listen on; empty listens on all")
	cmd.Flags().StringVar(&flagConfig, "config", "", "optional TOML config file")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	return cmd
}
