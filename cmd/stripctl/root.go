package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreman2200/stripctl/internal/app"
	"github.com/coreman2200/stripctl/internal/config"
	"github.com/coreman2200/stripctl/internal/store"
	"github.com/coreman2200/stripctl/model"
)

const version = "stripctl v0.3.0"

type options struct {
	configPath string
	addr       string
	driver     string
	simOnly    bool
	writePath  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "stripctl",
		Short:         "stripctl drives a segmented pixel strip and a status LED.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "stripctl.yaml", "path to stripctl.yaml")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Restore the layout and serve the control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	serve.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides http.addr)")
	serve.Flags().StringVar(&opts.driver, "driver", "", "strip driver: spi | console | sim")
	serve.Flags().BoolVar(&opts.simOnly, "sim-only", false, "force simulation (no hardware output)")

	segments := &cobra.Command{
		Use:   "segments",
		Short: "Print the persisted segment layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return printSegments(cmd, cfg)
		},
	}

	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if opts.writePath != "" {
				if err := config.Save(opts.writePath, cfg); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.writePath)
				return nil
			}
			b, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}

	cfgCmd.Flags().StringVar(&opts.writePath, "write", "", "write the effective configuration to this file instead of printing it")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of stripctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	root.AddCommand(serve, segments, cfgCmd, versionCmd)
	return root
}

// loadConfig layers the file, the environment and then flags over the
// defaults. A missing file is not an error.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("path", opts.configPath).Msg("config not found; using defaults")
		cfg = config.Default()
	case err != nil:
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if opts.addr != "" {
		cfg.HTTP.Addr = opts.addr
	}
	if opts.driver != "" {
		cfg.Strip.Driver = opts.driver
	}
	if opts.simOnly {
		cfg.Strip.Driver = "sim"
		cfg.Status.Driver = "sim"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Log.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func runServe(ctx context.Context, opts *options) error {
	setupLogging(config.Default())
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	core, err := app.InitCore(cfg, app.OpenDevices(cfg, log.Logger), log.Logger)
	if err != nil {
		return err
	}
	if err := core.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      core.Control.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("driver", cfg.Strip.Driver).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()
	core.SetBoardState(app.Ready)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-serveErr:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return errors.Join(err, core.Stop(shutdownCtx))
}

func printSegments(cmd *cobra.Command, cfg *config.Config) error {
	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close(st)

	lengths := make([]int, cfg.Strip.Segments)
	for i := range lengths {
		n, err := st.SegmentLength(i)
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		lengths[i] = n
	}
	l := model.LayoutOf(lengths...)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-6s %-7s %s\n", "INDEX", "LENGTH", "RANGE")
	for i, r := range l.Ranges() {
		rng := "-"
		if !r.Empty() {
			rng = r.String()
		}
		fmt.Fprintf(out, "%-6d %-7d %s\n", i, r.Len(), rng)
	}
	fmt.Fprintf(out, "total %d pixels\n", l.Total())
	return nil
}
