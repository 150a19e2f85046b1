package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MyRustyCage/pp-image-importer/config"
	"github.com/MyRustyCage/pp-image-importer/observability"
	"github.com/MyRustyCage/pp-image-importer/server"
	"github.com/MyRustyCage/pp-image-importer/services"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "importer",
		Short:         "Import remote images into a design document",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err = observability.NewLogger(cfg.LogLevel, verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newWorkerCmd(), newServeCmd(), newImportCmd())
	return root
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume import requests from the request queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateWorker(); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			worker, err := a.requestWorker(ctx)
			if err != nil {
				return err
			}
			worker.Start(ctx)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the websocket UI channel; also consume the request queue when configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			withWorker := cfg.InputQueueURL != ""
			if withWorker {
				if err := cfg.ValidateWorker(); err != nil {
					return err
				}
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			g, ctx := errgroup.WithContext(cmd.Context())
			srv := server.New(ctx, server.Options{
				Importer:       a.importer,
				Gatherer:       a.registry,
				AllowedOrigins: cfg.AllowedOrigins,
				Logger:         logger,
				Debug:          verbose,
			})
			g.Go(func() error {
				return srv.ListenAndServe(ctx, cfg.HTTPAddr)
			})

			if withWorker {
				g.Go(func() error {
					worker, err := a.requestWorker(ctx)
					if err != nil {
						return err
					}
					worker.Start(ctx)
					return nil
				})
			}
			return g.Wait()
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <url>",
		Short: "Import a single image URL and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.importer.ImportImage(cmd.Context(), args[0], services.NewLogNotifier(logger))
		},
	}
}
