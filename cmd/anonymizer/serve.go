package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/lookup"
	"github.com/raaihank/text-anonymizer/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the anonymization HTTP API",
		Long: `Serve POST /v1/anonymize, GET /v1/lookups/{run_id}, /health, /info and a
websocket event feed. Pattern changes in the config file are applied without
a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config: 8080)")
	return cmd
}

func (a *app) serve(ctx context.Context, port int) error {
	var current atomic.Pointer[server.Server]

	cfg, err := config.LoadAndWatch(a.configPath,
		func(updated *config.Config) {
			srv := current.Load()
			if srv == nil {
				return
			}
			rules, err := anonymizer.CompileRules(updated.PatternConfig)
			if err != nil {
				a.log.Error("Ignoring reloaded patterns", zap.Error(err))
				return
			}
			srv.UpdateRules(updated.PatternConfig, rules)
		},
		func(err error) {
			if a.log != nil {
				a.log.Error("Config reload failed", zap.Error(err))
			}
		})
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if err := a.apply(cfg); err != nil {
		return err
	}
	defer a.log.Sync()

	sink, err := lookup.New(cfg.Lookup, a.log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create lookup sink: %w", err)
	}
	defer sink.Close()

	srv, err := server.New(cfg, a.rules, sink, a.log,
		server.WithVersion(version),
		server.WithGenerator(anonymizer.NewFakeGenerator(cfg.Generator.Seed)),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	current.Store(srv)

	a.log.Info("Starting text-anonymizer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			a.log.Error("Server error", zap.Error(err))
		}
		return err
	case <-ctx.Done():
		a.log.Info("Shutdown signal received")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			a.log.Error("Failed to shutdown server gracefully", zap.Error(err))
			return err
		}

		a.log.Info("Server shutdown complete")
		return nil
	}
}
