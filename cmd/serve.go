package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/analyzer"
	"github.com/auditforge/auditforge/internal/audit"
	"github.com/auditforge/auditforge/internal/llmclient"
	"github.com/auditforge/auditforge/internal/observability"
	"github.com/auditforge/auditforge/internal/server"
	"github.com/auditforge/auditforge/internal/store"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the audit HTTP API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadedConfig()
			if err != nil {
				return err
			}

			generator, err := llmclient.NewClient(ctx, cfg.LLM, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize LLM client: %w", err)
			}

			orchestrator, err := audit.New(audit.Config{
				PassThreshold:  cfg.Audit.PassThreshold,
				MaxSourceBytes: cfg.Audit.MaxSourceBytes,
			}, analyzer.NewSlither(analyzer.Config{
				Binary:    cfg.Analyzer.Binary,
				Detectors: cfg.Analyzer.Detectors,
				Timeout:   cfg.Analyzer.Timeout,
			}, logger), generator, cfg.LLM.MaxInFlight, logger)
			if err != nil {
				return err
			}

			var repo schemas.Repository
			if cfg.Database.DSN == "" {
				logger.Warn("Database DSN is not set; audits will not be persisted")
			} else {
				connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
				defer cancel()

				pool, err := pgxpool.New(connectCtx, cfg.Database.DSN)
				if err != nil {
					return fmt.Errorf("failed to create database pool: %w", err)
				}
				defer pool.Close()

				s, err := store.New(connectCtx, pool, logger)
				if err != nil {
					return fmt.Errorf("failed to initialize store: %w", err)
				}
				repo = s
			}

			publisher, err := buildPublisher(cfg, logger, cfg.Publish.LedgerEndpoint != "")
			if err != nil {
				return err
			}

			handlers := server.NewHandlers(logger, orchestrator, publisher, repo)
			srv := server.New(cfg.Server, handlers, logger)

			logger.Info("Serving audit API", zap.String("addr", cfg.Server.Addr))
			return srv.Run(ctx)
		},
	}

	serveCmd.Flags().String("addr", ":8420", "listen address")
	return serveCmd
}
