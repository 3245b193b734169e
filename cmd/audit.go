package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/analyzer"
	"github.com/auditforge/auditforge/internal/audit"
	"github.com/auditforge/auditforge/internal/certify"
	"github.com/auditforge/auditforge/internal/config"
	"github.com/auditforge/auditforge/internal/ledger"
	"github.com/auditforge/auditforge/internal/llmclient"
	"github.com/auditforge/auditforge/internal/observability"
	"github.com/auditforge/auditforge/internal/publish"
	"github.com/auditforge/auditforge/internal/reporting"
)

// newAuditCmd creates and configures the `audit` command.
func newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit <contract-file>",
		Short: "Runs a full audit of a smart contract source file",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("publish.report_format", cmd.Flags().Lookup("format")); err != nil {
				return err
			}
			if err := viper.BindPFlag("audit.pass_threshold", cmd.Flags().Lookup("threshold")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadedConfig()
			if err != nil {
				return err
			}

			sourcePath := args[0]
			sourceBytes, err := os.ReadFile(sourcePath)
			if err != nil {
				return fmt.Errorf("failed to read contract file: %w", err)
			}

			meta := schemas.ContractMetadata{
				Name:     contractName(cmd, sourcePath),
				Language: languageFromPath(sourcePath),
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

			record, err := orchestrator.Run(ctx, string(sourceBytes), meta)
			if err != nil {
				return fmt.Errorf("audit failed: %w", err)
			}

			logger.Info("Audit complete",
				zap.String("contract", record.ContractMetadata.Name),
				zap.Int("score", record.Score),
				zap.Bool("passed", record.Passed),
				zap.Int("findings", len(record.Findings)),
			)

			publisher, err := buildPublisher(cfg, logger, viper.GetBool("publish_report"))
			if err != nil {
				return err
			}

			artifact, blob, err := publisher.Publish(ctx, record)
			if err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			if output == "" || output == "-" {
				fmt.Fprintln(cmd.OutOrStdout(), string(blob))
			} else if err := os.WriteFile(output, blob, 0o644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			if artifact.ViewURL != "" {
				logger.Info("Report stored on ledger", zap.String("view_url", artifact.ViewURL))
			}
			if artifact.CertificateRef != "" {
				logger.Info("Audit certificate issued")
			}
			if !record.Passed {
				return fmt.Errorf("contract scored %d, below the pass threshold", record.Score)
			}
			return nil
		},
	}

	auditCmd.Flags().StringP("output", "o", "-", "report output path ('-' for stdout)")
	auditCmd.Flags().StringP("format", "f", "json", "report format (json or sarif)")
	auditCmd.Flags().String("name", "", "contract name (defaults to the file name)")
	auditCmd.Flags().Int("threshold", 80, "minimum score for a passing audit")
	auditCmd.Flags().Bool("publish-report", false, "store the report on the configured ledger")
	_ = viper.BindPFlag("publish_report", auditCmd.Flags().Lookup("publish-report"))

	return auditCmd
}

// buildPublisher wires the optional ledger and certifier around the renderer.
func buildPublisher(cfg *config.Config, logger *zap.Logger, toLedger bool) (*publish.Publisher, error) {
	renderer, err := reporting.NewRenderer(cfg.Publish.ReportFormat)
	if err != nil {
		return nil, err
	}

	var ledgerClient schemas.Ledger
	if toLedger && cfg.Publish.LedgerEndpoint != "" {
		client, err := ledger.NewClient(cfg.Publish, logger)
		if err != nil {
			return nil, err
		}
		ledgerClient = client
	}

	var certifier schemas.Certifier
	if cfg.Publish.CertificateKey != "" {
		c, err := certify.New(cfg.Publish.CertificateKey, cfg.Publish.CertificateIssuer, logger)
		if err != nil {
			return nil, err
		}
		certifier = c
	}

	return publish.New(renderer, ledgerClient, certifier, logger)
}

func contractName(cmd *cobra.Command, sourcePath string) string {
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		return name
	}
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func languageFromPath(sourcePath string) schemas.Language {
	if strings.EqualFold(filepath.Ext(sourcePath), ".vy") {
		return schemas.LanguageVyper
	}
	return schemas.LanguageSolidity
}
