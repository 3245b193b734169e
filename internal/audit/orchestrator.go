// Package audit sequences one contract audit: validate, analyze, normalize,
// score, augment, assemble. It owns the request/response contract and the
// error semantics of the pipeline; the analyzer and text generator are
// injected capabilities.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/augment"
	"github.com/auditforge/auditforge/internal/findings"
	"github.com/auditforge/auditforge/internal/scoring"
)

// State identifies where a run is in its lifecycle. Failed is reachable only
// from Validating and Analyzing; later stages degrade gracefully instead of
// aborting.
type State string

const (
	StateValidating  State = "validating"
	StateAnalyzing   State = "analyzing"
	StateNormalizing State = "normalizing"
	StateScoring     State = "scoring"
	StateAugmenting  State = "augmenting"
	StateAssembled   State = "assembled"
	StateFailed      State = "failed"
)

// Config bounds a single run.
type Config struct {
	// PassThreshold is forwarded to the scorer. Zero means every audit
	// passes; negative values select the scorer's default (80).
	PassThreshold int
	// MaxSourceBytes rejects oversized submissions. Zero means 1 MiB.
	MaxSourceBytes int
}

// Orchestrator runs audits. Each Run call is independent; there is no shared
// mutable state across concurrent runs.
type Orchestrator struct {
	cfg        Config
	analyzer   schemas.Analyzer
	normalizer *findings.Normalizer
	augmenter  *augment.Augmenter
	logger     *zap.Logger
}

// New creates an Orchestrator with its dependencies provided as capabilities.
func New(cfg Config, analyzer schemas.Analyzer, generator schemas.TextGenerator, maxInFlight int, logger *zap.Logger) (*Orchestrator, error) {
	if analyzer == nil || generator == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = 1 << 20
	}
	return &Orchestrator{
		cfg:        cfg,
		analyzer:   analyzer,
		normalizer: findings.NewNormalizer(logger),
		augmenter:  augment.NewAugmenter(generator, maxInFlight, logger),
		logger:     logger.Named("orchestrator"),
	}, nil
}

// Run executes the full audit pipeline for one source submission and returns
// the assembled, immutable AuditRecord. Terminal failures (invalid input,
// analysis failure or timeout, cancellation) produce no record; normalization
// and augmentation failures degrade to diagnostics on the record.
func (o *Orchestrator) Run(ctx context.Context, source string, meta schemas.ContractMetadata) (*schemas.AuditRecord, error) {
	runID := uuid.New().String()
	logger := o.logger.With(zap.String("run_id", runID))

	// Validate.
	logger.Debug("Run state change", zap.String("state", string(StateValidating)))
	meta, err := o.validate(source, meta)
	if err != nil {
		return nil, err
	}

	// Analyze. The analyzer applies its own configured deadline; expiry is
	// terminal for the run.
	logger.Info("Starting analysis",
		zap.String("state", string(StateAnalyzing)),
		zap.String("contract", meta.Name),
		zap.String("source_hash", meta.SourceHash))
	analysis, err := o.analyzer.Analyze(ctx, source, meta.Language)
	if err != nil {
		return nil, o.classifyAnalysisError(ctx, logger, err)
	}

	// Normalize. Malformed records are dropped, never terminal.
	logger.Debug("Run state change", zap.String("state", string(StateNormalizing)))
	sourceLines := strings.Split(source, "\n")
	normalized, normDiags := o.normalizer.Normalize(analysis.Tool, analysis.Findings, sourceLines)

	// Score. Pure function of the normalized findings; augmentation cannot
	// change the verdict.
	logger.Debug("Run state change", zap.String("state", string(StateScoring)))
	score, passed := scoring.Score(normalized, o.cfg.PassThreshold)

	// Augment. Partial failure is an accepted terminal state for this stage.
	logger.Debug("Run state change", zap.String("state", string(StateAugmenting)))
	enriched, augDiags, err := o.augmenter.Augment(ctx, normalized)
	if err != nil {
		// The augmenter only errors on caller cancellation.
		return nil, fmt.Errorf("%w: %v", schemas.ErrCancelled, err)
	}

	// Assemble.
	record := &schemas.AuditRecord{
		RunID:            runID,
		ContractMetadata: meta,
		Findings:         enriched,
		Score:            score,
		Passed:           passed,
		Metrics:          analysis.Metrics,
		Diagnostics:      append(normDiags, augDiags...),
		CreatedAt:        time.Now().UTC(),
	}

	logger.Info("Audit assembled",
		zap.String("state", string(StateAssembled)),
		zap.Int("findings", len(record.Findings)),
		zap.Int("score", record.Score),
		zap.Bool("passed", record.Passed),
		zap.Int("diagnostics", len(record.Diagnostics)))

	return record, nil
}

func (o *Orchestrator) validate(source string, meta schemas.ContractMetadata) (schemas.ContractMetadata, error) {
	if strings.TrimSpace(source) == "" {
		return meta, fmt.Errorf("%w: contract source is empty", schemas.ErrInvalidInput)
	}
	if len(source) > o.cfg.MaxSourceBytes {
		return meta, fmt.Errorf("%w: contract source exceeds %d bytes", schemas.ErrInvalidInput, o.cfg.MaxSourceBytes)
	}

	switch meta.Language {
	case schemas.LanguageSolidity, schemas.LanguageVyper:
	case "":
		meta.Language = schemas.LanguageSolidity
	default:
		return meta, fmt.Errorf("%w: unsupported language %q", schemas.ErrInvalidInput, meta.Language)
	}

	if meta.Name == "" {
		meta.Name = "UntitledContract"
	}
	if meta.SourceHash == "" {
		meta.SourceHash = schemas.HashSource(source)
	}
	return meta, nil
}

// classifyAnalysisError maps an analyzer failure onto the run-level error
// taxonomy: cancellation, timeout, or plain analysis failure.
func (o *Orchestrator) classifyAnalysisError(ctx context.Context, logger *zap.Logger, err error) error {
	logger.Error("Analysis stage failed", zap.String("state", string(StateFailed)), zap.Error(err))

	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled:
		return fmt.Errorf("%w: %v", schemas.ErrCancelled, err)
	case errors.Is(err, schemas.ErrAnalysisTimeout), errors.Is(err, context.DeadlineExceeded):
		if errors.Is(err, schemas.ErrAnalysisTimeout) {
			return err
		}
		return fmt.Errorf("%w: %v", schemas.ErrAnalysisTimeout, err)
	case errors.Is(err, schemas.ErrAnalysis):
		return err
	default:
		return fmt.Errorf("%w: %v", schemas.ErrAnalysis, err)
	}
}
