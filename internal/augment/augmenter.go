// Package augment enriches findings with AI-generated narrative text. Each
// finding gets three independent prompts (explanation, fixed code, test case);
// failed prompts degrade to diagnostics instead of failing the run.
package augment

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/auditforge/auditforge/api/schemas"
)

// Augmenter runs narrative generation against a TextGenerator capability.
type Augmenter struct {
	generator   schemas.TextGenerator
	maxInFlight int
	logger      *zap.Logger
}

// NewAugmenter creates an Augmenter. maxInFlight caps concurrent generation
// calls across all findings of one run.
func NewAugmenter(generator schemas.TextGenerator, maxInFlight int, logger *zap.Logger) *Augmenter {
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	return &Augmenter{
		generator:   generator,
		maxInFlight: maxInFlight,
		logger:      logger.Named("augmenter"),
	}
}

// promptSpec ties a narrative field to its request builder and result slot.
type promptSpec struct {
	field string
	build func(schemas.Finding) schemas.GenerationRequest
	slot  func(*schemas.Finding) *string
}

var promptSpecs = []promptSpec{
	{fieldExplanation, explanationRequest, func(f *schemas.Finding) *string { return &f.Explanation }},
	{fieldFixedCode, fixedCodeRequest, func(f *schemas.Finding) *string { return &f.FixedCode }},
	{fieldTestCase, testCaseRequest, func(f *schemas.Finding) *string { return &f.TestCase }},
}

// Augment returns enriched copies of the input findings in their original
// order; the input sequence is never mutated. Per-prompt calls run
// concurrently up to the in-flight cap. A failed call leaves its field unset
// and records a diagnostic; only caller cancellation aborts the stage.
func (a *Augmenter) Augment(ctx context.Context, findings []schemas.Finding) ([]schemas.Finding, []schemas.Diagnostic, error) {
	if len(findings) == 0 {
		return []schemas.Finding{}, nil, nil
	}

	// Each goroutine writes to its own finding's slot, so the only shared
	// state is the diagnostics slice.
	enriched := make([]schemas.Finding, len(findings))
	copy(enriched, findings)

	var (
		mu    sync.Mutex
		diags []schemas.Diagnostic
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxInFlight)

	for i := range enriched {
		// Prompts are built from the immutable input value, never from the
		// enriched copy that sibling goroutines are writing to.
		input := findings[i]
		for _, spec := range promptSpecs {
			i, spec := i, spec
			g.Go(func() error {
				text, err := a.generator.Generate(gctx, spec.build(input))
				if err != nil {
					if gctx.Err() != nil {
						// Caller cancellation: abort the whole stage.
						return gctx.Err()
					}
					a.logger.Warn("Narrative generation failed; leaving field unset",
						zap.String("finding_id", input.ID),
						zap.String("field", spec.field),
						zap.Error(err))
					mu.Lock()
					diags = append(diags, schemas.Diagnostic{
						Stage:     schemas.StageAugment,
						FindingID: input.ID,
						Field:     spec.field,
						Message:   err.Error(),
					})
					mu.Unlock()
					return nil
				}
				*spec.slot(&enriched[i]) = text
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("augmentation aborted: %w", err)
	}

	a.logger.Info("Augmentation complete",
		zap.Int("findings", len(enriched)),
		zap.Int("failed_prompts", len(diags)))

	return enriched, diags, nil
}
