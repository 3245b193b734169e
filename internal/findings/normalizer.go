// Package findings converts raw analyzer output into canonical Finding
// records. Normalization is a pure transformation: malformed records are
// dropped and reported as diagnostics, never as run failures.
package findings

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/scoring"
)

// Normalizer builds canonical Findings from analyzer-specific records.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger.Named("normalizer")}
}

// Normalize converts the analyzer's raw records into Findings. The returned
// sequence preserves analyzer emission order. A record missing its severity
// label or line reference is malformed: it is dropped, logged, and reported
// as a diagnostic while normalization of the remaining records continues.
func (n *Normalizer) Normalize(tool string, raw []schemas.RawFinding, sourceLines []string) ([]schemas.Finding, []schemas.Diagnostic) {
	out := make([]schemas.Finding, 0, len(raw))
	var diags []schemas.Diagnostic

	for i, r := range raw {
		if err := checkWellFormed(r); err != nil {
			n.logger.Warn("Dropping malformed analyzer record",
				zap.Int("index", i),
				zap.String("check", r.Check),
				zap.Error(err))
			diags = append(diags, schemas.Diagnostic{
				Stage:   schemas.StageNormalize,
				Message: fmt.Sprintf("record %d (%s): %v", i, r.Check, err),
			})
			continue
		}

		severity := schemas.ParseSeverity(r.Impact)

		f := schemas.Finding{
			// The index suffix keeps IDs unique within the run even when the
			// analyzer reuses its own identifiers.
			ID:             fmt.Sprintf("%s-%d", tool, i),
			Title:          title(r),
			Description:    strings.TrimSpace(r.Description),
			Severity:       severity,
			SeverityWeight: scoring.Weight(severity),
			Location: schemas.Location{
				Line:     r.Line,
				Function: r.Function,
			},
			CodeSnippet: snippet(r, sourceLines),
			CWE:         append([]string(nil), r.CWE...),
		}
		out = append(out, f)
	}

	return out, diags
}

func checkWellFormed(r schemas.RawFinding) error {
	if !r.HasSeverity || strings.TrimSpace(r.Impact) == "" {
		return fmt.Errorf("%w: missing severity label", schemas.ErrMalformedFinding)
	}
	if !r.HasLine || r.Line < 0 {
		return fmt.Errorf("%w: missing or negative line reference", schemas.ErrMalformedFinding)
	}
	return nil
}

func title(r schemas.RawFinding) string {
	if t := strings.TrimSpace(r.Check); t != "" {
		return t
	}
	return "Unclassified Finding"
}

// snippet extracts the referenced source line when the analyzer did not
// provide its own excerpt. Lines are 1-based; line 0 means "whole contract".
func snippet(r schemas.RawFinding, sourceLines []string) string {
	if r.CodeSnippet != "" {
		return r.CodeSnippet
	}
	if r.Line <= 0 || r.Line > len(sourceLines) {
		return ""
	}
	return strings.TrimSpace(sourceLines[r.Line-1])
}
