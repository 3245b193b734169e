// Package scoring maps a set of findings onto a deterministic 0-100 audit
// score and a pass/fail verdict.
package scoring

import "github.com/auditforge/auditforge/api/schemas"

// DefaultPassThreshold is the score at or above which an audit passes. It is
// the only caller-configurable parameter of the scorer.
const DefaultPassThreshold = 80

// Severity weights. These are global constants, not per-call configuration.
const (
	WeightCritical = 4
	WeightHigh     = 3
	WeightMedium   = 2
	WeightLow      = 1
	WeightInfo     = 0
)

// penaltyPerWeight is the score cost of each severity weight unit.
const penaltyPerWeight = 2

// Weight returns the fixed severity weight for a severity level. Unknown
// severities weigh the same as informational findings.
func Weight(s schemas.Severity) int {
	switch s {
	case schemas.SeverityCritical:
		return WeightCritical
	case schemas.SeverityHigh:
		return WeightHigh
	case schemas.SeverityMedium:
		return WeightMedium
	case schemas.SeverityLow:
		return WeightLow
	default:
		return WeightInfo
	}
}

// Score computes the audit score and verdict for a findings sequence. It is
// pure and order-independent: the same multiset of severities always yields
// the same result. An empty sequence scores 100; heavy findings saturate the
// score at 0, never negative. A negative passThreshold selects the default;
// an explicit 0 is honored and makes every audit pass.
func Score(findings []schemas.Finding, passThreshold int) (int, bool) {
	if passThreshold < 0 {
		passThreshold = DefaultPassThreshold
	}

	penalty := 0
	for _, f := range findings {
		penalty += Weight(f.Severity) * penaltyPerWeight
	}

	score := 100 - penalty
	if score < 0 {
		score = 0
	}
	return score, score >= passThreshold
}
