package schemas

import "errors"

// Failure modes of the audit pipeline and its capabilities. Call sites wrap
// these with fmt.Errorf("...: %w", ...) so errors.Is works through the chain.
var (
	// ErrInvalidInput rejects a caller error (empty or oversized source). No
	// partial work is performed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAnalysis is terminal for a run: the analyzer tool crashed or exited
	// abnormally with no usable output.
	ErrAnalysis = errors.New("analysis failed")

	// ErrAnalysisTimeout is terminal for a run: the analyzer exceeded its
	// configured deadline.
	ErrAnalysisTimeout = errors.New("analysis timed out")

	// ErrMalformedFinding marks a single analyzer record that cannot be
	// normalized. It is recovered locally: the record is dropped and logged.
	ErrMalformedFinding = errors.New("malformed finding")

	// ErrGeneration marks a single failed text-generation call. It is
	// recovered locally: the field stays unset and a diagnostic is recorded.
	ErrGeneration = errors.New("generation failed")

	// ErrPublish is terminal for a publish call only. The already-assembled
	// AuditRecord remains valid and re-publishable.
	ErrPublish = errors.New("publish failed")

	// ErrCancelled reports a caller-initiated cancellation. No AuditRecord is
	// produced. Distinct from ErrAnalysisTimeout.
	ErrCancelled = errors.New("audit cancelled")
)
