package schemas

import "context"

// This file defines the capability interfaces the audit core consumes. The
// core depends on these contracts, never on a concrete vendor SDK shape, so
// every external collaborator (static analyzer, text generator, ledger,
// certifier) is injected at construction time.

// AnalysisResult is everything an Analyzer reports for one source submission.
type AnalysisResult struct {
	Tool     string
	Findings []RawFinding
	Metrics  ContractMetrics
}

// Analyzer runs static analysis on contract source. Implementations must honor
// ctx cancellation and deadlines; a hung tool surfaces as ErrAnalysisTimeout.
type Analyzer interface {
	Analyze(ctx context.Context, source string, language Language) (*AnalysisResult, error)
}

// GenerationOptions tunes a single text-generation call.
type GenerationOptions struct {
	Temperature float32
	MaxTokens   int
}

// GenerationRequest is one prompt sent to a text-generation collaborator.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      GenerationOptions
}

// TextGenerator is a stateless, synchronous text-completion capability.
// Failures are reported as errors wrapping ErrGeneration.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// ReportRenderer turns an assembled AuditRecord into an opaque report blob.
type ReportRenderer interface {
	Render(record *AuditRecord) ([]byte, error)
	// Format names the rendered format, e.g. "json" or "sarif".
	Format() string
}

// Ledger stores a rendered report blob on external storage and returns an
// opaque, retrievable reference.
type Ledger interface {
	Store(ctx context.Context, blob []byte) (string, error)
	// ViewURL maps a stored reference to a human-viewable URL, if the backing
	// service exposes one. An empty string is valid.
	ViewURL(ref string) string
}

// Certifier issues a certificate for a passed audit and returns its reference.
type Certifier interface {
	Issue(ctx context.Context, record *AuditRecord) (string, error)
}

// Repository persists assembled audit records and published artifacts.
// Records are append-only; nothing is ever deleted during normal operation.
type Repository interface {
	SaveRecord(ctx context.Context, record *AuditRecord) error
	GetRecord(ctx context.Context, sourceHash string) (*AuditRecord, error)
	SaveArtifact(ctx context.Context, artifact *PublishedArtifact) error
}
