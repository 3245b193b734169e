package schemas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// -- Finding Schemas --

// Severity represents the severity level of an audit finding, ranging from
// critical to informational. The values are lowercase to align with database ENUMs.
type Severity string

// Constants defining the standard severity levels for findings.
const (
	SeverityCritical Severity = "critical" // Represents a critical vulnerability.
	SeverityHigh     Severity = "high"     // Represents a high-severity vulnerability.
	SeverityMedium   Severity = "medium"   // Represents a medium-severity vulnerability.
	SeverityLow      Severity = "low"      // Represents a low-severity vulnerability.
	SeverityInfo     Severity = "info"     // Represents an informational finding.
)

// ParseSeverity maps an analyzer-specific severity label onto the five-value
// enum. Unrecognized labels map to SeverityInfo rather than failing the run.
func ParseSeverity(label string) Severity {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Location pinpoints where in the contract source a finding was observed.
type Location struct {
	Line     int    `json:"line"`
	Column   *int   `json:"column,omitempty"`
	Function string `json:"function,omitempty"`
}

// Finding is one normalized static-analysis result. It is created by the
// normalizer, enriched by the augmenter, and immutable once the AuditRecord
// containing it is assembled. The narrative fields (Recommendation,
// Explanation, FixedCode, TestCase) stay empty until augmentation completes
// for the finding; a failed generation leaves the field unset.
type Finding struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Severity       Severity `json:"severity"`
	SeverityWeight int      `json:"severity_weight"`
	Location       Location `json:"location"`
	CodeSnippet    string   `json:"code_snippet,omitempty"`
	CWE            []string `json:"cwe,omitempty"`

	Recommendation string `json:"recommendation,omitempty"`
	Explanation    string `json:"explanation,omitempty"`
	FixedCode      string `json:"fixed_code,omitempty"`
	TestCase       string `json:"test_case,omitempty"`
}

// RawFinding is one analyzer-emitted record before normalization. Only the
// severity label and line reference are load-bearing; everything else is
// passed through as opaque metadata.
type RawFinding struct {
	Check       string          `json:"check"`
	Description string          `json:"description"`
	Impact      string          `json:"impact"`
	Line        int             `json:"line"`
	Function    string          `json:"function,omitempty"`
	CodeSnippet string          `json:"code_snippet,omitempty"`
	CWE         []string        `json:"cwe,omitempty"`
	Extra       json.RawMessage `json:"extra,omitempty"`

	// HasSeverity and HasLine report whether the analyzer actually emitted the
	// two required fields. A record missing either is malformed and dropped.
	HasSeverity bool `json:"-"`
	HasLine     bool `json:"-"`
}

// -- Audit Record Schemas --

// Language identifies the contract source language.
type Language string

const (
	LanguageSolidity Language = "solidity"
	LanguageVyper    Language = "vyper"
)

// ContractMetadata describes the contract under audit.
type ContractMetadata struct {
	Name       string   `json:"name"`
	Language   Language `json:"language"`
	SourceHash string   `json:"source_hash"`
}

// ContractMetrics carries coarse analyzer-reported metrics about the source.
type ContractMetrics struct {
	Complexity int `json:"complexity"`
	Lines      int `json:"loc"`
}

// DiagnosticStage identifies the pipeline stage that produced a diagnostic.
type DiagnosticStage string

const (
	StageNormalize DiagnosticStage = "normalize"
	StageAugment   DiagnosticStage = "augment"
)

// Diagnostic records a recovered per-item failure (a dropped malformed record,
// a narrative prompt that failed). Diagnostics live on the AuditRecord, not on
// the Finding, so Finding stays a failure-free value type.
type Diagnostic struct {
	Stage     DiagnosticStage `json:"stage"`
	FindingID string          `json:"finding_id,omitempty"`
	Field     string          `json:"field,omitempty"`
	Message   string          `json:"message"`
}

// AuditRecord is the immutable outcome of one full orchestration run. Score
// and Passed are pure functions of Findings at assembly time; re-deriving them
// from the same findings sequence always yields the same values.
type AuditRecord struct {
	RunID            string           `json:"run_id"`
	ContractMetadata ContractMetadata `json:"contract_metadata"`
	Findings         []Finding        `json:"findings"`
	Score            int              `json:"score"`
	Passed           bool             `json:"passed"`
	Metrics          ContractMetrics  `json:"contract_metrics"`
	Diagnostics      []Diagnostic     `json:"diagnostics,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// PublishedArtifact references the externally stored outputs of a publish
// call. CertificateRef is empty for audits that did not pass.
type PublishedArtifact struct {
	RecordRef      string    `json:"record_ref"`
	ReportRef      string    `json:"report_ref"`
	CertificateRef string    `json:"certificate_ref,omitempty"`
	ViewURL        string    `json:"view_url,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
}

// HashSource returns the content-addressed digest of submitted contract source.
func HashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
