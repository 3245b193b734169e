// Package reporting renders assembled audit records into report blobs. Two
// formats are supported: a self-contained JSON document and SARIF 2.1.0 for
// code-scanning tooling.
package reporting

import (
	"encoding/json"
	"fmt"

	"github.com/auditforge/auditforge/api/schemas"
)

// NewRenderer creates a renderer for the named format.
func NewRenderer(format string) (schemas.ReportRenderer, error) {
	switch format {
	case "json", "":
		return &JSONRenderer{}, nil
	case "sarif":
		return &SARIFRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// JSONRenderer emits the audit record itself, indented, plus a severity
// summary. This is the canonical machine-readable report.
type JSONRenderer struct{}

type jsonReport struct {
	*schemas.AuditRecord
	Summary map[string]int `json:"summary"`
}

// Render serializes the record. The record is read-only here; rendering the
// same record twice yields identical bytes.
func (r *JSONRenderer) Render(record *schemas.AuditRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot render a nil audit record")
	}
	report := jsonReport{
		AuditRecord: record,
		Summary:     summarize(record.Findings),
	}
	return json.MarshalIndent(report, "", "  ")
}

func (r *JSONRenderer) Format() string { return "json" }

func summarize(findings []schemas.Finding) map[string]int {
	summary := make(map[string]int)
	summary["total"] = len(findings)
	for _, f := range findings {
		summary[string(f.Severity)]++
	}
	return summary
}
