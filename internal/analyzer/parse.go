package analyzer

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/auditforge/auditforge/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// slitherReport mirrors the subset of Slither's --json output the pipeline
// depends on. Everything else is carried through opaquely.
type slitherReport struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Results struct {
		Detectors []slitherDetector `json:"detectors"`
	} `json:"results"`
	Metrics struct {
		Complexity int `json:"complexity"`
		Lines      int `json:"nLines"`
	} `json:"metrics"`
}

type slitherDetector struct {
	Check       string   `json:"check"`
	Impact      string   `json:"impact"`
	Confidence  string   `json:"confidence"`
	Description string   `json:"description"`
	CWE         []string `json:"cwe"`
	Elements    []struct {
		Name          string `json:"name"`
		SourceMapping struct {
			Start int   `json:"start"`
			Lines []int `json:"lines"`
		} `json:"source_mapping"`
	} `json:"elements"`
}

// parseSlitherOutput converts a raw Slither JSON report into raw finding
// records. An empty report (slither produced no output at all) is treated as
// zero findings, matching slither's behavior on clean contracts.
func parseSlitherOutput(out []byte) (*schemas.AnalysisResult, error) {
	result := &schemas.AnalysisResult{Tool: ToolName}

	if len(strings.TrimSpace(string(out))) == 0 {
		return result, nil
	}

	var report slitherReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, fmt.Errorf("parsing slither JSON output: %w", err)
	}
	if !report.Success && report.Error != "" {
		return nil, fmt.Errorf("slither reported failure: %s", report.Error)
	}

	for _, det := range report.Results.Detectors {
		raw := schemas.RawFinding{
			Check:       det.Check,
			Description: det.Description,
			Impact:      det.Impact,
			CWE:         det.CWE,
			HasSeverity: strings.TrimSpace(det.Impact) != "",
			HasLine:     true,
		}
		if len(det.Elements) > 0 {
			el := det.Elements[0]
			raw.Function = el.Name
			if len(el.SourceMapping.Lines) > 0 {
				raw.Line = el.SourceMapping.Lines[0]
			}
		}
		result.Findings = append(result.Findings, raw)
	}

	result.Metrics = schemas.ContractMetrics{
		Complexity: report.Metrics.Complexity,
		Lines:      report.Metrics.Lines,
	}

	return result, nil
}
