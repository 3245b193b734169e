package reporting

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	toolName     = "AuditForge"
	toolInfoURI  = "https://github.com/auditforge/auditforge"
	sarifVersion = "2.1.0"
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer replaces characters not safe in SARIF rule IDs. Alphanumeric,
// underscore, and dot pass through; everything else collapses to a single hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SARIFRenderer emits an AuditRecord as a SARIF 2.1.0 log with one run. Each
// distinct finding title becomes a reporting rule; each finding becomes a
// result referencing that rule.
type SARIFRenderer struct{}

// Render builds the SARIF document for the record.
func (r *SARIFRenderer) Render(record *schemas.AuditRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot render a nil audit record")
	}

	driver := &sarif.ToolComponent{
		Name:           toolName,
		InformationURI: pString(toolInfoURI),
		Rules:          []*sarif.ReportingDescriptor{},
	}
	run := &sarif.Run{
		Tool:    &sarif.Tool{Driver: driver},
		Results: []*sarif.Result{},
	}

	rulesByTitle := make(map[string]string)
	ruleIDUsage := make(map[string]int)

	artifactURI := artifactName(record.ContractMetadata)

	for _, finding := range record.Findings {
		ruleID := ensureRule(driver, rulesByTitle, ruleIDUsage, finding)

		messageText := finding.Description
		if messageText == "" {
			messageText = finding.Title
		}

		run.Results = append(run.Results, &sarif.Result{
			RuleID:    ruleID,
			Message:   &sarif.Message{Text: pString(messageText)},
			Level:     mapSeverityToSARIFLevel(finding.Severity),
			Locations: createLocations(artifactURI, finding),
		})
	}

	log := &sarif.Log{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs:    []*sarif.Run{run},
	}
	return json.MarshalIndent(log, "", "  ")
}

func (r *SARIFRenderer) Format() string { return "sarif" }

// artifactName derives a source URI for locations from the contract metadata.
func artifactName(meta schemas.ContractMetadata) string {
	name := meta.Name
	if name == "" {
		name = "contract"
	}
	switch meta.Language {
	case schemas.LanguageVyper:
		return name + ".vy"
	default:
		return name + ".sol"
	}
}

// sanitizeRuleName creates a standardized base name for the rule ID.
func sanitizeRuleName(title string) string {
	if title == "" {
		return "UNNAMED-FINDING"
	}
	sanitized := strings.ToUpper(title)
	sanitized = ruleIDSanitizer.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		return "UNKNOWN-FINDING"
	}
	return sanitized
}

// ensureRule registers a rule definition for the finding title if one does not
// exist yet and returns its ID. Title collisions with differing content are
// disambiguated with a numeric suffix.
func ensureRule(driver *sarif.ToolComponent, rulesByTitle map[string]string, usage map[string]int, finding schemas.Finding) string {
	if ruleID, exists := rulesByTitle[finding.Title]; exists {
		return ruleID
	}

	baseRuleID := "AUDITFORGE-" + sanitizeRuleName(finding.Title)
	usageCount := usage[baseRuleID]
	usage[baseRuleID] = usageCount + 1

	finalRuleID := baseRuleID
	if usageCount > 0 {
		finalRuleID = fmt.Sprintf("%s-%d", baseRuleID, usageCount)
	}

	markdownHelp := fmt.Sprintf("**Vulnerability:** %s\n\n**Description:**\n%s\n\n**Recommendation:**\n%s",
		finding.Title, finding.Description, finding.Recommendation)

	rule := &sarif.ReportingDescriptor{
		ID:               finalRuleID,
		Name:             pString(finding.Title),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(finding.Title)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(finding.Description)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(finding.Recommendation),
			Markdown: pString(markdownHelp),
		},
		Properties: &sarif.PropertyBag{
			"tags":      []string{"security", "smart-contract"},
			"precision": "high",
			"CWE":       finding.CWE,
		},
	}
	driver.Rules = append(driver.Rules, rule)
	rulesByTitle[finding.Title] = finalRuleID
	return finalRuleID
}

// createLocations converts the finding location into SARIF location objects.
// Line 0 means the finding applies to the contract as a whole; no region is
// emitted in that case.
func createLocations(uri string, finding schemas.Finding) []*sarif.Location {
	physical := &sarif.PhysicalLocation{
		ArtifactLocation: &sarif.ArtifactLocation{URI: pString(uri)},
	}
	if finding.Location.Line > 0 {
		region := &sarif.Region{StartLine: pInt(finding.Location.Line)}
		if finding.Location.Column != nil {
			region.StartColumn = finding.Location.Column
		}
		if finding.CodeSnippet != "" {
			region.Snippet = &sarif.Artifact{Text: pString(finding.CodeSnippet)}
		}
		physical.Region = region
	}

	msgText := fmt.Sprintf("Finding located in %s", uri)
	if finding.Location.Function != "" {
		msgText = fmt.Sprintf("Finding located in function %s", finding.Location.Function)
	}

	return []*sarif.Location{{
		PhysicalLocation: physical,
		Message:          &sarif.Message{Text: pString(msgText)},
	}}
}

// mapSeverityToSARIFLevel converts finding severity to the SARIF standard.
func mapSeverityToSARIFLevel(severity schemas.Severity) sarif.Level {
	switch severity {
	case schemas.SeverityCritical, schemas.SeverityHigh:
		return sarif.LevelError
	case schemas.SeverityMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string { return &s }

// pInt returns a pointer to the given int value.
func pInt(i int) *int { return &i }
