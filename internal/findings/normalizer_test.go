package findings

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
)

func rawFinding(check, impact string, line int) schemas.RawFinding {
	return schemas.RawFinding{
		Check:       check,
		Description: "description of " + check,
		Impact:      impact,
		Line:        line,
		HasSeverity: impact != "",
		HasLine:     true,
	}
}

func TestNormalizeAssignsSequentialIDs(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	raw := []schemas.RawFinding{
		rawFinding("reentrancy-eth", "High", 12),
		rawFinding("reentrancy-eth", "High", 30),
		rawFinding("timestamp", "Low", 4),
	}

	out, diags := n.Normalize("slither", raw, nil)
	require.Len(t, out, 3)
	assert.Empty(t, diags)

	assert.Equal(t, "slither-0", out[0].ID)
	assert.Equal(t, "slither-1", out[1].ID)
	assert.Equal(t, "slither-2", out[2].ID)

	// Emission order is preserved, not re-sorted by severity.
	assert.Equal(t, 12, out[0].Location.Line)
	assert.Equal(t, 30, out[1].Location.Line)
	assert.Equal(t, 4, out[2].Location.Line)
}

func TestNormalizeSeverityMapping(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	testCases := []struct {
		impact     string
		want       schemas.Severity
		wantWeight int
	}{
		{"Critical", schemas.SeverityCritical, 4},
		{"High", schemas.SeverityHigh, 3},
		{"Medium", schemas.SeverityMedium, 2},
		{"low", schemas.SeverityLow, 1},
		{"Informational", schemas.SeverityInfo, 0},
		{"Optimization", schemas.SeverityInfo, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.impact, func(t *testing.T) {
			out, diags := n.Normalize("slither", []schemas.RawFinding{rawFinding("c", tc.impact, 1)}, nil)
			require.Len(t, out, 1)
			assert.Empty(t, diags)
			assert.Equal(t, tc.want, out[0].Severity)
			assert.Equal(t, tc.wantWeight, out[0].SeverityWeight)
		})
	}
}

func TestNormalizeDropsMalformedRecords(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	missingSeverity := rawFinding("no-severity", "", 3)
	missingLine := rawFinding("no-line", "High", 0)
	missingLine.HasLine = false

	raw := []schemas.RawFinding{
		rawFinding("ok-one", "High", 7),
		missingSeverity,
		missingLine,
		rawFinding("ok-two", "Informational", 9),
	}

	out, diags := n.Normalize("slither", raw, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "ok-one", out[0].Title)
	assert.Equal(t, "ok-two", out[1].Title)

	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, schemas.StageNormalize, d.Stage)
	}
	assert.Contains(t, diags[0].Message, "missing severity label")
	assert.Contains(t, diags[1].Message, "line reference")

	// IDs keep the original emission index, so survivors are not renumbered
	// relative to the raw sequence.
	assert.Equal(t, "slither-0", out[0].ID)
	assert.Equal(t, "slither-3", out[1].ID)
}

func TestNormalizeIsRepeatable(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	raw := []schemas.RawFinding{
		rawFinding("unchecked-transfer", "Medium", 2),
		rawFinding("tx-origin", "Low", 5),
	}
	lines := []string{"contract C {", "  function f() public {}", "", "", "  // five"}

	first, _ := n.Normalize("slither", raw, lines)
	second, _ := n.Normalize("slither", raw, lines)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("normalization is not idempotent (-first +second):\n%s", diff)
	}
}

func TestNormalizeSnippetExtraction(t *testing.T) {
	n := NewNormalizer(zap.NewNop())
	lines := []string{"pragma solidity ^0.8.0;", "contract Vault {", "  function drain() external {"}

	out, _ := n.Normalize("slither", []schemas.RawFinding{rawFinding("c", "High", 3)}, lines)
	require.Len(t, out, 1)
	assert.Equal(t, "function drain() external {", out[0].CodeSnippet)

	// Out-of-range lines yield no snippet rather than panicking.
	out, _ = n.Normalize("slither", []schemas.RawFinding{rawFinding("c", "High", 99)}, lines)
	require.Len(t, out, 1)
	assert.Empty(t, out[0].CodeSnippet)
}
