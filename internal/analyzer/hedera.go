package analyzer

import (
	"strings"

	"github.com/auditforge/auditforge/api/schemas"
)

// Hedera-specific source checks. Slither knows nothing about HTS token
// association or consensus timestamps, so these run as plain source scans on
// top of the detector output. Line 0 means the check applies to the contract
// as a whole.

func checkHederaSpecific(source string) []schemas.RawFinding {
	var out []schemas.RawFinding

	if !strings.Contains(source, "associateToken") && !strings.Contains(source, "TokenAssociate") {
		out = append(out, schemas.RawFinding{
			Check:       "Missing Token Association",
			Description: "Contract doesn't implement token association logic which is required for HTS tokens",
			Impact:      "Medium",
			CWE:         []string{"CWE-362"},
			HasSeverity: true,
			HasLine:     true,
		})
	}

	if strings.Contains(source, "payable") && !strings.Contains(source, "require(msg.value") {
		out = append(out, schemas.RawFinding{
			Check:       "Unsafe HBAR Handling",
			Description: "Payable function without HBAR amount validation could lead to unexpected behavior",
			Impact:      "High",
			CWE:         []string{"CWE-840"},
			HasSeverity: true,
			HasLine:     true,
		})
	}

	if strings.Contains(source, "block.timestamp") && !strings.Contains(source, "ConsensusTimestamp") {
		out = append(out, schemas.RawFinding{
			Check:       "Improper Timestamp Usage",
			Description: "Using block.timestamp instead of Hedera's ConsensusTimestamp may lead to inconsistencies",
			Impact:      "Medium",
			CWE:         []string{"CWE-829"},
			HasSeverity: true,
			HasLine:     true,
		})
	}

	return out
}
