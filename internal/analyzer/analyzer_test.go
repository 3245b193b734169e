package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
)

const slitherSample = `{
  "success": true,
  "error": null,
  "results": {
    "detectors": [
      {
        "check": "reentrancy-eth",
        "impact": "High",
        "confidence": "Medium",
        "description": "Reentrancy in Vault.withdraw()",
        "elements": [
          {"name": "withdraw", "source_mapping": {"start": 312, "lines": [14, 15, 16]}}
        ]
      },
      {
        "check": "timestamp",
        "impact": "Low",
        "confidence": "Medium",
        "description": "Dangerous comparison with block.timestamp",
        "elements": []
      }
    ]
  }
}`

func TestParseSlitherOutput(t *testing.T) {
	result, err := parseSlitherOutput([]byte(slitherSample))
	require.NoError(t, err)
	require.Len(t, result.Findings, 2)

	first := result.Findings[0]
	assert.Equal(t, "reentrancy-eth", first.Check)
	assert.Equal(t, "High", first.Impact)
	assert.Equal(t, 14, first.Line, "first mapped line wins")
	assert.Equal(t, "withdraw", first.Function)
	assert.True(t, first.HasSeverity)

	second := result.Findings[1]
	assert.Equal(t, 0, second.Line, "detector without elements applies to the whole contract")
}

func TestParseSlitherOutputEmpty(t *testing.T) {
	result, err := parseSlitherOutput([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
}

func TestParseSlitherOutputFailure(t *testing.T) {
	_, err := parseSlitherOutput([]byte(`{"success": false, "error": "compilation failed"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compilation failed")

	_, err = parseSlitherOutput([]byte("not json"))
	require.Error(t, err)
}

func TestCheckHederaSpecific(t *testing.T) {
	t.Run("flags missing association, unsafe payable and raw timestamp", func(t *testing.T) {
		source := `contract C {
			function deposit() public payable {}
			function when() public view returns (uint) { return block.timestamp; }
		}`
		raw := checkHederaSpecific(source)
		require.Len(t, raw, 3)
		assert.Equal(t, "Missing Token Association", raw[0].Check)
		assert.Equal(t, "Unsafe HBAR Handling", raw[1].Check)
		assert.Equal(t, "High", raw[1].Impact)
		assert.Equal(t, "Improper Timestamp Usage", raw[2].Check)
	})

	t.Run("clean contract produces no hedera findings", func(t *testing.T) {
		source := `contract C {
			function setup() public { associateToken(token); }
			function deposit() public payable { require(msg.value > 0); }
		}`
		assert.Empty(t, checkHederaSpecific(source))
	})
}

func TestBuildArgs(t *testing.T) {
	// Slither's --detect is a single comma-separated option; repeating the
	// flag would make argparse keep only the last detector.
	s := NewSlither(Config{Detectors: []string{"reentrancy-eth", "tx-origin", "timestamp"}}, zap.NewNop())
	assert.Equal(t,
		[]string{"/tmp/Vault.sol", "--detect", "reentrancy-eth,tx-origin,timestamp", "--json", "-"},
		s.buildArgs("/tmp/Vault.sol"))

	s = NewSlither(Config{}, zap.NewNop())
	assert.Equal(t, []string{"/tmp/Vault.sol", "--json", "-"}, s.buildArgs("/tmp/Vault.sol"))
}

func TestAnalyzeMissingBinary(t *testing.T) {
	s := NewSlither(Config{Binary: "definitely-not-a-real-binary-xyz", Timeout: time.Second}, zap.NewNop())

	_, err := s.Analyze(context.Background(), "contract C {}", schemas.LanguageSolidity)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrAnalysis)
}

func TestAnalyzeHonorsCancellation(t *testing.T) {
	s := NewSlither(Config{Binary: "sleep", Timeout: 30 * time.Second}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Analyze(ctx, "contract C {}", schemas.LanguageSolidity)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, schemas.ErrAnalysisTimeout)
}
