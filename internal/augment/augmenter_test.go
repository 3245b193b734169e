package augment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedGenerator answers prompts based on which narrative field the prompt
// text belongs to, optionally failing selected (findingID, field) pairs.
type scriptedGenerator struct {
	mu       sync.Mutex
	calls    int
	failures map[string]error // key: "<findingID>/<field>"
}

func (g *scriptedGenerator) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := extractID(req.UserPrompt)
	field := classify(req.UserPrompt)
	if err, ok := g.failures[id+"/"+field]; ok {
		return "", err
	}
	return field + " for " + id, nil
}

func extractID(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "Vulnerability ID: ") {
			return strings.TrimPrefix(line, "Vulnerability ID: ")
		}
	}
	return "unknown"
}

func classify(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "Explain"):
		return fieldExplanation
	case strings.HasPrefix(prompt, "Provide a fixed code"):
		return fieldFixedCode
	default:
		return fieldTestCase
	}
}

func sampleFindings(n int) []schemas.Finding {
	out := make([]schemas.Finding, n)
	for i := range out {
		out[i] = schemas.Finding{
			ID:          fmt.Sprintf("slither-%d", i),
			Title:       "reentrancy-eth",
			Description: "external call before state update",
			Severity:    schemas.SeverityHigh,
			CodeSnippet: "msg.sender.call{value: bal}(\"\");",
		}
	}
	return out
}

func TestAugmentPopulatesAllFields(t *testing.T) {
	gen := &scriptedGenerator{}
	a := NewAugmenter(gen, 4, zap.NewNop())

	in := sampleFindings(3)
	out, diags, err := a.Augment(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Empty(t, diags)
	assert.Equal(t, 9, gen.calls, "three prompts per finding")

	for i, f := range out {
		id := fmt.Sprintf("slither-%d", i)
		assert.Equal(t, id, f.ID, "original order preserved")
		assert.Equal(t, "explanation for "+id, f.Explanation)
		assert.Equal(t, "fixed_code for "+id, f.FixedCode)
		assert.Equal(t, "test_case for "+id, f.TestCase)
	}

	// The input sequence stays untouched.
	for _, f := range in {
		assert.Empty(t, f.Explanation)
		assert.Empty(t, f.FixedCode)
		assert.Empty(t, f.TestCase)
	}
}

func TestAugmentPartialFailureLeavesFieldUnset(t *testing.T) {
	gen := &scriptedGenerator{failures: map[string]error{
		"slither-1/" + fieldFixedCode: fmt.Errorf("%w: upstream 429", schemas.ErrGeneration),
	}}
	a := NewAugmenter(gen, 4, zap.NewNop())

	out, diags, err := a.Augment(context.Background(), sampleFindings(2))
	require.NoError(t, err, "a failed prompt never fails the stage")
	require.Len(t, out, 2)

	affected := out[1]
	assert.NotEmpty(t, affected.Explanation)
	assert.Empty(t, affected.FixedCode, "failed field must stay unset, no placeholder text")
	assert.NotEmpty(t, affected.TestCase)

	require.Len(t, diags, 1)
	assert.Equal(t, schemas.StageAugment, diags[0].Stage)
	assert.Equal(t, "slither-1", diags[0].FindingID)
	assert.Equal(t, fieldFixedCode, diags[0].Field)
}

func TestAugmentEmptyFindings(t *testing.T) {
	gen := &scriptedGenerator{}
	a := NewAugmenter(gen, 4, zap.NewNop())

	out, diags, err := a.Augment(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, diags)
	assert.Zero(t, gen.calls)
}

func TestAugmentCancellationAborts(t *testing.T) {
	gen := &scriptedGenerator{}
	a := NewAugmenter(gen, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := a.Augment(ctx, sampleFindings(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
