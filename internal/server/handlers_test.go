package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/audit"
	"github.com/auditforge/auditforge/internal/publish"
	"github.com/auditforge/auditforge/internal/reporting"
	"github.com/auditforge/auditforge/internal/store"
)

// stubAnalyzer returns a fixed set of raw findings.
type stubAnalyzer struct {
	findings []schemas.RawFinding
	err      error
}

func (a *stubAnalyzer) Analyze(ctx context.Context, source string, language schemas.Language) (*schemas.AnalysisResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &schemas.AnalysisResult{
		Tool:     "slither",
		Findings: a.findings,
		Metrics:  schemas.ContractMetrics{Complexity: 5, Lines: 10},
	}, nil
}

// stubGenerator answers every prompt with canned text.
type stubGenerator struct{}

func (g *stubGenerator) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	return "generated narrative", nil
}

// memoryRepo is an in-memory Repository keyed by source hash.
type memoryRepo struct {
	records   map[string]*schemas.AuditRecord
	artifacts []*schemas.PublishedArtifact
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]*schemas.AuditRecord)}
}

func (m *memoryRepo) SaveRecord(ctx context.Context, record *schemas.AuditRecord) error {
	m.records[record.ContractMetadata.SourceHash] = record
	return nil
}

func (m *memoryRepo) GetRecord(ctx context.Context, sourceHash string) (*schemas.AuditRecord, error) {
	record, ok := m.records[sourceHash]
	if !ok {
		return nil, fmt.Errorf("%w: source hash %s", store.ErrNotFound, sourceHash)
	}
	return record, nil
}

func (m *memoryRepo) SaveArtifact(ctx context.Context, artifact *schemas.PublishedArtifact) error {
	m.artifacts = append(m.artifacts, artifact)
	return nil
}

type fakeLedger struct{}

func (fakeLedger) Store(ctx context.Context, blob []byte) (string, error) { return "0.0.55", nil }
func (fakeLedger) ViewURL(ref string) string {
	return "https://hashscan.io/testnet/file/" + ref
}

func newTestRouter(t *testing.T, analyzer schemas.Analyzer, repo schemas.Repository) chi.Router {
	t.Helper()
	logger := zap.NewNop()

	orchestrator, err := audit.New(audit.Config{PassThreshold: 80}, analyzer, &stubGenerator{}, 2, logger)
	require.NoError(t, err)

	renderer, err := reporting.NewRenderer("json")
	require.NoError(t, err)
	publisher, err := publish.New(renderer, fakeLedger{}, nil, logger)
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandlers(logger, orchestrator, publisher, repo).RegisterRoutes(r)
	return r
}

func rawFinding(check, impact string, line int) schemas.RawFinding {
	return schemas.RawFinding{
		Check:       check,
		Description: "desc of " + check,
		Impact:      impact,
		Line:        line,
		HasSeverity: true,
		HasLine:     true,
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &stubAnalyzer{}, newMemoryRepo())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSubmitAudit(t *testing.T) {
	analyzer := &stubAnalyzer{findings: []schemas.RawFinding{
		rawFinding("reentrancy-eth", "High", 12),
	}}
	repo := newMemoryRepo()
	router := newTestRouter(t, analyzer, repo)

	body, _ := json.Marshal(map[string]string{
		"contract_name": "Vault",
		"language":      "solidity",
		"source":        "contract Vault {}",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/audits", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var record schemas.AuditRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "Vault", record.ContractMetadata.Name)
	assert.Equal(t, 94, record.Score)
	assert.True(t, record.Passed)
	require.Len(t, record.Findings, 1)
	assert.Equal(t, "generated narrative", record.Findings[0].Explanation)

	// The record was persisted and is now retrievable.
	assert.Contains(t, repo.records, record.ContractMetadata.SourceHash)
}

func TestSubmitAuditRejectsEmptySource(t *testing.T) {
	router := newTestRouter(t, &stubAnalyzer{}, newMemoryRepo())

	body, _ := json.Marshal(map[string]string{"contract_name": "Vault", "source": ""})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/audits", bytes.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAuditAnalyzerTimeout(t *testing.T) {
	analyzer := &stubAnalyzer{err: fmt.Errorf("slither: %w", schemas.ErrAnalysisTimeout)}
	router := newTestRouter(t, analyzer, newMemoryRepo())

	body, _ := json.Marshal(map[string]string{"source": "contract C {}"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/audits", bytes.NewReader(body)))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestGetAudit(t *testing.T) {
	analyzer := &stubAnalyzer{findings: []schemas.RawFinding{rawFinding("tx-origin", "Medium", 3)}}
	repo := newMemoryRepo()
	router := newTestRouter(t, analyzer, repo)

	body, _ := json.Marshal(map[string]string{"source": "contract C {}"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/audits", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	hash := schemas.HashSource("contract C {}")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audits/"+hash, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var record schemas.AuditRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, hash, record.ContractMetadata.SourceHash)
}

func TestGetAuditNotFound(t *testing.T) {
	router := newTestRouter(t, &stubAnalyzer{}, newMemoryRepo())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audits/deadbeef", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAuditWithoutStore(t *testing.T) {
	router := newTestRouter(t, &stubAnalyzer{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audits/deadbeef", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPublishAudit(t *testing.T) {
	analyzer := &stubAnalyzer{}
	repo := newMemoryRepo()
	router := newTestRouter(t, analyzer, repo)

	body, _ := json.Marshal(map[string]string{"source": "contract C {}"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/audits", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	hash := schemas.HashSource("contract C {}")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/audits/"+hash+"/publish", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var artifact schemas.PublishedArtifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))
	assert.Equal(t, "0.0.55", artifact.ReportRef)
	assert.Equal(t, "https://hashscan.io/testnet/file/0.0.55", artifact.ViewURL)
	require.Len(t, repo.artifacts, 1)

	// Publishing is repeatable; the stored record is untouched.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/audits/"+hash+"/publish", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, repo.artifacts, 2)
}

func TestPublishAuditNotFound(t *testing.T) {
	router := newTestRouter(t, &stubAnalyzer{}, newMemoryRepo())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/audits/deadbeef/publish", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
