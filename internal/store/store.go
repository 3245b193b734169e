// Package store persists audit records, their findings, and published
// artifacts in PostgreSQL. Records are append-only: submitting the same
// contract source again produces a new record rather than overwriting the
// old one, and GetRecord returns the most recent run for a source hash.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
)

// ErrNotFound reports that no audit record exists for the requested source hash.
var ErrNotFound = errors.New("audit record not found")

// DBPool abstracts pgxpool.Pool for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides the PostgreSQL implementation of the Repository interface.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// SaveRecord persists the record and its findings inside one transaction.
func (s *Store) SaveRecord(ctx context.Context, record *schemas.AuditRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save a nil audit record")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	diagnostics, err := json.Marshal(record.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	if record.Diagnostics == nil {
		diagnostics = json.RawMessage("[]")
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO audit_records (run_id, contract_name, language, source_hash, score, passed, complexity, loc, diagnostics, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
    `,
		record.RunID, record.ContractMetadata.Name, string(record.ContractMetadata.Language),
		record.ContractMetadata.SourceHash, record.Score, record.Passed,
		record.Metrics.Complexity, record.Metrics.Lines,
		diagnostics, record.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	if len(record.Findings) > 0 {
		if err := s.persistFindings(ctx, tx, record.RunID, record.Findings); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) persistFindings(ctx context.Context, tx pgx.Tx, runID string, findings []schemas.Finding) error {
	rows := make([][]interface{}, len(findings))
	for i, f := range findings {
		// position records the analyzer emission order. Finding IDs are TEXT
		// ("slither-10" sorts before "slither-2"), so they cannot be used to
		// restore ordering on read.
		rows[i] = []interface{}{
			f.ID, runID, i, f.Title, f.Description,
			string(f.Severity), f.SeverityWeight,
			f.Location.Line, f.Location.Column, f.Location.Function,
			f.CodeSnippet, f.CWE,
			f.Recommendation, f.Explanation, f.FixedCode, f.TestCase,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"findings"},
		[]string{"id", "run_id", "position", "title", "description", "severity", "severity_weight", "line", "col", "function", "code_snippet", "cwe", "recommendation", "explanation", "fixed_code", "test_case"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy findings: %w", err)
	}
	if int(copyCount) != len(findings) {
		return fmt.Errorf("mismatch in copied findings count: expected %d, got %d", len(findings), copyCount)
	}
	return nil
}

// GetRecord fetches the most recent audit record for the given source hash,
// findings included. Returns ErrNotFound when the source has never been audited.
func (s *Store) GetRecord(ctx context.Context, sourceHash string) (*schemas.AuditRecord, error) {
	record := &schemas.AuditRecord{}
	var language string
	var diagnostics []byte

	err := s.pool.QueryRow(ctx, `
        SELECT run_id, contract_name, language, source_hash, score, passed, complexity, loc, diagnostics, created_at
        FROM audit_records
        WHERE source_hash = $1
        ORDER BY created_at DESC
        LIMIT 1;
    `, sourceHash).Scan(
		&record.RunID, &record.ContractMetadata.Name, &language,
		&record.ContractMetadata.SourceHash, &record.Score, &record.Passed,
		&record.Metrics.Complexity, &record.Metrics.Lines,
		&diagnostics, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: source hash %s", ErrNotFound, sourceHash)
		}
		return nil, fmt.Errorf("failed to query audit record: %w", err)
	}
	record.ContractMetadata.Language = schemas.Language(language)

	if len(diagnostics) > 0 {
		if err := json.Unmarshal(diagnostics, &record.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
		}
	}

	findings, err := s.getFindings(ctx, record.RunID)
	if err != nil {
		return nil, err
	}
	record.Findings = findings

	return record, nil
}

func (s *Store) getFindings(ctx context.Context, runID string) ([]schemas.Finding, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, title, description, severity, severity_weight, line, col, function, code_snippet, cwe, recommendation, explanation, fixed_code, test_case
        FROM findings
        WHERE run_id = $1
        ORDER BY position ASC;
    `, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var findings []schemas.Finding
	for rows.Next() {
		var f schemas.Finding
		var severityStr string

		err := rows.Scan(
			&f.ID, &f.Title, &f.Description,
			&severityStr, &f.SeverityWeight,
			&f.Location.Line, &f.Location.Column, &f.Location.Function,
			&f.CodeSnippet, &f.CWE,
			&f.Recommendation, &f.Explanation, &f.FixedCode, &f.TestCase,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}

		f.Severity = schemas.Severity(severityStr)
		findings = append(findings, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return findings, nil
}

// SaveArtifact records a successful publish.
func (s *Store) SaveArtifact(ctx context.Context, artifact *schemas.PublishedArtifact) error {
	if artifact == nil {
		return fmt.Errorf("cannot save a nil artifact")
	}
	_, err := s.pool.Exec(ctx, `
        INSERT INTO published_artifacts (record_ref, report_ref, certificate_ref, view_url, published_at)
        VALUES ($1, $2, $3, $4, $5);
    `,
		artifact.RecordRef, artifact.ReportRef, artifact.CertificateRef,
		artifact.ViewURL, artifact.PublishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert published artifact: %w", err)
	}
	return nil
}

var _ schemas.Repository = (*Store)(nil)
