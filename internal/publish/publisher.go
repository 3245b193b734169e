// Package publish turns assembled audit records into externally visible
// artifacts: a rendered report, an optional ledger reference, and a signed
// certificate for passing audits. Publishing never mutates the record, so a
// failed publish can simply be retried with the same record.
package publish

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
)

// Publisher assembles the publish side effects. Ledger and Certifier are
// optional collaborators: a nil ledger keeps the report local, a nil certifier
// skips certificates entirely.
type Publisher struct {
	renderer  schemas.ReportRenderer
	ledger    schemas.Ledger
	certifier schemas.Certifier
	logger    *zap.Logger
}

// New creates a Publisher. Only the renderer is mandatory.
func New(renderer schemas.ReportRenderer, ledger schemas.Ledger, certifier schemas.Certifier, logger *zap.Logger) (*Publisher, error) {
	if renderer == nil {
		return nil, fmt.Errorf("publisher requires a report renderer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		renderer:  renderer,
		ledger:    ledger,
		certifier: certifier,
		logger:    logger.Named("publisher"),
	}, nil
}

// Publish renders the record and pushes the results out. The returned report
// blob is always populated on success so callers without a ledger still get
// the rendered bytes. Any failure is terminal for this call only and wraps
// ErrPublish; the record itself stays valid.
func (p *Publisher) Publish(ctx context.Context, record *schemas.AuditRecord) (*schemas.PublishedArtifact, []byte, error) {
	if record == nil {
		return nil, nil, fmt.Errorf("%w: nil audit record", schemas.ErrPublish)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", schemas.ErrPublish, err)
	}

	blob, err := p.renderer.Render(record)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: rendering %s report: %v", schemas.ErrPublish, p.renderer.Format(), err)
	}

	artifact := &schemas.PublishedArtifact{
		RecordRef: record.ContractMetadata.SourceHash,
	}

	if p.ledger != nil {
		ref, err := p.ledger.Store(ctx, blob)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: storing report: %v", schemas.ErrPublish, err)
		}
		artifact.ReportRef = ref
		artifact.ViewURL = p.ledger.ViewURL(ref)
	}

	// Certificates only exist for passing audits. A failed audit publishes
	// fine without one.
	if p.certifier != nil && record.Passed {
		cert, err := p.certifier.Issue(ctx, record)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: issuing certificate: %v", schemas.ErrPublish, err)
		}
		artifact.CertificateRef = cert
	}

	artifact.PublishedAt = time.Now().UTC()

	p.logger.Info("Published audit record",
		zap.String("run_id", record.RunID),
		zap.String("source_hash", record.ContractMetadata.SourceHash),
		zap.String("format", p.renderer.Format()),
		zap.String("report_ref", artifact.ReportRef),
		zap.Bool("certified", artifact.CertificateRef != ""),
	)
	return artifact, blob, nil
}
