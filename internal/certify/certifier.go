// Package certify issues signed audit certificates for passing audits. A
// certificate is a compact HS256 JWT binding the contract's source hash to the
// score it earned, verifiable by anyone holding the shared signing key.
package certify

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
)

// Claims is the certificate payload. Subject carries the contract source hash
// so a certificate can be matched against re-submitted source byte-for-byte.
type Claims struct {
	ContractName string `json:"contract_name"`
	Score        int    `json:"score"`
	RunID        string `json:"run_id"`
	jwt.RegisteredClaims
}

// Certifier signs certificates with a shared HMAC key.
type Certifier struct {
	key    []byte
	issuer string
	logger *zap.Logger

	// now is swapped out in tests for deterministic issued-at claims.
	now func() time.Time
}

// New creates a Certifier. The key must be non-empty; a certifier with no key
// cannot produce verifiable output.
func New(key, issuer string, logger *zap.Logger) (*Certifier, error) {
	if key == "" {
		return nil, fmt.Errorf("certificate signing key is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Certifier{
		key:    []byte(key),
		issuer: issuer,
		logger: logger.Named("certifier"),
		now:    time.Now,
	}, nil
}

// Issue signs a certificate for the record. Only passing audits are
// certifiable; issuing for a failed record is a caller bug, not a publish
// failure, and is rejected outright.
func (c *Certifier) Issue(ctx context.Context, record *schemas.AuditRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if record == nil {
		return "", fmt.Errorf("cannot certify a nil audit record")
	}
	if !record.Passed {
		return "", fmt.Errorf("contract %q did not pass the audit (score %d)", record.ContractMetadata.Name, record.Score)
	}

	issuedAt := c.now().UTC()
	claims := Claims{
		ContractName: record.ContractMetadata.Name,
		Score:        record.Score,
		RunID:        record.RunID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			Subject:  record.ContractMetadata.SourceHash,
			IssuedAt: jwt.NewNumericDate(issuedAt),
			ID:       record.RunID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("signing certificate: %w", err)
	}

	c.logger.Info("Issued audit certificate",
		zap.String("contract", record.ContractMetadata.Name),
		zap.String("source_hash", record.ContractMetadata.SourceHash),
		zap.Int("score", record.Score),
	)
	return signed, nil
}

// Verify parses and validates a certificate previously produced by Issue.
func (c *Certifier) Verify(certificate string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(certificate, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return c.key, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("verifying certificate: %w", err)
	}
	return claims, nil
}
