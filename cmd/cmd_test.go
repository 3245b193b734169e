package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/config"
)

func TestLanguageFromPath(t *testing.T) {
	assert.Equal(t, schemas.LanguageSolidity, languageFromPath("contracts/Vault.sol"))
	assert.Equal(t, schemas.LanguageVyper, languageFromPath("contracts/vault.vy"))
	assert.Equal(t, schemas.LanguageVyper, languageFromPath("contracts/vault.VY"))
	assert.Equal(t, schemas.LanguageSolidity, languageFromPath("contracts/vault"))
}

func TestContractName(t *testing.T) {
	auditCmd := newAuditCmd()

	assert.Equal(t, "Vault", contractName(auditCmd, "contracts/Vault.sol"))

	require.NoError(t, auditCmd.Flags().Set("name", "MyToken"))
	assert.Equal(t, "MyToken", contractName(auditCmd, "contracts/Vault.sol"))
}

func TestBuildPublisher(t *testing.T) {
	cfg := &config.Config{
		Publish: config.PublishConfig{ReportFormat: "json"},
	}

	p, err := buildPublisher(cfg, zap.NewNop(), false)
	require.NoError(t, err)
	assert.NotNil(t, p)

	cfg.Publish.ReportFormat = "pdf"
	_, err = buildPublisher(cfg, zap.NewNop(), false)
	assert.Error(t, err)
}

func TestBuildPublisherWithCertifier(t *testing.T) {
	cfg := &config.Config{
		Publish: config.PublishConfig{
			ReportFormat:      "sarif",
			CertificateKey:    "secret",
			CertificateIssuer: "auditforge",
		},
	}

	p, err := buildPublisher(cfg, zap.NewNop(), false)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestRootCommandWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["audit"], "audit subcommand should be registered")
	assert.True(t, names["serve"], "serve subcommand should be registered")
}
