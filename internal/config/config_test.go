package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "be-fund-requests", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "fund_requests", cfg.Database.Database)
	assert.Equal(t, "mail.outbound", cfg.NATS.Subject)
	assert.True(t, cfg.Approvals.AllowFallbackLookup)
	assert.Equal(t, 5*time.Second, cfg.Outbox.DrainInterval)
	assert.Equal(t, 25, cfg.Outbox.BatchSize)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FUNDREQ_SERVER_PORT", "9090")
	t.Setenv("FUNDREQ_APPROVALS_ALLOW_FALLBACK_LOOKUP", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Approvals.AllowFallbackLookup)
}
