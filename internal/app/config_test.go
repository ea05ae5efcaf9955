package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "console", cfg.Server.LogFormat)
	require.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "file-secret", cfg.Verification.Secret)
	require.Equal(t, "https://verify.example.com", cfg.Verification.BaseURL)
	require.Equal(t, 45*time.Minute, cfg.Verification.SessionTTL)
	require.Equal(t, 3*time.Second, cfg.Verification.NotifyTimeout)
	require.Equal(t, "step2_only", cfg.Verification.CompletionTrigger)

	require.Equal(t, "file-token", cfg.Discord.Token)
	require.Equal(t, "1001", cfg.Discord.GuildID)
	require.Equal(t, "2002", cfg.Discord.RoleID)
	require.Equal(t, "3003", cfg.Discord.SetupChannelID)
	require.Equal(t, "!", cfg.Discord.CommandPrefix)

	require.True(t, cfg.Database.Enabled)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.Equal(t, "@every 30s", cfg.Maintenance.SessionSweepSchedule)
	require.Equal(t, "@hourly", cfg.Maintenance.AuditCleanupSchedule)
	require.Equal(t, 14, cfg.Maintenance.AuditRetentionDays)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, 30*time.Minute, cfg.Verification.SessionTTL)
	require.Equal(t, "any_step", cfg.Verification.CompletionTrigger)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
}

func TestLoadConfigPrefixedEnvOverridesFile(t *testing.T) {
	t.Setenv("ALTERRA_VERIFICATION_SECRET", "env-secret")
	t.Setenv("ALTERRA_SERVER_PORT", "8181")

	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)
	require.Equal(t, "env-secret", cfg.Verification.Secret)
	require.Equal(t, 8181, cfg.Server.Port)
}

func TestLoadConfigLegacyEnvNames(t *testing.T) {
	t.Setenv("VERIF_SECRET", "legacy-secret")
	t.Setenv("PUBLIC_URL", "https://legacy.example.com")
	t.Setenv("DISCORD_TOKEN", "legacy-token")
	t.Setenv("GUILD_ID", "11")
	t.Setenv("VERIFIED_ROLE_ID", "22")
	t.Setenv("SETUP_CHANNEL_ID", "33")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "legacy-secret", cfg.Verification.Secret)
	require.Equal(t, "https://legacy.example.com", cfg.Verification.BaseURL)
	require.Equal(t, "legacy-token", cfg.Discord.Token)
	require.Equal(t, "11", cfg.Discord.GuildID)
	require.Equal(t, "22", cfg.Discord.RoleID)
	require.Equal(t, "33", cfg.Discord.SetupChannelID)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigPrefixedEnvBeatsLegacy(t *testing.T) {
	t.Setenv("VERIF_SECRET", "legacy-secret")
	t.Setenv("ALTERRA_VERIFICATION_SECRET", "prefixed-secret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "prefixed-secret", cfg.Verification.Secret)
}

func TestValidateReportsMissingRequiredFields(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{
		"verification.secret",
		"verification.base_url",
		"discord.token",
		"discord.guild_id",
		"discord.role_id",
		"discord.setup_channel_id",
	} {
		require.Contains(t, err.Error(), field)
	}
}

func TestValidateRejectsUnknownTrigger(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	cfg.Verification.CompletionTrigger = "whenever"
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "verification.completion_trigger")
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
}
