package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/charlesng35/alterra/pkg/validator"
)

const envPrefix = "ALTERRA"

// legacyEnv maps configuration keys to the environment variable names used by
// earlier deployments of the bot. Prefixed variables take precedence.
var legacyEnv = map[string]string{
	"verification.secret":      "VERIF_SECRET",
	"verification.base_url":    "PUBLIC_URL",
	"discord.token":            "DISCORD_TOKEN",
	"discord.guild_id":         "GUILD_ID",
	"discord.role_id":          "VERIFIED_ROLE_ID",
	"discord.setup_channel_id": "SETUP_CHANNEL_ID",
}

// Config represents the runtime configuration for the verification gateway.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Verification VerificationConfig `mapstructure:"verification"`
	Discord      DiscordConfig      `mapstructure:"discord"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Maintenance  MaintenanceConfig  `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	LogLevel        string        `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"omitempty,oneof=json console"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// VerificationConfig configures the callback gateway and the state machine.
type VerificationConfig struct {
	Secret            string        `mapstructure:"secret" validate:"required"`
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	SessionTTL        time.Duration `mapstructure:"session_ttl" validate:"min=0"`
	NotifyTimeout     time.Duration `mapstructure:"notify_timeout" validate:"gt=0"`
	CompletionTrigger string        `mapstructure:"completion_trigger" validate:"omitempty,oneof=any_step step2_only"`
}

// DiscordConfig identifies the bot account and the guild it manages.
type DiscordConfig struct {
	Token          string `mapstructure:"token" validate:"required"`
	GuildID        string `mapstructure:"guild_id" validate:"required"`
	RoleID         string `mapstructure:"role_id" validate:"required"`
	SetupChannelID string `mapstructure:"setup_channel_id" validate:"required"`
	CommandPrefix  string `mapstructure:"command_prefix"`
}

// DatabaseConfig describes the audit trail store.
type DatabaseConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Driver   string       `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres postgresql mysql"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	SessionSweepSchedule string `mapstructure:"session_sweep_schedule"`
	AuditCleanupSchedule string `mapstructure:"audit_cleanup_schedule"`
	AuditRetentionDays   int    `mapstructure:"audit_retention_days" validate:"min=0"`
}

// LoadConfig initialises application configuration using Viper with sensible
// defaults. A .env file in the working directory is loaded first; variables
// already present in the environment win.
func LoadConfig(paths ...string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	config.normalise()

	return &config, nil
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil config")
	}
	if err := validator.ValidateStruct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) normalise() {
	c.Verification.Secret = strings.TrimSpace(c.Verification.Secret)
	c.Verification.BaseURL = strings.TrimRight(strings.TrimSpace(c.Verification.BaseURL), "/")
	c.Verification.CompletionTrigger = strings.ToLower(strings.TrimSpace(c.Verification.CompletionTrigger))
	c.Discord.Token = strings.TrimSpace(c.Discord.Token)
	c.Discord.GuildID = strings.TrimSpace(c.Discord.GuildID)
	c.Discord.RoleID = strings.TrimSpace(c.Discord.RoleID)
	c.Discord.SetupChannelID = strings.TrimSpace(c.Discord.SetupChannelID)
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("verification.session_ttl", "30m")
	v.SetDefault("verification.notify_timeout", "10s")
	v.SetDefault("verification.completion_trigger", "any_step")

	v.SetDefault("discord.command_prefix", "!")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/alterra.sqlite")

	v.SetDefault("maintenance.session_sweep_schedule", "@every 1m")
	v.SetDefault("maintenance.audit_cleanup_schedule", "@daily")
	v.SetDefault("maintenance.audit_retention_days", 90)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
