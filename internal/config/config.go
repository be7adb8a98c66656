package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the root configuration for relaybot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Discord   DiscordConfig   `json:"discord"`
	Forward   ForwardConfig   `json:"forward"`
	Store     StoreConfig     `json:"store"`
	Quota     QuotaConfig     `json:"quota"`
	Ops       OpsConfig       `json:"ops"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" env:"LOG_LEVEL"`
	LogFormat string `json:"logFormat" env:"LOG_FORMAT"` // "text" | "json"
	LogFile   string `json:"logFile,omitempty"`
	RulesDir  string `json:"rulesDir,omitempty"` // YAML rule files imported on start
}

type DiscordConfig struct {
	Token             string `json:"token" env:"DISCORD_TOKEN"`
	UseWebhooks       bool   `json:"useWebhooks"` // deliver through webhooks so authors keep their name and avatar
	WebhookName       string `json:"webhookName"`
	EmbedWaitSeconds  []int  `json:"embedWaitSeconds"` // re-fetch delays for link previews
	SendRatePerMinute int    `json:"sendRatePerMinute"`
	SendBurst         int    `json:"sendBurst"`
	MaxRequestBytes   int64  `json:"maxRequestBytes"`
}

type ForwardConfig struct {
	DefaultCeilingBytes  int64 `json:"defaultCeilingBytes"`
	ElevatedCeilingBytes int64 `json:"elevatedCeilingBytes"`
	ElevatedTier         int   `json:"elevatedTier"`
	SizeRetries          int   `json:"sizeRetries"` // fixed at 1
	SendTimeoutSeconds   int   `json:"sendTimeoutSeconds"`
	DefaultDailyLimit    int   `json:"defaultDailyLimit"`
	BusBuffer            int   `json:"busBuffer"`
	AutoDeactivate       bool  `json:"autoDeactivate"` // deactivate rules whose destination is gone or forbidden
}

type StoreConfig struct {
	DBPath        string `json:"dbPath" env:"DB_PATH"`
	RetentionDays int    `json:"retentionDays"`
	PruneSchedule string `json:"pruneSchedule"` // cron expression
}

type QuotaConfig struct {
	Backend  string `json:"backend"` // "sqlite" | "redis"
	RedisURL string `json:"redisURL,omitempty" env:"REDIS_URL"`
}

// OpsConfig configures the health and metrics HTTP server.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr" env:"OPS_ADDR"`
}

type TelemetryConfig struct {
	Enabled     bool              `json:"enabled" env:"OTEL_ENABLED"`
	Endpoint    string            `json:"endpoint" env:"OTEL_ENDPOINT"`
	Protocol    string            `json:"protocol"` // "grpc" | "http"
	Insecure    bool              `json:"insecure"`
	SampleRate  float64           `json:"sampleRate"`
	ServiceName string            `json:"serviceName"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.relaybot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relaybot"
	}
	return filepath.Join(home, ".relaybot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the JSON config at path, then applies a .env file from the working
// directory and RELAYBOT_* environment overrides.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// A missing .env file is fine.
	_ = godotenv.Load()

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.RulesDir = ExpandPath(cfg.General.RulesDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides tagged fields from RELAYBOT_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "RELAYBOT_"}); err != nil {
		return fmt.Errorf("cannot apply environment overrides: %w", err)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// The file holds the bot token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be text or json")
	}

	if cfg.Discord.SendRatePerMinute < 0 {
		errs = append(errs, "discord.sendRatePerMinute must be >= 0")
	}
	if cfg.Discord.MaxRequestBytes < 0 {
		errs = append(errs, "discord.maxRequestBytes must be >= 0")
	}
	for _, s := range cfg.Discord.EmbedWaitSeconds {
		if s < 0 || s > 30 {
			errs = append(errs, "discord.embedWaitSeconds entries must be between 0 and 30")
			break
		}
	}

	f := cfg.Forward
	if f.DefaultCeilingBytes <= 0 {
		errs = append(errs, "forward.defaultCeilingBytes must be > 0")
	}
	if f.ElevatedCeilingBytes < f.DefaultCeilingBytes {
		errs = append(errs, "forward.elevatedCeilingBytes must be >= forward.defaultCeilingBytes")
	}
	if f.ElevatedTier < 1 || f.ElevatedTier > 3 {
		errs = append(errs, "forward.elevatedTier must be between 1 and 3")
	}
	if cfg.Discord.MaxRequestBytes > 0 && f.ElevatedCeilingBytes > cfg.Discord.MaxRequestBytes {
		errs = append(errs, "forward.elevatedCeilingBytes must not exceed discord.maxRequestBytes")
	}
	if f.SizeRetries != 1 {
		errs = append(errs, "forward.sizeRetries is fixed at 1")
	}
	if f.SendTimeoutSeconds < 1 || f.SendTimeoutSeconds > 300 {
		errs = append(errs, "forward.sendTimeoutSeconds must be between 1 and 300")
	}
	if f.DefaultDailyLimit < 0 {
		errs = append(errs, "forward.defaultDailyLimit must be >= 0")
	}

	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}
	if cfg.Store.RetentionDays < 1 {
		errs = append(errs, "store.retentionDays must be >= 1")
	}

	switch cfg.Quota.Backend {
	case "sqlite":
	case "redis":
		if cfg.Quota.RedisURL == "" {
			errs = append(errs, "quota.redisURL is required for the redis backend")
		}
	default:
		errs = append(errs, "quota.backend must be sqlite or redis")
	}

	if cfg.Ops.Enabled && cfg.Ops.Addr == "" {
		errs = append(errs, "ops.addr is required when ops is enabled")
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Endpoint == "" {
			errs = append(errs, "telemetry.endpoint is required when telemetry is enabled")
		}
		switch cfg.Telemetry.Protocol {
		case "grpc", "http":
		default:
			errs = append(errs, "telemetry.protocol must be grpc or http")
		}
		if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
			errs = append(errs, "telemetry.sampleRate must be between 0 and 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
