package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"scanhub/internal/utils"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/normalizer"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Snippet    SnippetConfig    `mapstructure:"snippet"`
	Normalizer NormalizerConfig `mapstructure:"normalizer"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Log        LogConfig        `mapstructure:"log"`
	Discord    DiscordConfig    `mapstructure:"discord"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// CORSOrigins enables CORS for the listed origins. Empty disables it.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	Path     string `mapstructure:"path" validate:"required_if=Driver sqlite"`
	Host     string `mapstructure:"host" validate:"required_if=Driver postgres"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required_if=Driver postgres"`
	SSLMode  string `mapstructure:"sslmode"`

	// ConnectTimeout bounds the retries of the initial connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DSN returns the postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type WorkspaceConfig struct {
	Root string `mapstructure:"root" validate:"required"`

	// UploadsRoot confines files referenced by path. Empty disables them.
	UploadsRoot string `mapstructure:"uploads_root"`
}

type ToolsConfig struct {
	ConfigDir string `mapstructure:"config_dir"`
	Watch     bool   `mapstructure:"watch"`
}

type EngineConfig struct {
	MaxWorkers         int           `mapstructure:"max_workers" validate:"min=1"`
	MaxConcurrentScans int           `mapstructure:"max_concurrent_scans" validate:"min=1"`
	ToolTimeout        time.Duration `mapstructure:"tool_timeout" validate:"gt=0"`
	CancelGrace        time.Duration `mapstructure:"cancel_grace" validate:"gte=0"`
}

type SnippetConfig struct {
	Window int `mapstructure:"window" validate:"min=0"`
}

type NormalizerConfig struct {
	FallbackWarnRatio float64           `mapstructure:"fallback_warn_ratio" validate:"gte=0,lte=1"`
	Rules             []normalizer.Rule `mapstructure:"rules" validate:"dive"`

	// RulesFile is a TOML file of [[rules]] appended after Rules.
	RulesFile string `mapstructure:"rules_file"`
}

type ProgressConfig struct {
	UpdatesPerSecond float64 `mapstructure:"updates_per_second" validate:"gt=0"`
}

type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Probability float64 `mapstructure:"probability" validate:"gte=0,lte=1"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DiscordConfig struct {
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id" validate:"required_with=Token"`
}

// Defaults returns every config key with its default value. Keys must be
// known to viper for environment overrides to reach Unmarshal.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":                    8080,
		"server.cors_origins":            []string{},
		"database.driver":                "sqlite",
		"database.path":                  "scanhub.db",
		"database.host":                  "localhost",
		"database.port":                  5432,
		"database.user":                  "scanhub",
		"database.password":              "scanhub",
		"database.name":                  "scanhub",
		"database.sslmode":               "disable",
		"database.connect_timeout":       time.Minute,
		"workspace.root":                 "./scans",
		"workspace.uploads_root":         "",
		"tools.config_dir":               "./config/tools",
		"tools.watch":                    true,
		"engine.max_workers":             4,
		"engine.max_concurrent_scans":    2,
		"engine.tool_timeout":            10 * time.Minute,
		"engine.cancel_grace":            5 * time.Second,
		"snippet.window":                 3,
		"normalizer.fallback_warn_ratio": 0.25,
		"normalizer.rules":               []normalizer.Rule{},
		"normalizer.rules_file":          "",
		"progress.updates_per_second":    2.0,
		"telemetry.endpoint":             "",
		"telemetry.service_name":         "scanhub",
		"telemetry.probability":          1.0,
		"log.level":                      "info",
		"discord.token":                  "",
		"discord.channel_id":             "",
	}
}

// LoadConfig reads scanhub.yaml (or configFile when set) and SCANHUB_*
// environment variables over the defaults, then validates the result.
func LoadConfig(configFile string) (*Config, error) {
	v, err := utils.NewViperConfig(configFile, Defaults())
	if err != nil {
		return nil, err
	}

	// DISCORD_TOKEN is accepted without the prefix.
	if err := v.BindEnv("discord.token", "SCANHUB_DISCORD_TOKEN", "DISCORD_TOKEN"); err != nil {
		return nil, fmt.Errorf("%w: %v", scanerrors.ErrInvalidConfig, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", scanerrors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", scanerrors.ErrInvalidConfig, err)
	}
	return nil
}

// SeverityRules returns the inline rules followed by those of RulesFile.
func (c *Config) SeverityRules() ([]normalizer.Rule, error) {
	rules := append([]normalizer.Rule(nil), c.Normalizer.Rules...)
	if c.Normalizer.RulesFile == "" {
		return rules, nil
	}
	fromFile, err := normalizer.LoadRulesFile(c.Normalizer.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scanerrors.ErrInvalidConfig, err)
	}
	return append(rules, fromFile...), nil
}
