package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/i2y/mcprouter/internal/domain"
)

// ProviderConfig describes how to reach the capability provider process.
type ProviderConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Env     []string `yaml:"env,omitempty"`
}

// ArgumentConfig is the YAML form of a capability's argument schema.
type ArgumentConfig struct {
	Name    string      `yaml:"name"`
	Type    string      `yaml:"type"`
	Default interface{} `yaml:"default,omitempty"`
}

// CapabilityConfig is one registry entry as declared in the configuration
// file. List order is the classifier's priority order; the first entry is the
// default capability.
type CapabilityConfig struct {
	ID          string         `yaml:"id"`
	Tool        string         `yaml:"tool"`
	Description string         `yaml:"description,omitempty"`
	Keywords    []string       `yaml:"keywords"`
	Extraction  string         `yaml:"extraction"`
	Argument    ArgumentConfig `yaml:"argument"`
	Reasoning   string         `yaml:"reasoning,omitempty"`
}

// FileConfig defines the structure loaded from the YAML configuration file.
type FileConfig struct {
	Provider     ProviderConfig     `yaml:"provider"`
	Capabilities []CapabilityConfig `yaml:"capabilities"`
}

// Config holds the final application configuration, merged from file and
// environment variables. Fields are loaded from environment variables with
// the prefix "MCPROUTER_", potentially overriding file settings. Consumed at
// process start; read-only thereafter (no hot-reload).
type Config struct {
	// Config file path (loaded first from env).
	ConfigFilePath string `envconfig:"CONFIG_FILE" default:"configs/mcprouter.yaml"`

	// File-loaded fields (merged; no envconfig tags so the second env pass
	// cannot clobber them).
	Provider     ProviderConfig
	Capabilities []CapabilityConfig

	// Environment-overridable fields.
	ListenAddr         string        `envconfig:"LISTEN_ADDR" default:":8080"`
	ProviderCommand    string        `envconfig:"PROVIDER_COMMAND"`
	InvokeTimeout      time.Duration `envconfig:"INVOKE_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	ServerReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"5s"`
	ServerWriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ServerIdleTimeout  time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`

	OtelExporterOtlpEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpInsecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	LogLevel                 string `envconfig:"LOG_LEVEL" default:"info"`
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration first from environment variables (to get the file
// path), then from the YAML file, and finally merges/overrides with
// environment variables again. A missing file at the default path is not an
// error: the built-in capability registry applies.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("mcprouter", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process initial environment variables: %w", err)
	}

	if cfg.ConfigFilePath != "" {
		yamlFile, err := os.ReadFile(cfg.ConfigFilePath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Info("No configuration file found, using built-in capability registry.",
				slog.String("path", cfg.ConfigFilePath))
		case err != nil:
			return nil, fmt.Errorf("failed to read config file '%s': %w", cfg.ConfigFilePath, err)
		default:
			var fileCfg FileConfig
			if err := yaml.Unmarshal(yamlFile, &fileCfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config file '%s': %w", cfg.ConfigFilePath, err)
			}
			cfg.Provider = fileCfg.Provider
			cfg.Capabilities = fileCfg.Capabilities
			slog.Info("Loaded configuration from file.", slog.String("path", cfg.ConfigFilePath))
		}
	}

	// Process environment variables again to allow overrides over file
	// settings.
	if err := envconfig.Process("mcprouter", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process overriding environment variables: %w", err)
	}
	if cfg.ProviderCommand != "" {
		cfg.Provider.Command = cfg.ProviderCommand
	}
	if cfg.Provider.Command == "" {
		cfg.Provider.Command = "agroserver"
	}

	return &cfg, nil
}

// Registry builds the domain capability registry from the configured
// entries, in declared order. With no entries configured, the built-in
// registry applies.
func (c *Config) Registry() (*domain.Registry, error) {
	if len(c.Capabilities) == 0 {
		return domain.NewRegistry(domain.DefaultDescriptors())
	}

	descriptors := make([]domain.CapabilityDescriptor, 0, len(c.Capabilities))
	for _, cc := range c.Capabilities {
		descriptors = append(descriptors, domain.CapabilityDescriptor{
			ID:          domain.Capability(cc.ID),
			Tool:        cc.Tool,
			Description: cc.Description,
			Keywords:    lowercaseAll(cc.Keywords),
			Strategy:    domain.ExtractionStrategy(cc.Extraction),
			Argument: domain.ArgumentSpec{
				Name:    cc.Argument.Name,
				Type:    cc.Argument.Type,
				Default: cc.Argument.Default,
			},
			Reasoning: cc.Reasoning,
		})
	}
	return domain.NewRegistry(descriptors)
}

// lowercaseAll normalizes configured keywords; matching is case-insensitive.
func lowercaseAll(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		out[i] = strings.ToLower(strings.TrimSpace(kw))
	}
	return out
}
