// Package config provides engine configuration loaded from defaults, a
// YAML file, environment variables, and command-line overrides, in that
// precedence order.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for the workflow engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Cache    CacheConfig    `yaml:"cache"`
	State    StateConfig    `yaml:"state"`
	Security SecurityConfig `yaml:"security"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	Address      string        `yaml:"address" env:"SF_SERVER_ADDRESS"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SF_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SF_SERVER_WRITE_TIMEOUT"`
	BodyLimit    int           `yaml:"body_limit" env:"SF_SERVER_BODY_LIMIT"`
}

// EngineConfig holds scheduler configuration.
type EngineConfig struct {
	// HolderID identifies this engine instance in resume leases.
	HolderID      string        `yaml:"holder_id" env:"SF_ENGINE_HOLDER_ID"`
	LeaseTTL      time.Duration `yaml:"lease_ttl" env:"SF_ENGINE_LEASE_TTL"`
	QueueSize     int           `yaml:"queue_size" env:"SF_ENGINE_QUEUE_SIZE"`
	AdmissionMode string        `yaml:"admission_mode" env:"SF_ENGINE_ADMISSION_MODE"`
}

// CacheConfig holds step cache configuration.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" env:"SF_CACHE_ENABLED"`
	MaxEntries int           `yaml:"max_entries" env:"SF_CACHE_MAX_ENTRIES"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"SF_CACHE_DEFAULT_TTL"`
}

// StateConfig holds execution state persistence configuration.
type StateConfig struct {
	// Backend selects the store implementation: memory or sqlite.
	Backend string `yaml:"backend" env:"SF_STATE_BACKEND"`
	Path    string `yaml:"path" env:"SF_STATE_PATH"`
}

// SecurityConfig holds the default security posture.
type SecurityConfig struct {
	Profile       string `yaml:"profile" env:"SF_SECURITY_PROFILE"`
	WorkspaceRoot string `yaml:"workspace_root" env:"SF_SECURITY_WORKSPACE_ROOT"`
	// AuditLog is an optional JSONL file path; empty keeps audit events
	// in memory only.
	AuditLog string `yaml:"audit_log" env:"SF_SECURITY_AUDIT_LOG"`
}

// AgentConfig holds the delegated-step bridge configuration.
type AgentConfig struct {
	Endpoint string        `yaml:"endpoint" env:"SF_AGENT_ENDPOINT"`
	Timeout  time.Duration `yaml:"timeout" env:"SF_AGENT_TIMEOUT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"SF_LOG_LEVEL"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "secureflow"
	}
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			BodyLimit:    4 * 1024 * 1024,
		},
		Engine: EngineConfig{
			HolderID:      hostname,
			LeaseTTL:      2 * time.Minute,
			QueueSize:     256,
			AdmissionMode: "block",
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 10000,
			DefaultTTL: time.Hour,
		},
		State: StateConfig{
			Backend: "memory",
		},
		Security: SecurityConfig{
			Profile:       "restricted",
			WorkspaceRoot: ".",
		},
		Agent: AgentConfig{
			Timeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{cmdArgs: make(map[string]string)}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithCmdArgs sets command-line overrides keyed by dot-notation path,
// e.g. "server.address".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration with precedence defaults < file < environment
// < command-line overrides, then validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}
	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("applying override %s: %w", key, err)
		}
	}

	if err := NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("setting %s from %s: %w", fieldType.Name, envTag, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by dot-notation path.
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		fieldName := strings.ReplaceAll(part, "_", "")
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName) || strings.EqualFold(name, part)
		})
		if !field.IsValid() {
			return fmt.Errorf("unknown configuration path: %s", path)
		}
		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("expected %s to be a section, got %s", part, field.Kind())
		}
		v = field
	}
	return nil
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field is not settable")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}
