package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/NSvoltage/secureflow/pkg/types"
)

// ValidationError is a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors reports whether any validation error was collected.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate checks the entire configuration and returns collected errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateServer(&cfg.Server)
	v.validateEngine(&cfg.Engine)
	v.validateCache(&cfg.Cache)
	v.validateState(&cfg.State)
	v.validateSecurity(&cfg.Security)
	v.validateAgent(&cfg.Agent)
	v.validateLogging(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Address == "" {
		v.addError("server.address", "address is required")
	} else if !isValidAddress(cfg.Address) {
		v.addError("server.address", "invalid address format, expected host:port or :port")
	}
	if cfg.ReadTimeout <= 0 {
		v.addError("server.read_timeout", "must be positive")
	}
	if cfg.WriteTimeout <= 0 {
		v.addError("server.write_timeout", "must be positive")
	}
	if cfg.BodyLimit <= 0 {
		v.addError("server.body_limit", "must be positive")
	}
}

func (v *Validator) validateEngine(cfg *EngineConfig) {
	if cfg.HolderID == "" {
		v.addError("engine.holder_id", "holder id is required")
	}
	if cfg.LeaseTTL <= 0 {
		v.addError("engine.lease_ttl", "must be positive")
	}
	if cfg.QueueSize <= 0 {
		v.addError("engine.queue_size", "must be positive")
	}
	switch cfg.AdmissionMode {
	case "block", "reject":
	default:
		v.addError("engine.admission_mode", "must be block or reject")
	}
}

func (v *Validator) validateCache(cfg *CacheConfig) {
	if cfg.MaxEntries <= 0 {
		v.addError("cache.max_entries", "must be positive")
	}
	if cfg.DefaultTTL <= 0 {
		v.addError("cache.default_ttl", "must be positive")
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.Path == "" {
			v.addError("state.path", "path is required for the sqlite backend")
		}
	default:
		v.addError("state.backend", "must be memory or sqlite")
	}
}

func (v *Validator) validateSecurity(cfg *SecurityConfig) {
	if types.ProfileByName(cfg.Profile) == nil {
		v.addError("security.profile", fmt.Sprintf("unknown profile: %s", cfg.Profile))
	}
	if cfg.WorkspaceRoot == "" {
		v.addError("security.workspace_root", "workspace root is required")
	}
}

func (v *Validator) validateAgent(cfg *AgentConfig) {
	if cfg.Endpoint != "" && !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		v.addError("agent.endpoint", "must be an http or https URL")
	}
	if cfg.Timeout <= 0 {
		v.addError("agent.timeout", "must be positive")
	}
}

func (v *Validator) validateLogging(cfg *LoggingConfig) {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("unknown level: %s", cfg.Level))
	}
}

// isValidAddress reports whether addr looks like host:port or :port.
func isValidAddress(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	_ = host
	return port != ""
}
