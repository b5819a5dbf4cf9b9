package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Audit backends.
const (
	AuditBackendMemory = "memory"
	AuditBackendSQLite = "sqlite"
)

// Config holds application configuration.
type Config struct {
	// MaxRetries is the number of extra attempts the controller makes after a
	// validation failure. Total attempts = MaxRetries + 1.
	// A pointer so an explicit 0 in a file survives merging.
	MaxRetries *int `json:"max_retries,omitempty"`

	// Bind is the HTTP listen address.
	Bind string `json:"bind,omitempty"`

	// Port is the HTTP listen port.
	Port int `json:"port,omitempty"`

	// MaxInputChars caps the length of convert input (runes, after trimming).
	MaxInputChars int `json:"max_input_chars,omitempty"`

	// AuditBackend selects the audit sink: "memory" or "sqlite".
	// Both keep entries only for the lifetime of the process.
	AuditBackend string `json:"audit_backend,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultMaxRetries is the retry bound used when nothing is configured.
const DefaultMaxRetries = 2

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	retries := DefaultMaxRetries
	return &Config{
		MaxRetries:    &retries,
		Bind:          "127.0.0.1",
		Port:          8000,
		MaxInputChars: 12000,
		AuditBackend:  AuditBackendMemory,
		LogLevel:      "info",
	}
}

// Retries returns the effective retry bound.
func (c *Config) Retries() int {
	if c == nil || c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// Validate checks values that cannot be repaired by defaults.
func (c *Config) Validate() error {
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", *c.MaxRetries)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.MaxInputChars < 0 {
		return fmt.Errorf("max_input_chars must be non-negative, got %d", c.MaxInputChars)
	}
	switch c.AuditBackend {
	case "", AuditBackendMemory, AuditBackendSQLite:
	default:
		return fmt.Errorf("unknown audit_backend %q (want %q or %q)", c.AuditBackend, AuditBackendMemory, AuditBackendSQLite)
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.stateintent.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.stateintent) and repo
// (.stateintent) directories. Repo config is found by walking upward from
// startDir. Repo config takes precedence for scalar values; arrays are merged.
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .stateintent/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".stateintent", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Pointer scalars: overlay wins if set
	result.MaxRetries = base.MaxRetries
	if overlay.MaxRetries != nil {
		v := *overlay.MaxRetries
		result.MaxRetries = &v
	}

	// Scalars: overlay wins if non-zero, else base
	result.Bind = pickString(overlay.Bind, base.Bind)
	result.AuditBackend = pickString(overlay.AuditBackend, base.AuditBackend)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)

	result.Port = overlay.Port
	if result.Port == 0 {
		result.Port = base.Port
	}

	result.MaxInputChars = overlay.MaxInputChars
	if result.MaxInputChars == 0 {
		result.MaxInputChars = base.MaxInputChars
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickString(overlay, base string) string {
	if s := strings.TrimSpace(overlay); s != "" {
		return s
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
