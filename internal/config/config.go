package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"phobos.org.uk/groqbridge/internal/logging"
	"phobos.org.uk/groqbridge/internal/model"
)

// Config represents the bridge configuration
type Config struct {
	Port       int           `yaml:"port"`
	Bind       string        `yaml:"bind"`
	LogLevel   string        `yaml:"log_level"`
	PythonPath string        `yaml:"python_path"` // Interpreter; bare names are looked up on $PATH
	ScriptPath string        `yaml:"script_path"` // Groq client script
	Model      string        `yaml:"model"`       // Default selection: mixtral, llama, gemma or a model ID
	Timeout    time.Duration `yaml:"timeout"`     // 0 disables the timeout
	Env        []string      `yaml:"env,omitempty"`
}

// Environment overrides for the interpreter and script paths.
const (
	EnvPython = "GROQBRIDGE_PYTHON"
	EnvScript = "GROQBRIDGE_SCRIPT"
)

// Defaults
const (
	DefaultPort       = 9100
	DefaultBind       = "127.0.0.1"
	DefaultLogLevel   = "info"
	DefaultPythonPath = "python3"
	DefaultScriptPath = "groq_client.py"
	DefaultTimeout    = 0
)

// DefaultModel is the selection used when none is configured.
var DefaultModel = model.Default.String()

// Parse parses YAML config data
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load loads config from a file path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Validate checks config validity
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.PythonPath == "" {
		return fmt.Errorf("python_path is required")
	}
	if c.ScriptPath == "" {
		return fmt.Errorf("script_path is required")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", c.Timeout)
	}

	return nil
}

// ApplyEnv overrides the interpreter and script paths from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvPython); v != "" {
		c.PythonPath = v
	}
	if v := os.Getenv(EnvScript); v != "" {
		c.ScriptPath = v
	}
}

// Selection returns the configured default model, falling back to the first
// model for unknown names.
func (c *Config) Selection() model.Model {
	return model.Parse(c.Model)
}

// Level returns the logging level for LogLevel.
func (c *Config) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

// Default returns a config with default values
func Default() *Config {
	return &Config{
		Port:       DefaultPort,
		Bind:       DefaultBind,
		LogLevel:   DefaultLogLevel,
		PythonPath: DefaultPythonPath,
		ScriptPath: DefaultScriptPath,
		Model:      DefaultModel,
		Timeout:    DefaultTimeout,
	}
}
