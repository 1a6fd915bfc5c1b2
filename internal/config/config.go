package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/urlfetch/internal/progress"
)

// Config defines configuration for the urlfetch CLI.
type Config struct {
	URLs        []string          `yaml:"urls"`
	Output      string            `yaml:"output"`
	OutputDir   string            `yaml:"output_dir"`
	Method      string            `yaml:"method"`
	Headers     map[string]string `yaml:"headers"`
	Body        string            `yaml:"body"`
	Timeout     time.Duration     `yaml:"timeout"`
	ChunkSize   int64             `yaml:"chunk_size"`
	Progress    bool              `yaml:"progress"`
	Bucket      string            `yaml:"bucket"`
	Prefix      string            `yaml:"prefix"`
	MetricsAddr string            `yaml:"metrics_addr"`
	Verbose     bool              `yaml:"verbose"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Timeout:   60 * time.Second,
		ChunkSize: 32 * 1024, // 32KiB
	}
}

// DefaultPath returns the config file location under the XDG config
// directory, e.g. ~/.config/urlfetch/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "urlfetch", "config.yaml")
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	URLs        []string          `yaml:"urls"`
	Output      string            `yaml:"output"`
	OutputDir   string            `yaml:"output_dir"`
	Method      string            `yaml:"method"`
	Headers     map[string]string `yaml:"headers"`
	Body        string            `yaml:"body"`
	Timeout     string            `yaml:"timeout"`
	ChunkSize   string            `yaml:"chunk_size"`
	Progress    bool              `yaml:"progress"`
	Bucket      string            `yaml:"bucket"`
	Prefix      string            `yaml:"prefix"`
	MetricsAddr string            `yaml:"metrics_addr"`
	Verbose     bool              `yaml:"verbose"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	cfg.URLs = yc.URLs
	cfg.Output = yc.Output
	cfg.OutputDir = yc.OutputDir
	cfg.Method = strings.ToUpper(yc.Method)
	cfg.Body = yc.Body
	cfg.Bucket = yc.Bucket
	cfg.Prefix = yc.Prefix
	cfg.MetricsAddr = yc.MetricsAddr
	cfg.Progress = yc.Progress
	cfg.Verbose = yc.Verbose
	if len(yc.Headers) > 0 {
		cfg.Headers = make(map[string]string, len(yc.Headers))
		for k, v := range yc.Headers {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}

	return cfg, nil
}

// LoadEnvFiles loads .env and then .env.local from dir into the process
// environment. Missing files are skipped. Variables from .env never replace
// ones already set; .env.local overrides everything.
func LoadEnvFiles(dir string) error {
	base := filepath.Join(dir, ".env")
	if _, err := os.Stat(base); err == nil {
		if err := godotenv.Load(base); err != nil {
			return fmt.Errorf("load %s: %w", base, err)
		}
	}

	local := filepath.Join(dir, ".env.local")
	if _, err := os.Stat(local); err == nil {
		if err := godotenv.Overload(local); err != nil {
			return fmt.Errorf("load %s: %w", local, err)
		}
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the URLFETCH_ prefix. URLFETCH_URLS is a
// comma-separated list, URLFETCH_HEADERS a comma-separated list of
// Name=Value pairs.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("URLFETCH_URLS"); v != "" {
		c.URLs = splitList(v)
	}
	if v := os.Getenv("URLFETCH_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("URLFETCH_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("URLFETCH_METHOD"); v != "" {
		c.Method = strings.ToUpper(v)
	}
	if v := os.Getenv("URLFETCH_HEADERS"); v != "" {
		headers, err := ParseHeaders(splitList(v))
		if err != nil {
			return fmt.Errorf("parse URLFETCH_HEADERS: %w", err)
		}
		c.Headers = headers
	}
	if v := os.Getenv("URLFETCH_BODY"); v != "" {
		c.Body = v
	}
	if v := os.Getenv("URLFETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse URLFETCH_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("URLFETCH_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse URLFETCH_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("URLFETCH_PROGRESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse URLFETCH_PROGRESS: %w", err)
		}
		c.Progress = b
	}
	if v := os.Getenv("URLFETCH_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("URLFETCH_PREFIX"); v != "" {
		c.Prefix = v
	}
	if v := os.Getenv("URLFETCH_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("URLFETCH_VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse URLFETCH_VERBOSE: %w", err)
		}
		c.Verbose = b
	}

	return nil
}

// ParseHeaders parses "Name: value" or "Name=value" entries into a map with
// canonical header names.
func ParseHeaders(entries []string) (map[string]string, error) {
	headers := make(map[string]string, len(entries))
	for _, e := range entries {
		i := strings.IndexAny(e, ":=")
		if i <= 0 {
			return nil, fmt.Errorf("invalid header %q", e)
		}
		name := http.CanonicalHeaderKey(strings.TrimSpace(e[:i]))
		headers[name] = strings.TrimSpace(e[i+1:])
	}
	return headers, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.URLs) == 0 {
		return errors.New("config: at least one URL is required")
	}
	if c.Output != "" && len(c.URLs) > 1 {
		return errors.New("config: output requires a single URL, use output_dir")
	}
	if c.Output != "" && c.OutputDir != "" {
		return errors.New("config: output and output_dir are mutually exclusive")
	}
	if c.Timeout < 0 {
		return errors.New("config: timeout must not be negative")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.Prefix != "" && c.Bucket == "" {
		return errors.New("config: prefix requires a bucket")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if len(override.URLs) > 0 {
		c.URLs = override.URLs
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.Method != "" {
		c.Method = override.Method
	}
	if len(override.Headers) > 0 {
		merged := make(map[string]string, len(c.Headers)+len(override.Headers))
		for k, v := range c.Headers {
			merged[k] = v
		}
		for k, v := range override.Headers {
			merged[k] = v
		}
		c.Headers = merged
	}
	if override.Body != "" {
		c.Body = override.Body
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.Prefix != "" {
		c.Prefix = override.Prefix
	}
	if override.MetricsAddr != "" {
		c.MetricsAddr = override.MetricsAddr
	}
	if override.Verbose {
		c.Verbose = override.Verbose
	}
	return c
}
