package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/edvin/sshtrust/internal/storage"
)

var validate = validator.New()

var namespaceRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,62}$`)

func init() {
	validate.RegisterValidation("namespace", func(fl validator.FieldLevel) bool {
		return namespaceRegex.MatchString(fl.Field().String())
	})
}

type Config struct {
	// StorageBackend selects where keys and trust lists live. An
	// explicit override passed to ResolveBackend takes precedence.
	StorageBackend string `yaml:"storage_backend" validate:"omitempty,oneof=file memory postgres s3"`
	Namespace      string `yaml:"namespace" validate:"omitempty,namespace"`
	DataDir        string `yaml:"data_dir"`
	DatabaseURL    string `yaml:"database_url"`
	S3Endpoint     string `yaml:"s3_endpoint" validate:"omitempty,url"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Prefix       string `yaml:"s3_prefix"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	LogLevel       string `yaml:"log_level"`
}

// Load reads the optional YAML config file, then overlays environment
// variables, then applies defaults. The file path comes from
// RBSSH_CONFIG, falling back to ~/.config/rbssh/config.yaml.
func Load() (*Config, error) {
	cfg := &Config{}

	path := os.Getenv("RBSSH_CONFIG")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".config", "rbssh", "config.yaml")
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.StorageBackend = getEnv("RBSSH_STORAGE_BACKEND", cfg.StorageBackend)
	cfg.Namespace = getEnv("RBSSH_NAMESPACE", cfg.Namespace)
	cfg.DataDir = getEnv("RBSSH_DATA_DIR", cfg.DataDir)
	cfg.DatabaseURL = getEnv("RBSSH_DATABASE_URL", cfg.DatabaseURL)
	cfg.S3Endpoint = getEnv("RBSSH_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("RBSSH_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("RBSSH_S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = getEnv("RBSSH_S3_PREFIX", cfg.S3Prefix)
	cfg.S3AccessKey = getEnv("RBSSH_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("RBSSH_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.LogLevel = getEnv("RBSSH_LOG_LEVEL", cfg.LogLevel)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".rbssh")
	}
	if cfg.S3Region == "" {
		cfg.S3Region = "us-east-1"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field formats and per-backend requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	switch c.StorageBackend {
	case storage.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("storage backend %q requires database_url", c.StorageBackend)
		}
	case storage.BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("storage backend %q requires s3_bucket", c.StorageBackend)
		}
	}
	return nil
}

// ResolveBackend returns the storage backend to use: the explicit
// override when given, then the configured value, then the file backend.
// Evaluated once at client construction, never read ad hoc afterwards.
func (c *Config) ResolveBackend(override string) string {
	if override != "" {
		return override
	}
	if c.StorageBackend != "" {
		return c.StorageBackend
	}
	return storage.BackendFile
}

// StorageConfig maps the configuration to a storage.Config using the
// resolved backend.
func (c *Config) StorageConfig(backendOverride string) storage.Config {
	return storage.Config{
		Backend:     c.ResolveBackend(backendOverride),
		Namespace:   c.Namespace,
		DataDir:     c.DataDir,
		DatabaseURL: c.DatabaseURL,
		S3Endpoint:  c.S3Endpoint,
		S3Region:    c.S3Region,
		S3Bucket:    c.S3Bucket,
		S3Prefix:    c.S3Prefix,
		S3AccessKey: c.S3AccessKey,
		S3SecretKey: c.S3SecretKey,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
