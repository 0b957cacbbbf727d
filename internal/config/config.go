package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port               int           `yaml:"port"`
	LogLevel           string        `yaml:"log_level"`
	ModelDir           string        `yaml:"model_dir"`
	ClassifierModel    string        `yaml:"classifier_model"`
	ClassifierMetadata string        `yaml:"classifier_metadata"`
	DenoiseModel       string        `yaml:"denoise_model"`
	DenoiseMetadata    string        `yaml:"denoise_metadata"`
	OnnxLibrary        string        `yaml:"onnx_library"` // empty means the platform default
	MaxUploadBytes     int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	CORSOrigin         string        `yaml:"cors_origin"`
}

func Default() *Config {
	return &Config{
		Port:               5000,
		LogLevel:           "info",
		ModelDir:           "models",
		ClassifierModel:    "breast_cancer_classification_model.onnx",
		ClassifierMetadata: "breast_cancer_classification_model.json",
		DenoiseModel:       "denoise_model.onnx",
		DenoiseMetadata:    "denoise_model.json",
		MaxUploadBytes:     10 << 20,
		ShutdownTimeout:    10 * time.Second,
		CORSOrigin:         "*",
	}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// a .env file in the working directory and finally the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.ModelDir = getEnv("MODEL_DIR", c.ModelDir)
	c.ClassifierModel = getEnv("CLASSIFIER_MODEL", c.ClassifierModel)
	c.ClassifierMetadata = getEnv("CLASSIFIER_METADATA", c.ClassifierMetadata)
	c.DenoiseModel = getEnv("DENOISE_MODEL", c.DenoiseModel)
	c.DenoiseMetadata = getEnv("DENOISE_METADATA", c.DenoiseMetadata)
	c.OnnxLibrary = getEnv("ONNXRUNTIME_LIB", c.OnnxLibrary)
	c.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.CORSOrigin = getEnv("CORS_ORIGIN", c.CORSOrigin)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Port))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadBytes))
	}
	if c.ClassifierModel == "" {
		errs = append(errs, errors.New("classifier model path is empty"))
	}
	if c.DenoiseModel == "" {
		errs = append(errs, errors.New("denoise model path is empty"))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("negative shutdown timeout: %s", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

// Resolve returns p unchanged when it is absolute, otherwise joined onto ModelDir.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ModelDir, p)
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
