package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Match    MatchConfig    `yaml:"match"`
	Caption  CaptionConfig  `yaml:"caption"`
	Intake   IntakeConfig   `yaml:"intake"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string        `yaml:"models_dir"`
	DetectionThreshold float64       `yaml:"detection_threshold"`
	DetectTimeout      time.Duration `yaml:"detect_timeout"`
}

type MatchConfig struct {
	// Tolerance is the maximum signature distance accepted as a match.
	Tolerance float64 `yaml:"tolerance"`
	// AmbiguityEpsilon rejects a match when the two best candidates belong
	// to distinct persons and their distances differ by less than this.
	AmbiguityEpsilon float64 `yaml:"ambiguity_epsilon"`
}

type CaptionConfig struct {
	// Provider is one of "openai", "gemini" or "template".
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type IntakeConfig struct {
	WorkerCount      int `yaml:"worker_count"`
	BatchConcurrency int `yaml:"batch_concurrency"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.DetectTimeout == 0 {
		cfg.Vision.DetectTimeout = 5 * time.Second
	}
	if cfg.Match.Tolerance == 0 {
		cfg.Match.Tolerance = 0.6
	}
	if cfg.Match.AmbiguityEpsilon == 0 {
		cfg.Match.AmbiguityEpsilon = 0.05
	}
	if cfg.Caption.Provider == "" {
		cfg.Caption.Provider = "template"
	}
	if cfg.Caption.Timeout == 0 {
		cfg.Caption.Timeout = 5 * time.Second
	}
	if cfg.Intake.WorkerCount == 0 {
		cfg.Intake.WorkerCount = 4
	}
	if cfg.Intake.BatchConcurrency == 0 {
		cfg.Intake.BatchConcurrency = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MOMENTS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MOMENTS_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("MOMENTS_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("MOMENTS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("MOMENTS_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("MOMENTS_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("MOMENTS_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("MOMENTS_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("MOMENTS_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("MOMENTS_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("MOMENTS_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("MOMENTS_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("MOMENTS_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("MOMENTS_CAPTION_PROVIDER"); v != "" {
		cfg.Caption.Provider = v
	}
	if v := os.Getenv("MOMENTS_CAPTION_API_KEY"); v != "" {
		cfg.Caption.APIKey = v
	}
	if v := os.Getenv("MOMENTS_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Intake.WorkerCount = n
		}
	}
}
