package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/hs-analyzer/internal/application/pipeline"
	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		CORSOrigins     []string      `yaml:"corsOrigins"`
	} `yaml:"server"`

	Database struct {
		// Driver: mysql, postgres atau memory
		Driver   string `yaml:"driver"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Storage struct {
		// Driver: minio, file atau none
		Driver string `yaml:"driver"`
		Dir    string `yaml:"dir"`
	} `yaml:"storage"`

	LLM struct {
		BaseURL     string        `yaml:"baseURL"`
		APIKey      string        `yaml:"apiKey"`
		Model       string        `yaml:"model"`
		MaxTokens   int           `yaml:"maxTokens"`
		HTTPTimeout time.Duration `yaml:"httpTimeout"`
		Enrich      StageConfig   `yaml:"enrich"`
		Classify    StageConfig   `yaml:"classify"`
		Score       StageConfig   `yaml:"score"`
	} `yaml:"llm"`

	Pipeline struct {
		// MaxRetries nil berarti default 2, 0 berarti satu percobaan saja
		MaxRetries   *int          `yaml:"maxRetries"`
		RetryBackoff time.Duration `yaml:"retryBackoff"`
		// Sequential disables the concurrent classify/score fan-out
		Sequential       bool `yaml:"sequential"`
		BatchParallelism int  `yaml:"batchParallelism"`
		MaxBatchSize     int  `yaml:"maxBatchSize"`
	} `yaml:"pipeline"`

	Validation domain.ValidatorConfig `yaml:"validation"`

	Auth struct {
		Enabled bool `yaml:"enabled"`
		// Keys maps client name → API key
		Keys map[string]string `yaml:"keys"`
	} `yaml:"auth"`

	RateLimit struct {
		Enabled    bool `yaml:"enabled"`
		Capacity   int  `yaml:"capacity"`
		RefillRate int  `yaml:"refillRate"`
	} `yaml:"rateLimit"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// StageConfig holds per-stage model settings.
type StageConfig struct {
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Load baca .env (kalau ada) lalu file config.yaml, terapkan env override dan default
func Load(path string) (*Config, error) {
	// .env opsional, variabel yang sudah ada tidak ditimpa
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, then applies environment overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"OPENAI_API_KEY", &c.LLM.APIKey},
		{"LLM_BASE_URL", &c.LLM.BaseURL},
		{"LLM_MODEL", &c.LLM.Model},
		{"DB_PASSWORD", &c.Database.Password},
		{"MINIO_SECRET_KEY", &c.Minio.SecretKey},
		{"LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.dst = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	// satu analisis bisa makan waktu beberapa menit
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		case "postgres":
			c.Database.Port = 5432
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "results"
	}

	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-5-mini"
	}
	if c.LLM.HTTPTimeout == 0 {
		c.LLM.HTTPTimeout = 5 * time.Minute
	}
	stageDefaults := []struct {
		s           *StageConfig
		temperature float32
		timeout     time.Duration
	}{
		{&c.LLM.Enrich, 0.2, 180 * time.Second},
		{&c.LLM.Classify, 0.15, 300 * time.Second},
		{&c.LLM.Score, 0.2, 180 * time.Second},
	}
	for _, d := range stageDefaults {
		if d.s.Temperature == 0 {
			d.s.Temperature = d.temperature
		}
		if d.s.Timeout == 0 {
			d.s.Timeout = d.timeout
		}
	}

	if c.Pipeline.MaxRetries == nil {
		retries := 2
		c.Pipeline.MaxRetries = &retries
	}
	if c.Pipeline.BatchParallelism <= 0 {
		c.Pipeline.BatchParallelism = 4
	}
	if c.Pipeline.MaxBatchSize <= 0 {
		c.Pipeline.MaxBatchSize = 50
	}

	c.Validation = c.Validation.WithDefaults()

	if c.RateLimit.Capacity <= 0 {
		c.RateLimit.Capacity = 30
	}
	if c.RateLimit.RefillRate <= 0 {
		c.RateLimit.RefillRate = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "memory":
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, fmt.Errorf("database.host and database.name are required for %s", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	switch c.Storage.Driver {
	case "file", "none":
	case "minio":
		if c.Minio.Endpoint == "" || c.Minio.BucketName == "" {
			errs = append(errs, errors.New("minio.endpoint and minio.bucketName are required for storage.driver minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if r := c.Pipeline.MaxRetries; r != nil && *r < 0 {
		errs = append(errs, fmt.Errorf("pipeline.maxRetries must be >= 0, got %d", *r))
	}
	v := c.Validation
	if v.MediumThreshold > v.HighThreshold {
		errs = append(errs, fmt.Errorf("validation.mediumThreshold (%d) must not exceed highThreshold (%d)", v.MediumThreshold, v.HighThreshold))
	}
	if c.Auth.Enabled && len(c.Auth.Keys) == 0 {
		errs = append(errs, errors.New("auth.enabled requires at least one key"))
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" && strings.TrimSpace(c.LLM.BaseURL) == "" {
		errs = append(errs, errors.New("llm.apiKey (or OPENAI_API_KEY) is required unless llm.baseURL points at a local endpoint"))
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres (lib/pq key=value form)
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// PipelineConfig is the run policy handed to the orchestrator.
func (c *Config) PipelineConfig() pipeline.Config {
	retries := 2
	if c.Pipeline.MaxRetries != nil {
		retries = *c.Pipeline.MaxRetries
	}
	return pipeline.Config{
		MaxRetries:       retries,
		RetryBackoff:     c.Pipeline.RetryBackoff,
		ConcurrentStages: !c.Pipeline.Sequential,
		EnrichTimeout:    c.LLM.Enrich.Timeout,
		ClassifyTimeout:  c.LLM.Classify.Timeout,
		ScoreTimeout:     c.LLM.Score.Timeout,
	}
}
