// 配置管理
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 主配置结构
type Config struct {
	System        SystemConfig        `mapstructure:"system"`
	Temporal      TemporalConfig      `mapstructure:"temporal"`
	Storage       StorageConfig       `mapstructure:"storage"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Output        OutputConfig        `mapstructure:"output"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Env             string        `mapstructure:"env"`
	ServiceName     string        `mapstructure:"service_name" validate:"required"`
	Version         string        `mapstructure:"version"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TemporalConfig Temporal 配置
type TemporalConfig struct {
	Address   string       `mapstructure:"address" validate:"required"`
	Namespace string       `mapstructure:"namespace" validate:"required"`
	TaskQueue string       `mapstructure:"task_queue" validate:"required"`
	Worker    WorkerConfig `mapstructure:"worker"`
	Retry     RetryConfig  `mapstructure:"retry"`
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	MaxConcurrentActivities int `mapstructure:"max_concurrent_activities"`
	MaxConcurrentWorkflows  int `mapstructure:"max_concurrent_workflows"`
}

// RetryConfig 重试配置
type RetryConfig struct {
	InitialInterval    time.Duration `mapstructure:"initial_interval"`
	BackoffCoefficient float64       `mapstructure:"backoff_coefficient"`
	MaximumInterval    time.Duration `mapstructure:"maximum_interval"`
	MaximumAttempts    int           `mapstructure:"maximum_attempts"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig Redis 配置，Address 为空时不启用抽取缓存
type RedisConfig struct {
	Address       string        `mapstructure:"address"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ExtractionTTL time.Duration `mapstructure:"extraction_ttl"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	Anthropic  ProviderCredentials `mapstructure:"anthropic"`
	Gemini     ProviderCredentials `mapstructure:"gemini"`
	Extraction ModelProfile        `mapstructure:"extraction"`
	Narrative  ModelProfile        `mapstructure:"narrative"`
}

// ProviderCredentials 供应商凭据
type ProviderCredentials struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ModelProfile 单个用途 (抽取 / 叙述) 的模型设置
type ModelProfile struct {
	Provider    string        `mapstructure:"provider" validate:"required,oneof=anthropic gemini"`
	Model       string        `mapstructure:"model" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" validate:"gte=0,lte=1"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir             string `mapstructure:"dir" validate:"required"`
	TemplatePath    string `mapstructure:"template_path"`
	TemplateVersion string `mapstructure:"template_version" validate:"required"`
}

// AnalysisConfig 分析配置
type AnalysisConfig struct {
	Language          string        `mapstructure:"language" validate:"oneof=en pt"`
	MaxItems          int           `mapstructure:"max_items" validate:"gte=1"`
	NarrativeMaxWords int           `mapstructure:"narrative_max_words" validate:"gte=50"`
	NarrativeTimeout  time.Duration `mapstructure:"narrative_timeout"`
}

// ServerConfig HTTP API 配置
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	UploadDir      string        `mapstructure:"upload_dir"`
	JobTTL         time.Duration `mapstructure:"job_ttl"`
	MaxLocalJobs   int           `mapstructure:"max_local_jobs"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load 加载配置
func Load() (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	return LoadFile(configPath)
}

// LoadFile 从指定路径加载配置
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// 环境变量替换
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 处理环境变量中的密钥
	config.LLM.Anthropic.APIKey = os.ExpandEnv(config.LLM.Anthropic.APIKey)
	config.LLM.Gemini.APIKey = os.ExpandEnv(config.LLM.Gemini.APIKey)
	config.Storage.Redis.Password = os.ExpandEnv(config.Storage.Redis.Password)

	setDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.System.ServiceName == "" {
		cfg.System.ServiceName = "autofund"
	}
	if cfg.System.ShutdownTimeout == 0 {
		cfg.System.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Temporal.Worker.MaxConcurrentActivities == 0 {
		cfg.Temporal.Worker.MaxConcurrentActivities = 10
	}
	if cfg.Temporal.Worker.MaxConcurrentWorkflows == 0 {
		cfg.Temporal.Worker.MaxConcurrentWorkflows = 10
	}
	if cfg.Storage.Redis.PoolSize == 0 {
		cfg.Storage.Redis.PoolSize = 20
	}
	if cfg.Storage.Redis.ExtractionTTL == 0 {
		cfg.Storage.Redis.ExtractionTTL = 24 * time.Hour
	}
	setProfileDefaults(&cfg.LLM.Extraction, "anthropic", "claude-3-5-sonnet-20241022", 0)
	setProfileDefaults(&cfg.LLM.Narrative, "anthropic", "claude-opus-4-20250514", 0.3)
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "outputs"
	}
	if cfg.Output.TemplateVersion == "" {
		cfg.Output.TemplateVersion = "v1"
	}
	if cfg.Analysis.Language == "" {
		cfg.Analysis.Language = "en"
	}
	if cfg.Analysis.MaxItems == 0 {
		cfg.Analysis.MaxItems = 3
	}
	if cfg.Analysis.NarrativeMaxWords == 0 {
		cfg.Analysis.NarrativeMaxWords = 400
	}
	if cfg.Analysis.NarrativeTimeout == 0 {
		cfg.Analysis.NarrativeTimeout = 2 * time.Minute
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 50 << 20
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = "uploads"
	}
	if cfg.Server.JobTTL == 0 {
		cfg.Server.JobTTL = 7 * 24 * time.Hour
	}
	if cfg.Server.MaxLocalJobs == 0 {
		cfg.Server.MaxLocalJobs = 2
	}
	if cfg.Observability.Metrics.Port == 0 {
		cfg.Observability.Metrics.Port = 9090
	}
	if cfg.Observability.Metrics.Path == "" {
		cfg.Observability.Metrics.Path = "/metrics"
	}
	if cfg.Observability.Tracing.SampleRate == 0 {
		cfg.Observability.Tracing.SampleRate = 0.1
	}
}

func setProfileDefaults(p *ModelProfile, provider, model string, temperature float64) {
	if p.Provider == "" {
		p.Provider = provider
	}
	if p.Model == "" {
		p.Model = model
	}
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Minute
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = 4000
	}
	if p.Temperature == 0 {
		p.Temperature = temperature
	}
}
