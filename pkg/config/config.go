// Package config loads process configuration from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root configuration of the process.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Jobx      JobxConfig
	DLQ       DLQConfig
	Notifx    NotifxConfig
	Render    RenderConfig
	Plandoc   PlandocConfig
	Broadcast BroadcastConfig
	Telemetry TelemetryConfig
}

// Load reads the configuration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	jobx, err := loadJobxConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    loadServerConfig(),
		Database:  loadDatabaseConfig(),
		Redis:     loadRedisConfig(),
		Storage:   loadStorageConfig(),
		Jobx:      jobx,
		DLQ:       loadDLQConfig(),
		Notifx:    loadNotifxConfig(),
		Render:    loadRenderConfig(),
		Plandoc:   loadPlandocConfig(),
		Broadcast: loadBroadcastConfig(),
		Telemetry: loadTelemetryConfig(),
	}, nil
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port        string
	CORSOrigins string
	Debug       bool
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		Debug:       getEnvBool("DEBUG", false),
	}
}

// DatabaseConfig configures the Postgres pool shared by HTTP and workers.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		Name:            getEnv("DB_NAME", "remodel"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

// RedisConfig holds the queue backend connection string.
type RedisConfig struct {
	URL string
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{URL: getEnv("REDIS_URL", "redis://localhost:6379/0")}
}

// StorageConfig selects where rendered assets and documents are written.
type StorageConfig struct {
	Mode      string
	UploadDir string
	Bucket    string
	Prefix    string
	AWSRegion string
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Mode:      getEnv("STORAGE_MODE", "local"),
		UploadDir: getEnv("UPLOAD_DIR", "./uploads"),
		Bucket:    getEnv("AWS_BUCKET", "remodel-assets"),
		Prefix:    getEnv("STORAGE_PREFIX", ""),
		AWSRegion: getEnv("AWS_REGION", "us-east-1"),
	}
}

// DLQConfig configures the dead letter sink.
type DLQConfig struct {
	Enabled   bool
	Retention int
}

func loadDLQConfig() DLQConfig {
	return DLQConfig{
		Enabled:   getEnvBool("DLQ_ENABLED", true),
		Retention: getEnvInt("DLQ_RETENTION", 1000),
	}
}

// RenderConfig configures the image generation providers.
type RenderConfig struct {
	Providers    []string
	Timeout      time.Duration
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	BedrockModel string
	AWSRegion    string
}

func loadRenderConfig() RenderConfig {
	return RenderConfig{
		Providers:    getEnvStringSlice("RENDER_PROVIDERS", []string{"gemini", "openai"}),
		Timeout:      getEnvDuration("RENDER_TIMEOUT", 90*time.Second),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("RENDER_GEMINI_MODEL", "gemini-2.5-flash-image"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("RENDER_OPENAI_MODEL", "gpt-image-1"),
		BedrockModel: getEnv("RENDER_BEDROCK_MODEL", "amazon.titan-image-generator-v2:0"),
		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
	}
}

// PlandocConfig configures renovation plan document generation.
type PlandocConfig struct {
	AnthropicAPIKey string
	Model           string
	Narrative       bool
}

func loadPlandocConfig() PlandocConfig {
	return PlandocConfig{
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		Model:           getEnv("PLANDOC_MODEL", "claude-sonnet-4-20250514"),
		Narrative:       getEnvBool("PLANDOC_NARRATIVE", true),
	}
}

// BroadcastConfig configures session event delivery.
type BroadcastConfig struct {
	Transport string
	JWTSecret string
}

func loadBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{
		Transport: getEnv("BROADCAST_TRANSPORT", "redis"),
		JWTSecret: getEnv("BROADCAST_JWT_SECRET", ""),
	}
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	ServiceName   string
	StdoutTracing bool
}

func loadTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		ServiceName:   getEnv("OTEL_SERVICE_NAME", "remodel"),
		StdoutTracing: getEnvBool("OTEL_STDOUT", false),
	}
}
