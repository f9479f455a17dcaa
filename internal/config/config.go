package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service. It is constructed once at
// startup and passed by reference; nothing reads the process environment after
// Load returns.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Redis    RedisConfig
	App      AppConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // minutes
}

// AWSConfig covers the two external collaborators of the hand-off: the
// destination bucket and the processing queue.
type AWSConfig struct {
	Region        string
	Bucket        string
	QueueURL      string
	EndpointURL   string // e.g. http://localstack:4566; empty in real deployments
	PresignTTLSec int
}

type RedisConfig struct {
	URL      string
	Username string
	Password string
}

type AppConfig struct {
	Environment string
	LogLevel    string
}

// Load reads configuration from environment variables.
func Load() *Config {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_READ_TIMEOUT", 15)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	viper.SetDefault("SERVER_IDLE_TIMEOUT", 60)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "aistudio")
	viper.SetDefault("DB_NAME", "aistudio_documents")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("JWT_ACCESS_TTL", 1440) // 1 day in minutes
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("PRESIGN_TTL_SECONDS", 300)
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")

	return &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			ReadTimeout:  viper.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout: viper.GetInt("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:  viper.GetInt("SERVER_IDLE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			DBName:   viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		JWT: JWTConfig{
			SecretKey:      viper.GetString("JWT_SECRET"),
			AccessTokenTTL: viper.GetInt("JWT_ACCESS_TTL"),
		},
		AWS: AWSConfig{
			Region:        viper.GetString("AWS_REGION"),
			Bucket:        viper.GetString("DOCUMENTS_BUCKET"),
			QueueURL:      viper.GetString("PROCESSING_QUEUE_URL"),
			EndpointURL:   viper.GetString("AWS_ENDPOINT_URL"),
			PresignTTLSec: viper.GetInt("PRESIGN_TTL_SECONDS"),
		},
		Redis: RedisConfig{
			URL:      viper.GetString("REDIS_URL"),
			Username: viper.GetString("REDIS_USERNAME"),
			Password: viper.GetString("REDIS_PASSWORD"),
		},
		App: AppConfig{
			Environment: viper.GetString("APP_ENV"),
			LogLevel:    viper.GetString("LOG_LEVEL"),
		},
	}
}

// Validate fails fast on missing required values so a misconfigured instance
// never gets far enough to accept requests. The test environment is exempt so
// unit tests can build configs without AWS resources.
func (c *Config) Validate() error {
	if c.App.Environment == "test" {
		return nil
	}
	if c.AWS.Bucket == "" {
		return fmt.Errorf("DOCUMENTS_BUCKET is required")
	}
	if c.AWS.QueueURL == "" {
		return fmt.Errorf("PROCESSING_QUEUE_URL is required")
	}
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}
