package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/customeros/sitestack/internal/logger"
	"github.com/customeros/sitestack/internal/tracing"
)

type Config struct {
	AppConfig        *AppConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	DatabaseConfig   *DatabaseConfig
	HostingConfig    *HostingConfig
	VercelConfig     *VercelConfig
	CloudflareConfig *CloudflareConfig
	RetryConfig      *RetryConfig
	RateLimitConfig  *RateLimitConfig
	DNSConfig        *DNSConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:        &AppConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		DatabaseConfig:   &DatabaseConfig{},
		HostingConfig:    &HostingConfig{},
		VercelConfig:     &VercelConfig{},
		CloudflareConfig: &CloudflareConfig{},
		RetryConfig:      &RetryConfig{},
		RateLimitConfig:  &RateLimitConfig{},
		DNSConfig:        &DNSConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
