/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the reseller-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	JWTSecret                  string `mapstructure:"JWT_SECRET"`
	WebhookTimeoutSeconds      int    `mapstructure:"WEBHOOK_TIMEOUT_SECONDS"`
	ExpirySweepSchedule        string `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`
	CreateRateLimitPerMinute   int    `mapstructure:"CREATE_RATE_LIMIT_PER_MINUTE"`
	TransferRateLimitPerMinute int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins         string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("WEBHOOK_TIMEOUT_SECONDS", 10)
	viper.SetDefault("EXPIRY_SWEEP_SCHEDULE", "*/30 * * * *")
	viper.SetDefault("CREATE_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("WEBHOOK_TIMEOUT_SECONDS")
	_ = viper.BindEnv("EXPIRY_SWEEP_SCHEDULE")
	_ = viper.BindEnv("CREATE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Platform-provided PORT wins over SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.ExpirySweepSchedule = strings.TrimSpace(config.ExpirySweepSchedule)
	if config.ExpirySweepSchedule == "" {
		config.ExpirySweepSchedule = "*/30 * * * *"
	}

	if config.WebhookTimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive webhook timeout configured; using default\" timeout_seconds=%d", config.WebhookTimeoutSeconds)
		config.WebhookTimeoutSeconds = 10
	}
	if config.WebhookTimeoutSeconds > 120 {
		log.Printf("level=warn component=config msg=\"webhook timeout too high; capping at 120\" timeout_seconds=%d", config.WebhookTimeoutSeconds)
		config.WebhookTimeoutSeconds = 120
	}
	if config.CreateRateLimitPerMinute <= 0 {
		config.CreateRateLimitPerMinute = 30
	}
	if config.TransferRateLimitPerMinute <= 0 {
		config.TransferRateLimitPerMinute = 60
	}

	return
}
