package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all process configuration. It is built once at startup and
// passed by reference into the components that need it.
type Config struct {
	AppPort  string
	BasePath string

	DatabaseDSN string

	JWTSecret string
	JWTExpiry time.Duration

	// RequireVerifiedLogin gates login on the account's verified flag.
	// Off by default: login then only checks credentials.
	RequireVerifiedLogin bool

	CORSOrigins string

	RabbitMQURL string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	MailFrom     string
	MailFromName string
}

// Load reads configuration from environment variables via Viper,
// falling back to development defaults.
func Load() *Config {
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("BASE_PATH", "/api/auth")
	viper.SetDefault("DATABASE_DSN", "host=127.0.0.1 user=postgres password=postgres dbname=savefi port=5432 sslmode=disable")
	viper.SetDefault("JWT_SECRET", "secret")
	viper.SetDefault("JWT_EXPIRY", "168h") // 7 days
	viper.SetDefault("REQUIRE_VERIFIED_LOGIN", false)
	viper.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("RABBITMQ_URL", "")
	viper.SetDefault("SMTP_HOST", "smtp.gmail.com")
	viper.SetDefault("SMTP_PORT", "587")
	viper.SetDefault("SMTP_USER", "")
	viper.SetDefault("SMTP_PASSWORD", "")
	viper.SetDefault("MAIL_FROM", "")
	viper.SetDefault("MAIL_FROM_NAME", "SaveFi Support")
	viper.AutomaticEnv()

	cfg := &Config{
		AppPort:              viper.GetString("APP_PORT"),
		BasePath:             viper.GetString("BASE_PATH"),
		DatabaseDSN:          viper.GetString("DATABASE_DSN"),
		JWTSecret:            viper.GetString("JWT_SECRET"),
		JWTExpiry:            viper.GetDuration("JWT_EXPIRY"),
		RequireVerifiedLogin: viper.GetBool("REQUIRE_VERIFIED_LOGIN"),
		CORSOrigins:          viper.GetString("CORS_ORIGINS"),
		RabbitMQURL:          viper.GetString("RABBITMQ_URL"),
		SMTPHost:             viper.GetString("SMTP_HOST"),
		SMTPPort:             viper.GetString("SMTP_PORT"),
		SMTPUser:             viper.GetString("SMTP_USER"),
		SMTPPassword:         viper.GetString("SMTP_PASSWORD"),
		MailFrom:             viper.GetString("MAIL_FROM"),
		MailFromName:         viper.GetString("MAIL_FROM_NAME"),
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}
	if cfg.JWTExpiry <= 0 {
		cfg.JWTExpiry = 168 * time.Hour
	}
	return cfg
}
