package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string
	RedisURL            string
	FrontendURL         string // base URL for broker upload links
	FrontendURLEndsWith string // CORS origin suffix (e.g. .coitrack.io)
	UploadsBaseURL      string // base URL for stored documents (sample COIs, uploads)
	BrevoAPIKey         string // BREVO_API_KEY for broker/GC notification emails
	MailFrom            string // MAIL_FROM sender email (default noreply@coitrack.io)
	RenewalWindowDays   int    // days before expiration that renewal verification kicks in
	TokenTTLDays        int    // broker token lifetime
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	renewalWindow := viper.GetInt("RENEWAL_WINDOW_DAYS")
	if renewalWindow <= 0 {
		renewalWindow = 30
	}
	tokenTTL := viper.GetInt("BROKER_TOKEN_TTL_DAYS")
	if tokenTTL <= 0 {
		tokenTTL = 90
	}

	return &Config{
		Env:                 env,
		Port:                port,
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		FrontendURL:         baseURL(viper.GetString("FRONTEND_URL")),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		UploadsBaseURL:      uploadsBaseURL(viper.GetString("UPLOADS_BASE_URL")),
		BrevoAPIKey:         viper.GetString("BREVO_API_KEY"),
		MailFrom:            viper.GetString("MAIL_FROM"),
		RenewalWindowDays:   renewalWindow,
		TokenTTLDays:        tokenTTL,
	}, nil
}

func baseURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "https://app.coitrack.io"
	}
	return strings.TrimRight(s, "/")
}

func uploadsBaseURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "http://localhost:3001"
	}
	return strings.TrimRight(s, "/")
}
