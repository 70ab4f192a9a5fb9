package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Webhook struct {
	URL               string
	CurrentSigningKey string
	NextSigningKey    string
	ClockTolerance    time.Duration
}

type Publish struct {
	GraphURL       string
	ContainerDelay time.Duration
	PollAttempts   int
	PollInterval   time.Duration
	HTTPTimeout    time.Duration
}

type Config struct {
	Port                  string
	InstagramClientID     string
	InstagramClientSecret string
	InstagramRedirectURI  string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURI     string
	PostgresURI           string
	RedisURI              string
	FrontendURL           string
	R2                    R2
	Webhook               Webhook
	Publish               Publish
	QueueMaxRetry         int
	SuggestTimezone       string
	ContentGeneratorURL   string
	SecretKey             string
	CookieName            string
	LogFormat             string
}

func LoadConfig() *Config {
	return &Config{
		Port:                  getEnv("PORT", "3000"),
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		InstagramRedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:     getEnv("GOOGLE_REDIRECT_URI", "http://localhost:3000/login/callback"),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", "localhost:6379"),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Webhook: Webhook{
			URL:               getEnv("WEBHOOK_URL", "http://localhost:3000/webhooks/publish"),
			CurrentSigningKey: getEnv("WEBHOOK_CURRENT_SIGNING_KEY", ""),
			NextSigningKey:    getEnv("WEBHOOK_NEXT_SIGNING_KEY", ""),
			ClockTolerance:    getEnvDuration("WEBHOOK_CLOCK_TOLERANCE", 5*time.Second),
		},
		Publish: Publish{
			GraphURL:       getEnv("INSTAGRAM_GRAPH_URL", "https://graph.instagram.com/v21.0"),
			ContainerDelay: getEnvDuration("PUBLISH_CONTAINER_DELAY", 5*time.Second),
			PollAttempts:   getEnvInt("PUBLISH_POLL_ATTEMPTS", 0),
			PollInterval:   getEnvDuration("PUBLISH_POLL_INTERVAL", 2*time.Second),
			HTTPTimeout:    getEnvDuration("EXTERNAL_HTTP_TIMEOUT", 30*time.Second),
		},
		QueueMaxRetry:       getEnvInt("QUEUE_MAX_RETRY", 3),
		SuggestTimezone:     getEnv("SUGGEST_TIMEZONE", "UTC"),
		ContentGeneratorURL: getEnv("CONTENT_GENERATOR_URL", ""),
		SecretKey:           getEnv("SECRET_KEY", ""),
		CookieName:          getEnv("COOKIE_NAME", "physiopost_session"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
	}
}

// Location resolves SuggestTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SuggestTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
