package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type (
	Storage struct {
		Type           string
		LocalPath      string
		DataSourceName string
		BucketName     string
		DatabaseURL    string
	}

	Mail struct {
		SendGridAPIKey string
		From           string
		FromName       string
		// PerSecond and Burst throttle sends to the provider.
		PerSecond float64
		Burst     int
	}

	Config struct {
		Storage Storage
		Mail    Mail

		JWTSecret        string
		StripeSecretKey  string
		PublicBaseURL    string
		AllowedOrigins   []string
		InvitationTTL    time.Duration
		LocaleFile       string
		MetricsUser      string
		MetricsPassword  string
		ViewRatePerMin   int
		ShutdownDeadline time.Duration
	}
)

// LoadDotEnv loads a .env file when present. Missing files are not an error.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file loaded")
	}
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		Storage: Storage{
			Type:           getenvDefault("STORAGE_TYPE", "memory"),
			LocalPath:      getenvDefault("LOCAL_STORAGE_PATH", "./data"),
			DataSourceName: getenvDefault("DATA_SOURCE_NAME", "cardstudio.db"),
			BucketName:     os.Getenv("S3_BUCKET_NAME"),
			DatabaseURL:    os.Getenv("DATABASE_URL"),
		},
		Mail: Mail{
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			From:           getenvDefault("MAIL_FROM", "invitations@cardstudio.local"),
			FromName:       getenvDefault("MAIL_FROM_NAME", "Card Studio"),
			PerSecond:      getenvFloat("MAIL_RATE_PER_SECOND", 5),
			Burst:          getenvInt("MAIL_RATE_BURST", 10),
		},
		JWTSecret:        os.Getenv("JWT_SECRET"),
		StripeSecretKey:  os.Getenv("STRIPE_SECRET_KEY"),
		PublicBaseURL:    getenvDefault("PUBLIC_BASE_URL", "http://localhost:3002"),
		AllowedOrigins:   splitList(getenvDefault("ALLOWED_ORIGINS", "*")),
		InvitationTTL:    getenvDuration("INVITATION_TTL", 90*24*time.Hour),
		LocaleFile:       getenvDefault("LOCALE_FILE", "./data/locale.json"),
		MetricsUser:      os.Getenv("METRICS_USER"),
		MetricsPassword:  os.Getenv("METRICS_PASSWORD"),
		ViewRatePerMin:   getenvInt("INVITATION_VIEW_RATE_PER_MINUTE", 60),
		ShutdownDeadline: getenvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithField("key", key).Warnf("Invalid integer %q, using %d", v, def)
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logrus.WithField("key", key).Warnf("Invalid number %q, using %v", v, def)
		return def
	}
	return f
}

// getenvDuration accepts Go durations ("72h") or a number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	logrus.WithField("key", key).Warnf("Invalid duration %q, using %s", v, def)
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
