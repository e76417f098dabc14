package config

import (
	"os"
	"strings"
	"time"
)

// App holds the settings that are not tied to a single backing service.
type App struct {
	Port       string
	AppBaseURL string

	GCPProjectID string
	GCPLocation  string
	ModelName    string

	StripeSecretKey        string
	StripePriceScreening   string
	StripePriceTestPremium string

	ReportBucket string

	FlowTTL  time.Duration
	GuestTTL time.Duration
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LoadApp reads the application settings from the environment.
func LoadApp() App {
	return App{
		Port:       getEnv("PORT", "8080"),
		AppBaseURL: strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:5173"), "/"),

		GCPProjectID: getEnv("GCP_PROJECT", ""),
		GCPLocation:  getEnv("GCP_LOCATION", "us-central1"),
		ModelName:    getEnv("LLM_MODEL", "gemini-1.5-flash"),

		StripeSecretKey:        getEnv("STRIPE_SECRET_KEY", ""),
		StripePriceScreening:   getEnv("STRIPE_PRICE_SCREENING", ""),
		StripePriceTestPremium: getEnv("STRIPE_PRICE_TEST_PREMIUM", ""),

		ReportBucket: getEnv("REPORT_BUCKET", ""),

		FlowTTL:  getDurationEnv("FLOW_TTL", 2*time.Hour),
		GuestTTL: getDurationEnv("GUEST_TTL", 24*time.Hour),
	}
}
