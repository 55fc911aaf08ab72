package signflow

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LogEvent captures information about a logging event.
type LogEvent struct {
	// A human-readable message about the event.
	Message string

	// The job ID, if available.
	JobID string

	// The webpage title the event pertains to, if any.
	Title string

	// Any error associated with the event.
	Err error

	// How long the job or webpage took, if relevant.
	Duration *time.Duration
}

// Config holds the settings and resources needed by the signing service.
type Config struct {
	// Addr is the listen address of the HTTP API.
	Addr string

	// CORSOrigin is the browser origin allowed to call the API.
	CORSOrigin string

	// DataURL is the base URL of the webpage catalog; the service fetches
	// <DataURL><entity>.json. Ignored when CatalogDSN is set.
	DataURL string

	// CatalogDSN, when non-empty, switches the catalog to the MySQL source.
	CatalogDSN string

	// CatalogDB is the schema holding the webpages table.
	CatalogDB string

	// ScreenshotDir is where failure screenshots are written.
	ScreenshotDir string

	// BrowserPath is the browser executable; empty means whatever chromedp
	// finds on the host.
	BrowserPath string

	// Headless controls whether the browser runs without a display.
	Headless bool

	// RecaptchaSecret enables the submission verification gate. Empty
	// disables it.
	RecaptchaSecret string

	// RecaptchaMinScore is the minimum passing score for a verified token.
	RecaptchaMinScore float64

	// WebpageTimeout is how long one webpage signing attempt may run before
	// it is reported as failed and the job moves on.
	WebpageTimeout time.Duration

	// EvictDelay is how long a terminal job survives in the registry after
	// an observer disconnects, so slow clients can finish reading.
	EvictDelay time.Duration

	// InfoLog is called for informational or success logs.
	// If nil, defaults to printing to stdout.
	InfoLog func(ev LogEvent)

	// ErrorLog is called for error logs.
	// If nil, defaults to printing to stderr (or stdout).
	ErrorLog func(ev LogEvent)
}

// LoadConfig reads configuration from the environment, optionally seeded
// from a .env file. A missing .env file is not an error; the environment
// alone is enough.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	return &Config{
		Addr:              getEnv("SIGNFLOW_ADDR", ":3000"),
		CORSOrigin:        getEnv("SIGNFLOW_CORS_ORIGIN", "http://127.0.0.1:8080"),
		DataURL:           getEnv("SIGNFLOW_DATA_URL", "http://127.0.0.1:8080/data/"),
		CatalogDSN:        getEnv("SIGNFLOW_CATALOG_DSN", ""),
		CatalogDB:         getEnv("SIGNFLOW_CATALOG_DB", "signflow"),
		ScreenshotDir:     getEnv("SIGNFLOW_SCREENSHOT_DIR", "screenshots"),
		BrowserPath:       getEnv("SIGNFLOW_BROWSER_PATH", ""),
		Headless:          getEnvAsBool("SIGNFLOW_HEADLESS", true),
		RecaptchaSecret:   getEnv("SIGNFLOW_RECAPTCHA_SECRET", ""),
		RecaptchaMinScore: getEnvAsFloat("SIGNFLOW_RECAPTCHA_MIN_SCORE", 0.5),
		WebpageTimeout:    getEnvAsDuration("SIGNFLOW_WEBPAGE_TIMEOUT", 2*time.Minute),
		EvictDelay:        getEnvAsDuration("SIGNFLOW_EVICT_DELAY", 7*time.Minute),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
