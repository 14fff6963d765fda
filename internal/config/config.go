package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load env vars from .env file directly
func init() {
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist (e.g. in production),
		// but we should log it just in case.
		// However, mostly we want to rely on environment variables being set.
		// If we are in local dev, this helps.
		log.Println("No .env file found or error loading it, using system environment variables")
	}
}

// Size is a whitelisted (width, height) rendition pair.
type Size struct {
	Width, Height int
}

// Config holds the configuration enumerated in the specification.
type Config struct {
	DataDirectory string
	DatabaseURL   string
	AllowedSizes  []Size // nil disables the SizeGuard check
	DropData      bool
	Port          string
	Env           string
}

// Load reads the Bootstrapper's configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		DataDirectory: getEnv("DATA_DIRECTORY", "./data"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DropData:      getEnvBool("DROP_DATA", false),
		Port:          getEnv("PORT", "3001"),
		Env:           getEnv("ENV", "development"),
	}

	sizes, err := parseAllowedSizes(os.Getenv("ALLOWED_SIZES"))
	if err != nil {
		return Config{}, err
	}
	cfg.AllowedSizes = sizes

	return cfg, nil
}

// parseAllowedSizes parses a comma-separated "WxH,WxH" list. An empty
// string disables the whitelist (SizeGuard becomes a no-op).
func parseAllowedSizes(raw string) ([]Size, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var sizes []Size
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		wh := strings.SplitN(part, "x", 2)
		if len(wh) != 2 {
			return nil, &malformedSizeError{part}
		}
		w, errW := strconv.Atoi(strings.TrimSpace(wh[0]))
		h, errH := strconv.Atoi(strings.TrimSpace(wh[1]))
		if errW != nil || errH != nil || w < 1 || h < 1 {
			return nil, &malformedSizeError{part}
		}
		sizes = append(sizes, Size{Width: w, Height: h})
	}
	return sizes, nil
}

type malformedSizeError struct {
	value string
}

func (e *malformedSizeError) Error() string {
	return "malformed size in ALLOWED_SIZES: " + e.value
}

// GetAllowedOrigins returns a slice of allowed origins from the environment variable.
// It defaults to localhost:3000 if not set.
func GetAllowedOrigins() []string {
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr == "" {
		return []string{"http://localhost:3000"}
	}

	// Split by comma and trim spaces
	parts := strings.Split(originsStr, ",")
	var origins []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
