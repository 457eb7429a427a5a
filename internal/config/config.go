package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration, sourced from the environment.
type Config struct {
	Port       string
	UploadsDir string

	// CredentialsPath is where a user-entered API key is persisted.
	CredentialsPath string

	// PriceTablePath optionally points at a YAML file overriding the
	// built-in per-model price table.
	PriceTablePath string

	TextModel          string
	ImageModel         string
	FallbackImageModel string

	MaxUploadBytes  int64
	MaxImageEdge    int
	MaxEncodedBytes int

	RequestTimeout time.Duration
}

// Load reads configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		Port:               getEnv("PORT", "8787"),
		UploadsDir:         getEnv("UPLOADS_DIR", "uploads"),
		CredentialsPath:    getEnv("CREDENTIALS_PATH", ".groupshot-credential"),
		PriceTablePath:     strings.TrimSpace(os.Getenv("PRICE_TABLE_PATH")),
		TextModel:          getEnv("TEXT_MODEL", "gemini-2.5-flash"),
		ImageModel:         getEnv("IMAGE_MODEL", "gemini-3-pro-image-preview"),
		FallbackImageModel: getEnv("FALLBACK_IMAGE_MODEL", "gemini-2.5-flash-image"),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 10)) * 1024 * 1024,
		MaxImageEdge:       getEnvInt("MAX_IMAGE_EDGE", 1024),
		MaxEncodedBytes:    getEnvInt("MAX_ENCODED_KB", 1400) * 1024,
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 180)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
