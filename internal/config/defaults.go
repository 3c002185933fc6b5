package config

import (
	"os"

	"github.com/joho/godotenv"

	"whisper-desk/internal/domain"
)

const defaultServerURL = "http://localhost:8000"

// DefaultSettings returns baseline configuration for first launch.
// A .env file next to the binary and process environment variables
// (WHISPER_DESK_SERVER_URL, WHISPER_DESK_MODEL, WHISPER_DESK_LANGUAGE)
// override the built-in defaults.
func DefaultSettings() domain.Settings {
	_ = godotenv.Load()

	settings := domain.Settings{
		ServerURL:    defaultServerURL,
		DefaultModel: "base",
		Language:     "auto",
	}

	if v := os.Getenv("WHISPER_DESK_SERVER_URL"); v != "" {
		settings.ServerURL = v
	}
	if v := os.Getenv("WHISPER_DESK_MODEL"); v != "" {
		settings.DefaultModel = v
	}
	if v := os.Getenv("WHISPER_DESK_LANGUAGE"); v != "" {
		settings.Language = v
	}

	return settings
}
