package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds process-wide settings, populated from the environment.
// A .env file in the working directory is loaded first when present.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required,notEmpty"`
	StoragePath  string `env:"STORAGE_PATH" envDefault:"datastore.json"`
	CacheDir     string `env:"CACHE_DIR" envDefault:".tracks"`
	FFmpegPath   string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	LogFile      string `env:"LOG_FILE" envDefault:"groovebox.log"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
