// Package config resolves the environment-driven bootstrap
// configuration described in SPEC_FULL.md §4.8. Values here only seed
// the first run; once api_server.json exists, it is the source of
// truth for listen host/port (see internal/model.ServerConfig).
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
)

// Config is the process's environment-sourced bootstrap configuration.
type Config struct {
	ConfigDir  string
	ListenHost string
	Port       int
	LogLevel   zerolog.Level
	LogJSON    bool
}

// Load reads FEISYNC_* environment variables, applying the defaults
// from SPEC_FULL.md §4.8.
func Load() (Config, error) {
	dir := os.Getenv("FEISYNC_CONFIG_DIR")
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Config{}, err
		}
		dir = filepath.Join(base, "feisync")
	}

	host := os.Getenv("FEISYNC_LISTEN_HOST")
	if host == "" {
		host = "127.0.0.1"
	}

	port := 6688
	if raw := os.Getenv("FEISYNC_PORT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			port = v
		}
	}

	level := zerolog.InfoLevel
	if raw := os.Getenv("FEISYNC_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	logJSON := os.Getenv("FEISYNC_LOG_JSON") == "true"

	return Config{
		ConfigDir:  dir,
		ListenHost: host,
		Port:       port,
		LogLevel:   level,
		LogJSON:    logJSON,
	}, nil
}
