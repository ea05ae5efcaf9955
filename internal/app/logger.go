package app

import (
	"strings"

	"github.com/charlesng35/alterra/pkg/logger"
)

// ConfigureLogging initialises the global logger, defaulting to info level
// JSON output.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.Init(level, strings.TrimSpace(cfg.LogFormat))
}
