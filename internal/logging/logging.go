// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Console selects stderr output when passed as the path
const Console = "console"

// Init parses level and points the standard logger at path
func Init(level, path string) error {
	return Configure(log.StandardLogger(), level, path)
}

// Configure applies level and output to logger. An empty path or "console"
// keeps the current output; anything else becomes a rotated log file.
func Configure(logger *log.Logger, level, path string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Errorf("Failed parsing log-level %s: %s", level, err)
		return err
	}

	if path != "" && path != Console {
		logger.SetOutput(io.Writer(&lumberjack.Logger{
			Filename:   filepath.ToSlash(path),
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}))
	}

	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger.SetLevel(lvl)
	return nil
}
