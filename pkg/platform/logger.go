package platform

import (
	"log/slog"
	"os"
)

// InitLogger installs the process-wide logger. Discovery runs log JSON
// lines so the provider/unit attributes on warnings stay machine-readable.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// LogFatal logs the error and exits. For command startup paths only.
func LogFatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
