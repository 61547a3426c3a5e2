package config

import (
	"context"
	"os"
	"strings"

	"github.com/mmdatafocus/orderdesk_backend/appctx"
	"github.com/sirupsen/logrus"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(logLevelFromEnv())
	logg.SetOutput(os.Stdout)
}

func logLevelFromEnv() logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// WithCorrelation attaches the request correlation id, if any, to a log entry.
func WithCorrelation(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	if cid, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); ok && cid != "" {
		return logger.WithField("correlation_id", cid)
	}
	return logrus.NewEntry(logger)
}
