package utils

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/mdobak/go-xerrors"
)

var (
	loggerOnce sync.Once
	logger     *slog.Logger
)

// GetLogger returns the process-wide structured logger. The handler renders
// go-xerrors values with their stack traces so wrapped pipeline errors stay
// inspectable in the log stream.
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		level := slog.LevelInfo
		if GetEnv("LOG_LEVEL", "info") == "debug" {
			level = slog.LevelDebug
		}
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceErrorAttr,
		})
		logger = slog.New(handler)
	})
	return logger
}

func replaceErrorAttr(_ []string, attr slog.Attr) slog.Attr {
	err, ok := attr.Value.Any().(error)
	if !ok {
		return attr
	}
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return slog.String(attr.Key, err.Error())
	}
	frames := trace.Frames()
	group := []slog.Attr{
		slog.String("msg", err.Error()),
	}
	if len(frames) > 0 {
		group = append(group,
			slog.String("func", frames[0].Function),
			slog.String("source", frames[0].File),
			slog.Int("line", frames[0].Line),
		)
	}
	return slog.Attr{Key: attr.Key, Value: slog.GroupValue(group...)}
}

// LogError records err against the default logger with context.
func LogError(ctx context.Context, msg string, err error) {
	GetLogger().ErrorContext(ctx, msg, slog.Any("error", xerrors.New(err)))
}
