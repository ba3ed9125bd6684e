package extensions

import (
	"context"
	"log/slog"
	"time"

	featurea "github.com/featurea/featurea-go"
)

// LoggingExtension logs all operations
type LoggingExtension struct {
	featurea.BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension creates a new logging extension. A nil logger uses
// slog.Default.
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingExtension{
		BaseExtension: featurea.NewBaseExtension("logging"),
		logger:        logger,
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *featurea.Operation) (any, error) {
	attrs := []any{"op", string(op.Kind), "key", op.Key.String()}
	if op.Module != nil {
		attrs = append(attrs, "module", op.Module.Name())
	}

	start := time.Now()
	e.logger.Debug("operation starting", attrs...)
	result, err := next()

	attrs = append(attrs, "duration", time.Since(start))
	if err != nil {
		e.logger.Error("operation failed", append(attrs, "error", err)...)
	} else {
		e.logger.Debug("operation completed", attrs...)
	}

	return result, err
}

func (e *LoggingExtension) OnCleanupError(err *featurea.CleanupError) bool {
	e.logger.Warn("cleanup failed",
		"key", err.Key.String(),
		"module", err.Module,
		"context", err.Context,
		"error", err.Err,
	)
	return false
}
