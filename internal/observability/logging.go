// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// GlobalLogger is the logger used by repository and service helpers. The
// server replaces it with the context-aware request logger at startup.
var GlobalLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// SetLogger swaps the logger used by this package.
func SetLogger(l *slog.Logger) {
	if l != nil {
		GlobalLogger = l
	}
}

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableRepoLogging    bool
	EnableServiceLogging bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableRepoLogging:    true,
	EnableServiceLogging: true,
}

// RepoLogger provides structured logging for repository operations.
type RepoLogger struct {
	tableName string
}

// NewRepoLogger creates a new RepoLogger for the given table.
func NewRepoLogger(tableName string) *RepoLogger {
	return &RepoLogger{tableName: tableName}
}

func (l *RepoLogger) log(ctx context.Context, level slog.Level, msg, operation string, attrs []slog.Attr) {
	if !Config.EnableRepoLogging {
		return
	}
	all := make([]slog.Attr, 0, len(attrs)+2)
	all = append(all, slog.String("table", l.tableName), slog.String("operation", operation))
	all = append(all, attrs...)
	GlobalLogger.LogAttrs(ctx, level, msg, all...)
}

// LogCreate logs a repository write that inserted rows.
func (l *RepoLogger) LogCreate(ctx context.Context, operation string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, "repository create", operation, attrs)
}

// LogUpdate logs a repository write that changed rows.
func (l *RepoLogger) LogUpdate(ctx context.Context, operation string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, "repository update", operation, attrs)
}

// LogDelete logs a repository removal.
func (l *RepoLogger) LogDelete(ctx context.Context, operation string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelInfo, "repository delete", operation, attrs)
}

// LogError logs a repository error along with the ids involved.
func (l *RepoLogger) LogError(ctx context.Context, err error, operation string, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("error", err.Error()))
	l.log(ctx, slog.LevelError, "repository error", operation, attrs)
}

// LogServiceCall logs a service method call.
func LogServiceCall(ctx context.Context, service, method string, attrs ...slog.Attr) {
	if !Config.EnableServiceLogging {
		return
	}
	all := append([]slog.Attr{
		slog.String("service", service),
		slog.String("method", method),
	}, attrs...)
	GlobalLogger.LogAttrs(ctx, slog.LevelDebug, "service call", all...)
}

// LogServiceError logs a failed service call before it is translated for the caller.
func LogServiceError(ctx context.Context, service, method string, err error, attrs ...slog.Attr) {
	all := append([]slog.Attr{
		slog.String("service", service),
		slog.String("method", method),
		slog.String("error", err.Error()),
	}, attrs...)
	GlobalLogger.LogAttrs(ctx, slog.LevelWarn, "service call failed", all...)
}
