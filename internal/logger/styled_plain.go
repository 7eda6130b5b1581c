package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// PlainStyledLogger implements StyledLogger without ANSI styling, used when
// stdout isn't a terminal or NO_COLOR is set.
type PlainStyledLogger struct {
	logger *slog.Logger
}

func NewPlainStyledLogger(logger *slog.Logger) *PlainStyledLogger {
	return &PlainStyledLogger{logger: logger}
}

func (sl *PlainStyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *PlainStyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *PlainStyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *PlainStyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *PlainStyledLogger) InfoWithCount(msg string, count int, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s (%d)", msg, count), args...)
}

func (sl *PlainStyledLogger) InfoWithComponent(msg string, component string, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s", msg, component), args...)
}

func (sl *PlainStyledLogger) WarnWithComponent(msg string, component string, args ...any) {
	sl.logger.Warn(fmt.Sprintf("%s %s", msg, component), args...)
}

func (sl *PlainStyledLogger) ErrorWithComponent(msg string, component string, args ...any) {
	sl.logger.Error(fmt.Sprintf("%s %s", msg, component), args...)
}

func (sl *PlainStyledLogger) InfoHealthStatus(msg string, name string, state HealthState, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s is %s", msg, name, healthStateText(state)), args...)
}

func (sl *PlainStyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *PlainStyledLogger) WithRequestID(requestID string) StyledLogger {
	return sl.With("request_id", requestID)
}

func (sl *PlainStyledLogger) InfoConfigReload(section string) {
	sl.logger.Info(fmt.Sprintf("Configuration reloaded: %s", section))
}

func (sl *PlainStyledLogger) WithAttrs(attrs ...slog.Attr) StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}
	return &PlainStyledLogger{logger: sl.logger.With(args...)}
}

func (sl *PlainStyledLogger) With(args ...any) StyledLogger {
	return &PlainStyledLogger{logger: sl.logger.With(args...)}
}

func (sl *PlainStyledLogger) InfoWithContext(msg string, component string, ctx LogContext) {
	sl.logWithContext(LogLevelInfo, msg, component, ctx)
}

func (sl *PlainStyledLogger) WarnWithContext(msg string, component string, ctx LogContext) {
	sl.logWithContext(LogLevelWarn, msg, component, ctx)
}

func (sl *PlainStyledLogger) ErrorWithContext(msg string, component string, ctx LogContext) {
	sl.logWithContext(LogLevelError, msg, component, ctx)
}

// logWithContext logs a clean one-liner to the console and, when detailed
// args are supplied, a second structured record tagged for file-only output.
func (sl *PlainStyledLogger) logWithContext(level string, msg string, component string, ctx LogContext) {
	styledMsg := fmt.Sprintf("%s %s", msg, component)

	switch level {
	case LogLevelInfo:
		sl.logger.Info(styledMsg, ctx.UserArgs...)
	case LogLevelWarn:
		sl.logger.Warn(styledMsg, ctx.UserArgs...)
	case LogLevelError:
		sl.logger.Error(styledMsg, ctx.UserArgs...)
	}

	if len(ctx.DetailedArgs) > 0 {
		allArgs := make([]interface{}, 0, len(ctx.UserArgs)+len(ctx.DetailedArgs)+2)
		allArgs = append(allArgs, "component", component)
		allArgs = append(allArgs, ctx.UserArgs...)
		allArgs = append(allArgs, ctx.DetailedArgs...)

		detailedCtx := context.WithValue(context.Background(), DefaultDetailedCookie, true)

		switch level {
		case LogLevelInfo:
			sl.logger.InfoContext(detailedCtx, msg, allArgs...)
		case LogLevelWarn:
			sl.logger.WarnContext(detailedCtx, msg, allArgs...)
		case LogLevelError:
			sl.logger.ErrorContext(detailedCtx, msg, allArgs...)
		}
	}
}

func healthStateText(state HealthState) string {
	switch state {
	case HealthHealthy:
		return "Healthy"
	case HealthDegraded:
		return "Degraded"
	case HealthDown:
		return "Down"
	default:
		return "Unknown"
	}
}
