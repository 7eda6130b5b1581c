package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thushan-yassen/egressgw/theme"
)

// PrettyStyledLogger implements StyledLogger with pterm-themed colouring.
type PrettyStyledLogger struct {
	logger *slog.Logger
	Theme  *theme.Theme
}

func NewPrettyStyledLogger(logger *slog.Logger, appTheme *theme.Theme) *PrettyStyledLogger {
	return &PrettyStyledLogger{logger: logger, Theme: appTheme}
}

func (sl *PrettyStyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *PrettyStyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *PrettyStyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *PrettyStyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *PrettyStyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.Theme.Highlight.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *PrettyStyledLogger) InfoWithComponent(msg string, component string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.Theme.Accent.Sprint(component))
	sl.logger.Info(styledMsg, args...)
}

func (sl *PrettyStyledLogger) WarnWithComponent(msg string, component string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.Theme.Accent.Sprint(component))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *PrettyStyledLogger) ErrorWithComponent(msg string, component string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.Theme.Accent.Sprint(component))
	sl.logger.Error(styledMsg, args...)
}

func (sl *PrettyStyledLogger) InfoHealthStatus(msg string, name string, state HealthState, args ...any) {
	var style interface{ Sprint(...interface{}) string }
	var statusText string

	switch state {
	case HealthHealthy:
		style = sl.Theme.Success
		statusText = "Healthy"
	case HealthDegraded:
		style = sl.Theme.Warn
		statusText = "Degraded"
	case HealthDown:
		style = sl.Theme.Error
		statusText = "Down"
	default:
		style = sl.Theme.Muted
		statusText = "Unknown"
	}

	styledMsg := fmt.Sprintf("%s %s is %s", msg, sl.Theme.Accent.Sprint(name), style.Sprint(statusText))
	sl.logger.Info(styledMsg, args...)
}

func (sl *PrettyStyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *PrettyStyledLogger) WithRequestID(requestID string) StyledLogger {
	return sl.With("request_id", requestID)
}

func (sl *PrettyStyledLogger) InfoConfigReload(section string) {
	sl.logger.Info(fmt.Sprintf("Configuration reloaded: %s", sl.Theme.Accent.Sprint(section)))
}

func (sl *PrettyStyledLogger) WithAttrs(attrs ...slog.Attr) StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}
	return &PrettyStyledLogger{logger: sl.logger.With(args...), Theme: sl.Theme}
}

func (sl *PrettyStyledLogger) With(args ...any) StyledLogger {
	return &PrettyStyledLogger{logger: sl.logger.With(args...), Theme: sl.Theme}
}

func (sl *PrettyStyledLogger) InfoWithContext(msg string, component string, ctx LogContext) {
	sl.logWithContext(LogLevelInfo, msg, component, ctx)
}

func (sl *PrettyStyledLogger) WarnWithContext(msg string, component string, ctx LogContext) {
	sl.logWithContext(LogLevelWarn, msg, component, ctx)
}

func (sl *PrettyStyledLogger) ErrorWithContext(msg string, component string, ctx LogContext) {
	sl.logWithContext(LogLevelError, msg, component, ctx)
}

func (sl *PrettyStyledLogger) logWithContext(level string, msg string, component string, ctx LogContext) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.Theme.Accent.Sprint(component))

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
