package logger

import (
	"log/slog"

	"github.com/thushan-yassen/egressgw/internal/util"
	"github.com/thushan-yassen/egressgw/theme"
)

// HealthState is a coarse status used purely for log colouring. It is
// intentionally detached from any domain package so the logger never has
// to import key-pool or tunnel types.
type HealthState int

const (
	HealthUnknown HealthState = iota
	HealthHealthy
	HealthDegraded
	HealthDown
)

// LogContext carries the two argument sets InfoWithContext-family methods
// split between the console line and the detailed file-only record.
type LogContext struct {
	UserArgs     []any
	DetailedArgs []any
}

// StyledLogger wraps slog.Logger with theme-aware helpers for the small set
// of recurring shapes this gateway logs: request counts, named components
// (a key, a provider, a tunnel interface) and health transitions.
type StyledLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	InfoWithCount(msg string, count int, args ...any)
	InfoWithComponent(msg string, component string, args ...any)
	WarnWithComponent(msg string, component string, args ...any)
	ErrorWithComponent(msg string, component string, args ...any)
	InfoHealthStatus(msg string, name string, state HealthState, args ...any)

	InfoWithContext(msg string, component string, ctx LogContext)
	WarnWithContext(msg string, component string, ctx LogContext)
	ErrorWithContext(msg string, component string, ctx LogContext)

	InfoConfigReload(section string)

	WithRequestID(requestID string) StyledLogger
	WithAttrs(attrs ...slog.Attr) StyledLogger
	With(args ...any) StyledLogger
	GetUnderlying() *slog.Logger
}

// NewStyledLogger picks the pretty (pterm, coloured) or plain (slog only)
// implementation depending on whether the terminal can render colour.
func NewStyledLogger(base *slog.Logger, appTheme *theme.Theme) StyledLogger {
	if util.ShouldUseColors() {
		return NewPrettyStyledLogger(base, appTheme)
	}
	return NewPlainStyledLogger(base)
}

// NewWithTheme creates both a regular logger and a styled logger from config.
func NewWithTheme(cfg *Config) (*slog.Logger, StyledLogger, func(), error) {
	base, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styled := NewStyledLogger(base, appTheme)
	return base, styled, cleanup, nil
}

func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}
