package executor

import "fmt"

// graceful.go provides helpers for graceful degradation patterns across the
// executor package. The pattern: warn about errors but don't fail execution.

// FormatLogger is the minimal sink GracefulWarn/GracefulInfo need. A
// *logger.Writer satisfies it via Warn/Info taking a pre-formatted string.
type FormatLogger interface {
	Warn(message string, taskID string) error
	Info(message string, taskID string) error
}

// GracefulWarn logs a warning if logger is non-nil, using the given format
// and args, scoped to taskID. Eliminates the repeated pattern of:
//
//	if logger != nil {
//	    logger.Warn(fmt.Sprintf(format, args...), taskID)
//	}
func GracefulWarn(logger FormatLogger, taskID, format string, args ...interface{}) {
	if logger != nil {
		_ = logger.Warn(fmt.Sprintf(format, args...), taskID)
	}
}

// GracefulInfo logs an info message if logger is non-nil. Companion to
// GracefulWarn for consistent logger nil-checking.
func GracefulInfo(logger FormatLogger, taskID, format string, args ...interface{}) {
	if logger != nil {
		_ = logger.Info(fmt.Sprintf(format, args...), taskID)
	}
}
