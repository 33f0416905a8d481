// Package logging builds the zap logger used by samctl and keeps secrets out
// of log fields.
package logging

import (
	"fmt"
	"regexp"

	"samledger/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RedactedText replaces credentials in logged values.
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)
	// user:pass@host
	userInfoPattern = regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`)
)

// New returns a JSON production logger, or a colored console logger when
// cfg.Development is set.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = level
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// SanitizeDSN removes passwords from a connection string before it is logged.
func SanitizeDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	out := passwordPattern.ReplaceAllString(dsn, "${1}="+RedactedText)
	return userInfoPattern.ReplaceAllString(out, "://"+RedactedText+"@")
}
