package logging

import (
	"log/slog"
)

// Logger is the level-based logging interface the storage, credential and
// calendar packages depend on. Arguments are alternating key-value pairs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// secretKeys are argument keys whose values carry credential material.
var secretKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"client_secret": true,
	"code":          true,
	"token":         true,
}

// SlogAdapter adapts an slog.Logger to Logger. Values passed under a
// credential key are masked and raw idempotency keys are hashed before
// they reach the handler.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger. A nil logger means slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Debug(msg string, args ...interface{}) {
	a.logger.Debug(msg, redact(args)...)
}

func (a *SlogAdapter) Info(msg string, args ...interface{}) {
	a.logger.Info(msg, redact(args)...)
}

func (a *SlogAdapter) Warn(msg string, args ...interface{}) {
	a.logger.Warn(msg, redact(args)...)
}

func (a *SlogAdapter) Error(msg string, args ...interface{}) {
	a.logger.Error(msg, redact(args)...)
}

// With returns an adapter that adds args to every entry.
func (a *SlogAdapter) With(args ...interface{}) *SlogAdapter {
	return &SlogAdapter{logger: a.logger.With(redact(args)...)}
}

// Logger returns the underlying slog.Logger.
func (a *SlogAdapter) Logger() *slog.Logger {
	return a.logger
}

// DefaultLogger returns an adapter over slog.Default().
func DefaultLogger() *SlogAdapter {
	return NewSlogAdapter(slog.Default())
}

// redact copies args, masking string values under secret keys and hashing
// values under KeyIdempotencyKey. slog.Attr arguments pass through.
func redact(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			// An slog.Attr occupies a single slot.
			i--
			continue
		}
		value, isString := out[i+1].(string)
		if !isString {
			continue
		}
		switch {
		case secretKeys[key]:
			out[i+1] = SanitizeToken(value)
		case key == KeyIdempotencyKey:
			out[i+1] = HashIdempotencyKey(value)
		}
	}
	return out
}
