// Package zerolog adapts github.com/rs/zerolog to the core.Logger contract.
package zerolog

import (
	"fmt"

	"github.com/dawoonj/krwbot/core"

	"github.com/rs/zerolog"
)

type Adapter struct {
	*zerolog.Logger
}

func NewAdapter(logger *zerolog.Logger) *Adapter {
	return &Adapter{logger}
}

// GetLevel implements core.Logger.
func (z *Adapter) GetLevel() core.Level {
	return toLevel(z.Logger.GetLevel())
}

// SetLevel implements core.Logger.
func (z *Adapter) SetLevel(level core.Level) {
	zerolog.SetGlobalLevel(toZerologLevel(level))
}

// Trace implements core.Logger.
func (z *Adapter) Trace(args ...any) {
	z.Logger.Trace().Msg(fmt.Sprint(args...))
}

// Tracef implements core.Logger.
func (z *Adapter) Tracef(format string, args ...any) {
	z.Logger.Trace().Msgf(format, args...)
}

// Debug implements core.Logger.
func (z *Adapter) Debug(args ...any) {
	z.Logger.Debug().Msg(fmt.Sprint(args...))
}

// Debugf implements core.Logger.
func (z *Adapter) Debugf(format string, args ...any) {
	z.Logger.Debug().Msgf(format, args...)
}

// Info implements core.Logger.
func (z *Adapter) Info(args ...any) {
	z.Logger.Info().Msg(fmt.Sprint(args...))
}

// Infof implements core.Logger.
func (z *Adapter) Infof(format string, args ...any) {
	z.Logger.Info().Msgf(format, args...)
}

// Warn implements core.Logger.
func (z *Adapter) Warn(args ...any) {
	z.Logger.Warn().Msg(fmt.Sprint(args...))
}

// Warnf implements core.Logger.
func (z *Adapter) Warnf(format string, args ...any) {
	z.Logger.Warn().Msgf(format, args...)
}

// Error implements core.Logger.
func (z *Adapter) Error(args ...any) {
	z.Logger.Error().Msg(fmt.Sprint(args...))
}

// Errorf implements core.Logger.
func (z *Adapter) Errorf(format string, args ...any) {
	z.Logger.Error().Msgf(format, args...)
}

// Fatal implements core.Logger.
func (z *Adapter) Fatal(args ...any) {
	z.Logger.Fatal().Msg(fmt.Sprint(args...))
}

// Fatalf implements core.Logger.
func (z *Adapter) Fatalf(format string, args ...any) {
	z.Logger.Fatal().Msgf(format, args...)
}

// WithError implements core.Logger.
func (z *Adapter) WithError(err error) core.Logger {
	newLogger := z.With().Err(err).Logger()
	return &Adapter{&newLogger}
}

// WithField implements core.Logger.
func (z *Adapter) WithField(key string, value any) core.Logger {
	newLogger := z.With().Interface(key, value).Logger()
	return &Adapter{&newLogger}
}

// WithFields implements core.Logger.
func (z *Adapter) WithFields(fields map[string]any) core.Logger {
	ctx := z.With()
	for key, value := range fields {
		ctx = ctx.Interface(key, value)
	}
	newLogger := ctx.Logger()
	return &Adapter{&newLogger}
}

func toLevel(level zerolog.Level) core.Level {
	switch level {
	case zerolog.TraceLevel:
		return core.TraceLevel
	case zerolog.DebugLevel:
		return core.DebugLevel
	case zerolog.InfoLevel:
		return core.InfoLevel
	case zerolog.WarnLevel:
		return core.WarnLevel
	case zerolog.ErrorLevel:
		return core.ErrorLevel
	case zerolog.FatalLevel:
		return core.FatalLevel
	case zerolog.PanicLevel:
		return core.PanicLevel
	case zerolog.Disabled:
		return core.Disabled
	default:
		return core.NoLevel
	}
}

func toZerologLevel(level core.Level) zerolog.Level {
	switch level {
	case core.TraceLevel:
		return zerolog.TraceLevel
	case core.DebugLevel:
		return zerolog.DebugLevel
	case core.InfoLevel:
		return zerolog.InfoLevel
	case core.WarnLevel:
		return zerolog.WarnLevel
	case core.ErrorLevel:
		return zerolog.ErrorLevel
	case core.FatalLevel:
		return zerolog.FatalLevel
	case core.PanicLevel:
		return zerolog.PanicLevel
	case core.Disabled:
		return zerolog.Disabled
	default:
		return zerolog.NoLevel
	}
}
