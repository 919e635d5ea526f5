package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// global backs every helper when the context carries no logger.
	//nolint:gochecknoglobals // One logger per process, shared by every command.
	global *zap.SugaredLogger
	// level is shared by the global logger and everything derived from it.
	//nolint:gochecknoglobals // Changed once from the loaded settings.
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
	// levelNames are the accepted log_level values.
	//nolint:gochecknoglobals // Read-only lookup table.
	levelNames = map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"fatal": zapcore.FatalLevel,
	}
)

func init() { //nolint:gochecknoinits // Commands log before the settings are loaded.
	global = New(level)
}

// New builds a console logger writing to stderr; stdout is left to command output.
// A nil enabler means the shared level.
func New(enabler zapcore.LevelEnabler, options ...zap.Option) *zap.SugaredLogger {
	if enabler == nil {
		enabler = level
	}

	//nolint:exhaustruct // Unset encoder keys are omitted from the output.
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "message",
		LevelKey:         "level",
		NameKey:          "logger",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: ", ",
	})

	return zap.New(zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), enabler), options...).Sugar()
}

// ParseLogLevel maps a log_level value to a zap level. Unknown values report false.
func ParseLogLevel(s string) (zapcore.Level, bool) {
	l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return zapcore.InfoLevel, false
	}

	return l, true
}

// Logger returns the global logger.
func Logger() *zap.SugaredLogger {
	return global
}

// SetLevel changes the level of the global logger and of every logger derived from it.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// DebugKV writes message with key-value pairs at debug level.
func DebugKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Debugw(message, kvs...)
}

// InfoKV writes message with key-value pairs at info level.
func InfoKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Infow(message, kvs...)
}

// WarnKV writes message with key-value pairs at warning level.
func WarnKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Warnw(message, kvs...)
}

// ErrorKV writes message with key-value pairs at error level.
func ErrorKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Errorw(message, kvs...)
}

// Error writes args at error level.
func Error(ctx context.Context, args ...any) {
	FromContext(ctx).Error(args...)
}

// Sync flushes the global logger.
func Sync() {
	// Syncing stderr fails on some terminals, there is nothing to do about it.
	_ = global.Sync()
}
