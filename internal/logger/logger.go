package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvLogLevel = "LOG_LEVEL"

var Log *zap.Logger

// ParseLevel maps a LOG_LEVEL value to a zap level. Unknown values fall back to info.
func ParseLevel(levelStr string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "", "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "dpanic":
		return zapcore.DPanicLevel, true
	case "panic":
		return zapcore.PanicLevel, true
	case "fatal":
		return zapcore.FatalLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

func init() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", r)
			Log = zap.NewNop()
		}
	}()

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(config)

	levelStr := os.Getenv(EnvLogLevel)
	logLevel, ok := ParseLevel(levelStr)
	if !ok {
		fmt.Fprintf(os.Stderr, "Warning: Invalid LOG_LEVEL '%s', using INFO\n", levelStr)
	}

	core := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), logLevel)

	Log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	Log.Debug("Zap logger initialized.", zap.String("configuredLogLevel", logLevel.String()))
}

func Close() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}

// CronZapLogger adapts zap to cron.Logger.
type CronZapLogger struct {
	logger *zap.Logger
}

func NewCronZapLogger(logger *zap.Logger) *CronZapLogger {
	return &CronZapLogger{logger: logger}
}

func (czl *CronZapLogger) Info(msg string, keysAndValues ...interface{}) {
	czl.logger.Info(msg, czl.formatKeysAndValues(keysAndValues...)...)
}

func (czl *CronZapLogger) Debug(msg string, keysAndValues ...interface{}) {
	czl.logger.Debug(msg, czl.formatKeysAndValues(keysAndValues...)...)
}

func (czl *CronZapLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := czl.formatKeysAndValues(keysAndValues...)
	fields = append(fields, zap.Error(err))
	czl.logger.Error(msg, fields...)
}

func (czl *CronZapLogger) formatKeysAndValues(keysAndValues ...interface{}) []zap.Field {
	var fields []zap.Field

	if len(keysAndValues)%2 != 0 {
		czl.logger.Warn("Odd number of arguments passed to logger",
			zap.Int("count", len(keysAndValues)),
			zap.Any("args", keysAndValues),
		)
	}

	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("unknown_key_%d", i/2)
		}
		if i+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		} else {
			fields = append(fields, zap.Any(key, "<missing_value>"))
		}
	}
	return fields
}
