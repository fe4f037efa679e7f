package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables to configure the log file path and level.
const (
	envLogPath  = "SWCACHE_LOG"
	envLogLevel = "SWCACHE_LOG_LEVEL"
)

var (
	std           *zap.Logger
	sugar         *zap.SugaredLogger
	logFile       *os.File
	isInitialized bool
)

// InitFromEnv initializes the logger using SWCACHE_LOG or a default path.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "" {
		// Default to the directory where the executable is located
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), "swcache.log")
		} else {
			path = "./swcache.log"
		}
	}
	return Init(path, os.Getenv(envLogLevel))
}

// Init initializes the logger to write JSON lines to the provided file path.
// It creates parent directories if needed and opens the file in append mode.
// An empty or unknown level means info.
func Init(path, level string) error {
	if isInitialized {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	lvl := zapcore.InfoLevel
	if level != "" {
		if parsed, perr := zapcore.ParseLevel(level); perr == nil {
			lvl = parsed
		}
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), lvl)

	logFile = f
	std = zap.New(core)
	sugar = std.Sugar()
	isInitialized = true
	return nil
}

// L returns the structured logger. Before Init it returns a no-op logger.
func L() *zap.Logger {
	if std == nil {
		return zap.NewNop()
	}
	return std
}

// Named returns a child logger tagged with the component name.
func Named(component string) *zap.Logger { return L().Named(component) }

// Close flushes and closes the underlying log file, if open.
func Close() error {
	if std != nil {
		_ = std.Sync()
	}
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Debugf logs debug messages.
func Debugf(format string, args ...any) { s().Debugf(format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { s().Infof(format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { s().Warnf(format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { s().Errorf(format, args...) }

func s() *zap.SugaredLogger {
	if sugar == nil {
		// Fallback: initialize with default if not already.
		_ = InitFromEnv()
	}
	if sugar == nil {
		return zap.NewNop().Sugar()
	}
	return sugar
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
