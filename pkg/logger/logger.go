package logger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/opshub/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once      sync.Once
	defaultMu sync.Mutex
	defLogger *Logger
)

// Logger 日志管理器
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// Init 初始化日志
func Init(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		var l *Logger
		l, err = newLogger(cfg)
		if err == nil {
			defaultMu.Lock()
			defLogger = l
			defaultMu.Unlock()
		}
	})
	return err
}

// newLogger 创建日志实例
func newLogger(cfg *config.LogConfig) (*Logger, error) {
	level := parseLevel(cfg.Level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var cores []zapcore.Core
	switch cfg.Output {
	case "file":
		cores = append(cores, zapcore.NewCore(encoder, fileWriter(cfg), level))
	case "stderr":
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level))
	case "both":
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
		cores = append(cores, zapcore.NewCore(encoder, fileWriter(cfg), level))
	default:
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		Logger: zapLogger,
		sugar:  zapLogger.Sugar(),
	}, nil
}

// parseLevel 解析日志级别
func parseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// fileWriter 使用lumberjack进行日志轮转
func fileWriter(cfg *config.LogConfig) zapcore.WriteSyncer {
	if dir := filepath.Dir(cfg.Filename); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
}

// Get 获取日志实例，未初始化时退化为标准错误输出
func Get() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defLogger == nil {
		defLogger, _ = newLogger(&config.LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		})
	}
	return defLogger
}

// Named 获取带模块名的子日志
func Named(name string) *zap.Logger {
	return Get().Logger.WithOptions(zap.AddCallerSkip(-1)).Named(name)
}

// Sugar 获取SugaredLogger
func Sugar() *zap.SugaredLogger {
	return Get().sugar
}

// Sync 同步日志
func Sync() error {
	return Get().Logger.Sync()
}

// Debug 调试日志
func Debug(msg string, fields ...zap.Field) {
	Get().Logger.Debug(msg, fields...)
}

// Info 信息日志
func Info(msg string, fields ...zap.Field) {
	Get().Logger.Info(msg, fields...)
}

// Warn 警告日志
func Warn(msg string, fields ...zap.Field) {
	Get().Logger.Warn(msg, fields...)
}

// Error 错误日志
func Error(msg string, fields ...zap.Field) {
	Get().Logger.Error(msg, fields...)
}

// Fatal 致命错误日志
func Fatal(msg string, fields ...zap.Field) {
	Get().Logger.Fatal(msg, fields...)
}

// Infof 格式化信息日志
func Infof(template string, args ...interface{}) {
	Sugar().Infof(template, args...)
}

// Warnf 格式化警告日志
func Warnf(template string, args ...interface{}) {
	Sugar().Warnf(template, args...)
}

// WithFields 添加字段
func WithFields(fields ...zap.Field) *zap.Logger {
	return Get().Logger.With(fields...)
}

// String 字符串字段
func String(key string, value string) zap.Field {
	return zap.String(key, value)
}

// Int 整数字段
func Int(key string, value int) zap.Field {
	return zap.Int(key, value)
}

// Int64 64位整数字段
func Int64(key string, value int64) zap.Field {
	return zap.Int64(key, value)
}

// UserID 用户ID字段
func UserID(id int64) zap.Field {
	return zap.Int64("userId", id)
}

// Err 错误字段
func Err(err error) zap.Field {
	return zap.Error(err)
}
