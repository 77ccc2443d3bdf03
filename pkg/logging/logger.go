// 结构化日志
package logging

import (
	"os"
	"strings"

	"github.com/autofund-ai/autofund/pkg/config"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger 创建日志记录器
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "json" {
		encoderConfig = zap.NewProductionEncoderConfig()
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	// 配置输出，非 stdout/stderr 的值视为文件路径
	var output zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stdout":
		output = zapcore.AddSync(os.Stdout)
	case "stderr":
		output = zapcore.AddSync(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		output = zapcore.AddSync(f)
	}

	core := zapcore.NewCore(encoder, output, level)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logger, nil
}

// TemporalLogger 适配 Temporal SDK 的日志接口
type TemporalLogger struct {
	logger *zap.Logger
}

// NewTemporalLogger 创建 Temporal 日志适配器
func NewTemporalLogger(logger *zap.Logger) log.Logger {
	return &TemporalLogger{logger: logger.With(zap.String("component", "temporal"))}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, toZapFields(keyvals)...)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, toZapFields(keyvals)...)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, toZapFields(keyvals)...)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, toZapFields(keyvals)...)
}

func toZapFields(keyvals []interface{}) []zap.Field {
	if len(keyvals)%2 != 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	return fields
}

// SanitizeForLog 敏感数据脱敏
func SanitizeForLog(data map[string]interface{}) map[string]interface{} {
	sensitiveFields := map[string]bool{
		"api_key":  true,
		"password": true,
		"token":    true,
		"secret":   true,
		"key":      true,
	}

	result := make(map[string]interface{})
	for k, v := range data {
		switch {
		case sensitiveFields[k]:
			result[k] = "***REDACTED***"
		case k == "nif":
			if s, ok := v.(string); ok {
				result[k] = MaskNIF(s)
				continue
			}
			result[k] = v
		default:
			result[k] = v
		}
	}
	return result
}

// MaskNIF 日志中仅保留 NIF 末三位
func MaskNIF(nif string) string {
	nif = strings.TrimSpace(nif)
	if len(nif) <= 3 {
		return strings.Repeat("*", len(nif))
	}
	return strings.Repeat("*", len(nif)-3) + nif[len(nif)-3:]
}

// NIF 返回脱敏后的 nif 日志字段
func NIF(nif string) zap.Field {
	return zap.String("nif", MaskNIF(nif))
}
