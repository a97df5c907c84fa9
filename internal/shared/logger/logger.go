package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New monta o logger do serviço. Em ENV=local usa a config de desenvolvimento
// (console colorido, nível debug); nos demais ambientes, JSON de produção.
// Campos extras (ex.: chain id) entram como campos fixos de todas as linhas.
func New(serviceName string, env string, extra ...zap.Field) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env == "local" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	fields := append([]zap.Field{
		zap.String("service", serviceName),
		zap.String("env", env),
	}, extra...)

	return cfg.Build(zap.Fields(fields...))
}
