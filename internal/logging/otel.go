package logging

import (
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore tees the redacting stdout core with an otelzap core when OTEL
// output is on and a provider is available.
func newCore(cfg *Config, level zapcore.LevelEnabler, otelProvider log.LoggerProvider, out zapcore.WriteSyncer) (zapcore.Core, error) {
	encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
	}
	core := zapcore.NewCore(encoder, out, level)

	if cfg.OTEL && otelProvider != nil {
		otelCore := otelzap.NewCore("contextlog", otelzap.WithLoggerProvider(otelProvider))
		core = zapcore.NewTee(core, &levelFilterCore{Core: otelCore, enabler: level})
	}

	return newSampledCore(core, cfg.Sampling), nil
}
