package telemetry

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap/zapcore"
)

// LogCore returns a zap core that exports entries at or above level through the
// OTLP log pipeline. Without log export it is a no-op core, so callers can tee it
// unconditionally.
func (p *Providers) LogCore(name string, level zapcore.LevelEnabler) zapcore.Core {
	return newLogCore(p.logs, name, level)
}

func newLogCore(lp *sdklog.LoggerProvider, name string, level zapcore.LevelEnabler) zapcore.Core {
	if lp == nil {
		return zapcore.NewNopCore()
	}
	return &levelCore{
		Core:  otelzap.NewCore(name, otelzap.WithLoggerProvider(lp)),
		level: level,
	}
}

// levelCore applies the process log level to the bridge, which has none of its own
type levelCore struct {
	zapcore.Core
	level zapcore.LevelEnabler
}

func (c *levelCore) Enabled(lvl zapcore.Level) bool {
	return c.level.Enabled(lvl) && c.Core.Enabled(lvl)
}

func (c *levelCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.level.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), level: c.level}
}
