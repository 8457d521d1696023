package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "default config", cfg: DefaultConfig()},
		{name: "production config", cfg: ProductionConfig()},
		{name: "json to stderr", cfg: &Config{Level: "debug", Format: "json", Output: "stderr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, l)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("info"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	// unknown levels default to info
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestContextLogger(t *testing.T) {
	base := zap.NewNop()

	t.Run("round-trips logger through context", func(t *testing.T) {
		ctx := WithContext(context.Background(), base)
		assert.Same(t, base, FromContext(ctx))
	})

	t.Run("missing logger yields no-op", func(t *testing.T) {
		l := FromContext(context.Background())
		require.NotNil(t, l)
	})

	t.Run("no active span leaves logger unchanged", func(t *testing.T) {
		assert.Same(t, base, WithTraceContext(context.Background(), base))
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}

func TestGormLogger_LogMode(t *testing.T) {
	gl := NewGormLogger(zap.NewNop(), gormlogger.Warn)
	changed := gl.LogMode(gormlogger.Info)

	// LogMode returns a copy, the original stays untouched
	assert.NotSame(t, gl, changed)
	assert.Equal(t, gormlogger.Warn, gl.logLevel)
}
