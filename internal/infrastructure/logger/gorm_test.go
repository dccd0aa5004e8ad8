package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("logs failures at error", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn, 0)

		gl.Trace(context.Background(), time.Now(), statement("INSERT INTO bills", 0), errors.New("duplicate key"))

		require.Equal(t, 1, recorded.Len())
		entry := recorded.All()[0]
		assert.Equal(t, zapcore.ErrorLevel, entry.Level)
		assert.Equal(t, "INSERT INTO bills", entry.ContextMap()["sql"])
	})

	t.Run("ignores record not found", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Info, 0)

		gl.Trace(context.Background(), time.Now(), statement("SELECT * FROM bills", 0), gormlogger.ErrRecordNotFound)

		assert.Zero(t, recorded.Len())
	})

	t.Run("warns about slow statements", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn, 10*time.Millisecond)

		gl.Trace(context.Background(), time.Now().Add(-time.Second), statement("SELECT 1", 1), nil)

		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, "slow sql", recorded.All()[0].Message)
	})

	t.Run("debug logs ordinary statements at info level", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Info, 0)
		ctx := WithCorrelationID(context.Background(), "evt-1")

		gl.Trace(ctx, time.Now(), statement("SELECT 1", 1), nil)

		require.Equal(t, 1, recorded.Len())
		entry := recorded.All()[0]
		assert.Equal(t, zapcore.DebugLevel, entry.Level)
		assert.Equal(t, "evt-1", entry.ContextMap()["correlation_id"])
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Silent, 0)

		gl.Trace(context.Background(), time.Now(), statement("SELECT 1", 1), errors.New("boom"))

		assert.Zero(t, recorded.Len())
	})
}

func TestGormLogger_LogMode(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Silent, 0)

	loud := gl.LogMode(gormlogger.Info)
	loud.Info(context.Background(), "migrated %d tables", 3)
	gl.Info(context.Background(), "suppressed")

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "migrated 3 tables", recorded.All()[0].Message)
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, GormLevel("silent"))
	assert.Equal(t, gormlogger.Error, GormLevel("error"))
	assert.Equal(t, gormlogger.Info, GormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, GormLevel("info"))
}

var _ gormlogger.Interface = (*GormLogger)(nil)
