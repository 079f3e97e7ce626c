package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm/logger"
)

func observe(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestGormLoggerTrace(t *testing.T) {
	logs := observe(t)
	l := NewGormLogger(logger.Warn, 50*time.Millisecond, false)
	fc := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), fc, nil)
	require.Zero(t, logs.Len())

	l.Trace(ctx, time.Now(), fc, logger.ErrRecordNotFound)
	require.Zero(t, logs.Len())

	l.Trace(ctx, time.Now(), fc, errors.New("boom"))
	require.Equal(t, 1, logs.FilterMessage("[DB] query failed").Len())

	l.Trace(ctx, time.Now().Add(-time.Second), fc, nil)
	require.Equal(t, 1, logs.FilterMessage("[DB] slow query").Len())

	l.LogMode(logger.Silent).Trace(ctx, time.Now(), fc, errors.New("boom"))
	require.Equal(t, 1, logs.FilterMessage("[DB] query failed").Len())
}
