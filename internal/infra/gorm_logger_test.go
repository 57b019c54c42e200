package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormLogger "gorm.io/gorm/logger"

	"backend/internal/logger"
)

func TestGormZapLogger_TraceCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &GormZapLogger{ZapLogger: zap.New(core), LogLevel: gormLogger.Info}

	ctx := logger.WithRequestID(context.Background(), "req-42")
	l.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "SELECT 1", fields["sql"])
}

func TestGormZapLogger_TraceWithoutRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &GormZapLogger{ZapLogger: zap.New(core), LogLevel: gormLogger.Info}

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	_, ok := entries[0].ContextMap()["request_id"]
	assert.False(t, ok)
}
