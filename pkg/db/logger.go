package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "medvive-settlement/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

const defaultSlowThreshold = 200 * time.Millisecond

// GormLogger routes gorm output through zap. Query lines carry the trace and
// span of the calling request.
type GormLogger struct {
	level         logger.LogLevel
	slowThreshold time.Duration
	showSQL       bool
}

func NewGormLogger(level logger.LogLevel, slowThreshold time.Duration, showSQL bool) *GormLogger {
	if slowThreshold <= 0 {
		slowThreshold = defaultSlowThreshold
	}
	return &GormLogger{level: level, slowThreshold: slowThreshold, showSQL: showSQL}
}

func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		applog.FromContext(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		applog.FromContext(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		applog.FromContext(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	query := func() []zap.Field {
		sql, rows := fc()
		return []zap.Field{
			zap.String("file", utils.FileWithLineNum()),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
		}
	}
	log := applog.FromContext(ctx)

	switch {
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound) && l.level >= logger.Error:
		log.Error("[DB] query failed", append(query(), zap.Error(err))...)
	case elapsed > l.slowThreshold && l.level >= logger.Warn:
		log.Warn("[DB] slow query", append(query(), zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= logger.Info && l.showSQL:
		log.Debug("[DB] query", query()...)
	}
}
