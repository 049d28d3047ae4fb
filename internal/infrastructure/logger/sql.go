package logger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQuery is the slow query threshold when none is configured.
const DefaultSlowQuery = 5 * time.Second

// SQLLogger writes the statements of source queries to zap, tagged with
// the audit query and run that issued them. Executed statements go to
// debug, slow ones to warn and failed ones to error.
type SQLLogger struct {
	logger *zap.Logger
	level  gormlogger.LogLevel
	slow   time.Duration
}

// NewSQLLogger creates an SQLLogger. A zero slow threshold uses
// DefaultSlowQuery.
func NewSQLLogger(log *zap.Logger, level gormlogger.LogLevel, slow time.Duration) *SQLLogger {
	if slow <= 0 {
		slow = DefaultSlowQuery
	}
	return &SQLLogger{logger: log.Named("sql"), level: level, slow: slow}
}

// LogMode implements gormlogger.Interface
func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

// Info implements gormlogger.Interface
func (l *SQLLogger) Info(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

// Warn implements gormlogger.Interface
func (l *SQLLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

// Error implements gormlogger.Interface
func (l *SQLLogger) Error(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *SQLLogger) printf(ctx context.Context, at gormlogger.LogLevel, lvl zapcore.Level, msg string, data []any) {
	if l.level < at {
		return
	}
	l.scoped(ctx).Log(lvl, fmt.Sprintf(msg, data...))
}

// Trace implements gormlogger.Interface. rows is the number of rows the
// statement scanned.
func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rows int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.scoped(ctx).Error("Source statement failed", statementFields(sql, rows, elapsed, zap.Error(err))...)
	case elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.scoped(ctx).Warn("Slow source statement", statementFields(sql, rows, elapsed, zap.Duration("threshold", l.slow))...)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.scoped(ctx).Debug("Source statement executed", statementFields(sql, rows, elapsed)...)
	}
}

// scoped tags the logger with the query, run and span of ctx.
func (l *SQLLogger) scoped(ctx context.Context) *zap.Logger {
	log := l.logger
	if name := QueryName(ctx); name != "" {
		log = log.With(zap.String("query", name))
	}
	if runID := GetRunID(ctx); runID != "" {
		log = log.With(zap.String("run_id", runID))
	}
	return WithTraceContext(ctx, log)
}

func statementFields(sql string, rows int64, elapsed time.Duration, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
	}, extra...)
}

// ParseSQLLevel maps log.sql_level to a GORM log level. Unknown values
// fall back to warn.
func ParseSQLLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
