package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// GormLogger sends gorm statements to zap with the request, run and batch
// IDs of the statement context. Statement text is logged at debug level;
// slow statements warn and failed ones error.
type GormLogger struct {
	log       *zap.Logger
	level     gormlogger.LogLevel
	slowQuery time.Duration
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which statements warn. Zero
// disables slow statement warnings.
func WithSlowThreshold(d time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slowQuery = d }
}

// NewGormLogger returns a gorm logger writing to log at level.
func NewGormLogger(log *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	l := &GormLogger{log: log.Named("gorm"), level: level, slowQuery: defaultSlowQuery}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogMode returns a copy logging at level.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		Enrich(ctx, l.log).Sugar().Infof(msg, args...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		Enrich(ctx, l.log).Sugar().Warnf(msg, args...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		Enrich(ctx, l.log).Sugar().Errorf(msg, args...)
	}
}

// Trace logs one executed statement. Rows affected is always included since
// a snapshot publish writes every ledger row in a few statements.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	// Missing rows are answered as ErrNoSnapshot or 404, not failures
	if errors.Is(err, gormlogger.ErrRecordNotFound) {
		err = nil
	}
	elapsed := time.Since(begin)
	slow := l.slowQuery > 0 && elapsed > l.slowQuery

	var write func(string, ...zap.Field)
	msg := "SQL statement"
	log := Enrich(ctx, l.log)
	switch {
	case err != nil && l.level >= gormlogger.Error:
		write, msg = log.Error, "SQL statement failed"
	case slow && l.level >= gormlogger.Warn:
		write, msg = log.Warn, "Slow SQL statement"
	case l.level >= gormlogger.Info:
		write = log.Debug
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	if slow {
		fields = append(fields, zap.Duration("threshold", l.slowQuery))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	write(msg, fields...)
}

// MapGormLogLevel maps the application log level to a gorm level. Statement
// text is only produced at debug and info.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
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
