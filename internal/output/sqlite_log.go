package output

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/logger"
)

// gormLog routes gorm's statement log into the module logger. Statements
// are traced; failures and statements slower than slow are warnings.
type gormLog struct {
	log  logger.Logger
	slow time.Duration
}

var _ gormlogger.Interface = gormLog{}

func (g gormLog) LogMode(gormlogger.LogLevel) gormlogger.Interface { return g }

func (g gormLog) Info(_ context.Context, msg string, data ...any) {
	g.log.Debug(fmt.Sprintf(msg, data...))
}

func (g gormLog) Warn(_ context.Context, msg string, data ...any) {
	g.log.Warn(fmt.Sprintf(msg, data...))
}

func (g gormLog) Error(_ context.Context, msg string, data ...any) {
	g.log.Error(fmt.Sprintf(msg, data...))
}

func (g gormLog) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []logger.Field{
		logger.String("sql", sql),
		logger.Int("rows", int(rows)),
		logger.Duration("elapsed", elapsed),
	}
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		g.log.Warn("sqlite statement failed", append(fields, logger.Error(err))...)
	case g.slow > 0 && elapsed > g.slow:
		g.log.Warn("slow sqlite statement", fields...)
	default:
		g.log.Trace("sqlite statement", fields...)
	}
}
