package mysql

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pdfquiz/internal/logging"
	"pdfquiz/internal/pkg/retry"
)

// New opens the pool, waits for the server and migrates models.
func New(ctx context.Context, dsn string, logger *zap.Logger, models ...any) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get mysql sql db failed: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	logger = logging.OrNop(logger)
	_, err = retry.Do(ctx, retry.Policy{Attempts: 5, Delay: time.Second, Exponential: true},
		func(ctx context.Context, _ int) (struct{}, error) {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			return struct{}{}, sqlDB.PingContext(pingCtx)
		},
		func(attempt int, err error, next time.Duration) {
			logger.Warn("mysql not ready, retrying", zap.Int("attempt", attempt), zap.Duration("backoff", next), zap.Error(err))
		})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping mysql failed: %w", err)
	}

	if len(models) > 0 {
		if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("auto migrate tables failed: %w", err)
		}
	}
	return db, nil
}
