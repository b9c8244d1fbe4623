// Package database opens the MySQL connection used by the GORM store and
// the webhook event log.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jaat-ai/ledger/app/models"
	"github.com/jaat-ai/ledger/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// Open connects to MySQL, retrying while the server starts up.
func Open(ctx context.Context, cfg *env.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if env.IsDev() {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var err error
	for i := 0; i < maxRetries; i++ {
		var db *gorm.DB
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       cfg.MySQLDSN(),
			DefaultStringSize:         256,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), gormCfg)
		if err == nil {
			return db, nil
		}

		log.Warnf("[Database] failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("connect to mysql: %w", err)
}

// AutoMigrate creates the ledger tables. Production deployments use cmd/migrate.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.EntitlementRecord{},
		&models.UsageCounters{},
		&models.BillingWebhookEvent{},
		&models.EntitlementEvent{},
	)
}
