package persistence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/utilitybill/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a private in-memory SQLite database with the billing schema.
// The partial unique index on active bills is created by AutoMigrate from the
// model tags, so conflict handling can be exercised without Postgres.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a fresh database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&models.CustomerModel{},
		&models.MeterModel{},
		&models.ServiceConnectionModel{},
		&models.MeterReadingModel{},
		&models.TariffCategoryModel{},
		&models.TariffSlabModel{},
		&models.TaxConfigModel{},
		&models.BillModel{},
		&models.BillDetailModel{},
		&models.BillTaxModel{},
		&models.PaymentModel{},
		&models.OutboxEntryModel{},
	)
	require.NoError(t, err)
	return db
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
