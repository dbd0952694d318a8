package db

import (
	"database/sql"
	"fmt"
	"log"

	"relay-backend/internal/config"
	"relay-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() {
	var err error

	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		log.Fatalf("Database DSN is required")
	}

	dsn := config.AppConfig.Database.DSN

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	log.Println("✅ Database connected successfully")

	// Widen amount columns before AutoMigrate. GORM AutoMigrate adds new
	// columns but never resizes existing ones, and amount_wei must hold a
	// full uint256 decimal (up to 78 digits).
	if err := fixAmountColumns(DB); err != nil {
		log.Printf("⚠️ Failed to fix amount column sizes: %v", err)
		log.Println("⚠️ Attempting to continue with migration anyway...")
	}

	log.Println("🚀 Starting database schema migration...")

	if err := DB.AutoMigrate(
		&models.Voucher{},
		&models.SmartAccount{},
		&models.UserOperation{},
		&models.RelayedTransaction{},
	); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	log.Println("✅ Database schema migrated successfully")
}

// fixAmountColumns widens amount_wei columns created by older releases as
// VARCHAR(32) to VARCHAR(78).
func fixAmountColumns(db *gorm.DB) error {
	amountColumns := []struct {
		tableName  string
		columnName string
	}{
		{"vouchers", "amount_wei"},
		{"relayed_transactions", "amount_wei"},
	}

	for _, col := range amountColumns {
		if err := fixAmountColumn(db, col.tableName, col.columnName); err != nil {
			log.Printf("⚠️ Failed to fix %s.%s: %v", col.tableName, col.columnName, err)
		}
	}

	return nil
}

func fixAmountColumn(db *gorm.DB, tableName, columnName string) error {
	var tableExists bool
	err := db.Raw(`
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = ?
		)
	`, tableName).Scan(&tableExists).Error

	if err != nil {
		return fmt.Errorf("failed to check if %s table exists: %w", tableName, err)
	}

	if !tableExists {
		// AutoMigrate will create it with the correct size
		return nil
	}

	var currentSize sql.NullInt64
	err = db.Raw(`
		SELECT character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = ?
		AND column_name = ?
	`, tableName, columnName).Scan(&currentSize).Error

	if err != nil {
		return fmt.Errorf("failed to check %s.%s column size: %w", tableName, columnName, err)
	}

	if !currentSize.Valid || currentSize.Int64 >= 78 {
		return nil
	}

	log.Printf("🔧 Updating %s.%s column from VARCHAR(%d) to VARCHAR(78)...", tableName, columnName, currentSize.Int64)
	result := db.Exec(fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE VARCHAR(78)`, tableName, columnName))
	if result.Error != nil {
		return fmt.Errorf("failed to update %s.%s column size: %w", tableName, columnName, result.Error)
	}

	log.Printf("✅ Updated %s.%s column size to VARCHAR(78)", tableName, columnName)
	return nil
}
