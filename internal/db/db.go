package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/lumachat/chatvault/internal/db/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the database connection for the configured driver and runs
// migrations. Supported drivers are "sqlite" (the default, pure-Go) and
// "postgres" for production deployments.
func InitDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "chatvault.db"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate all models
	if err := database.AutoMigrate(
		&models.Account{},
		&models.Chat{},
		&models.Attendee{},
		&models.Contact{},
		&models.Message{},
		&models.Attachment{},
		&models.ProfileView{},
	); err != nil {
		return nil, err
	}

	return database, nil
}
