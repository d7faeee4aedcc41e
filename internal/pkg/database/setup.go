package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/config"
	"github.com/ManuelReschke/CoinSchool/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// Dialector picks the gorm dialector for the configured driver.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "postgres", "postgresql":
		return postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true, // hosted poolers (pgbouncer) reject prepared statements
		}), nil
	case "mysql":
		return mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			SkipInitializeWithVersion: false,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// Models lists every table AutoMigrate manages. Column types must stay
// valid on both postgres and mysql.
func Models() []any {
	return []any{
		&models.User{},
		&models.BillingCustomer{},
		&models.Subscription{},
		&models.Order{},
		&models.SecurityLog{},
		&models.LearningModule{},
	}
}

// GormConfig is shared by the server and tests so duplicate-key errors are
// translated to gorm.ErrDuplicatedKey everywhere.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
}

func SetupDatabase(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, GormConfig())
		if err == nil {
			if env.IsDev() {
				if mErr := db.AutoMigrate(Models()...); mErr != nil {
					log.Errorf("[Database] AutoMigrate failed: %v", mErr)
				}
			}
			return db, nil
		}

		log.Warnf("[Database] connect failed (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] retrying in %v", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	return nil, err
}
