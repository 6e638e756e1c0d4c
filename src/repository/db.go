package repository

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"

	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
)

// OpenDatabase connects to the configured database and migrates the meal schema.
func OpenDatabase(props cfg.DBProperties, log logrus.FieldLogger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch props.Driver {
	case "sqlite":
		// pure go driver registered by modernc.org/sqlite
		dialector = sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: props.DSN})
	case "postgres":
		dialector = postgres.Open(props.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", props.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("can not open %s database: %w", props.Driver, err)
	}
	if props.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&mealRow{}, &componentRow{}); err != nil {
		return nil, fmt.Errorf("can not migrate meal schema: %w", err)
	}
	return db, nil
}
