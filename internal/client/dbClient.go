package client

import (
	"log"
	"time"

	"schoolfest-backend/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func InitPostgresClient(databaseURL string) *gorm.DB {
	// TranslateError turns driver duplicate-key errors into
	// gorm.ErrDuplicatedKey, which webhook dedup relies on.
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal(err)
	}

	// Connection pool (important for webhooks)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&model.School{},
		&model.Event{},
		&model.Batch{},
		&model.Registration{},
		&model.Payment{},
		&model.WebhookEvent{},
	); err != nil {
		log.Fatal(err)
	}

	return db
}
