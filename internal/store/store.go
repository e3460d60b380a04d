// Package store provides gorm-backed persistence for the pipeline.
package store

import (
	"errors"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/atendai/conversation-pipeline/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the database handle and exposes repository methods.
type Store struct {
	db *gorm.DB
}

// Open connects to the database and runs migrations.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&model.Tenant{},
		&model.Session{},
		&model.Agent{},
		&model.Conversation{},
		&model.Message{},
		&model.TrainingSource{},
		&model.Chunk{},
		&model.CustomerMemory{},
		&model.Webhook{},
		&model.WebhookDeliveryLog{},
		&model.Order{},
		&model.Deal{},
		&model.Appointment{},
		&model.CustomerInterest{},
		&model.Lead{},
		&model.Product{},
		&model.AuditLog{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
