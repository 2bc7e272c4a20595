package database

import (
	"fmt"
	"log"

	"chatagent-backend/config"
	"chatagent-backend/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the Postgres connection, migrates the schema and installs
// the NOTIFY trigger for the dispatch queue. The returned handle is the
// process-wide shared client; callers receive it by injection instead of a
// package-level global.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connected successfully")

	if err := autoMigrate(db); err != nil {
		return nil, err
	}
	if err := createNotifyTrigger(db); err != nil {
		log.Printf("Warning: failed to create NOTIFY trigger: %v", err)
	}
	return db, nil
}

// autoMigrate creates missing tables only.
func autoMigrate(db *gorm.DB) error {
	tables := []struct {
		name  string
		model interface{}
	}{
		{"apps", &models.App{}},
		{"contacts", &models.Contact{}},
		{"messages", &models.Message{}},
		{"threads", &models.Thread{}},
		{"ai_sessions", &models.AISession{}},
		{"dispatch_jobs", &models.DispatchJob{}},
		{"dispatch_attempts", &models.DispatchAttempt{}},
	}

	for _, table := range tables {
		if db.Migrator().HasTable(table.model) {
			continue
		}
		log.Printf("Table '%s' not found, creating...", table.name)
		if err := db.AutoMigrate(table.model); err != nil {
			return fmt.Errorf("failed to migrate table %s: %w", table.name, err)
		}
	}
	return nil
}

// createNotifyTrigger wires pg_notify on dispatch_jobs inserts so the worker
// wakes up without waiting for its polling tick.
func createNotifyTrigger(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE OR REPLACE FUNCTION notify_dispatch_job_insert()
		RETURNS TRIGGER AS $$
		BEGIN
			PERFORM pg_notify('dispatch_jobs_channel', 'new');
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;
	`).Error; err != nil {
		return fmt.Errorf("failed to create notify function: %w", err)
	}

	if err := db.Exec(`
		DROP TRIGGER IF EXISTS dispatch_jobs_insert_trigger ON dispatch_jobs;
	`).Error; err != nil {
		return fmt.Errorf("failed to drop existing trigger: %w", err)
	}

	if err := db.Exec(`
		CREATE TRIGGER dispatch_jobs_insert_trigger
		AFTER INSERT ON dispatch_jobs
		FOR EACH ROW
		EXECUTE FUNCTION notify_dispatch_job_insert();
	`).Error; err != nil {
		return fmt.Errorf("failed to create trigger: %w", err)
	}

	log.Println("NOTIFY trigger ready on dispatch_jobs_channel")
	return nil
}
