// Package testing provides test utilities, database setup and a fake Graph API for testing the publishing pipeline
package testing

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/amirphl/adbridge/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB represents a test database instance backed by a throwaway sqlite file
type TestDB struct {
	DB   *gorm.DB
	Name string
	dir  string
}

// SetupTestDB creates a new file-backed sqlite database and migrates every model.
// Transactions begin IMMEDIATE so that concurrent read-modify-write sequences
// serialize instead of failing on lock upgrade.
func SetupTestDB() (*TestDB, error) {
	dir, err := os.MkdirTemp("", "adbridge_test_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create test database directory: %w", err)
	}

	name := filepath.Join(dir, "adbridge.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=1&_txlock=immediate", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open test database %s: %w", name, err)
	}

	if err := repository.AutoMigrate(db); err != nil {
		closeDB(db)
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to run migrations on test database %s: %w", name, err)
	}

	return &TestDB{DB: db, Name: name, dir: dir}, nil
}

// TeardownTestDB closes connections and removes the database file
func (tdb *TestDB) TeardownTestDB() error {
	if tdb == nil || tdb.DB == nil {
		return nil
	}
	closeDB(tdb.DB)

	if err := os.RemoveAll(tdb.dir); err != nil {
		log.Printf("Warning: failed to remove test database %s: %v", tdb.Name, err)
		return err
	}
	return nil
}

// ClearAllTables removes all data from tables while preserving structure
func (tdb *TestDB) ClearAllTables() error {
	// Order matters due to foreign key constraints
	tables := []string{
		"audit_log",
		"ad_platform_connections",
		"campaigns",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	}

	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// TestWithDB runs testFunc against a fresh database and tears it down afterwards
func TestWithDB(testFunc func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return fmt.Errorf("failed to setup test database: %w", err)
	}
	defer func() {
		if cleanupErr := testDB.TeardownTestDB(); cleanupErr != nil {
			log.Printf("Warning: failed to cleanup test database: %v", cleanupErr)
		}
	}()

	return testFunc(testDB)
}
