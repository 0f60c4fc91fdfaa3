package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"useraccounts/internal/model"
)

// Supported values for the DB_DRIVER setting.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func gormConfig() *gorm.Config {
	return &gorm.Config{
		// Maps driver specific unique violations to gorm.ErrDuplicatedKey.
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
}

// Open returns a connected GORM DB for the named driver.
func Open(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case DriverMySQL:
		return NewMySQL(dsn)
	case DriverPostgres:
		return NewPostgres(dsn)
	case DriverSQLite:
		return NewSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewMySQL returns a connected GORM DB instance.
func NewMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	return db, nil
}

// NewPostgres connects through the pgx driver.
func NewPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// NewSQLite opens an SQLite database. SQLite allows a single writer, so the
// pool is pinned to one connection; this also keeps in-memory databases alive.
func NewSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate brings the schema up to date for all models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Account{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Reset drops all tables owned by the service.
func Reset(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&model.Account{}); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	return nil
}
