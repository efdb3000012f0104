package db

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/chatcore/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to MySQL when dsn looks like a go-sql-driver DSN
// (user:pass@tcp(host:port)/db) and otherwise treats dsn as a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	return OpenWithLog(dsn, os.Stderr)
}

// OpenWithLog is Open with gorm's warnings written to w.
func OpenWithLog(dsn string, w io.Writer) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("db: dsn required")
	}

	cfg := &gorm.Config{Logger: newLogger(w)}

	if IsMySQLDSN(dsn) {
		return gorm.Open(mysql.Open(strings.TrimPrefix(dsn, "mysql://")), cfg)
	}

	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, err
		}
	}
	gdb, err := gorm.Open(gormsqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under concurrent requests.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

// newLogger reports slow queries and errors. A miss on First is an ordinary
// lookup result here, not something to log.
func newLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func IsMySQLDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "mysql://") || strings.Contains(dsn, "@tcp(")
}

// Migrate creates or updates every table the engine owns.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.Assistant{},
		&models.Topic{},
		&models.Message{},
		&models.FileRecord{},
	)
}
