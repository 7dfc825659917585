package testutil

import (
	"os"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/seatbook/seatbook-backend/internal/data/db"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

var (
	dbOnce sync.Once
	dbConn *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns the shared test database. With TEST_POSTGRES_DSN set it connects
// to Postgres; otherwise it falls back to a shared in-memory sqlite database
// so the suite runs hermetically.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		cfg := &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			TranslateError:                           true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		}

		dsn := os.Getenv("TEST_POSTGRES_DSN")
		var err error
		if dsn != "" {
			dbConn, err = gorm.Open(postgres.Open(dsn), cfg)
		} else {
			dbConn, err = gorm.Open(sqlite.Open("file:seatbook_test?mode=memory&cache=shared&_busy_timeout=5000"), cfg)
		}
		if err != nil {
			dbErr = err
			return
		}
		if dsn == "" {
			// Shared-cache sqlite allows a single writer; keep one
			// connection so concurrent tests serialize instead of
			// erroring out.
			sqlDB, poolErr := dbConn.DB()
			if poolErr != nil {
				dbErr = poolErr
				return
			}
			sqlDB.SetMaxOpenConns(1)
		}
		dbErr = db.AutoMigrateAll(dbConn)
	})
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return dbConn
}

// Tx starts a transaction rolled back when the test finishes, keeping the
// shared database clean between tests.
func Tx(tb testing.TB, gdb *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := gdb.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
