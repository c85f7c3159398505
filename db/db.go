package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the sqlite-backed Store implementation.
type DB struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (or creates) the database at path and runs the schema setup.
// Callers own the returned handle; there is no process-wide singleton so
// tests can run against their own stores.
func Open(path string, log *zap.SugaredLogger) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Configure connection pool for concurrent access
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	// Try to enable WAL2 mode, fall back to WAL if not supported
	var journalMode string
	err = conn.QueryRow("PRAGMA journal_mode=WAL2").Scan(&journalMode)
	if err != nil || journalMode == "delete" {
		err = conn.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
		if err != nil {
			log.Warnf("Failed to enable WAL mode: %v", err)
		} else {
			log.Infof("Database journal mode: %s (WAL2 not supported, using WAL)", journalMode)
		}
	} else {
		log.Infof("Database journal mode: %s", journalMode)
	}

	// Optimize PRAGMAs for the concurrent federation workload
	conn.Exec("PRAGMA synchronous = NORMAL")
	conn.Exec("PRAGMA cache_size = -64000")
	conn.Exec("PRAGMA temp_store = MEMORY")
	conn.Exec("PRAGMA busy_timeout = 5000")
	conn.Exec("PRAGMA foreign_keys = ON")
	conn.Exec("PRAGMA auto_vacuum = INCREMENTAL")

	d := &DB{db: conn, log: log}
	if err := d.createSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs the given function within a transaction, retrying
// while sqlite reports SQLITE_BUSY.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		db.log.Errorf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			db.log.Errorf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}
