// Package storage keeps local ledgers of token usage and imported files in
// a SQLite database.
package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

var (
	db     *sql.DB
	dbOnce sync.Once
)

func initDB() error {
	var err error
	dbOnce.Do(func() {
		dbPath := os.Getenv("STEAMCHAIN_DB_PATH")
		if dbPath == "" {
			home, derr := os.UserHomeDir()
			if derr != nil {
				err = derr
				return
			}
			dbPath = filepath.Join(home, ".steamchain", "steamchain.db")
		}
		if derr := os.MkdirAll(filepath.Dir(dbPath), 0755); derr != nil {
			err = derr
			return
		}
		db, err = sql.Open("sqlite", dbPath)
		if err != nil {
			return
		}

		schema := `
		CREATE TABLE IF NOT EXISTS token_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instance_handle TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			usage_json TEXT NOT NULL,
			recorded_at TEXT DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_usage_instance ON token_usage(instance_handle);`
		if _, err = db.Exec(schema); err != nil {
			return
		}
		importSchema := `
		CREATE TABLE IF NOT EXISTS imports (
			source TEXT NOT NULL,
			file_id TEXT NOT NULL,
			loader TEXT NOT NULL,
			imported_at TEXT DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (source, file_id)
		);`
		_, err = db.Exec(importSchema)
	})
	return err
}

// ResetForTest clears the db connection and init guard (for tests only).
func ResetForTest() {
	if db != nil {
		_ = db.Close()
	}
	db = nil
	dbOnce = sync.Once{}
}
