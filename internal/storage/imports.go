package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ImportRecord links an imported source (path or URL) to a platform file.
type ImportRecord struct {
	Source     string
	FileID     string
	Loader     string
	ImportedAt string
}

// RecordImport stores the files created from source, replacing what an
// earlier import of the same source recorded.
func RecordImport(ctx context.Context, source, loader string, fileIDs []string) (err error) {
	if err := initDB(); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM imports WHERE source = ?`, source); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO imports (source, file_id, loader) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range fileIDs {
		if _, err = stmt.ExecContext(ctx, source, id, loader); err != nil {
			return fmt.Errorf("record import of %s: %w", source, err)
		}
	}
	return tx.Commit()
}

// LoadImports returns the imports of source, or every import when source is
// empty.
func LoadImports(ctx context.Context, source string) ([]ImportRecord, error) {
	if err := initDB(); err != nil {
		return nil, err
	}
	var (
		rows *sql.Rows
		err  error
	)
	if source == "" {
		rows, err = db.QueryContext(ctx, `
			SELECT source, file_id, loader, imported_at FROM imports ORDER BY source ASC, file_id ASC`)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT source, file_id, loader, imported_at FROM imports WHERE source = ? ORDER BY file_id ASC`, source)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ImportRecord
	for rows.Next() {
		var r ImportRecord
		if err := rows.Scan(&r.Source, &r.FileID, &r.Loader, &r.ImportedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func DeleteImports(ctx context.Context, source string) error {
	if err := initDB(); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `DELETE FROM imports WHERE source = ?`, source)
	return err
}
