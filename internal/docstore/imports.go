package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ImportChecksum returns the checksum of the last import of path, or an
// empty string if path was never imported.
func (db *DB) ImportChecksum(ctx context.Context, path string) (string, error) {
	var cs string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM imports WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("docstore: import checksum %s: %w", path, err)
	}
	return cs, nil
}

// SetImportChecksum records that path was imported into designID.
func (db *DB) SetImportChecksum(ctx context.Context, path, designID, sum string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO imports (path, design_id, checksum, imported_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			design_id   = excluded.design_id,
			checksum    = excluded.checksum,
			imported_at = excluded.imported_at
	`, path, designID, sum)
	if err != nil {
		return fmt.Errorf("docstore: record import %s: %w", path, err)
	}
	return nil
}

// DeleteImport forgets path, so the next file at path is imported again.
func (db *DB) DeleteImport(ctx context.Context, path string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM imports WHERE path = ?`, path); err != nil {
		return fmt.Errorf("docstore: delete import %s: %w", path, err)
	}
	return nil
}
