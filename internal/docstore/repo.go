package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/checksum"
	"github.com/starford/sowilo/internal/doctree"
	"github.com/starford/sowilo/internal/models"
)

// Row is the metadata of a stored design.
type Row struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Checksum  string    `json:"checksum"`
	Revision  int       `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// SaveDocument stores doc. Saving content identical to the stored copy
// leaves the revision unchanged, so retried saves are harmless.
func (db *DB) SaveDocument(ctx context.Context, doc *models.DesignDocument) (Row, error) {
	if doc == nil || doc.ID == "" {
		return Row{}, fmt.Errorf("docstore: save: %w", apperr.ErrInvalidInput)
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Row{}, fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	row, err := writeDocument(ctx, tx, doc)
	if err != nil {
		return Row{}, err
	}
	if err := tx.Commit(); err != nil {
		return Row{}, fmt.Errorf("docstore: commit: %w", err)
	}
	return row, nil
}

// UpdateElement merges patch into one element of a stored design.
func (db *DB) UpdateElement(ctx context.Context, designID, elementID string, patch models.Patch) (Row, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Row{}, fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	doc, _, err := readDocument(ctx, tx, designID)
	if err != nil {
		return Row{}, err
	}
	if doctree.FindInDocument(doc, elementID) == nil {
		return Row{}, fmt.Errorf("docstore: element %s in %s: %w", elementID, designID, apperr.ErrNotFound)
	}
	row, err := writeDocument(ctx, tx, doctree.Update(doc, elementID, patch))
	if err != nil {
		return Row{}, err
	}
	if err := tx.Commit(); err != nil {
		return Row{}, fmt.Errorf("docstore: commit: %w", err)
	}
	return row, nil
}

// GetDocument returns a stored design.
func (db *DB) GetDocument(ctx context.Context, id string) (*models.DesignDocument, Row, error) {
	return readDocument(ctx, db.conn, id)
}

// ListDocuments returns a page of designs, most recently updated first,
// and the total count.
func (db *DB) ListDocuments(ctx context.Context, limit, offset int) ([]Row, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM designs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("docstore: count: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, width, height, checksum, revision, updated_at
		FROM designs
		ORDER BY updated_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("docstore: list: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Name, &r.Width, &r.Height, &r.Checksum, &r.Revision, &r.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// DeleteDocument removes a design and its search entry.
func (db *DB) DeleteDocument(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	res, err := tx.ExecContext(ctx, `DELETE FROM designs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("docstore: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("docstore: delete %s: %w", id, apperr.ErrNotFound)
	}
	return tx.Commit()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readDocument(ctx context.Context, q querier, id string) (*models.DesignDocument, Row, error) {
	var r Row
	var styles, fonts, elements string
	err := q.QueryRowContext(ctx, `
		SELECT id, name, width, height, styles, fonts, elements, checksum, revision, updated_at
		FROM designs WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &r.Width, &r.Height, &styles, &fonts, &elements, &r.Checksum, &r.Revision, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Row{}, fmt.Errorf("docstore: design %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, Row{}, fmt.Errorf("docstore: read %s: %w", id, err)
	}
	doc := &models.DesignDocument{ID: r.ID, Name: r.Name, Width: r.Width, Height: r.Height, Styles: styles}
	if err := json.Unmarshal([]byte(fonts), &doc.Fonts); err != nil {
		return nil, Row{}, fmt.Errorf("docstore: decode fonts of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(elements), &doc.Elements); err != nil {
		return nil, Row{}, fmt.Errorf("docstore: decode elements of %s: %w", id, err)
	}
	return doc, r, nil
}

func writeDocument(ctx context.Context, tx *sql.Tx, doc *models.DesignDocument) (Row, error) {
	cs, err := checksum.Document(doc)
	if err != nil {
		return Row{}, fmt.Errorf("docstore: %w", err)
	}

	var prev Row
	err = tx.QueryRowContext(ctx, `SELECT checksum, revision, updated_at FROM designs WHERE id = ?`, doc.ID).
		Scan(&prev.Checksum, &prev.Revision, &prev.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Row{}, fmt.Errorf("docstore: read checksum of %s: %w", doc.ID, err)
	case prev.Checksum == cs:
		return Row{
			ID: doc.ID, Name: doc.Name, Width: doc.Width, Height: doc.Height,
			Checksum: cs, Revision: prev.Revision, UpdatedAt: prev.UpdatedAt,
		}, nil
	}

	fonts, _ := json.Marshal(nonNil(doc.Fonts))
	elements, err := json.Marshal(nonNil(doc.Elements))
	if err != nil {
		return Row{}, fmt.Errorf("docstore: encode elements of %s: %w", doc.ID, err)
	}
	body := documentText(doc)
	row := Row{
		ID: doc.ID, Name: doc.Name, Width: doc.Width, Height: doc.Height,
		Checksum: cs, Revision: prev.Revision + 1, UpdatedAt: time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO designs (id, name, width, height, styles, fonts, elements, body, checksum, revision, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			width      = excluded.width,
			height     = excluded.height,
			styles     = excluded.styles,
			fonts      = excluded.fonts,
			elements   = excluded.elements,
			body       = excluded.body,
			checksum   = excluded.checksum,
			revision   = excluded.revision,
			updated_at = excluded.updated_at
	`, row.ID, row.Name, row.Width, row.Height, doc.Styles, string(fonts), string(elements), body, row.Checksum, row.Revision, row.UpdatedAt)
	if err != nil {
		return Row{}, fmt.Errorf("docstore: upsert %s: %w", doc.ID, err)
	}
	if err := ftsUpsert(tx, row.ID, row.Name, body); err != nil {
		return Row{}, err
	}
	return row, nil
}

// documentText joins the text of every text node, for search.
func documentText(doc *models.DesignDocument) string {
	var parts []string
	doctree.Walk(doc.Elements, func(n *models.ElementNode, _ int) bool {
		if t := strings.TrimSpace(n.TextContent); t != "" && (n.IsTextNode || len(n.Children) == 0) {
			parts = append(parts, t)
		}
		return true
	})
	return strings.Join(parts, " ")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
