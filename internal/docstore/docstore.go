package docstore

import (
	"context"

	"github.com/starford/sowilo/internal/models"
)

// Store defines the persistence boundary of the editor. Both writes are
// idempotent so the editing queue may retry them.
type Store interface {
	SaveDocument(ctx context.Context, doc *models.DesignDocument) (Row, error)
	UpdateElement(ctx context.Context, designID, elementID string, patch models.Patch) (Row, error)
	GetDocument(ctx context.Context, id string) (*models.DesignDocument, Row, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]Row, int, error)
	DeleteDocument(ctx context.Context, id string) error
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
