// Package checksum fingerprints content so unchanged saves and imports can
// be skipped.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/starford/sowilo/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Document returns the digest of doc's JSON encoding. Map keys are encoded
// sorted, so equal documents always hash the same.
func Document(doc *models.DesignDocument) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("checksum: encode %s: %w", doc.ID, err)
	}
	return Sum(data), nil
}
