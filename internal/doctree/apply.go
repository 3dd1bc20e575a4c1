package doctree

import "github.com/starford/sowilo/internal/models"

// ElementUpdate is one entry of a batch update.
type ElementUpdate struct {
	ElementID string       `json:"elementId"`
	Patch     models.Patch `json:"updates"`
}

// ApplyBatch applies every update in a single pass over the tree. Patches
// for the same element are folded in order, so later entries win.
// Elements nobody touched keep their identity, and the document itself is
// returned unchanged when no node changed.
func ApplyBatch(doc *models.DesignDocument, updates []ElementUpdate) *models.DesignDocument {
	if doc == nil || len(updates) == 0 {
		return doc
	}
	patches := make(map[string]models.Patch, len(updates))
	for _, u := range updates {
		if prev, ok := patches[u.ElementID]; ok {
			patches[u.ElementID] = prev.Merge(u.Patch)
			continue
		}
		patches[u.ElementID] = u.Patch
	}
	elements, ok := batchNodes(doc.Elements, patches)
	if !ok {
		return doc
	}
	return doc.WithElements(elements)
}

func batchNodes(nodes []*models.ElementNode, patches map[string]models.Patch) ([]*models.ElementNode, bool) {
	var out []*models.ElementNode
	for i, n := range nodes {
		updated := n
		if p, ok := patches[n.ID]; ok {
			updated, _ = Merge(n, p)
		}
		if len(updated.Children) > 0 {
			if children, ok := batchNodes(updated.Children, patches); ok {
				if updated == n {
					updated = n.Clone()
				}
				updated.Children = children
			}
		}
		if updated == n {
			continue
		}
		if out == nil {
			out = make([]*models.ElementNode, len(nodes))
			copy(out, nodes)
		}
		out[i] = updated
	}
	if out == nil {
		return nodes, false
	}
	return out, true
}
