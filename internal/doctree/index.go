package doctree

import "github.com/starford/sowilo/internal/models"

// Index maps ids to nodes of one tree for constant-time lookup. It is bound
// to the roots it was built from and must be rebuilt after an edit.
type Index struct {
	roots  []*models.ElementNode
	byID   map[string]*models.ElementNode
	parent map[string]string
}

// NewIndex indexes every node under roots.
func NewIndex(roots []*models.ElementNode) *Index {
	x := &Index{
		roots:  roots,
		byID:   make(map[string]*models.ElementNode),
		parent: make(map[string]string),
	}
	x.add(roots, "")
	return x
}

func (x *Index) add(nodes []*models.ElementNode, parentID string) {
	for _, n := range nodes {
		x.byID[n.ID] = n
		x.parent[n.ID] = parentID
		x.add(n.Children, n.ID)
	}
}

// Covers reports whether the index was built from exactly these roots.
func (x *Index) Covers(roots []*models.ElementNode) bool {
	if x == nil || len(x.roots) != len(roots) {
		return false
	}
	for i := range roots {
		if x.roots[i] != roots[i] {
			return false
		}
	}
	return true
}

// Lookup returns the node with id.
func (x *Index) Lookup(id string) (*models.ElementNode, bool) {
	n, ok := x.byID[id]
	return n, ok
}

// Parent returns the parent id of id ("" for roots).
func (x *Index) Parent(id string) (string, bool) {
	p, ok := x.parent[id]
	return p, ok
}

// Len returns the number of indexed nodes.
func (x *Index) Len() int { return len(x.byID) }
