// Package doctree implements the pure editing primitives of the element
// tree. Every function returns its input unchanged when there is nothing to
// do, so callers detect no-ops by pointer identity.
package doctree

import "github.com/starford/sowilo/internal/models"

// Position selects the end of a sibling list a node is moved to.
type Position int

const (
	// Front moves a node to the end of its siblings (rendered on top).
	Front Position = iota
	// Back moves a node to the start of its siblings.
	Back
)

func (p Position) String() string {
	if p == Back {
		return "back"
	}
	return "front"
}

// Find returns the node with the given id, or nil.
func Find(nodes []*models.ElementNode, id string) *models.ElementNode {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
		if found := Find(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// FindInDocument is Find over a possibly nil document.
func FindInDocument(doc *models.DesignDocument, id string) *models.ElementNode {
	if doc == nil {
		return nil
	}
	return Find(doc.Elements, id)
}

// Locate returns the parent id ("" for roots) and the sibling index of id.
func Locate(nodes []*models.ElementNode, id string) (parentID string, index int, ok bool) {
	return locate(nodes, "", id)
}

func locate(nodes []*models.ElementNode, parentID, id string) (string, int, bool) {
	for i, n := range nodes {
		if n.ID == id {
			return parentID, i, true
		}
		if p, idx, ok := locate(n.Children, n.ID, id); ok {
			return p, idx, true
		}
	}
	return "", 0, false
}

// Walk visits nodes depth first. Returning false skips a node's children.
func Walk(nodes []*models.ElementNode, fn func(n *models.ElementNode, depth int) bool) {
	walk(nodes, 0, fn)
}

func walk(nodes []*models.ElementNode, depth int, fn func(*models.ElementNode, int) bool) {
	for _, n := range nodes {
		if fn(n, depth) {
			walk(n.Children, depth+1, fn)
		}
	}
}

// Flatten returns every node in depth-first order.
func Flatten(nodes []*models.ElementNode) []*models.ElementNode {
	var out []*models.ElementNode
	Walk(nodes, func(n *models.ElementNode, _ int) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Update shallow-merges patch into the node with id.
func Update(doc *models.DesignDocument, id string, patch models.Patch) *models.DesignDocument {
	if doc == nil {
		return nil
	}
	elements, res := updateNodes(doc.Elements, id, patch)
	if res != changed {
		return doc
	}
	return doc.WithElements(elements)
}

type result int

const (
	missing result = iota
	unchanged
	changed
)

func updateNodes(nodes []*models.ElementNode, id string, patch models.Patch) ([]*models.ElementNode, result) {
	for i, n := range nodes {
		if n.ID == id {
			merged, ok := Merge(n, patch)
			if !ok {
				return nodes, unchanged
			}
			return replaceAt(nodes, i, merged), changed
		}
		children, res := updateNodes(n.Children, id, patch)
		switch res {
		case unchanged:
			return nodes, unchanged
		case changed:
			parent := n.Clone()
			parent.Children = children
			return replaceAt(nodes, i, parent), changed
		}
	}
	return nodes, missing
}

// Merge applies patch to n. It returns n itself and false when no field
// would change.
func Merge(n *models.ElementNode, patch models.Patch) (*models.ElementNode, bool) {
	styles, stylesChanged := mergeMap(n.Styles, patch.Styles)
	attrs, attrsChanged := mergeMap(n.Attributes, patch.Attributes)
	tagChanged := patch.TagName != nil && *patch.TagName != n.TagName
	textChanged := patch.TextContent != nil && *patch.TextContent != n.TextContent
	if !stylesChanged && !attrsChanged && !tagChanged && !textChanged {
		return n, false
	}
	out := n.Clone()
	out.Styles = styles
	out.Attributes = attrs
	if tagChanged {
		out.TagName = *patch.TagName
	}
	if textChanged {
		out.TextContent = *patch.TextContent
	}
	return out, true
}

func mergeMap(base, patch map[string]string) (map[string]string, bool) {
	dirty := false
	for k, v := range patch {
		cur, ok := base[k]
		if (v == "" && ok) || (v != "" && cur != v) {
			dirty = true
			break
		}
	}
	if !dirty {
		return base, false
	}
	out := make(map[string]string, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out, true
}

// Reorder moves the node with id to the front or back of its current
// sibling list.
func Reorder(doc *models.DesignDocument, id string, pos Position) *models.DesignDocument {
	if doc == nil {
		return nil
	}
	elements, ok := reorderNodes(doc.Elements, id, pos)
	if !ok {
		return doc
	}
	return doc.WithElements(elements)
}

func reorderNodes(nodes []*models.ElementNode, id string, pos Position) ([]*models.ElementNode, bool) {
	for i, n := range nodes {
		if n.ID != id {
			continue
		}
		if (pos == Front && i == len(nodes)-1) || (pos == Back && i == 0) {
			return nodes, false
		}
		out := make([]*models.ElementNode, 0, len(nodes))
		if pos == Back {
			out = append(out, n)
		}
		out = append(out, nodes[:i]...)
		out = append(out, nodes[i+1:]...)
		if pos == Front {
			out = append(out, n)
		}
		return out, true
	}
	for i, n := range nodes {
		children, ok := reorderNodes(n.Children, id, pos)
		if ok {
			parent := n.Clone()
			parent.Children = children
			return replaceAt(nodes, i, parent), true
		}
	}
	return nodes, false
}

// Remove deletes the node with id wherever it occurs.
func Remove(doc *models.DesignDocument, id string) *models.DesignDocument {
	if doc == nil {
		return nil
	}
	elements, ok := removeNode(doc.Elements, id)
	if !ok {
		return doc
	}
	return doc.WithElements(elements)
}

func removeNode(nodes []*models.ElementNode, id string) ([]*models.ElementNode, bool) {
	for i, n := range nodes {
		if n.ID == id {
			out := make([]*models.ElementNode, 0, len(nodes)-1)
			out = append(out, nodes[:i]...)
			return append(out, nodes[i+1:]...), true
		}
		children, ok := removeNode(n.Children, id)
		if ok {
			parent := n.Clone()
			parent.Children = children
			return replaceAt(nodes, i, parent), true
		}
	}
	return nodes, false
}

// InsertRoot appends node as the last top-level element. A node whose id is
// already present is ignored.
func InsertRoot(doc *models.DesignDocument, node *models.ElementNode) *models.DesignDocument {
	if doc == nil || node == nil || Find(doc.Elements, node.ID) != nil {
		return doc
	}
	elements := make([]*models.ElementNode, 0, len(doc.Elements)+1)
	elements = append(elements, doc.Elements...)
	return doc.WithElements(append(elements, node))
}

// InsertAt places node at index within the children of parentID, or among
// the roots when parentID is empty. The index is clamped to the list.
func InsertAt(doc *models.DesignDocument, parentID string, index int, node *models.ElementNode) *models.DesignDocument {
	if doc == nil || node == nil || Find(doc.Elements, node.ID) != nil {
		return doc
	}
	if parentID == "" {
		return doc.WithElements(insertInto(doc.Elements, index, node))
	}
	elements, ok := insertUnder(doc.Elements, parentID, index, node)
	if !ok {
		return doc
	}
	return doc.WithElements(elements)
}

func insertUnder(nodes []*models.ElementNode, parentID string, index int, node *models.ElementNode) ([]*models.ElementNode, bool) {
	for i, n := range nodes {
		if n.ID == parentID {
			parent := n.Clone()
			parent.Children = insertInto(n.Children, index, node)
			return replaceAt(nodes, i, parent), true
		}
		children, ok := insertUnder(n.Children, parentID, index, node)
		if ok {
			parent := n.Clone()
			parent.Children = children
			return replaceAt(nodes, i, parent), true
		}
	}
	return nodes, false
}

func insertInto(nodes []*models.ElementNode, index int, node *models.ElementNode) []*models.ElementNode {
	if index < 0 {
		index = 0
	}
	if index > len(nodes) {
		index = len(nodes)
	}
	out := make([]*models.ElementNode, 0, len(nodes)+1)
	out = append(out, nodes[:index]...)
	out = append(out, node)
	return append(out, nodes[index:]...)
}

func replaceAt(nodes []*models.ElementNode, i int, n *models.ElementNode) []*models.ElementNode {
	out := make([]*models.ElementNode, len(nodes))
	copy(out, nodes)
	out[i] = n
	return out
}
