// Package models defines the domain types for Sowilo.
//
// Nodes reachable from a DesignDocument are treated as immutable: every edit
// produces new nodes along the path to the root and reuses everything else.
package models

// TextTag is the tag name carried by text leaves.
const TextTag = "#text"

// ElementNode is a node in the document tree.
type ElementNode struct {
	ID          string            `json:"id"`
	TagName     string            `json:"tagName"`
	Attributes  map[string]string `json:"attributes"`
	Styles      map[string]string `json:"styles"`
	Children    []*ElementNode    `json:"children"`
	TextContent string            `json:"textContent,omitempty"`
	IsTextNode  bool              `json:"isTextNode,omitempty"`
	ParentID    string            `json:"parentId,omitempty"`
}

// NewTextNode returns a text leaf owned by parentID.
func NewTextNode(id, parentID, text string) *ElementNode {
	return &ElementNode{
		ID:          id,
		TagName:     TextTag,
		Attributes:  map[string]string{},
		Styles:      map[string]string{},
		TextContent: text,
		IsTextNode:  true,
		ParentID:    parentID,
	}
}

// Clone returns a shallow copy. Maps and the children slice are shared.
func (n *ElementNode) Clone() *ElementNode {
	c := *n
	return &c
}

// DeepCopy returns a copy that shares nothing with n.
func (n *ElementNode) DeepCopy() *ElementNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Attributes = copyMap(n.Attributes)
	c.Styles = copyMap(n.Styles)
	if n.Children != nil {
		c.Children = make([]*ElementNode, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.DeepCopy()
		}
	}
	return &c
}

// Text returns the node's text: its own content, or the concatenated
// content of its text children.
func (n *ElementNode) Text() string {
	if n.IsTextNode || len(n.Children) == 0 {
		return n.TextContent
	}
	var out string
	for _, ch := range n.Children {
		if ch.IsTextNode {
			out += ch.TextContent
		}
	}
	return out
}

// DesignDocument is one editable design.
type DesignDocument struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Elements []*ElementNode `json:"elements"`
	Styles   string         `json:"styles"`
	Fonts    []string       `json:"fonts"`
}

// Default canvas values used when a document is synthesised.
const (
	DefaultDocumentID   = "new-doc"
	DefaultDocumentName = "Untitled Design"
	DefaultWidth        = 800
	DefaultHeight       = 600
)

// NewDocument returns an empty document with the default canvas.
func NewDocument() *DesignDocument {
	return &DesignDocument{
		ID:       DefaultDocumentID,
		Name:     DefaultDocumentName,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		Elements: []*ElementNode{},
		Fonts:    []string{},
	}
}

// WithElements returns a shallow copy of d carrying the given roots.
func (d *DesignDocument) WithElements(elements []*ElementNode) *DesignDocument {
	c := *d
	c.Elements = elements
	return &c
}

// WithFonts returns a shallow copy of d carrying the given font imports.
func (d *DesignDocument) WithFonts(fonts []string) *DesignDocument {
	c := *d
	c.Fonts = fonts
	return &c
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
