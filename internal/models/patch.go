package models

// Patch is a partial node update. Styles and attributes merge key by key;
// an empty value removes the key.
type Patch struct {
	TagName     *string           `json:"tagName,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Styles      map[string]string `json:"styles,omitempty"`
	TextContent *string           `json:"textContent,omitempty"`

	// Node carries a whole subtree for create and delete snapshots, with the
	// location it occupied.
	Node     *ElementNode `json:"node,omitempty"`
	ParentID string       `json:"parentId,omitempty"`
	Index    int          `json:"index,omitempty"`
}

// StylePatch returns a patch that sets the given styles.
func StylePatch(styles map[string]string) Patch {
	return Patch{Styles: styles}
}

// TextPatch returns a patch that sets the text content.
func TextPatch(text string) Patch {
	return Patch{TextContent: &text}
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.TagName == nil && p.TextContent == nil && len(p.Attributes) == 0 &&
		len(p.Styles) == 0 && p.Node == nil
}

// Merge folds next on top of p. Keys in next win.
func (p Patch) Merge(next Patch) Patch {
	out := p
	if next.TagName != nil {
		out.TagName = next.TagName
	}
	if next.TextContent != nil {
		out.TextContent = next.TextContent
	}
	out.Attributes = mergeKeys(p.Attributes, next.Attributes)
	out.Styles = mergeKeys(p.Styles, next.Styles)
	return out
}

// Inverse returns the patch that restores n's current values for every
// field p touches.
func (p Patch) Inverse(n *ElementNode) Patch {
	var inv Patch
	if p.TagName != nil {
		tag := n.TagName
		inv.TagName = &tag
	}
	if p.TextContent != nil {
		text := n.TextContent
		inv.TextContent = &text
	}
	if len(p.Attributes) > 0 {
		inv.Attributes = make(map[string]string, len(p.Attributes))
		for k := range p.Attributes {
			inv.Attributes[k] = n.Attributes[k]
		}
	}
	if len(p.Styles) > 0 {
		inv.Styles = make(map[string]string, len(p.Styles))
		for k := range p.Styles {
			inv.Styles[k] = n.Styles[k]
		}
	}
	return inv
}

func mergeKeys(a, b map[string]string) map[string]string {
	if len(b) == 0 {
		return a
	}
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
