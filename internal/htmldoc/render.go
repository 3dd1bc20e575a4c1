package htmldoc

import (
	"html"
	"slices"
	"strings"

	"github.com/starford/sowilo/internal/models"
)

var voidTags = map[string]bool{
	"img": true, "br": true, "hr": true, "input": true, "meta": true, "link": true,
}

// rawTextTags hold text the html parser does not unescape.
var rawTextTags = map[string]bool{"script": true, "style": true}

// Render serialises nodes as HTML. Attributes and style properties are
// written in sorted order so output is stable. With editorIDs set, every
// element carries its id in data-editor-id.
func Render(nodes []*models.ElementNode, editorIDs bool) string {
	var b strings.Builder
	for _, n := range nodes {
		renderNode(&b, n, editorIDs, false)
	}
	return b.String()
}

func renderNode(b *strings.Builder, n *models.ElementNode, editorIDs, raw bool) {
	if n.IsTextNode {
		if raw {
			b.WriteString(n.TextContent)
		} else {
			b.WriteString(html.EscapeString(n.TextContent))
		}
		return
	}
	b.WriteByte('<')
	b.WriteString(n.TagName)
	for _, k := range sortedKeys(n.Attributes) {
		writeAttr(b, k, n.Attributes[k])
	}
	if style := StyleString(n.Styles); style != "" {
		writeAttr(b, "style", style)
	}
	if editorIDs {
		writeAttr(b, EditorIDAttr, n.ID)
	}
	if voidTags[n.TagName] {
		b.WriteString(" />")
		return
	}
	b.WriteByte('>')
	if len(n.Children) == 0 && n.TextContent != "" {
		b.WriteString(html.EscapeString(n.TextContent))
	}
	for _, c := range n.Children {
		renderNode(b, c, editorIDs, rawTextTags[n.TagName])
	}
	b.WriteString("</")
	b.WriteString(n.TagName)
	b.WriteByte('>')
}

func writeAttr(b *strings.Builder, k, v string) {
	b.WriteByte(' ')
	b.WriteString(k)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(v))
	b.WriteByte('"')
}

// StyleString joins styles as an inline style attribute value.
func StyleString(styles map[string]string) string {
	parts := make([]string, 0, len(styles))
	for _, k := range sortedKeys(styles) {
		parts = append(parts, k+": "+styles[k])
	}
	return strings.Join(parts, "; ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
