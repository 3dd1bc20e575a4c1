// Package htmldoc converts between HTML text and design documents.
package htmldoc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/models"
)

// EditorIDAttr carries element ids through an export/import round trip.
const EditorIDAttr = "data-editor-id"

var (
	selStyle     = cascadia.MustCompile("style")
	selFontLinks = cascadia.MustCompile(`link[href*="fonts"]`)
	selTitle     = cascadia.MustCompile("title")
	selBody      = cascadia.MustCompile("body")
)

type parseOptions struct {
	sanitize   bool
	documentID string
}

// Option configures Parse.
type Option func(*parseOptions)

// WithSanitize strips scripts and event handlers from the body before it
// is converted.
func WithSanitize(on bool) Option { return func(o *parseOptions) { o.sanitize = on } }

// WithDocumentID sets the id of the parsed document.
func WithDocumentID(id string) Option { return func(o *parseOptions) { o.documentID = id } }

// Parse builds a document from HTML text. Every element and non-blank
// text run becomes a node with a unique id; an existing data-editor-id
// is kept when it is not already taken.
func Parse(src string, opts ...Option) (*models.DesignDocument, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("htmldoc: empty input: %w", apperr.ErrInvalidInput)
	}
	o := parseOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w: %w", apperr.ErrInvalidInput, err)
	}
	body := selBody.MatchFirst(root)
	if body == nil {
		return nil, fmt.Errorf("htmldoc: no body: %w", apperr.ErrInvalidInput)
	}

	doc := models.NewDocument()
	doc.ID = o.documentID
	if doc.ID == "" {
		doc.ID = "design-" + uuid.Must(uuid.NewV7()).String()
	}
	if t := selTitle.MatchFirst(root); t != nil {
		if name := strings.TrimSpace(textOf(t)); name != "" {
			doc.Name = name
		}
	}

	var sheets strings.Builder
	for _, s := range selStyle.MatchAll(root) {
		content := textOf(s)
		sheets.WriteString(content)
		doc.Fonts = append(doc.Fonts, fontImports(content)...)
	}
	doc.Styles = sheets.String()
	for _, l := range selFontLinks.MatchAll(root) {
		if href := attr(l, "href"); href != "" {
			doc.Fonts = append(doc.Fonts, fmt.Sprintf("@import url('%s')", href))
		}
	}

	children := elementChildren(body)
	if o.sanitize {
		if children, err = sanitizeBody(body); err != nil {
			return nil, err
		}
	}

	p := &treeBuilder{taken: map[string]bool{}, used: map[string]bool{}}
	for _, c := range children {
		p.reserve(c)
	}
	for _, c := range children {
		doc.Elements = append(doc.Elements, p.element(c, ""))
	}
	if len(doc.Elements) > 0 {
		doc.Width, doc.Height = dimensions(doc.Elements[0].Styles, doc.Width, doc.Height)
	}
	return doc, nil
}

// treeBuilder assigns ids while converting html nodes.
type treeBuilder struct {
	seq   int
	taken map[string]bool
	used  map[string]bool
}

// reserve marks every data-editor-id under n as taken, so generated ids
// never collide with ones that appear later in the document.
func (b *treeBuilder) reserve(n *html.Node) {
	if n.Type == html.ElementNode {
		if id := attr(n, EditorIDAttr); id != "" {
			b.taken[id] = true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.reserve(c)
	}
}

func (b *treeBuilder) nextID() string {
	for {
		b.seq++
		id := "el-" + strconv.Itoa(b.seq)
		if !b.taken[id] {
			b.taken[id] = true
			return id
		}
	}
}

func (b *treeBuilder) claim(n *html.Node) string {
	id := attr(n, EditorIDAttr)
	if id == "" || b.used[id] {
		return b.nextID()
	}
	b.used[id] = true
	return id
}

func (b *treeBuilder) element(n *html.Node, parentID string) *models.ElementNode {
	el := &models.ElementNode{
		ID:         b.claim(n),
		TagName:    strings.ToLower(n.Data),
		Attributes: map[string]string{},
		Styles:     map[string]string{},
		Children:   []*models.ElementNode{},
		ParentID:   parentID,
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "style":
			el.Styles = ParseStyle(a.Val)
		case EditorIDAttr:
		default:
			el.Attributes[a.Key] = a.Val
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			el.Children = append(el.Children, b.element(c, el.ID))
		case html.TextNode:
			if text := strings.TrimSpace(c.Data); text != "" {
				el.Children = append(el.Children, models.NewTextNode(b.nextID(), el.ID, text))
			}
		}
	}
	return el
}

// ParseStyle splits an inline style attribute into property/value pairs.
func ParseStyle(s string) map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return out
	}
	// A final declaration without ";" is dropped by the parser.
	if !strings.HasSuffix(strings.TrimSpace(s), ";") {
		s += ";"
	}
	decls, err := parser.ParseDeclarations(s)
	if err != nil {
		for _, part := range strings.Split(s, ";") {
			k, v, ok := strings.Cut(part, ":")
			if k, v = strings.TrimSpace(k), strings.TrimSpace(v); ok && k != "" && v != "" {
				out[k] = v
			}
		}
		return out
	}
	for _, d := range decls {
		if d.Property == "" || d.Value == "" {
			continue
		}
		v := d.Value
		if d.Important {
			v += " !important"
		}
		out[d.Property] = v
	}
	return out
}

// fontImports returns the @import rules of a stylesheet.
func fontImports(sheet string) []string {
	ss, err := parser.Parse(sheet)
	if err != nil {
		return nil
	}
	var out []string
	for _, r := range ss.Rules {
		if r.Kind == css.AtRule && r.Name == "@import" {
			out = append(out, "@import "+strings.TrimSpace(r.Prelude))
		}
	}
	return out
}

// dimensions reads the canvas size from the first root's max-width and
// aspect-ratio.
func dimensions(styles map[string]string, w, h int) (int, int) {
	if px, ok := strings.CutSuffix(strings.TrimSpace(styles["max-width"]), "px"); ok {
		if v, err := strconv.Atoi(strings.TrimSpace(px)); err == nil && v > 0 {
			w = v
		}
	}
	if num, den, ok := strings.Cut(styles["aspect-ratio"], "/"); ok {
		rw, err1 := strconv.Atoi(strings.TrimSpace(num))
		rh, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 == nil && err2 == nil && rw > 0 && rh > 0 {
			h = int(math.Round(float64(w) * float64(rh) / float64(rw)))
		}
	}
	return w, h
}

func sanitizeBody(body *html.Node) ([]*html.Node, error) {
	var raw strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&raw, c); err != nil {
			return nil, fmt.Errorf("htmldoc: render body: %w", err)
		}
	}
	clean := sanitizer().Sanitize(raw.String())
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(clean), ctx)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse sanitized body: %w", err)
	}
	var out []*html.Node
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}
	return out, nil
}

// sanitizer removes scripts and event handlers but keeps the markup a
// design is built from, form controls included. Links are left as written.
func sanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(false)
	p.AllowAttrs("style", "class", "id").Globally()
	p.AllowDataAttributes()
	p.AllowElements("section", "header", "footer", "main", "article", "aside", "nav", "figure", "figcaption")
	p.AllowElements(formTags...)
	p.AllowAttrs("type", "name", "value", "placeholder", "for", "disabled", "checked", "selected", "rows", "cols").
		OnElements(formTags...)
	return p
}

var formTags = []string{"form", "fieldset", "legend", "label", "button", "input", "select", "option", "textarea"}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
