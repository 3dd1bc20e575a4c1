package htmldoc

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	tp "github.com/xlab/treeprint"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/models"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        {{.Fonts}}

        * {
            box-sizing: border-box;
        }
        body {
            margin: 0;
            padding: 0;
            position: relative;
            width: {{.Width}}px;
            height: {{.Height}}px;
            background-color: #ffffff;
            overflow: hidden;
        }

        {{.Styles}}
    </style>
</head>
<body>
    {{.Body}}
</body>
</html>
`))

// ExportPage renders doc as a standalone HTML page sized to its canvas.
func ExportPage(doc *models.DesignDocument) (string, error) {
	if doc == nil {
		return "", apperr.ErrNoDocument
	}
	var b strings.Builder
	err := pageTemplate.Execute(&b, map[string]any{
		"Title":  escapeText(doc.Name),
		"Fonts":  strings.Join(doc.Fonts, ";\n        "),
		"Width":  doc.Width,
		"Height": doc.Height,
		"Styles": doc.Styles,
		"Body":   Render(doc.Elements, false),
	})
	if err != nil {
		return "", fmt.Errorf("htmldoc: export page: %w", err)
	}
	return b.String(), nil
}

// FileName returns the download name of an exported page.
func FileName(doc *models.DesignDocument) string {
	name := strings.ToLower(strings.Join(strings.Fields(doc.Name), "-"))
	if name == "" {
		name = "design"
	}
	return name + ".html"
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown converts the document body to markdown.
func Markdown(doc *models.DesignDocument) (string, error) {
	if doc == nil {
		return "", apperr.ErrNoDocument
	}
	md, err := mdConverter.ConvertString(Render(doc.Elements, false))
	if err != nil {
		return "", fmt.Errorf("htmldoc: markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// Outline draws the element tree, one line per node.
func Outline(doc *models.DesignDocument) string {
	if doc == nil {
		return ""
	}
	root := tp.New()
	var add func(br tp.Tree, nodes []*models.ElementNode)
	add = func(br tp.Tree, nodes []*models.ElementNode) {
		for _, n := range nodes {
			label := outlineLabel(n)
			if len(n.Children) == 0 {
				br.AddNode(label)
				continue
			}
			add(br.AddBranch(label), n.Children)
		}
	}
	add(root.AddBranch(fmt.Sprintf("%s (%dx%d)", doc.Name, doc.Width, doc.Height)), doc.Elements)
	return root.String()
}

func outlineLabel(n *models.ElementNode) string {
	if n.IsTextNode {
		text := n.TextContent
		if r := []rune(text); len(r) > 32 {
			text = string(r[:32]) + "..."
		}
		return fmt.Sprintf("%q [%s]", text, n.ID)
	}
	label := n.TagName + " [" + n.ID + "]"
	if cls := n.Attributes["class"]; cls != "" {
		label += " ." + strings.Join(strings.Fields(cls), ".")
	}
	return label
}

func escapeText(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
