package mcpserver

// ElementContract describes the JSON shape of an element accepted by the
// add_element tool.
const ElementContract = `# Sowilo Element Format

Elements are JSON objects. Only ` + "`" + `tagName` + "`" + ` is required; ids are generated when
missing or already taken.

` + "```" + `json
{
  "tagName": "div",
  "attributes": { "class": "card" },
  "styles": { "width": "200px", "background-color": "#fde68a" },
  "children": [
    { "tagName": "#text", "isTextNode": true, "textContent": "Hello" }
  ]
}
` + "```" + `

## Rules

1. **Text** lives in child nodes with ` + "`" + `tagName: "#text"` + "`" + ` and ` + "`" + `isTextNode: true` + "`" + `.
2. **Styles** are CSS property names in kebab-case mapped to values. An empty
   value removes the property.
3. **Positioning** uses ` + "`" + `left` + "`" + `/` + "`" + `top` + "`" + ` in px; nudging sets
   ` + "`" + `position: absolute` + "`" + ` unless another position is present.
4. **Fonts** are added with the design's font list, not with ` + "`" + `<link>` + "`" + ` elements.
5. New elements are appended as the last root element and become the selection.
`
