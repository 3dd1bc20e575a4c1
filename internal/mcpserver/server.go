// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes sowilo editing tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/editor"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/workspace"
)

// DesignsURI is the resource listing stored designs.
const DesignsURI = "sowilo://designs"

// Server wraps the MCP server with sowilo tools.
type Server struct {
	mcp *server.MCPServer
	ws  *workspace.Workspace
}

// New creates a new MCP server with all sowilo tools registered.
func New(ws *workspace.Workspace) *Server {
	s := &Server{ws: ws}

	s.mcp = server.NewMCPServer(
		"Sowilo",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	designID := mcp.WithString("design_id", mcp.Required(), mcp.Description("Design id"))

	s.mcp.AddTool(mcp.NewTool("list_designs",
		mcp.WithDescription("List stored designs and the designs open in this process."),
	), s.listDesigns)

	s.mcp.AddTool(mcp.NewTool("search_designs",
		mcp.WithDescription("Full-text search through the text of stored designs."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDesigns)

	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Return the element tree of a design as JSON."),
		designID,
	), s.getDocument)

	s.mcp.AddTool(mcp.NewTool("import_html",
		mcp.WithDescription("Replace a design with a parsed HTML document. Unsaved changes are discarded."),
		designID,
		mcp.WithString("html", mcp.Required(), mcp.Description("Complete HTML document")),
	), s.importHTML)

	s.mcp.AddTool(mcp.NewTool("import_url",
		mcp.WithDescription("Download an HTML page (http, https or a base64 data URI) and import it into a design."),
		designID,
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
	), s.importURL)

	s.mcp.AddTool(mcp.NewTool("export_html",
		mcp.WithDescription("Export a design as a standalone HTML page or as markdown."),
		designID,
		mcp.WithString("format", mcp.Description("html (default), markdown or outline")),
	), s.exportHTML)

	s.mcp.AddTool(mcp.NewTool("outline",
		mcp.WithDescription("Print the element tree of a design with ids, for choosing element_id arguments."),
		designID,
	), s.outline)

	s.mcp.AddTool(mcp.NewTool("get_element_contract",
		mcp.WithDescription("Returns the JSON element format accepted by add_element. "+
			"Call this before adding elements."),
	), s.getElementContract)

	s.mcp.AddTool(mcp.NewTool("add_element",
		mcp.WithDescription("Append an element as the last root of a design. "+
			"Read the format first via get_element_contract or the sowilo://element-format resource."),
		designID,
		mcp.WithString("element", mcp.Required(), mcp.Description("Element JSON")),
	), s.addElement)

	s.mcp.AddTool(mcp.NewTool("update_style",
		mcp.WithDescription("Set one CSS property of an element. An empty value removes it."),
		designID,
		mcp.WithString("element_id", mcp.Required(), mcp.Description("Element id")),
		mcp.WithString("key", mcp.Required(), mcp.Description("CSS property, e.g. background-color")),
		mcp.WithString("value", mcp.Description("CSS value")),
	), s.updateStyle)

	s.mcp.AddTool(mcp.NewTool("update_text",
		mcp.WithDescription("Replace the text of an element."),
		designID,
		mcp.WithString("element_id", mcp.Required(), mcp.Description("Element id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New text")),
	), s.updateText)

	s.mcp.AddTool(mcp.NewTool("delete_element",
		mcp.WithDescription("Remove an element and its children."),
		designID,
		mcp.WithString("element_id", mcp.Required(), mcp.Description("Element id")),
	), s.deleteElement)

	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Revert the most recent change of a design."),
		designID,
	), s.undo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Reapply the most recently undone change of a design."),
		designID,
	), s.redo)

	s.mcp.AddTool(mcp.NewTool("save",
		mcp.WithDescription("Persist pending changes of a design now."),
		designID,
	), s.save)

	s.mcp.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Sync, queue, history and auto-save state of a design."),
		designID,
	), s.status)

	s.mcp.AddResource(
		mcp.NewResource(DesignsURI, "Designs",
			mcp.WithResourceDescription("Stored designs with their revision and canvas size."),
			mcp.WithMIMEType("application/json"),
		),
		s.readDesignsResource,
	)

	s.mcp.AddResource(
		mcp.NewResource("sowilo://element-format", "Element Format",
			mcp.WithResourceDescription("JSON element format accepted by add_element."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readElementFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNoDocument):
		return mcp.NewToolResultError("design has no document; import html or add an element first")
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	}
	return mcp.NewToolResultError(err.Error())
}

// open resolves the design_id argument to its editor.
func (s *Server) open(ctx context.Context, req mcp.CallToolRequest) (*editor.Editor, *mcp.CallToolResult) {
	id, err := req.RequireString("design_id")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	ed, err := s.ws.Open(ctx, id)
	if err != nil {
		return nil, errorResult(err)
	}
	return ed, nil
}

func optString(req mcp.CallToolRequest, key string) string {
	v, _ := req.GetArguments()[key].(string)
	return v
}

func (s *Server) listDesigns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, total, err := s.ws.List(ctx, 100, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"open": s.ws.IDs(), "designs": rows, "total": total}), nil
}

func (s *Server) searchDesigns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.ws.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	doc := ed.Document()
	if doc == nil {
		return errorResult(apperr.ErrNoDocument), nil
	}
	return jsonResult(doc), nil
}

func (s *Server) importHTML(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("html")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	doc, err := ed.ImportHTML(src)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported %q: %d root elements, %dx%d", doc.Name, len(doc.Elements), doc.Width, doc.Height)), nil
}

func (s *Server) exportHTML(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	out, err := ed.ExportHTML(optString(req, "format"))
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) outline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	out, err := ed.ExportHTML("outline")
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) getElementContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ElementContract), nil
}

func (s *Server) addElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("element")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var node models.ElementNode
	if err := json.Unmarshal([]byte(raw), &node); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid element JSON: %v", err)), nil
	}
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	id, err := ed.AddElement(&node)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added: %s", id)), nil
}

func (s *Server) updateStyle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	elementID, err := req.RequireString("element_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	if err := ed.UpdateStyleField(elementID, key, optString(req, "value")); err != nil {
		return errorResult(err), nil
	}
	el, err := ed.Element(elementID)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(el.Styles), nil
}

func (s *Server) updateText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	elementID, err := req.RequireString("element_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	if err := ed.StartTextEditing(elementID); err != nil {
		return errorResult(err), nil
	}
	if err := ed.UpdateContent(text); err != nil {
		return errorResult(err), nil
	}
	if _, err := ed.StopTextEditing(); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", elementID)), nil
}

func (s *Server) deleteElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	elementID, err := req.RequireString("element_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	if err := ed.DeleteElement(elementID); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", elementID)), nil
}

func (s *Server) undo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	if !ed.Undo() {
		return mcp.NewToolResultText("nothing to undo"), nil
	}
	return mcp.NewToolResultText("undone"), nil
}

func (s *Server) redo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	if !ed.Redo() {
		return mcp.NewToolResultText("nothing to redo"), nil
	}
	return mcp.NewToolResultText("redone"), nil
}

func (s *Server) save(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	if err := ed.Save(ctx); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(ed.Status().Sync), nil
}

func (s *Server) status(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ed, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	return jsonResult(ed.Status()), nil
}

func (s *Server) readDesignsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	rows, _, err := s.ws.List(ctx, 100, 0)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      DesignsURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func (s *Server) readElementFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "sowilo://element-format",
			MIMEType: "text/markdown",
			Text:     ElementContract,
		},
	}, nil
}
