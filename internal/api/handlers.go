package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/sowilo/internal/editor"
	"github.com/starford/sowilo/internal/keymap"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	ws *workspace.Workspace
}

// NewHandler creates a new Handler.
func NewHandler(ws *workspace.Workspace) *Handler {
	return &Handler{ws: ws}
}

// editor opens the design named by the {id} URL parameter. On failure the
// response is written and nil is returned.
func (h *Handler) editor(w http.ResponseWriter, r *http.Request) *editor.Editor {
	ed, err := h.ws.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "open design", err)
		return nil
	}
	return ed
}

// existing finds the design named by the {id} URL parameter without
// creating it. Unknown designs get a 404.
func (h *Handler) existing(w http.ResponseWriter, r *http.Request) *editor.Editor {
	ed, err := h.ws.Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "find design", err)
		return nil
	}
	return ed
}

func elementID(r *http.Request) string {
	return chi.URLParam(r, "elementId")
}

// ListDesigns handles GET /api/designs.
//
//	@Summary		List open and stored designs
//	@Tags			designs
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	DesignListResponse
//	@Security		BearerAuth
//	@Router			/designs [get]
func (h *Handler) ListDesigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, total, err := h.ws.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "list designs", err)
		return
	}
	writeJSON(w, http.StatusOK, DesignListResponse{Open: h.ws.IDs(), Designs: rows, Total: total})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across design text
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.ws.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// GetDocument handles GET /api/designs/{id}.
//
//	@Summary		Get the current document of a design
//	@Tags			designs
//	@Produce		json
//	@Param			id	path		string	true	"Design id"
//	@Success		200	{object}	models.DesignDocument
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/designs/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ed := h.existing(w, r)
	if ed == nil {
		return
	}
	doc := ed.Document()
	if doc == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no document"))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDesign handles DELETE /api/designs/{id}.
func (h *Handler) DeleteDesign(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete design", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportHTML handles PUT /api/designs/{id}/html.
//
//	@Summary		Replace a design with parsed HTML
//	@Tags			designs
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Design id"
//	@Param			body	body		ImportRequest	true	"HTML source"
//	@Success		200		{object}	models.DesignDocument
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/designs/{id}/html [put]
func (h *Handler) ImportHTML(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	doc, err := ed.ImportHTML(req.HTML)
	if err != nil {
		writeError(w, "import html", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Export handles GET /api/designs/{id}/export.
//
//	@Summary		Export a design
//	@Tags			designs
//	@Produce		json
//	@Param			id		path		string	true	"Design id"
//	@Param			format	query		string	false	"Export format"	Enums(html, markdown, outline)
//	@Success		200		{object}	ExportResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/designs/{id}/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ed := h.existing(w, r)
	if ed == nil {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "html"
	}
	out, err := ed.ExportHTML(format)
	if err != nil {
		writeError(w, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{Format: format, Content: out})
}

// Status handles GET /api/designs/{id}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ed := h.existing(w, r)
	if ed == nil {
		return
	}
	writeJSON(w, http.StatusOK, ed.Status())
}

// Metrics handles GET /api/designs/{id}/metrics.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	ed := h.existing(w, r)
	if ed == nil {
		return
	}
	data, err := ed.Metrics().Export()
	if err != nil {
		writeError(w, "export metrics", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// AddElement handles POST /api/designs/{id}/elements.
//
//	@Summary		Append a root element
//	@Tags			elements
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Design id"
//	@Param			body	body		AddElementRequest	true	"Element"
//	@Success		201		{object}	models.ElementNode
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/designs/{id}/elements [post]
func (h *Handler) AddElement(w http.ResponseWriter, r *http.Request) {
	var req AddElementRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	id, err := ed.AddElement(req.Element)
	if err != nil {
		writeError(w, "add element", err)
		return
	}
	el, err := ed.Element(id)
	if err != nil {
		writeError(w, "add element", err)
		return
	}
	writeJSON(w, http.StatusCreated, el)
}

// UpdateElement handles PATCH /api/designs/{id}/elements/{elementId}.
func (h *Handler) UpdateElement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TextContent *string           `json:"textContent"`
		Attributes  map[string]string `json:"attributes"`
		Styles      map[string]string `json:"styles"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.TextContent == nil && len(req.Attributes) == 0 && len(req.Styles) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("textContent, attributes or styles is required"))
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	patch := models.Patch{TextContent: req.TextContent, Attributes: req.Attributes, Styles: req.Styles}
	if err := ed.UpdateElement(elementID(r), patch); err != nil {
		writeError(w, "update element", err)
		return
	}
	h.writeElement(w, ed, elementID(r))
}

// UpdateStyle handles PUT /api/designs/{id}/elements/{elementId}/styles/{key}.
func (h *Handler) UpdateStyle(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := validation.Validate(key, validation.Required, validation.Match(styleKey)); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("style key: "+err.Error()))
		return
	}
	var req StyleRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	if err := ed.UpdateStyleField(elementID(r), key, req.Value); err != nil {
		writeError(w, "update style", err)
		return
	}
	h.writeElement(w, ed, elementID(r))
}

func (h *Handler) writeElement(w http.ResponseWriter, ed *editor.Editor, id string) {
	el, err := ed.Element(id)
	if err != nil {
		writeError(w, "read element", err)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

// DeleteElement handles DELETE /api/designs/{id}/elements/{elementId}.
func (h *Handler) DeleteElement(w http.ResponseWriter, r *http.Request) {
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	if err := ed.DeleteElement(elementID(r)); err != nil {
		writeError(w, "delete element", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reorder handles POST /api/designs/{id}/elements/{elementId}/reorder.
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	move := ed.BringToFront
	if req.Direction == "back" {
		move = ed.SendToBack
	}
	moved, err := move(elementID(r))
	if err != nil {
		writeError(w, "reorder", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

// Batch handles POST /api/designs/{id}/batch.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	if err := ed.ApplyBatch(req.Updates); err != nil {
		writeError(w, "batch", err)
		return
	}
	writeJSON(w, http.StatusOK, ed.Document())
}

// StartEditing handles POST /api/designs/{id}/editing/start.
func (h *Handler) StartEditing(w http.ResponseWriter, r *http.Request) {
	var req StartEditingRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	if err := ed.StartTextEditing(req.ElementID); err != nil {
		writeError(w, "start editing", err)
		return
	}
	writeJSON(w, http.StatusOK, ed.Status().Editing)
}

// UpdateContent handles POST /api/designs/{id}/editing/content.
func (h *Handler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	if err := ed.UpdateContent(req.Content); err != nil {
		writeError(w, "update content", err)
		return
	}
	writeJSON(w, http.StatusOK, ed.Status().Editing)
}

// StopEditing handles POST /api/designs/{id}/editing/stop.
func (h *Handler) StopEditing(w http.ResponseWriter, r *http.Request) {
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	id, err := ed.StopTextEditing()
	if err != nil {
		writeError(w, "stop editing", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"elementId": id})
}

// Undo handles POST /api/designs/{id}/undo.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": ed.Undo()})
}

// Redo handles POST /api/designs/{id}/redo.
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": ed.Redo()})
}

// Save handles POST /api/designs/{id}/save.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	if err := ed.Save(r.Context()); err != nil {
		writeError(w, "save", err)
		return
	}
	writeJSON(w, http.StatusOK, ed.Status().Sync)
}

// Clear handles POST /api/designs/{id}/clear.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	ed.ClearCanvas()
	w.WriteHeader(http.StatusNoContent)
}

// Nudge handles POST /api/designs/{id}/nudge.
func (h *Handler) Nudge(w http.ResponseWriter, r *http.Request) {
	var req NudgeRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	if err := ed.Nudge(req.DX, req.DY); err != nil {
		writeError(w, "nudge", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"selection": ed.Selection()})
}

// Select handles POST /api/designs/{id}/selection.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	if err := ed.SelectElement(req.ElementID, req.Add); err != nil {
		writeError(w, "select", err)
		return
	}
	ed.SetHovered(req.Hovered)
	writeJSON(w, http.StatusOK, map[string][]string{"selection": ed.Selection()})
}

// Viewport handles POST /api/designs/{id}/viewport.
func (h *Handler) Viewport(w http.ResponseWriter, r *http.Request) {
	var req ViewportRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	if req.Zoom != nil {
		ed.SetZoom(*req.Zoom)
	}
	if req.PanX != nil || req.PanY != nil {
		pan := ed.Status().Pan
		if req.PanX != nil {
			pan.X = *req.PanX
		}
		if req.PanY != nil {
			pan.Y = *req.PanY
		}
		ed.SetPan(pan)
	}
	st := ed.Status()
	writeJSON(w, http.StatusOK, map[string]any{"zoom": st.Zoom, "pan": st.Pan})
}

// AddFont handles POST /api/designs/{id}/fonts.
func (h *Handler) AddFont(w http.ResponseWriter, r *http.Request) {
	var req FontRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	if err := ed.AddFont(req.URL); err != nil {
		writeError(w, "add font", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"fonts": ed.Document().Fonts})
}

// Key handles POST /api/designs/{id}/keys.
func (h *Handler) Key(w http.ResponseWriter, r *http.Request) {
	var ev keymap.Event
	if !decode(w, r, &ev) {
		return
	}
	if strings.TrimSpace(ev.Key) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("key is required"))
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	act, handled, err := ed.HandleKey(r.Context(), ev)
	if err != nil {
		writeError(w, "key", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handled": handled, "action": act})
}

// RemoteText handles POST /api/designs/{id}/remote-text.
func (h *Handler) RemoteText(w http.ResponseWriter, r *http.Request) {
	var req RemoteTextRequest
	if !decode(w, r, &req) {
		return
	}
	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	info, err := ed.ResolveRemoteText(req.ElementID, req.Change)
	if err != nil {
		writeError(w, "resolve remote text", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
