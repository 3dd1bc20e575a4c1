package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/sowilo/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(ws *workspace.Workspace, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(ws)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/designs", h.ListDesigns)
	r.Get("/search", h.Search)

	r.Route("/designs/{id}", func(r chi.Router) {
		// Document.
		r.Get("/", h.GetDocument)
		r.Delete("/", h.DeleteDesign)
		r.Put("/html", h.ImportHTML)
		r.Post("/upload", h.Upload)
		r.Get("/export", h.Export)
		r.Get("/download", h.Download)
		r.Get("/status", h.Status)
		r.Get("/metrics", h.Metrics)

		// Elements.
		r.Post("/elements", h.AddElement)
		r.Patch("/elements/{elementId}", h.UpdateElement)
		r.Delete("/elements/{elementId}", h.DeleteElement)
		r.Put("/elements/{elementId}/styles/{key}", h.UpdateStyle)
		r.Post("/elements/{elementId}/reorder", h.Reorder)
		r.Post("/batch", h.Batch)

		// Text editing.
		r.Post("/editing/start", h.StartEditing)
		r.Post("/editing/content", h.UpdateContent)
		r.Post("/editing/stop", h.StopEditing)
		r.Post("/remote-text", h.RemoteText)

		// Commands.
		r.Post("/undo", h.Undo)
		r.Post("/redo", h.Redo)
		r.Post("/save", h.Save)
		r.Post("/clear", h.Clear)
		r.Post("/nudge", h.Nudge)
		r.Post("/selection", h.Select)
		r.Post("/viewport", h.Viewport)
		r.Post("/fonts", h.AddFont)
		r.Post("/keys", h.Key)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
