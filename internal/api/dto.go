package api

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/sowilo/internal/docstore"
	"github.com/starford/sowilo/internal/doctree"
	"github.com/starford/sowilo/internal/models"
)

var styleKey = regexp.MustCompile(`^-{0,2}[a-zA-Z][a-zA-Z0-9-]*$`)

// ImportRequest is the request body for replacing a design with HTML.
type ImportRequest struct {
	HTML string `json:"html" example:"<html><body><h1>Hi</h1></body></html>" validate:"required"`
}

// Validate validates the request.
func (r ImportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.HTML, validation.Required),
	)
}

// AddElementRequest is the request body for adding a root element.
type AddElementRequest struct {
	Element *models.ElementNode `json:"element" validate:"required"`
}

// Validate validates the request.
func (r AddElementRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Element, validation.Required),
	)
}

// StyleRequest sets one style property. An empty value removes it.
type StyleRequest struct {
	Value string `json:"value" example:"200px"`
}

// ReorderRequest moves an element within its siblings.
type ReorderRequest struct {
	Direction string `json:"direction" example:"front" validate:"required"`
}

// Validate validates the request.
func (r ReorderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Direction, validation.Required, validation.In("front", "back")),
	)
}

// BatchRequest applies several element patches as one undo step.
type BatchRequest struct {
	Updates []doctree.ElementUpdate `json:"updates" validate:"required"`
}

// Validate validates the request.
func (r BatchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Updates, validation.Required),
	)
}

// StartEditingRequest begins a text edit.
type StartEditingRequest struct {
	ElementID string `json:"elementId" example:"el-1" validate:"required"`
}

// Validate validates the request.
func (r StartEditingRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ElementID, validation.Required),
	)
}

// ContentRequest carries the text typed into the active edit.
type ContentRequest struct {
	Content string `json:"content" example:"Hello"`
}

// NudgeRequest moves the selected element.
type NudgeRequest struct {
	DX int `json:"dx" example:"1"`
	DY int `json:"dy" example:"0"`
}

// Validate validates the request.
func (r NudgeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DX, validation.Min(-10000), validation.Max(10000)),
		validation.Field(&r.DY, validation.Min(-10000), validation.Max(10000)),
	)
}

// SelectionRequest selects an element. An empty id clears the selection.
type SelectionRequest struct {
	ElementID string `json:"elementId" example:"el-1"`
	Add       bool   `json:"add"`
	Hovered   string `json:"hovered,omitempty"`
}

// ViewportRequest sets the zoom and pan of the canvas.
type ViewportRequest struct {
	Zoom *float64 `json:"zoom,omitempty" example:"1.5"`
	PanX *float64 `json:"panX,omitempty"`
	PanY *float64 `json:"panY,omitempty"`
}

// Validate validates the request.
func (r ViewportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Zoom, validation.Min(0.0)),
	)
}

// FontRequest adds a font stylesheet.
type FontRequest struct {
	URL string `json:"url" example:"https://fonts.googleapis.com/css2?family=Inter" validate:"required"`
}

// Validate validates the request.
func (r FontRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required),
	)
}

// RemoteTextRequest is a text change made elsewhere.
type RemoteTextRequest struct {
	ElementID string               `json:"elementId" validate:"required"`
	Change    models.PendingChange `json:"change" validate:"required"`
}

// Validate validates the request.
func (r RemoteTextRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ElementID, validation.Required),
	)
}

// DesignListResponse lists open and stored designs.
type DesignListResponse struct {
	Open    []string       `json:"open" validate:"required"`
	Designs []docstore.Row `json:"designs" validate:"required"`
	Total   int            `json:"total" example:"3" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []docstore.SearchResult `json:"results" validate:"required"`
}

// ExportResponse carries an exported design.
type ExportResponse struct {
	Format  string `json:"format" example:"html"`
	Content string `json:"content"`
}

// ImportUploadResponse is returned after a successful HTML upload.
type ImportUploadResponse struct {
	Filename string `json:"filename" example:"poster.html" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	Elements int    `json:"elements" example:"8"`
}
