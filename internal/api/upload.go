package api

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/starford/sowilo/internal/htmldoc"
)

const maxUploadBytes = 20 << 20 // 20 MB

// htmlName validates that the uploaded filename is a plain .html name.
func htmlName(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return fmt.Errorf("invalid filename: %s", name)
	}
	switch strings.ToLower(filepath.Ext(cleaned)) {
	case ".html", ".htm":
		return nil
	}
	return fmt.Errorf("not an html file: %s", name)
}

// Upload handles POST /api/designs/{id}/upload (multipart/form-data, field "file").
// The file replaces the design's document.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	if err := htmlName(header.Filename); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	var buf bytes.Buffer
	written, err := io.Copy(&buf, file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to read file"))
		return
	}

	ed := h.editor(w, r)
	if ed == nil {
		return
	}
	doc, err := ed.ImportHTML(buf.String())
	if err != nil {
		writeError(w, "upload", err)
		return
	}

	writeJSON(w, http.StatusCreated, ImportUploadResponse{
		Filename: header.Filename,
		Size:     written,
		Elements: len(doc.Elements),
	})
}

// Download handles GET /api/designs/{id}/download and serves the exported
// page as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	ed := h.existing(w, r)
	if ed == nil {
		return
	}
	page, err := ed.ExportHTML("html")
	if err != nil {
		writeError(w, "download", err)
		return
	}
	name := htmldoc.FileName(ed.Document())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, page)
}
