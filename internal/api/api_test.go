package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/testutil"
	"github.com/starford/sowilo/internal/workspace"
)

const posterHTML = `<html><head><title>Retro Poster</title></head>
<body><div style="max-width: 600px; aspect-ratio: 4/5"><h1>Summer</h1><p>Live music</p></div></body></html>`

// testEnv sets up a SQLite DB, an in-memory draft store, a workspace and
// the router. A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string) (*workspace.Workspace, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*workspace.Workspace, http.Handler) {
	t.Helper()

	ws, _ := testutil.TestWorkspace(t)
	return ws, NewRouter(ws, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func importPoster(t *testing.T, router http.Handler) *models.DesignDocument {
	t.Helper()
	w := do(t, router, http.MethodPut, "/designs/poster/html", ImportRequest{HTML: posterHTML})
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	var doc models.DesignDocument
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	return &doc
}

func TestImportAndGetDocument(t *testing.T) {
	_, router := testEnv(t, "")
	doc := importPoster(t, router)
	if doc.ID != "poster" || doc.Name != "Retro Poster" {
		t.Errorf("doc = %s/%s", doc.ID, doc.Name)
	}

	w := do(t, router, http.MethodGet, "/designs/poster", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got models.DesignDocument
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Width != 600 || got.Height != 750 {
		t.Errorf("canvas = %dx%d, want 600x750", got.Width, got.Height)
	}
}

func TestImport_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/designs/poster/html", ImportRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty html = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/designs/poster/html", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

func TestGetDocument_None(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/designs/empty", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing document = %d, want 404", w.Code)
	}
}

func TestReadRoutes_UnknownDesign(t *testing.T) {
	ws, router := testEnv(t, "")
	for _, path := range []string{
		"/designs/ghost",
		"/designs/ghost/status",
		"/designs/ghost/metrics",
		"/designs/ghost/export",
		"/designs/ghost/download",
	} {
		if w := do(t, router, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, w.Code)
		}
	}
	if ids := ws.IDs(); len(ids) != 0 {
		t.Errorf("read routes opened designs: %v", ids)
	}
}

func TestReadRoutes_StoredDesign(t *testing.T) {
	ws, router := testEnv(t, "")
	importPoster(t, router)
	if w := do(t, router, http.MethodPost, "/designs/poster/save", nil); w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	if err := ws.Close(context.Background(), "poster"); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/designs/poster/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status of stored design = %d", w.Code)
	}
	if _, ok := ws.Get("poster"); !ok {
		t.Error("stored design not reopened")
	}
}

func TestElementLifecycle(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/designs/d1/elements", AddElementRequest{
		Element: &models.ElementNode{TagName: "div", Styles: map[string]string{"width": "100px"}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body = %s", w.Code, w.Body.String())
	}
	var el models.ElementNode
	_ = json.Unmarshal(w.Body.Bytes(), &el)
	if el.ID == "" {
		t.Fatal("expected generated element id")
	}
	base := "/designs/d1/elements/" + el.ID

	w = do(t, router, http.MethodPut, base+"/styles/width", StyleRequest{Value: "200px"})
	if w.Code != http.StatusOK {
		t.Fatalf("style status = %d, body = %s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &el)
	if el.Styles["width"] != "200px" {
		t.Errorf("width = %q, want 200px", el.Styles["width"])
	}

	w = do(t, router, http.MethodPatch, base, map[string]any{"attributes": map[string]string{"title": "box"}})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d", w.Code)
	}

	w = do(t, router, http.MethodPost, "/designs/d1/undo", nil)
	var undo map[string]bool
	_ = json.Unmarshal(w.Body.Bytes(), &undo)
	if !undo["applied"] {
		t.Error("undo not applied")
	}

	w = do(t, router, http.MethodPost, base+"/reorder", ReorderRequest{Direction: "front"})
	var moved map[string]bool
	_ = json.Unmarshal(w.Body.Bytes(), &moved)
	if w.Code != http.StatusOK || moved["moved"] {
		t.Errorf("reorder single root = %d moved=%v, want 200 false", w.Code, moved["moved"])
	}

	w = do(t, router, http.MethodDelete, base, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	w = do(t, router, http.MethodDelete, base, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("delete again = %d, want 404", w.Code)
	}
}

func TestUpdateElement_Validation(t *testing.T) {
	_, router := testEnv(t, "")
	importPoster(t, router)

	w := do(t, router, http.MethodPatch, "/designs/poster/elements/el-1", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty patch = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodPut, "/designs/poster/elements/el-1/styles/bad%20key", StyleRequest{Value: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad style key = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodPost, "/designs/poster/elements/el-1/reorder", ReorderRequest{Direction: "up"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad direction = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodPut, "/designs/poster/elements/ghost/styles/color", StyleRequest{Value: "red"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing element = %d, want 404", w.Code)
	}
}

func TestTextEditingEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	doc := importPoster(t, router)
	h1 := doc.Elements[0].Children[0]

	if w := do(t, router, http.MethodPost, "/designs/poster/editing/start", StartEditingRequest{ElementID: h1.ID}); w.Code != http.StatusOK {
		t.Fatalf("start = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/designs/poster/editing/content", ContentRequest{Content: "Winter"}); w.Code != http.StatusOK {
		t.Fatalf("content = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/designs/poster/editing/stop", nil); w.Code != http.StatusOK {
		t.Fatalf("stop = %d", w.Code)
	}

	w := do(t, router, http.MethodGet, "/designs/poster/export?format=markdown", nil)
	var out ExportResponse
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if !strings.Contains(out.Content, "Winter") {
		t.Errorf("markdown = %q, want edited heading", out.Content)
	}

	if w := do(t, router, http.MethodPost, "/designs/poster/editing/content", ContentRequest{Content: "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("content without edit = %d, want 400", w.Code)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	_, router := testEnv(t, "")
	importPoster(t, router)
	w := do(t, router, http.MethodGet, "/designs/poster/export?format=pdf", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("pdf export = %d, want 400", w.Code)
	}
}

func TestSaveAndList(t *testing.T) {
	_, router := testEnv(t, "")
	importPoster(t, router)

	w := do(t, router, http.MethodPost, "/designs/poster/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/designs", nil)
	var list DesignListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || len(list.Designs) != 1 || list.Designs[0].ID != "poster" {
		t.Errorf("list = %+v", list)
	}
	if len(list.Open) != 1 || list.Open[0] != "poster" {
		t.Errorf("open = %v", list.Open)
	}

	w = do(t, router, http.MethodGet, "/designs/poster/status", nil)
	if !strings.Contains(w.Body.String(), `"indicator":"saved"`) {
		t.Errorf("status = %s", w.Body.String())
	}
}

func TestKeysAndViewport(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/designs/d1/elements", AddElementRequest{Element: &models.ElementNode{TagName: "div"}})
	var el models.ElementNode
	_ = json.Unmarshal(w.Body.Bytes(), &el)

	w = do(t, router, http.MethodPost, "/designs/d1/keys", map[string]any{"key": "ArrowDown", "shiftKey": true})
	if !strings.Contains(w.Body.String(), `"handled":true`) {
		t.Fatalf("keys = %s", w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/designs/d1", nil)
	var doc models.DesignDocument
	_ = json.Unmarshal(w.Body.Bytes(), &doc)
	if got := doc.Elements[0].Styles["top"]; got != "10px" {
		t.Errorf("top = %q, want 10px", got)
	}

	w = do(t, router, http.MethodPost, "/designs/d1/viewport", map[string]any{"zoom": 9})
	if !strings.Contains(w.Body.String(), `"zoom":3`) {
		t.Errorf("viewport = %s, want clamped zoom", w.Body.String())
	}
}

func TestFonts(t *testing.T) {
	_, router := testEnv(t, "")
	importPoster(t, router)
	w := do(t, router, http.MethodPost, "/designs/poster/fonts", FontRequest{URL: "ftp://nope"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad font url = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodPost, "/designs/poster/fonts", FontRequest{URL: "https://fonts.googleapis.com/css2?family=Bungee"})
	if w.Code != http.StatusOK {
		t.Errorf("font = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/designs", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/designs", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/designs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/designs?access_token=secret123", nil)
	if w.Code != http.StatusOK {
		t.Errorf("query token GET = %d, want 200", w.Code)
	}

	w = do(t, router, http.MethodPost, "/designs/d1/save?access_token=secret123", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token POST = %d, want 401", w.Code)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// Upload and download tests.

func uploadFile(t *testing.T, router http.Handler, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/designs/poster/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadAndDownload(t *testing.T) {
	_, router := testEnv(t, "")

	w := uploadFile(t, router, "file", "poster.html", []byte(posterHTML))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ImportUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Filename != "poster.html" || resp.Elements != 1 {
		t.Errorf("upload response = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/designs/poster/download", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "retro-poster.html") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(w.Body.String(), "<!DOCTYPE html>") {
		t.Errorf("download body = %q", w.Body.String())
	}
}

func TestUpload_Rejected(t *testing.T) {
	_, router := testEnv(t, "")

	if w := uploadFile(t, router, "file", "notes.txt", []byte("hi")); w.Code != http.StatusBadRequest {
		t.Errorf("non-html upload = %d, want 400", w.Code)
	}
	if w := uploadFile(t, router, "other", "poster.html", []byte(posterHTML)); w.Code != http.StatusBadRequest {
		t.Errorf("missing file field = %d, want 400", w.Code)
	}
	if w := uploadFile(t, router, "file", "empty.html", nil); w.Code != http.StatusBadRequest {
		t.Errorf("empty html = %d, want 400", w.Code)
	}
}
