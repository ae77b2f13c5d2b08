package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmitchellscott/nixpdf/internal/config"
	"github.com/rmitchellscott/nixpdf/internal/converter"
	"github.com/rmitchellscott/nixpdf/internal/dispatch"
	"github.com/rmitchellscott/nixpdf/internal/pdftest"
	"github.com/rmitchellscott/nixpdf/internal/qpdf"
	"github.com/rmitchellscott/nixpdf/internal/runner"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	cfg    config.Config
	router *gin.Engine
}

func newTestServer(t *testing.T, mutate func(*config.Config), r runner.Runner) *testServer {
	t.Helper()
	cfg := config.Config{
		Port:          "5000",
		UploadDir:     t.TempDir(),
		TempDir:       t.TempDir(),
		MaxFileSize:   10 << 20,
		MaxFiles:      3,
		CORSOrigins:   []string{"http://localhost:3000"},
		MaxConcurrent: 2,
		RasterDPI:     150,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if r == nil {
		r = runner.Func(func(context.Context, runner.Invocation) (runner.Result, error) {
			return runner.Result{}, runner.ErrToolNotFound
		})
	}
	tools := dispatch.Tools{
		QPDF:      qpdf.New(r, "qpdf", time.Second),
		Office:    &converter.Office{Runner: r, Binary: "soffice"},
		Script:    &converter.Script{Runner: r, Python: "python3", Path: "missing.py"},
		Raster:    &converter.Pdftoppm{Runner: r, Binary: "pdftoppm"},
		OCR:       &converter.OCR{Runner: r, Binary: "tesseract", Lang: "eng"},
		RasterDPI: 150,
	}
	s := NewServer(cfg, dispatch.New(tools))
	return &testServer{cfg: cfg, router: s.Router()}
}

type filePart struct {
	field, name, ctype string
	data               []byte
}

func body(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.ctype)
		p, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = p.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func pdfPart(t *testing.T, field string, widths ...int) filePart {
	path := pdftest.PDF(t, t.TempDir(), "doc.pdf", widths...)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return filePart{field: field, name: "doc.pdf", ctype: "application/pdf", data: data}
}

func (ts *testServer) post(t *testing.T, route string, fields map[string]string, files ...filePart) *httptest.ResponseRecorder {
	t.Helper()
	b, ctype := body(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, route, b)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) get(route string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, route, nil))
	return w
}

// assertClean checks that the request left nothing in the scratch dirs.
func (ts *testServer) assertClean(t *testing.T) {
	t.Helper()
	for _, dir := range []string{ts.cfg.UploadDir, ts.cfg.TempDir} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "leftovers in %s", dir)
	}
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestMergeDownloadAndCleanup(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.post(t, "/api/merge", nil, pdfPart(t, "files", 100, 110), pdfPart(t, "files", 120))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "merged.pdf")
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	out := filepath.Join(t.TempDir(), "merged.pdf")
	require.NoError(t, os.WriteFile(out, w.Body.Bytes(), 0o644))
	assert.Equal(t, []int{100, 110, 120}, pdftest.Widths(t, out))
	ts.assertClean(t)

	status := ts.get("/api/status/" + w.Header().Get("X-Request-ID"))
	require.Equal(t, http.StatusOK, status.Code)
	assert.Contains(t, status.Body.String(), `"status":"success"`)
}

func TestValidationErrorsCleanUp(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	text := filePart{field: "file", name: "notes.txt", ctype: "text/plain", data: []byte("hello")}

	tests := []struct {
		name   string
		route  string
		fields map[string]string
		files  []filePart
		code   string
		msg    string
	}{
		{"merge one file", "/api/merge", nil, []filePart{pdfPart(t, "files", 100)}, "too_few_files", "Please upload at least 2 PDF files"},
		{"too many files", "/api/merge", nil, []filePart{pdfPart(t, "files", 100), pdfPart(t, "files", 100), pdfPart(t, "files", 100), pdfPart(t, "files", 100)}, "too_many_files", "Too many files. Max is 3"},
		{"bad type", "/api/compress", nil, []filePart{text}, "invalid_type", "Invalid file type: text/plain"},
		{"no file", "/api/compress", map[string]string{"x": "y"}, nil, "missing_file", "No file uploaded"},
		{"bad degrees", "/api/rotate", map[string]string{"degrees": "45"}, []filePart{pdfPart(t, "file", 100)}, "invalid_parameter", dispatch.MsgDegrees},
		{"bad opacity", "/api/watermark", map[string]string{"opacity": "2"}, []filePart{pdfPart(t, "file", 100)}, "invalid_parameter", dispatch.MsgOpacity},
		{"short password", "/api/protect", map[string]string{"password": "abc"}, []filePart{pdfPart(t, "file", 100)}, "invalid_parameter", dispatch.MsgPasswordShort},
		{"single page split", "/api/split", nil, []filePart{pdfPart(t, "file", 100)}, dispatch.CodeSinglePage, "PDF has only one page, cannot split"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.post(t, tt.route, tt.fields, tt.files...)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			got := errorBody(t, w)
			assert.Equal(t, tt.code, got["code"])
			assert.Equal(t, tt.msg, got["error"])
			ts.assertClean(t)
		})
	}
}

// headerSnapshot records what the scratch dirs held when the status line
// was written.
type headerSnapshot struct {
	*httptest.ResponseRecorder
	dirs    []string
	entries []string
}

func (w *headerSnapshot) WriteHeader(code int) {
	for _, dir := range w.dirs {
		list, _ := os.ReadDir(dir)
		for _, e := range list {
			w.entries = append(w.entries, filepath.Join(dir, e.Name()))
		}
	}
	w.ResponseRecorder.WriteHeader(code)
}

func TestErrorsAreSentAfterCleanup(t *testing.T) {
	r := runner.Func(func(_ context.Context, inv runner.Invocation) (runner.Result, error) {
		out := inv.Args[len(inv.Args)-1]
		os.WriteFile(out, []byte("partial"), 0o644)
		return runner.Result{}, &runner.ExitError{Name: inv.Name, Code: 2, Stderr: "broken"}
	})
	ts := newTestServer(t, nil, r)
	text := filePart{field: "file", name: "notes.txt", ctype: "text/plain", data: []byte("hello")}

	tests := []struct {
		name   string
		route  string
		fields map[string]string
		files  []filePart
		status int
	}{
		{"rejected parameter", "/api/rotate", map[string]string{"degrees": "45"}, []filePart{pdfPart(t, "file", 100)}, http.StatusBadRequest},
		{"rejected upload", "/api/merge", nil, []filePart{pdfPart(t, "files", 100), text}, http.StatusBadRequest},
		{"tool failure", "/api/repair", nil, []filePart{pdfPart(t, "file", 100)}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ctype := body(t, tt.fields, tt.files...)
			req := httptest.NewRequest(http.MethodPost, tt.route, b)
			req.Header.Set("Content-Type", ctype)
			w := &headerSnapshot{ResponseRecorder: httptest.NewRecorder(), dirs: []string{ts.cfg.UploadDir, ts.cfg.TempDir}}
			ts.router.ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Empty(t, w.entries, "files still present when the error was sent")
			ts.assertClean(t)
		})
	}
}

func TestPanicMarksRequestFailed(t *testing.T) {
	r := runner.Func(func(context.Context, runner.Invocation) (runner.Result, error) {
		panic("boom")
	})
	ts := newTestServer(t, nil, r)
	w := ts.post(t, "/api/repair", nil, pdfPart(t, "file", 100))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	ts.assertClean(t)

	id := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)
	status := ts.get("/api/status/" + id)
	require.Equal(t, http.StatusOK, status.Code)
	assert.Contains(t, status.Body.String(), `"status":"error"`)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(ts.get("/api/health").Body.Bytes(), &health))
	assert.EqualValues(t, 0, health["running"])
}

func TestFileTooLarge(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.MaxFileSize = 1 << 20 }, nil)
	big := filePart{field: "file", name: "big.pdf", ctype: "application/pdf", data: bytes.Repeat([]byte("x"), 1<<20+10)}

	w := ts.post(t, "/api/compress", nil, big)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File too large. Max size is 1MB", errorBody(t, w)["error"])
	ts.assertClean(t)
}

func TestToolUnavailableIs500WithHint(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.post(t, "/api/protect", map[string]string{"password": "secret1"}, pdfPart(t, "file", 100))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	got := errorBody(t, w)
	assert.Equal(t, qpdf.MsgProtectUnavailable, got["error"])
	assert.Equal(t, "tool_unavailable", got["code"])
	ts.assertClean(t)
}

func TestToolFailureCleansPartialOutput(t *testing.T) {
	r := runner.Func(func(_ context.Context, inv runner.Invocation) (runner.Result, error) {
		out := inv.Args[len(inv.Args)-1]
		os.WriteFile(out, []byte("partial"), 0o644)
		return runner.Result{}, &runner.ExitError{Name: inv.Name, Code: 2, Stderr: "damaged beyond repair"}
	})
	ts := newTestServer(t, nil, r)
	w := ts.post(t, "/api/repair", nil, pdfPart(t, "file", 100))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, qpdf.MsgRepairFailed, errorBody(t, w)["error"])
	assert.NotContains(t, w.Body.String(), "damaged beyond repair")
	ts.assertClean(t)
}

func TestSplitReturnsZip(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.post(t, "/api/split", nil, pdfPart(t, "file", 100, 110, 120))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "split_pages.zip")

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"page_1.pdf", "page_2.pdf", "page_3.pdf"}, names)
	ts.assertClean(t)
}

func TestOCRReturnsJSON(t *testing.T) {
	r := runner.Func(func(context.Context, runner.Invocation) (runner.Result, error) {
		return runner.Result{Stdout: "Invoice 42\n"}, nil
	})
	ts := newTestServer(t, nil, r)
	png := pdftest.PNG(t, t.TempDir(), "scan.png", 20, 20)
	data, err := os.ReadFile(png)
	require.NoError(t, err)

	w := ts.post(t, "/api/ocr", nil, filePart{field: "file", name: "scan.png", ctype: "image/png", data: data})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"text":"Invoice 42","success":true}`, w.Body.String())
	ts.assertClean(t)
}

func TestInfoReturnsJSON(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.post(t, "/api/info", nil, pdfPart(t, "file", 100, 110))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var info struct {
		Pages int `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 2, info.Pages)
	ts.assertClean(t)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.RateLimitPerMinute = 1 }, nil)
	first := ts.post(t, "/api/info", nil, pdfPart(t, "file", 100))
	require.Equal(t, http.StatusOK, first.Code)

	second := ts.post(t, "/api/info", nil, pdfPart(t, "file", 100))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "rate_limited", errorBody(t, second)["code"])
	ts.assertClean(t)

	assert.Equal(t, http.StatusOK, ts.get("/api/health").Code)
}

func TestHealthConfigTools(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	w := ts.get("/api/health")
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	_, err := time.Parse(time.RFC3339, health["timestamp"].(string))
	assert.NoError(t, err)
	assert.NotEmpty(t, health["version"])

	w = ts.get("/api/config")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"maxFiles":3`)
	assert.Contains(t, w.Body.String(), "application/pdf")

	w = ts.get("/api/tools")
	require.Equal(t, http.StatusOK, w.Code)
	var tools struct {
		Tools []struct {
			Name     string `json:"name"`
			Title    string `json:"title"`
			Endpoint string `json:"endpoint"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tools))
	require.Len(t, tools.Tools, 17)
	assert.Equal(t, "Merge", tools.Tools[0].Title)
	for _, tool := range tools.Tools {
		if tool.Name == "pdf-to-word" {
			assert.Equal(t, "PDF To Word", tool.Title)
			assert.Equal(t, "/api/pdf-to-word", tool.Endpoint)
		}
	}
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.get("/api/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", errorBody(t, w)["error"])

	w = ts.get("/api/status/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.get("/elsewhere")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/merge", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAcquireGivesUpWhenClientLeaves(t *testing.T) {
	s := NewServer(config.Config{MaxConcurrent: 1, MaxFiles: 1, MaxFileSize: 1}, dispatch.New(dispatch.Tools{}))
	require.NoError(t, s.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.acquire(ctx))

	s.release()
	require.NoError(t, s.acquire(context.Background()))
	s.release()
}
