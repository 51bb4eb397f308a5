package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/evaluator/internal/app"
	"github.com/xhad/evaluator/internal/models"
	"github.com/xhad/evaluator/pkg/config"
	"github.com/xhad/evaluator/pkg/rules"
)

func newTestApp(t *testing.T, templatesDir, staticDir string) *app.App {
	t.Helper()
	return &app.App{
		Config: &config.Config{
			Server: config.ServerConfig{Title: "Proposal Evaluator", MaxUploadMB: 1},
			Web:    config.WebConfig{TemplatesDir: templatesDir, StaticDir: staticDir},
		},
		Logger: app.NewLogger("error", "text", io.Discard),
		Rules: &rules.FinancialRules{
			Currency:   "EUR",
			Categories: []rules.Category{{Name: "personnel", MaxShare: 0.6}},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	templates := filepath.Join(dir, "templates")
	static := filepath.Join(dir, "static")
	require.NoError(t, os.MkdirAll(templates, 0755))
	require.NoError(t, os.MkdirAll(static, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(templates, "index.html"),
		[]byte(`<h1>{{.Title}}</h1><p>{{.Categories}} {{.Currency}}</p>`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "style.css"), []byte("body {}"), 0644))

	s, err := New(newTestApp(t, templates, static))
	require.NoError(t, err)
	return s
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestIndex(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<h1>Proposal Evaluator</h1><p>1 EUR</p>", rec.Body.String())

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticAndHealth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body {}", rec.Body.String())

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEvaluateProposal(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t, "file", "grid-storage.pdf", []byte("%PDF-1.4 fake"))
	req := httptest.NewRequest(http.MethodPost, "/evaluate/proposal/", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var ack models.EvaluationAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, models.EvaluationAck{
		Filename: "grid-storage.pdf",
		Status:   "Evaluation logic pending.",
	}, ack)
}

func TestEvaluateProposalKeepsClientFilename(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"dir/sub/a.pdf", `C:\proposals\budget plan.pdf`, "résumé.txt"} {
		t.Run(name, func(t *testing.T) {
			body, contentType := multipartBody(t, "file", name, []byte("content"))
			req := httptest.NewRequest(http.MethodPost, "/evaluate/proposal/", body)
			req.Header.Set("Content-Type", contentType)

			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var ack models.EvaluationAck
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
			assert.Equal(t, name, ack.Filename)
		})
	}
}

func TestEvaluateProposalErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		request    func() *http.Request
		wantStatus int
		wantDetail string
	}{
		{
			name: "missing file field",
			request: func() *http.Request {
				body, contentType := multipartBody(t, "document", "p.pdf", []byte("x"))
				req := httptest.NewRequest(http.MethodPost, "/evaluate/proposal/", body)
				req.Header.Set("Content-Type", contentType)
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantDetail: "field 'file' is required",
		},
		{
			name: "not multipart",
			request: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/evaluate/proposal/", strings.NewReader(`{"file": "p.pdf"}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantDetail: "request must be multipart/form-data",
		},
		{
			name: "oversized upload",
			request: func() *http.Request {
				body, contentType := multipartBody(t, "file", "huge.pdf", bytes.Repeat([]byte("a"), 2<<20))
				req := httptest.NewRequest(http.MethodPost, "/evaluate/proposal/", body)
				req.Header.Set("Content-Type", contentType)
				return req
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantDetail: "uploaded file exceeds the 1 MB limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, tt.request())

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantDetail, resp.Detail)
		})
	}
}

func TestEvaluateProposalMethod(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/evaluate/proposal/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewMissingAssets(t *testing.T) {
	dir := t.TempDir()

	_, err := New(newTestApp(t, filepath.Join(dir, "templates"), dir))
	assert.ErrorContains(t, err, "failed to parse templates")

	_, err = New(newTestApp(t, "../web/templates", filepath.Join(dir, "static")))
	assert.ErrorContains(t, err, "failed to open static directory")
}

func TestShippedTemplate(t *testing.T) {
	s, err := New(newTestApp(t, "../web/templates", "../web/static"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<form id="proposal-form" action="/evaluate/proposal/"`)
	assert.Contains(t, rec.Body.String(), `name="file"`)
}

func TestServeShutsDownGracefully(t *testing.T) {
	s := newTestServer(t)

	started := make(chan struct{})
	s.mux.HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("done"))
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	baseURL := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- s.serve(ctx, ln) }()

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	type result struct {
		body string
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		resp, err := http.Get(baseURL + "/slow")
		if err != nil {
			slow <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		slow <- result{body: string(b), err: err}
	}()

	<-started
	cancel()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	res := <-slow
	require.NoError(t, res.err)
	assert.Equal(t, "done", res.body)

	_, err = http.Get(baseURL + "/health")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	a := newTestApp(t, "../web/templates", "../web/static")
	a.Config.Server.Host = "127.0.0.1"
	a.Config.Server.ShutdownTimeout = 1
	s, err := New(a)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	a := newTestApp(t, "../web/templates", "../web/static")
	a.Config.Server.Host = "127.0.0.1"
	a.Config.Server.Port = ln.Addr().(*net.TCPAddr).Port
	s, err := New(a)
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorContains(t, err, "failed to listen")
}
