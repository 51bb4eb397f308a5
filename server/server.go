package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/xhad/evaluator/internal/app"
	"github.com/xhad/evaluator/internal/models"
)

type Server struct {
	app       *app.App
	logger    *slog.Logger
	templates *template.Template
	mux       *http.ServeMux
	maxUpload int64
}

type indexPage struct {
	Title      string
	Categories int
	Currency   string
}

// New prepares the HTTP surface for a fully loaded App. Missing templates or a
// missing static directory are reported here so they fail startup.
func New(a *app.App) (*Server, error) {
	webCfg := a.Config.Web

	templates, err := template.ParseFiles(filepath.Join(webCfg.TemplatesDir, "index.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	info, err := os.Stat(webCfg.StaticDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open static directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static path %s is not a directory", webCfg.StaticDir)
	}

	maxUpload := a.Config.Server.MaxUploadMB << 20
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}

	s := &Server{
		app:       a,
		logger:    a.Logger,
		templates: templates,
		mux:       http.NewServeMux(),
		maxUpload: maxUpload,
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(webCfg.StaticDir))))
	s.mux.HandleFunc("POST /evaluate/proposal/{$}", s.handleEvaluate)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := indexPage{
		Title:      s.app.Config.Server.Title,
		Categories: len(s.app.Rules.Categories),
		Currency:   s.app.Rules.Currency,
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", page); err != nil {
		s.logger.Error("Error rendering index page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleEvaluate accepts a proposal upload. Analysis is not wired into the
// request path yet, so every well-formed upload gets the pending status.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.logger.Warn("Rejected oversized upload", "limit", tooBig.Limit)
			writeJSON(w, http.StatusRequestEntityTooLarge, models.ErrorResponse{
				Detail: fmt.Sprintf("uploaded file exceeds the %d MB limit", s.maxUpload>>20),
			})
			return
		}
		s.logger.Warn("Error parsing multipart form", "error", err)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Detail: "request must be multipart/form-data"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.logger.Warn("Error retrieving the file", "error", err)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Detail: "field 'file' is required"})
		return
	}
	defer file.Close()

	filename := uploadedFilename(header)
	s.logger.Info("Received proposal upload",
		"filename", filename,
		"size", header.Size,
		"contentType", header.Header.Get("Content-Type"))

	writeJSON(w, http.StatusOK, models.EvaluationAck{
		Filename: filename,
		Status:   models.EvaluationPending,
	})
}

// uploadedFilename returns the filename as the client sent it. FileHeader.Filename
// keeps only the last path element.
func uploadedFilename(header *multipart.FileHeader) string {
	_, params, err := mime.ParseMediaType(header.Header.Get("Content-Disposition"))
	if err == nil {
		if name, ok := params["filename"]; ok {
			return name
		}
	}
	return header.Filename
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.app.Config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := time.Duration(s.app.Config.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	s.logger.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
