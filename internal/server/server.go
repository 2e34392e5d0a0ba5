// Package server serves the classification report over HTTP.
package server

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/apichanges/internal/jsonfile"
	"github.com/TobiSchelling/apichanges/internal/model"
	"github.com/TobiSchelling/apichanges/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server serves the report for one classified document. The document is
// re-read on every request so a running classification shows up live.
type Server struct {
	path  string
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a server over the classified document at path.
func New(path string) (*Server, error) {
	base, err := template.New("base.html").ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not clash.
	pageNames := []string{"index.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{path: path, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/api/summary", s.handleSummary)
}

// load reads the document. A missing file yields ok=false without error.
func (s *Server) load() (rep report.Report, ok bool, err error) {
	var doc model.IssueDocument
	if err := jsonfile.Read(s.path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report.Report{}, false, nil
		}
		return report.Report{}, false, err
	}
	return report.Build(doc.Issues), true, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	rep, ok, err := s.load()
	if err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("loading classified issues")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var body template.HTML
	if ok {
		html, err := rep.HTML()
		if err != nil {
			log.Error().Err(err).Msg("rendering report")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		body = template.HTML(html) //nolint: gosec
	}

	s.render(w, "index.html", map[string]any{
		"Available": ok,
		"Path":      s.path,
		"Report":    body,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rep, ok, err := s.load()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case err != nil:
		log.Error().Err(err).Str("path", s.path).Msg("loading classified issues")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "loading classified issues"})
	case !ok:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no classified issues yet"})
	default:
		json.NewEncoder(w).Encode(rep)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("rendering template")
	}
}

// Serve starts the HTTP server on the given port.
func Serve(path string, port int) error {
	srv, err := New(path)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Info().Str("addr", "http://"+addr).Msg("server listening")
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return hs.ListenAndServe()
}
