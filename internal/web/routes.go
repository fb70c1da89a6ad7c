package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/cantine/internal/web/handlers"
	"github.com/kozaktomas/cantine/internal/web/static"
)

func (s *Server) setupRoutes() {
	busy := func() bool { return s.deps.Access != nil && s.deps.Access.Current() != nil }

	configHandler := handlers.NewConfigHandler(s.config)
	studentsHandler := handlers.NewStudentsHandler(s.deps.Students, s.deps.Capture, busy)
	matchHandler := handlers.NewMatchHandler(s.deps.Students, s.config.Matcher.Tolerance)
	accessHandler := handlers.NewAccessHandler(s.deps.Access)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/config", configHandler.Get)

		// Students
		r.Get("/students", studentsHandler.List)
		r.Post("/students", studentsHandler.Create)
		r.Post("/students/capture", studentsHandler.Capture)
		r.Get("/students/export", studentsHandler.Export)
		r.Post("/students/import", studentsHandler.Import)
		r.Get("/students/{id}", studentsHandler.Get)
		r.Delete("/students/{id}", studentsHandler.Delete)
		r.Post("/students/{id}/topup", studentsHandler.TopUp)

		// Recognition
		r.Post("/match", matchHandler.Match)

		// Turnstile session
		r.Get("/access", accessHandler.Status)
		r.Post("/access/start", accessHandler.Start)
		r.Post("/access/stop", accessHandler.Stop)
		r.Get("/access/events", accessHandler.Events)
		r.Get("/access/preview.jpg", accessHandler.Preview)
	})

	s.router.Get("/*", s.serveStatic)
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// serveStatic serves the embedded kiosk page; unknown paths get index.html.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	fs := static.GetFileSystem()
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	f, err := fs.Open(path)
	if err != nil {
		path = "/index.html"
		f, err = fs.Open(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	contentType := "application/octet-stream"
	if i := strings.LastIndex(path, "."); i >= 0 {
		if ct, ok := contentTypes[path[i:]]; ok {
			contentType = ct
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}
