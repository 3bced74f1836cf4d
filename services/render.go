package services

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/osiprototype/backend/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"profile", "threads", "messages", "register", "login"}

// Renderer executes page templates inside the shared layout.
type Renderer struct {
	pages   map[string]*template.Template
	flashes FlashStore
}

// PageData is handed to every template. Data holds the page-specific values.
type PageData struct {
	CurrentUser *models.User
	Flashes     []Flash
	Data        map[string]interface{}
}

var templateFuncs = template.FuncMap{
	"photoURL": photoURL,
	"since": func(t time.Time) string {
		return t.Format("Jan 2, 2006 15:04")
	},
	"deref": func(p *int) string {
		if p == nil {
			return ""
		}
		return fmt.Sprint(*p)
	},
}

func NewRenderer(flashes FlashStore) (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template), flashes: flashes}
	for _, name := range pages {
		t, err := template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes a page into a buffer, consuming the pending flashes. Nothing
// is written to the client so callers can act between rendering and sending.
func (rd *Renderer) Render(r *http.Request, name string, data map[string]interface{}) (*bytes.Buffer, error) {
	t, ok := rd.pages[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}

	page := PageData{CurrentUser: CurrentUser(r.Context()), Data: data}
	if sessionID := flashSessionID(r.Context()); sessionID != "" {
		flashes, err := rd.flashes.Pop(r.Context(), sessionID)
		if err != nil {
			slog.Error("Failed to load flashes", "error", err)
		}
		page.Flashes = flashes
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", page); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return &buf, nil
}

// Flash queues a notice for the next rendered page of this browser.
func (rd *Renderer) Flash(r *http.Request, category, message string) {
	sessionID := flashSessionID(r.Context())
	if sessionID == "" {
		return
	}
	if err := rd.flashes.Push(r.Context(), sessionID, Flash{Category: category, Message: message}); err != nil {
		slog.Error("Failed to store flash", "error", err, "message", message)
	}
}

func writeHTML(w http.ResponseWriter, status int, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// page renders and writes in one step for handlers with nothing to do in between.
func (s *Server) page(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]interface{}) {
	buf, err := s.renderer.Render(r, name, data)
	if err != nil {
		slog.Error("Template rendering failed", "error", err, "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, status, buf)
}
