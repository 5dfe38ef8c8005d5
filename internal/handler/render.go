package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"tgforward-web/internal/model"
	"tgforward-web/internal/notify"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"login", "user", "admin"}

// PageData is handed to every page template.
type PageData struct {
	Title    string
	User     model.User
	Role     model.Role
	SignedIn bool
	Toasts   []notify.Toast
	LivePath string
	Error    string
	Data     any
}

type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"clock": func(t *time.Time) string {
			if t == nil {
				return "never"
			}
			return t.Local().Format("2006-01-02 15:04")
		},
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s page: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// Render executes the page fully before writing so a template error never
// leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data PageData) {
	tmpl, ok := r.pages[name]
	if !ok {
		writeError(w, fmt.Errorf("unknown page %q", name))
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		slog.Error("failed to render page", "page", name, "error", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
