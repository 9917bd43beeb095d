package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog/log"
)

const contentTypeHTML = "text/html; charset=utf-8"

// View names
const (
	ViewHome         = "home"
	ViewUnauthorised = "unauthorised"
	ViewSignOut      = "sign-out"
	ViewError        = "error"
)

//go:embed templates/*
var templateFiles embed.FS

func TemplateFilesFS() fs.FS {
	// Create the sub filesystem once
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a view together with the shared layout
func ParseTemplate(name string) (*template.Template, error) {
	return template.ParseFS(TemplateFilesFS(), "layout.html", name+".html")
}

// Renderer renders a named view with its data.
type Renderer interface {
	Render(w io.Writer, view string, data any) error
}

// TemplateRenderer renders the embedded html templates.
type TemplateRenderer struct {
	views map[string]*template.Template
}

var _ Renderer = (*TemplateRenderer)(nil)

func NewTemplateRenderer() (*TemplateRenderer, error) {
	r := &TemplateRenderer{views: make(map[string]*template.Template)}
	for _, name := range []string{ViewHome, ViewUnauthorised, ViewSignOut, ViewError} {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("parsing %s view: %w", name, err)
		}
		r.views[name] = tmpl
	}
	return r, nil
}

func (t *TemplateRenderer) Render(w io.Writer, view string, data any) error {
	tmpl, ok := t.views[view]
	if !ok {
		return fmt.Errorf("unknown view %q", view)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}

// PageData is common to every view.
type PageData struct {
	AppName     string
	SignedIn    bool
	DisplayName string
	Email       string
	// LogoutURL is the provider end-session URL used by the sign-out view
	LogoutURL string
	Status    int
	Message   string
}

// render writes a complete page or, if the view fails, a plain 500.
func (s *Server) render(w http.ResponseWriter, status int, view string, data PageData) {
	data.AppName = s.appName
	data.Status = status

	var buf bytes.Buffer
	if err := s.views.Render(&buf, view, data); err != nil {
		log.Err(err).Str("view", view).Msg("Failed to render view")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, _ *http.Request, status int) {
	s.render(w, status, ViewError, PageData{Message: http.StatusText(status)})
}
