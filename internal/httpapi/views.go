package httpapi

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"meetbook.org/internal/obs"
)

//go:embed web/templates/*.html web/static/*
var webFS embed.FS

// Renderer executes a named view.
type Renderer interface {
	Render(w io.Writer, name string, data any) error
}

type templateRenderer struct {
	t *template.Template
}

// NewTemplateRenderer parses the embedded views.
func NewTemplateRenderer() (Renderer, error) {
	t, err := template.ParseFS(webFS, "web/templates/*.html")
	if err != nil {
		return nil, err
	}
	return templateRenderer{t: t}, nil
}

func (r templateRenderer) Render(w io.Writer, name string, data any) error {
	return r.t.ExecuteTemplate(w, name, data)
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}

func (a *API) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.render(w, r, name, nil)
	}
}

// render buffers the view so a template error never leaves a half page.
func (a *API) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := a.views.Render(&buf, name, data); err != nil {
		obs.Logger().ErrorContext(r.Context(), "render view", "view", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
