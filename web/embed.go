// Package web embeds the HTML templates and static assets and renders the
// landing page and the analytics dashboard.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/ashureev/persona-predict/internal/store"
	"github.com/ashureev/persona-predict/internal/vocab"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// IndexData is the landing page model.
type IndexData struct {
	Lexicon        *vocab.Lexicon
	Language       string
	Nonce          string
	CSRFToken      string
	HeroBackground string
}

// PeekabooData is the dashboard model.
type PeekabooData struct {
	Names   []string
	Reports store.Reports
}

// NewPeekabooData orders reports by name for display.
func NewPeekabooData(reports store.Reports) PeekabooData {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return PeekabooData{Names: names, Reports: reports}
}

// Renderer holds the parsed templates.
type Renderer struct {
	index    *template.Template
	peekaboo *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{"label": Label, "cell": cell}

	index, err := template.New("index.html").Funcs(funcs).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}
	peekaboo, err := template.New("peekaboo.html").Funcs(funcs).ParseFS(templateFS, "templates/peekaboo.html")
	if err != nil {
		return nil, fmt.Errorf("parse peekaboo template: %w", err)
	}
	return &Renderer{index: index, peekaboo: peekaboo}, nil
}

// RenderIndex writes the landing page.
func (r *Renderer) RenderIndex(w io.Writer, data IndexData) error {
	return r.index.Execute(w, data)
}

// RenderPeekaboo writes the analytics dashboard.
func (r *Renderer) RenderPeekaboo(w io.Writer, data PeekabooData) error {
	return r.peekaboo.Execute(w, data)
}

// StaticHandler serves the embedded static assets. Mount it under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// Label looks up a dotted path such as "hero.title" in the lexicon's html
// tree. Missing entries render as the path itself.
func Label(lex *vocab.Lexicon, path string) string {
	if lex == nil {
		return path
	}
	var node any = lex.HTML
	for _, part := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return path
		}
		if node, ok = m[part]; !ok {
			slog.Debug("Missing label", "language", lex.Code, "path", path)
			return path
		}
	}
	if s, ok := node.(string); ok {
		return s
	}
	return path
}

func cell(v any) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}
