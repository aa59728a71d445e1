// HTML rendering. Templates are embedded; each page is a named template
// sharing the head/nav/foot partials from layout.html.

package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/tabulahq/tabula/internal/blog"
	"github.com/tabulahq/tabula/internal/storage"
	"github.com/tabulahq/tabula/internal/table"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// pageData is the payload common to every rendered page.
type pageData struct {
	Title string
	User  *storage.User // signed-in user, nil if anonymous
}

type indexData struct {
	pageData
	Tables []*table.Table
}

type userPageData struct {
	pageData
	Owner   *storage.User
	IsSelf  bool
	Tables  []*table.Table
	Created string
}

type cellView struct {
	Value string
}

type rowView struct {
	ID    int64
	URL   string
	Cells []cellView
}

type tablePageData struct {
	pageData
	Table       *table.Table
	Columns     []table.Column
	Rows        []rowView
	FirstURL    string
	PreviousURL string // empty when has_less is false
	NextURL     string // empty when has_more is false
	LastURL     string
	CanEdit     bool
	NewRowURL   string
}

type rowPageData struct {
	pageData
	Table   *table.Table
	RowID   int64
	Fields  []rowField
	CanEdit bool
	PostURL string
}

type rowField struct {
	Column table.Column
	Value  string
}

type blogIndexData struct {
	pageData
	Posts []*blog.Post
}

type blogPostData struct {
	pageData
	Post *blog.Post
}

type authFormData struct {
	pageData
	Error string
}

type errorPageData struct {
	pageData
	Status  int
	Message string
}

// renderPage executes a named page template.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, statusCode int, name string, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template render failed", "template", name, "err", err)
	}
	return nil
}

func (s *Server) renderErrorPage(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	data := errorPageData{
		pageData: pageData{Title: http.StatusText(statusCode)},
		Status:   statusCode,
		Message:  message,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := pageTemplates.ExecuteTemplate(w, "error", data); err != nil {
		slog.ErrorContext(r.Context(), "Template render failed", "template", "error", "err", err)
	}
}
