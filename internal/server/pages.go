// Front page, blog and health endpoints.

package server

import (
	"errors"
	"net/http"

	"github.com/tabulahq/tabula/internal/blog"
	"github.com/tabulahq/tabula/internal/server/dto"
	"github.com/tabulahq/tabula/internal/server/reqctx"
)

const frontPageTables = 20

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) error {
	tables, err := s.svc.Meta.RecentPublicTables(r.Context(), frontPageTables)
	if err != nil {
		return err
	}
	data := indexData{
		pageData: pageData{Title: "Home", User: reqctx.User(r.Context())},
		Tables:   tables,
	}
	return s.renderPage(w, r, http.StatusOK, "index", data)
}

func (s *Server) handleBlogIndex(w http.ResponseWriter, r *http.Request) error {
	data := blogIndexData{
		pageData: pageData{Title: "Blog", User: reqctx.User(r.Context())},
		Posts:    s.svc.Blog.Posts(),
	}
	return s.renderPage(w, r, http.StatusOK, "blog_index", data)
}

func (s *Server) handleBlogPost(w http.ResponseWriter, r *http.Request) error {
	slug := r.PathValue("slug")
	post, err := s.svc.Blog.Get(slug)
	if errors.Is(err, blog.ErrPostNotFound) {
		return dto.NotFound("post " + slug)
	}
	if err != nil {
		return err
	}
	data := blogPostData{
		pageData: pageData{Title: post.Title, User: reqctx.User(r.Context())},
		Post:     post,
	}
	return s.renderPage(w, r, http.StatusOK, "blog_post", data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, r, http.StatusOK, dto.HealthResponse{Status: "ok", Version: s.cfg.Version})
}
