// User pages and account flows.

package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/tabulahq/tabula/internal/identity"
	"github.com/tabulahq/tabula/internal/server/dto"
	"github.com/tabulahq/tabula/internal/server/reqctx"
	"github.com/tabulahq/tabula/internal/storage"
)

func (s *Server) handleUserPage(w http.ResponseWriter, r *http.Request) error {
	segment := r.PathValue("username")
	username, ct, err := negotiate(segment, r.Header.Get("Accept"),
		[]ContentType{ContentTypeHTML, ContentTypeJSON}, ContentTypeJSON)
	if err != nil {
		return err
	}
	owner, err := s.svc.Users.Get(r.Context(), username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return dto.NotFound("user " + username)
	}
	if err != nil {
		return err
	}
	self := isOwner(r, username)
	tables, err := s.svc.Meta.TablesForUser(r.Context(), username, self)
	if err != nil {
		return err
	}

	if ct == ContentTypeJSON {
		resp := dto.UserResponse{
			Username:   owner.Username,
			Registered: owner.Registered.Format(time.RFC3339),
			About:      owner.About,
			Tables:     []dto.TableMetaResponse{},
		}
		for _, t := range tables {
			resp.Tables = append(resp.Tables, dto.TableMetaResponse{
				Name:        t.Name,
				Owner:       t.Owner,
				Caption:     t.Caption,
				IsPublic:    t.IsPublic,
				LastChanged: t.LastChanged.Format(time.RFC3339),
				URL:         s.tableURL(t),
			})
		}
		return writeJSON(w, r, http.StatusOK, &resp)
	}

	data := userPageData{
		pageData: pageData{Title: owner.Username, User: reqctx.User(r.Context())},
		Owner:    owner,
		IsSelf:   self,
		Tables:   tables,
		Created:  owner.Registered.Format("2006-01-02"),
	}
	return s.renderPage(w, r, http.StatusOK, "user", data)
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) error {
	return s.renderPage(w, r, http.StatusOK, "register",
		authFormData{pageData: pageData{Title: "Register", User: reqctx.User(r.Context())}})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return dto.BadRequest("malformed form body")
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	user, err := s.svc.Users.Register(r.Context(), username, password)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, storage.ErrUserExists) {
			msg = "that username is taken"
		}
		return s.renderPage(w, r, http.StatusBadRequest, "register",
			authFormData{pageData: pageData{Title: "Register"}, Error: msg})
	}
	return s.startSession(w, r, user)
}

func (s *Server) handleSignInForm(w http.ResponseWriter, r *http.Request) error {
	return s.renderPage(w, r, http.StatusOK, "sign_in",
		authFormData{pageData: pageData{Title: "Sign in", User: reqctx.User(r.Context())}})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return dto.BadRequest("malformed form body")
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	user, err := s.svc.Users.Authenticate(r.Context(), username, password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return s.renderPage(w, r, http.StatusUnauthorized, "sign_in",
			authFormData{pageData: pageData{Title: "Sign in"}, Error: "wrong username or password"})
	}
	if err != nil {
		return err
	}
	return s.startSession(w, r, user)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *storage.User) error {
	cookie, err := s.sessions.issue(user.Username, time.Now())
	if err != nil {
		return dto.InternalWithError("failed to start session", err)
	}
	http.SetCookie(w, cookie)
	http.Redirect(w, r, "/"+user.Username, http.StatusSeeOther)
	return nil
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, s.sessions.clear())
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return nil
}
