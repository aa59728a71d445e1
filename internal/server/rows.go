// Row endpoints: create, view, replace, delete, plus the HTML form variants.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tabulahq/tabula/internal/server/dto"
	"github.com/tabulahq/tabula/internal/server/reqctx"
	"github.com/tabulahq/tabula/internal/storage"
	"github.com/tabulahq/tabula/internal/table"
)

// cellsFromJSON converts a decoded JSON cell map into typed cells, rejecting
// unknown columns and the row id column.
func cellsFromJSON(t *table.Table, m map[string]any) (map[string]any, error) {
	for name := range m {
		if name == table.RowIDColumnName {
			return nil, dto.InvalidRow("the row id is assigned by the server and cannot be set")
		}
		if _, ok := t.ColumnByName(name); !ok {
			return nil, dto.InvalidRow(fmt.Sprintf("no such column: %q", name))
		}
	}
	cells := make(map[string]any, len(m))
	for _, c := range t.UserColumns() {
		v, err := c.Type.FromJSON(m[c.Name])
		if err != nil {
			return nil, dto.InvalidRow(fmt.Sprintf("column %q: %v", c.Name, err))
		}
		cells[c.Name] = v
	}
	return cells, nil
}

// cellsFromForm converts posted form values into typed cells. Unchecked
// boolean checkboxes simply do not appear in the form, so absence means
// false for booleans and null for the rest.
func cellsFromForm(t *table.Table, form map[string][]string) (map[string]any, error) {
	cells := make(map[string]any, len(t.UserColumns()))
	for _, c := range t.UserColumns() {
		vals, ok := form[c.Name]
		if !ok || len(vals) == 0 {
			if c.Type == table.ColumnTypeBoolean {
				cells[c.Name] = false
			} else {
				cells[c.Name] = nil
			}
			continue
		}
		v, err := c.Type.ParseCell(vals[0])
		if err != nil {
			return nil, dto.InvalidRow(fmt.Sprintf("column %q: %v", c.Name, err))
		}
		cells[c.Name] = v
	}
	return cells, nil
}

func isFormPost(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

func (s *Server) handleRowCreate(w http.ResponseWriter, r *http.Request) error {
	owner := r.PathValue("username")
	name := r.PathValue("tablename")
	if err := requireOwner(r, owner); err != nil {
		return err
	}
	t, err := s.loadTable(r, owner, name)
	if err != nil {
		return err
	}

	if isFormPost(r) {
		if err := r.ParseForm(); err != nil {
			return dto.BadRequest("malformed form body")
		}
		cells, err := cellsFromForm(t, r.PostForm)
		if err != nil {
			return err
		}
		id, err := s.insertRow(r, t, cells)
		if err != nil {
			return err
		}
		http.Redirect(w, r, s.rowURL(t, id), http.StatusSeeOther)
		return nil
	}

	if _, err := negotiateBody(r.Header.Get("Content-Type"), []ContentType{ContentTypeJSON}, ContentTypeJSON); err != nil {
		return err
	}
	var req dto.CreateRowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return dto.BadRequest("malformed JSON body")
	}
	cells, err := cellsFromJSON(t, req.Row)
	if err != nil {
		return err
	}
	id, err := s.insertRow(r, t, cells)
	if err != nil {
		return err
	}
	return writeJSON(w, r, http.StatusCreated, s.rowResponse(t, table.Row{ID: id, Cells: cells}))
}

func (s *Server) insertRow(r *http.Request, t *table.Table, cells map[string]any) (int64, error) {
	id, err := s.svc.Data.InsertRow(r.Context(), t, table.Row{Cells: cells})
	if err != nil {
		return 0, err
	}
	return id, s.svc.Meta.MarkTableChanged(r.Context(), t.UUID, time.Now().UTC())
}

func (s *Server) handleRowView(w http.ResponseWriter, r *http.Request) error {
	owner := r.PathValue("username")
	name := r.PathValue("tablename")
	segment := r.PathValue("rowid")
	base, ct, err := negotiate(segment, r.Header.Get("Accept"),
		[]ContentType{ContentTypeHTML, ContentTypeJSON}, ContentTypeJSON)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return dto.BadRequest(fmt.Sprintf("%q is not a row id", base))
	}
	t, err := s.loadTable(r, owner, name)
	if err != nil {
		return err
	}

	etag := weakETag(t.UUID.String(), "row", strconv.FormatInt(id, 10),
		ct.String(), t.LastChanged.Format(time.RFC3339Nano))
	if checkETag(w, r, etag) {
		return nil
	}

	row, err := s.svc.Data.GetRow(r.Context(), t, id)
	if errors.Is(err, storage.ErrRowNotFound) {
		return dto.RowNotFound(id)
	}
	if err != nil {
		return err
	}

	if ct == ContentTypeJSON {
		return writeJSON(w, r, http.StatusOK, s.rowResponse(t, row))
	}
	data := rowPageData{
		pageData: pageData{Title: fmt.Sprintf("%s/%s row %d", owner, name, id), User: reqctx.User(r.Context())},
		Table:    t,
		RowID:    id,
		CanEdit:  isOwner(r, owner),
		PostURL:  s.rowURL(t, id),
	}
	for _, c := range t.UserColumns() {
		data.Fields = append(data.Fields, rowField{Column: c, Value: c.Type.FormatCell(row.Cells[c.Name])})
	}
	return s.renderPage(w, r, http.StatusOK, "row", data)
}

func (s *Server) handleRowPut(w http.ResponseWriter, r *http.Request) error {
	owner := r.PathValue("username")
	name := r.PathValue("tablename")
	if err := requireOwner(r, owner); err != nil {
		return err
	}
	id, err := strconv.ParseInt(r.PathValue("rowid"), 10, 64)
	if err != nil {
		return dto.BadRequest("malformed row id")
	}
	t, err := s.loadTable(r, owner, name)
	if err != nil {
		return err
	}
	if _, err := negotiateBody(r.Header.Get("Content-Type"), []ContentType{ContentTypeJSON}, ContentTypeJSON); err != nil {
		return err
	}
	var req dto.UpdateRowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return dto.BadRequest("malformed JSON body")
	}
	if req.RowID != nil && *req.RowID != id {
		return dto.BadRequest(fmt.Sprintf("body row_id %d does not match the URL (%d)", *req.RowID, id))
	}
	cells, err := cellsFromJSON(t, req.Row)
	if err != nil {
		return err
	}
	if err := s.updateRow(r, t, id, cells); err != nil {
		return err
	}
	return writeJSON(w, r, http.StatusOK, s.rowResponse(t, table.Row{ID: id, Cells: cells}))
}

// handleRowFormUpdate is the HTML form variant of a row update.
func (s *Server) handleRowFormUpdate(w http.ResponseWriter, r *http.Request) error {
	owner := r.PathValue("username")
	name := r.PathValue("tablename")
	if err := requireOwner(r, owner); err != nil {
		return err
	}
	id, err := strconv.ParseInt(r.PathValue("rowid"), 10, 64)
	if err != nil {
		return dto.BadRequest("malformed row id")
	}
	t, err := s.loadTable(r, owner, name)
	if err != nil {
		return err
	}
	if err := r.ParseForm(); err != nil {
		return dto.BadRequest("malformed form body")
	}
	cells, err := cellsFromForm(t, r.PostForm)
	if err != nil {
		return err
	}
	if err := s.updateRow(r, t, id, cells); err != nil {
		return err
	}
	http.Redirect(w, r, s.rowURL(t, id), http.StatusSeeOther)
	return nil
}

func (s *Server) updateRow(r *http.Request, t *table.Table, id int64, cells map[string]any) error {
	err := s.svc.Data.UpdateRow(r.Context(), t, id, table.Row{ID: id, Cells: cells})
	if errors.Is(err, storage.ErrRowNotFound) {
		return dto.RowNotFound(id)
	}
	if err != nil {
		return err
	}
	return s.svc.Meta.MarkTableChanged(r.Context(), t.UUID, time.Now().UTC())
}

func (s *Server) handleRowDelete(w http.ResponseWriter, r *http.Request) error {
	owner := r.PathValue("username")
	name := r.PathValue("tablename")
	if err := requireOwner(r, owner); err != nil {
		return err
	}
	id, err := strconv.ParseInt(r.PathValue("rowid"), 10, 64)
	if err != nil {
		return dto.BadRequest("malformed row id")
	}
	t, err := s.loadTable(r, owner, name)
	if err != nil {
		return err
	}
	err = s.svc.Data.DeleteRow(r.Context(), t, id)
	if errors.Is(err, storage.ErrRowNotFound) {
		return dto.RowNotFound(id)
	}
	if err != nil {
		return err
	}
	if err := s.svc.Meta.MarkTableChanged(r.Context(), t.UUID, time.Now().UTC()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
