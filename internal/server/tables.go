// Table endpoints: negotiated table views, CSV upload/replace, deletion.

package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tabulahq/tabula/internal/server/dto"
	"github.com/tabulahq/tabula/internal/server/reqctx"
	"github.com/tabulahq/tabula/internal/storage"
	"github.com/tabulahq/tabula/internal/table"
)

// loadTable fetches a table and enforces visibility: private tables are
// indistinguishable from missing ones for everyone but their owner.
func (s *Server) loadTable(r *http.Request, owner, name string) (*table.Table, error) {
	t, err := s.svc.Meta.GetTable(r.Context(), owner, name)
	if errors.Is(err, storage.ErrTableNotFound) {
		return nil, dto.TableNotFound(owner, name)
	}
	if err != nil {
		return nil, err
	}
	if !t.IsPublic {
		user := reqctx.User(r.Context())
		if user == nil || user.Username != t.Owner {
			return nil, dto.TableNotFound(owner, name)
		}
	}
	return t, nil
}

// requireOwner checks that the request is authenticated as username.
func requireOwner(r *http.Request, username string) error {
	user := reqctx.User(r.Context())
	if user == nil {
		return dto.Unauthorized()
	}
	if user.Username != username {
		return dto.Forbidden("that table belongs to someone else")
	}
	return nil
}

// isOwner reports whether the request is authenticated as username.
func isOwner(r *http.Request, username string) bool {
	user := reqctx.User(r.Context())
	return user != nil && user.Username == username
}

func (s *Server) tableURL(t *table.Table) string {
	return fmt.Sprintf("%s/%s/%s", s.cfg.BaseURL, t.Owner, t.Name)
}

func (s *Server) rowURL(t *table.Table, rowID int64) string {
	return fmt.Sprintf("%s/rows/%d", s.tableURL(t), rowID)
}

// pageURL builds a table page URL with keyset parameters, in the given
// representation.
func (s *Server) pageURL(t *table.Table, ct ContentType, op table.KeySetOp, n int64) string {
	base := s.tableURL(t)
	if ct != ContentTypeHTML {
		base += "." + ct.String()
	}
	q := url.Values{}
	q.Set("op", string(op))
	q.Set("n", strconv.FormatInt(n, 10))
	return base + "?" + q.Encode()
}

// parseKeySetParams maps query parameters to a keyset, converting parse
// failures to 400s.
func parseKeySetParams(r *http.Request) (table.KeySet, error) {
	q := r.URL.Query()
	ks, err := table.ParseKeySet(q.Get("op"), q.Get("n"), table.DefaultPageSize)
	if errors.Is(err, table.ErrInvalidBoundary) {
		return table.KeySet{}, dto.InvalidBoundary(err.Error())
	}
	if err != nil {
		return table.KeySet{}, err
	}
	return ks, nil
}

// fetchPage runs the paginator and turns an empty page inside a non-empty
// table into a 404: the boundary points past the data.
func (s *Server) fetchPage(r *http.Request, t *table.Table, ks table.KeySet) (table.Page, error) {
	page, err := storage.TablePage(r.Context(), s.svc.Data, t, ks)
	if err != nil {
		return table.Page{}, err
	}
	if len(page.Rows) == 0 && (page.HasMore || page.HasLess) {
		return table.Page{}, dto.PageNotFound()
	}
	return page, nil
}

func (s *Server) handleTableView(w http.ResponseWriter, r *http.Request) error {
	owner := r.PathValue("username")
	segment := r.PathValue("tablename")
	name, ct, err := negotiate(segment, r.Header.Get("Accept"), allContentTypes, ContentTypeCSV)
	if err != nil {
		return err
	}
	t, err := s.loadTable(r, owner, name)
	if err != nil {
		return err
	}
	switch ct {
	case ContentTypeCSV:
		return s.writeTableCSV(w, r, t)
	case ContentTypeJSON:
		return s.writeTableJSON(w, r, t)
	default:
		return s.writeTableHTML(w, r, t)
	}
}

var allContentTypes = []ContentType{ContentTypeHTML, ContentTypeJSON, ContentTypeCSV}

// writeTableCSV streams the whole table as CSV.
func (s *Server) writeTableCSV(w http.ResponseWriter, r *http.Request, t *table.Table) error {
	etag := weakETag(t.UUID.String(), "csv", t.LastChanged.Format(time.RFC3339Nano))
	if checkETag(w, r, etag) {
		return nil
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", t.Name+".csv"))
	return table.WriteCSV(w, t.Columns, s.svc.Data.AllRows(r.Context(), t))
}

// writeTableJSON writes one keyset page with metadata and page links.
func (s *Server) writeTableJSON(w http.ResponseWriter, r *http.Request, t *table.Table) error {
	ks, err := parseKeySetParams(r)
	if err != nil {
		return err
	}
	etag := weakETag(t.UUID.String(), "json",
		string(ks.Op), strconv.FormatInt(ks.N, 10), t.LastChanged.Format(time.RFC3339Nano))
	if checkETag(w, r, etag) {
		return nil
	}
	page, err := s.fetchPage(r, t, ks)
	if err != nil {
		return err
	}

	resp := dto.TablePageResponse{
		Name:        t.Name,
		Owner:       t.Owner,
		Caption:     t.Caption,
		IsPublic:    t.IsPublic,
		Created:     t.Created.Format(time.RFC3339),
		LastChanged: t.LastChanged.Format(time.RFC3339),
		Rows:        []dto.RowResponse{},
	}
	for _, c := range t.UserColumns() {
		resp.Columns = append(resp.Columns, dto.ColumnResponse{Name: c.Name, Type: string(c.Type)})
	}
	for _, row := range page.Rows {
		resp.Rows = append(resp.Rows, s.rowResponse(t, row))
	}
	if page.HasMore {
		u := s.pageURL(t, ContentTypeJSON, table.OpGreaterThan, page.LastID())
		resp.NextPageURL = &u
	}
	if page.HasLess {
		u := s.pageURL(t, ContentTypeJSON, table.OpLessThan, page.FirstID())
		resp.PreviousPageURL = &u
	}
	return writeJSON(w, r, http.StatusOK, &resp)
}

func (s *Server) rowResponse(t *table.Table, row table.Row) dto.RowResponse {
	cells := make(map[string]any, len(row.Cells))
	for _, c := range t.UserColumns() {
		cells[c.Name] = c.Type.ToJSON(row.Cells[c.Name])
	}
	return dto.RowResponse{RowID: row.ID, URL: s.rowURL(t, row.ID), Row: cells}
}

// writeTableHTML renders the browsable table page.
func (s *Server) writeTableHTML(w http.ResponseWriter, r *http.Request, t *table.Table) error {
	ks, err := parseKeySetParams(r)
	if err != nil {
		return err
	}
	page, err := s.fetchPage(r, t, ks)
	if err != nil {
		return err
	}

	data := tablePageData{
		pageData: pageData{Title: t.Owner + "/" + t.Name, User: reqctx.User(r.Context())},
		Table:    t,
		Columns:  t.UserColumns(),
		FirstURL: s.tableURL(t),
		CanEdit:  isOwner(r, t.Owner),
	}
	data.NewRowURL = s.tableURL(t) + "/rows"
	for _, row := range page.Rows {
		rv := rowView{ID: row.ID, URL: s.rowURL(t, row.ID)}
		for _, c := range t.UserColumns() {
			rv.Cells = append(rv.Cells, cellView{Value: c.Type.FormatCell(row.Cells[c.Name])})
		}
		data.Rows = append(data.Rows, rv)
	}
	if page.HasLess {
		data.PreviousURL = s.pageURL(t, ContentTypeHTML, table.OpLessThan, page.FirstID())
	}
	if page.HasMore {
		data.NextURL = s.pageURL(t, ContentTypeHTML, table.OpGreaterThan, page.LastID())
	}
	// The last page is addressed from above the maximum id.
	if _, maxID, ok, err := s.svc.Data.RowIDBounds(r.Context(), t); err != nil {
		return err
	} else if ok {
		data.LastURL = s.pageURL(t, ContentTypeHTML, table.OpLessThan, maxID+1)
	} else {
		data.LastURL = data.FirstURL
	}
	return s.renderPage(w, r, http.StatusOK, "table", data)
}

// handleTablePut creates a table from a CSV body, or fully replaces an
// existing one. 201 on create, 200 on replace.
func (s *Server) handleTablePut(w http.ResponseWriter, r *http.Request) error {
	owner := r.PathValue("username")
	segment := r.PathValue("tablename")
	name, ext := splitExtension(segment)
	if ext != "" && ext != "csv" {
		return dto.UnsupportedMediaType("." + ext)
	}
	if err := requireOwner(r, owner); err != nil {
		return err
	}
	if err := table.CheckTableName(name); err != nil {
		return dto.BadRequest(err.Error())
	}
	if _, err := negotiateBody(r.Header.Get("Content-Type"), []ContentType{ContentTypeCSV}, ContentTypeCSV); err != nil {
		return err
	}

	cols, rows, err := table.ReadCSV(r.Body)
	if err != nil {
		return dto.BadRequest(err.Error())
	}

	now := time.Now().UTC()
	existing, err := s.svc.Meta.GetTable(r.Context(), owner, name)
	created := false
	var t *table.Table
	switch {
	case err == nil:
		// Full replace: new columns, same identity and visibility. Metadata
		// is updated before the old rows are dropped so a failure here
		// leaves the table untouched.
		t = existing
		t.Columns = cols
		t.LastChanged = now
		if err := s.svc.Meta.UpdateTable(r.Context(), t); err != nil {
			return err
		}
		if err := s.svc.Data.DropUserdata(r.Context(), t); err != nil {
			return err
		}
	case errors.Is(err, storage.ErrTableNotFound):
		created = true
		t = &table.Table{
			UUID:        uuid.New(),
			Owner:       owner,
			Name:        name,
			IsPublic:    r.URL.Query().Get("public") == "true",
			Columns:     cols,
			Created:     now,
			LastChanged: now,
		}
		if err := s.svc.Meta.CreateTable(r.Context(), t); err != nil {
			return err
		}
	default:
		return err
	}

	if err := s.svc.Data.CreateUserdata(r.Context(), t); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := s.svc.Data.InsertRow(r.Context(), t, row); err != nil {
			return err
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return writeJSON(w, r, status, dto.TableMetaResponse{
		Name:        t.Name,
		Owner:       t.Owner,
		Caption:     t.Caption,
		IsPublic:    t.IsPublic,
		LastChanged: t.LastChanged.Format(time.RFC3339),
		URL:         s.tableURL(t),
	})
}

func (s *Server) handleTableDelete(w http.ResponseWriter, r *http.Request) error {
	owner := r.PathValue("username")
	name := r.PathValue("tablename")
	if err := requireOwner(r, owner); err != nil {
		return err
	}
	t, err := s.loadTable(r, owner, name)
	if err != nil {
		return err
	}
	if err := s.svc.Data.DropUserdata(r.Context(), t); err != nil {
		return err
	}
	if err := s.svc.Meta.DeleteTable(r.Context(), t.UUID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
