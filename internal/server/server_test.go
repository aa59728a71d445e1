package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/tabulahq/tabula/internal/blog"
	"github.com/tabulahq/tabula/internal/config"
	"github.com/tabulahq/tabula/internal/identity"
	"github.com/tabulahq/tabula/internal/server/dto"
	"github.com/tabulahq/tabula/internal/storage"
	"github.com/tabulahq/tabula/internal/storage/local"
)

type testEnv struct {
	handler http.Handler
	users   *identity.UserService
	ada     *storage.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := local.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	users := identity.NewUserService(st)
	ada, err := users.Register(context.Background(), "ada", "password123")
	if err != nil {
		t.Fatal(err)
	}
	blogStore, err := blog.Open(t.TempDir(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{
		Version: "test",
		Server: &config.Config{
			JWTSecret:           strings.Repeat("ab", 32),
			MaxRequestBodyBytes: 1 << 20,
			SessionDurationDays: 1,
			// Zero limits disable rate limiting in tests.
		},
	}
	h := NewRouter(Services{Meta: st, Data: st, Users: users, Blog: blogStore}, cfg, slog.New(slog.DiscardHandler))
	return &testEnv{handler: h, users: users, ada: ada}
}

// do performs a request against the in-process handler. as may be nil for
// anonymous requests.
func (e *testEnv) do(t *testing.T, method, target, contentType, body string, as *storage.User) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	if as != nil {
		r.SetBasicAuth(as.Username, as.APIKey)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	return rec
}

// createTable uploads a small CSV table for ada.
func (e *testEnv) createTable(t *testing.T, name string, public bool, csv string) {
	t.Helper()
	target := "/ada/" + name
	if public {
		target += "?public=true"
	}
	rec := e.do(t, "PUT", target, "text/csv", csv, e.ada)
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT %s = %d: %s", target, rec.Code, rec.Body.String())
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not JSON: %v: %s", err, rec.Body.String())
	}
	return resp
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, "GET", "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp dto.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestTablePutCreateThenReplace(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, "PUT", "/ada/plans?public=true", "text/csv", "title,count\nfoo,1\nbar,2\n", e.ada)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	// Replacing the same table is a 200, not a 201.
	rec = e.do(t, "PUT", "/ada/plans", "text/csv", "title\nonly\n", e.ada)
	if rec.Code != http.StatusOK {
		t.Fatalf("replace status = %d: %s", rec.Code, rec.Body.String())
	}
	// The replacement wiped the previous rows and columns.
	rec = e.do(t, "GET", "/ada/plans.csv", "", "", e.ada)
	want := "tabula_row_id,title\n1,only\n"
	if rec.Body.String() != want {
		t.Errorf("csv = %q, want %q", rec.Body.String(), want)
	}
}

func TestTablePutMalformedCSVLeavesTableIntact(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title\nfoo\n")
	// The body is parsed in full before anything is updated or dropped.
	rec := e.do(t, "PUT", "/ada/plans", "text/csv", "title,count\nonly-one-field\n", e.ada)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed csv status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, "GET", "/ada/plans.csv", "", "", nil)
	want := "tabula_row_id,title\n1,foo\n"
	if rec.Body.String() != want {
		t.Errorf("csv after failed replace = %q, want %q", rec.Body.String(), want)
	}
}

func TestTableViewNegotiation(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title\nfoo\n")

	t.Run("default is csv", func(t *testing.T) {
		rec := e.do(t, "GET", "/ada/plans", "", "", nil)
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("Content-Type = %q", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "plans.csv") {
			t.Errorf("Content-Disposition = %q", cd)
		}
	})
	t.Run("json suffix", func(t *testing.T) {
		rec := e.do(t, "GET", "/ada/plans.json", "", "", nil)
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Errorf("Content-Type = %q", ct)
		}
	})
	t.Run("browser gets html", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ada/plans", nil)
		r.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, r)
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("Content-Type = %q", ct)
		}
		if !strings.Contains(rec.Body.String(), "ada/plans") {
			t.Error("page does not name the table")
		}
	})
	t.Run("unrecognized accept gets csv", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ada/plans", nil)
		r.Header.Set("Accept", "application/xml")
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, r)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("Content-Type = %q", ct)
		}
	})
	t.Run("unknown extension is 415 not csv", func(t *testing.T) {
		rec := e.do(t, "GET", "/ada/plans.xyz", "", "", nil)
		if rec.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("status = %d", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error.Code != dto.ErrorCodeUnsupportedMediaType {
			t.Errorf("code = %q", resp.Error.Code)
		}
	})
}

func TestTablePaginationWalk(t *testing.T) {
	e := newTestEnv(t)
	var b strings.Builder
	b.WriteString("n\n")
	for i := 1; i <= 30; i++ {
		fmt.Fprintf(&b, "%d\n", i*10)
	}
	e.createTable(t, "numbers", true, b.String())

	var ids []int64
	target := "/ada/numbers.json"
	for page := 0; ; page++ {
		rec := e.do(t, "GET", target, "", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", target, rec.Code)
		}
		var resp dto.TablePageResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if page == 0 && resp.PreviousPageURL != nil {
			t.Error("first page has a previous_page_url")
		}
		if page > 0 && resp.PreviousPageURL == nil {
			t.Error("later page lacks a previous_page_url")
		}
		for _, row := range resp.Rows {
			ids = append(ids, row.RowID)
		}
		if resp.NextPageURL == nil {
			break
		}
		u, err := url.Parse(*resp.NextPageURL)
		if err != nil {
			t.Fatal(err)
		}
		target = u.RequestURI()
	}
	if len(ids) != 30 {
		t.Fatalf("walk visited %d rows, want 30", len(ids))
	}
	for i, id := range ids {
		if id != int64(i+1) {
			t.Fatalf("ids[%d] = %d, want %d", i, id, i+1)
		}
	}
}

func TestTableViewInvalidBoundary(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title\nfoo\n")
	tests := []struct {
		name, query string
	}{
		{"unknown op", "?op=banana&n=3"},
		{"op without n", "?op=gt"},
		{"non-integer n", "?op=gt&n=three"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, "GET", "/ada/plans.json"+tt.query, "", "", nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Error.Code != dto.ErrorCodeInvalidBoundary {
				t.Errorf("code = %q", resp.Error.Code)
			}
		})
	}
}

func TestTableViewBoundaryPastData(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title\nfoo\n")
	rec := e.do(t, "GET", "/ada/plans.json?op=gt&n=999", "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeError(t, rec); resp.Error.Code != dto.ErrorCodePageNotFound {
		t.Errorf("code = %q", resp.Error.Code)
	}
}

func TestRowCreateEchoesAssignedID(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title,count\nseed,1\n")
	rec := e.do(t, "POST", "/ada/plans/rows", "application/json",
		`{"row": {"title": "new", "count": 7}}`, e.ada)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp dto.RowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RowID != 2 {
		t.Errorf("row_id = %d, want 2 (server assigned)", resp.RowID)
	}
	if !strings.HasSuffix(resp.URL, "/ada/plans/rows/2") {
		t.Errorf("url = %q", resp.URL)
	}
	if resp.Row["count"] != float64(7) {
		t.Errorf("row = %v", resp.Row)
	}

	// The id column cannot be supplied by the client.
	rec = e.do(t, "POST", "/ada/plans/rows", "application/json",
		`{"row": {"tabula_row_id": 99, "title": "x", "count": 1}}`, e.ada)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status with explicit id = %d", rec.Code)
	}
}

func TestRowLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title\nfoo\n")

	rec := e.do(t, "GET", "/ada/plans/rows/1", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET row = %d", rec.Code)
	}
	var resp dto.RowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Row["title"] != "foo" {
		t.Errorf("row = %v", resp.Row)
	}

	// A body row_id that contradicts the URL is rejected.
	rec = e.do(t, "PUT", "/ada/plans/rows/1", "application/json",
		`{"row_id": 2, "row": {"title": "bar"}}`, e.ada)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("mismatched row_id status = %d", rec.Code)
	}

	rec = e.do(t, "PUT", "/ada/plans/rows/1", "application/json",
		`{"row_id": 1, "row": {"title": "bar"}}`, e.ada)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT row = %d: %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, "DELETE", "/ada/plans/rows/1", "", "", e.ada)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE row = %d", rec.Code)
	}
	rec = e.do(t, "GET", "/ada/plans/rows/1", "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET deleted row = %d", rec.Code)
	}
	rec = e.do(t, "DELETE", "/ada/plans/rows/1", "", "", e.ada)
	if rec.Code != http.StatusNotFound {
		t.Errorf("DELETE deleted row = %d", rec.Code)
	}
}

func TestWriteAuth(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title\nfoo\n")

	rec := e.do(t, "POST", "/ada/plans/rows", "application/json", `{"row": {"title": "x"}}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous write = %d", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); !strings.Contains(got, "Basic") {
		t.Errorf("WWW-Authenticate = %q", got)
	}

	bob, err := e.users.Register(context.Background(), "bob", "password123")
	if err != nil {
		t.Fatal(err)
	}
	rec = e.do(t, "POST", "/ada/plans/rows", "application/json", `{"row": {"title": "x"}}`, bob)
	if rec.Code != http.StatusForbidden {
		t.Errorf("cross-user write = %d", rec.Code)
	}

	// Bad credentials are a 401, not anonymous access.
	r := httptest.NewRequest("GET", "/ada/plans.json", nil)
	r.SetBasicAuth("ada", "wrong-key")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, r)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad credentials = %d", rr.Code)
	}
}

func TestPrivateTableHidden(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "secrets", false, "title\nfoo\n")

	rec := e.do(t, "GET", "/ada/secrets.json", "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("anonymous read of private table = %d, want 404", rec.Code)
	}
	bob, err := e.users.Register(context.Background(), "bob", "password123")
	if err != nil {
		t.Fatal(err)
	}
	rec = e.do(t, "GET", "/ada/secrets.json", "", "", bob)
	if rec.Code != http.StatusNotFound {
		t.Errorf("other user's read of private table = %d, want 404", rec.Code)
	}
	rec = e.do(t, "GET", "/ada/secrets.json", "", "", e.ada)
	if rec.Code != http.StatusOK {
		t.Errorf("owner read of private table = %d", rec.Code)
	}
}

func TestTableETag(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title\nfoo\n")

	rec := e.do(t, "GET", "/ada/plans.json", "", "", nil)
	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("ETag = %q", etag)
	}

	r := httptest.NewRequest("GET", "/ada/plans.json", nil)
	r.Header.Set("If-None-Match", etag)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, r)
	if rr.Code != http.StatusNotModified {
		t.Fatalf("status with matching etag = %d", rr.Code)
	}

	// A write changes the tag.
	rec = e.do(t, "POST", "/ada/plans/rows", "application/json", `{"row": {"title": "x"}}`, e.ada)
	if rec.Code != http.StatusCreated {
		t.Fatal(rec.Code)
	}
	r = httptest.NewRequest("GET", "/ada/plans.json", nil)
	r.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	e.handler.ServeHTTP(rr, r)
	if rr.Code != http.StatusOK {
		t.Errorf("status after write with stale etag = %d", rr.Code)
	}
}

func TestTableDelete(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title\nfoo\n")
	rec := e.do(t, "DELETE", "/ada/plans", "", "", e.ada)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE table = %d", rec.Code)
	}
	rec = e.do(t, "GET", "/ada/plans.json", "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET deleted table = %d", rec.Code)
	}
}

func TestUserPage(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title\nfoo\n")
	e.createTable(t, "secrets", false, "title\nbar\n")

	rec := e.do(t, "GET", "/ada.json", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET user = %d", rec.Code)
	}
	var resp dto.UserResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Tables) != 1 || resp.Tables[0].Name != "plans" {
		t.Errorf("anonymous view tables = %v (private must be hidden)", resp.Tables)
	}

	rec = e.do(t, "GET", "/ada.json", "", "", e.ada)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Tables) != 2 {
		t.Errorf("owner view tables = %v", resp.Tables)
	}

	rec = e.do(t, "GET", "/ghost.json", "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET missing user = %d", rec.Code)
	}
}

func TestSignInFlow(t *testing.T) {
	e := newTestEnv(t)
	form := url.Values{"username": {"ada"}, "password": {"password123"}}
	rec := e.do(t, "POST", "/sign-in", "application/x-www-form-urlencoded", form.Encode(), nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("sign-in status = %d: %s", rec.Code, rec.Body.String())
	}
	var cookie string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "tabula_session" && c.Value != "" {
			cookie = c.Value
		}
	}
	if cookie == "" {
		t.Fatal("no session cookie set")
	}

	// The cookie authenticates subsequent requests.
	r := httptest.NewRequest("GET", "/ada.json", nil)
	r.AddCookie(&http.Cookie{Name: "tabula_session", Value: cookie})
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, r)
	var resp dto.UserResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	form.Set("password", "wrong")
	rec = e.do(t, "POST", "/sign-in", "application/x-www-form-urlencoded", form.Encode(), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", rec.Code)
	}
}

func TestRowFormUpdateRedirects(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t, "plans", true, "title\nfoo\n")
	form := url.Values{"title": {"edited"}}
	rec := e.do(t, "POST", "/ada/plans/rows/1", "application/x-www-form-urlencoded", form.Encode(), e.ada)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("form update status = %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); !strings.HasSuffix(loc, "/ada/plans/rows/1") {
		t.Errorf("Location = %q", loc)
	}
	rec = e.do(t, "GET", "/ada/plans/rows/1", "", "", nil)
	var resp dto.RowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Row["title"] != "edited" {
		t.Errorf("row after form update = %v", resp.Row)
	}
}

func TestBlogRoutesBeatUsernameRoutes(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, "GET", "/blog", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /blog = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	rec = e.do(t, "GET", "/blog/nope", "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET missing post = %d", rec.Code)
	}
}
