package dto

// ColumnResponse describes one column of a table.
type ColumnResponse struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RowResponse is the JSON form of a single row. The cell map uses JSON-safe
// values; dates are YYYY-MM-DD strings.
type RowResponse struct {
	RowID int64          `json:"row_id"`
	URL   string         `json:"url"`
	Row   map[string]any `json:"row"`
}

// TablePageResponse is the JSON form of one page of a table. The page URLs
// are null at the respective end of the table.
type TablePageResponse struct {
	Name            string           `json:"name"`
	Owner           string           `json:"owner"`
	Caption         string           `json:"caption,omitempty"`
	IsPublic        bool             `json:"is_public"`
	Created         string           `json:"created"`
	LastChanged     string           `json:"last_changed"`
	Columns         []ColumnResponse `json:"columns"`
	Rows            []RowResponse    `json:"rows"`
	NextPageURL     *string          `json:"next_page_url"`
	PreviousPageURL *string          `json:"previous_page_url"`
}

// CreateRowRequest is the body of POST .../rows. A row id must not be given;
// the server assigns it.
type CreateRowRequest struct {
	Row map[string]any `json:"row"`
}

// UpdateRowRequest is the body of PUT .../rows/{row_id}. When RowID is
// present it must match the path.
type UpdateRowRequest struct {
	RowID *int64         `json:"row_id"`
	Row   map[string]any `json:"row"`
}

// UserResponse is the JSON form of a user page.
type UserResponse struct {
	Username   string              `json:"username"`
	Registered string              `json:"registered"`
	About      string              `json:"about,omitempty"`
	Tables     []TableMetaResponse `json:"tables"`
}

// TableMetaResponse is the metadata-only form of a table, used in listings.
type TableMetaResponse struct {
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	Caption     string `json:"caption,omitempty"`
	IsPublic    bool   `json:"is_public"`
	LastChanged string `json:"last_changed"`
	URL         string `json:"url"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
