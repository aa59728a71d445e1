// Content negotiation between HTML, JSON and CSV representations.
//
// Priority order: an explicit file-extension suffix on the URL wins over
// headers, and an unknown extension is an error rather than a silent
// fallback. Without an extension the Accept header decides, with a
// per-endpoint default when it is absent, unrecognized or matches everything.

package server

import (
	"mime"
	"sort"
	"strconv"
	"strings"

	"github.com/tabulahq/tabula/internal/server/dto"
)

// ContentType is a representation the server can produce.
type ContentType int

const (
	ContentTypeHTML ContentType = iota
	ContentTypeJSON
	ContentTypeCSV
)

// MIME returns the media type, without parameters.
func (ct ContentType) MIME() string {
	switch ct {
	case ContentTypeJSON:
		return "application/json"
	case ContentTypeCSV:
		return "text/csv"
	default:
		return "text/html"
	}
}

// String returns the extension name.
func (ct ContentType) String() string {
	switch ct {
	case ContentTypeJSON:
		return "json"
	case ContentTypeCSV:
		return "csv"
	default:
		return "html"
	}
}

// contentTypeForExtension maps a URL extension (without dot) to its type.
func contentTypeForExtension(ext string) (ContentType, bool) {
	switch strings.ToLower(ext) {
	case "json":
		return ContentTypeJSON, true
	case "csv":
		return ContentTypeCSV, true
	case "html":
		return ContentTypeHTML, true
	}
	return 0, false
}

// splitExtension splits a path segment into its base name and extension.
// Table names cannot contain dots, so any dot introduces an extension.
func splitExtension(segment string) (base, ext string) {
	if i := strings.LastIndexByte(segment, '.'); i >= 0 {
		return segment[:i], segment[i+1:]
	}
	return segment, ""
}

// acceptEntry is one parsed media range from an Accept header.
type acceptEntry struct {
	mediaType string
	q         float64
	order     int
}

// parseAccept parses an Accept header into media ranges sorted by descending
// quality. Malformed entries are skipped.
func parseAccept(header string) []acceptEntry {
	var entries []acceptEntry
	for i, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mediaType, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		q := 1.0
		if qs, ok := params["q"]; ok {
			if v, err := strconv.ParseFloat(qs, 64); err == nil && v >= 0 && v <= 1 {
				q = v
			}
		}
		entries = append(entries, acceptEntry{mediaType: mediaType, q: q, order: i})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].q != entries[j].q {
			return entries[i].q > entries[j].q
		}
		return entries[i].order < entries[j].order
	})
	return entries
}

// matchAccept returns the best supported type for one media range.
func matchAccept(mediaType string, offered []ContentType, fallback ContentType) (ContentType, bool) {
	switch mediaType {
	case "*/*":
		return fallback, true
	case "text/*":
		for _, ct := range offered {
			if strings.HasPrefix(ct.MIME(), "text/") {
				return ct, true
			}
		}
	case "application/*":
		for _, ct := range offered {
			if strings.HasPrefix(ct.MIME(), "application/") {
				return ct, true
			}
		}
	default:
		for _, ct := range offered {
			if ct.MIME() == mediaType {
				return ct, true
			}
		}
	}
	return 0, false
}

// negotiate decides the response representation for a path segment that may
// carry an extension. It returns the segment with any extension stripped.
// An unknown explicit extension yields 415; an Accept header matching none of
// the offered types uses the fallback, same as no header at all.
func negotiate(segment, acceptHeader string, offered []ContentType, fallback ContentType) (string, ContentType, error) {
	base, ext := splitExtension(segment)
	if ext != "" {
		ct, ok := contentTypeForExtension(ext)
		if !ok {
			return base, 0, dto.UnsupportedMediaType("." + ext)
		}
		for _, o := range offered {
			if o == ct {
				return base, ct, nil
			}
		}
		return base, 0, dto.UnsupportedMediaType("." + ext)
	}
	if strings.TrimSpace(acceptHeader) == "" {
		return base, fallback, nil
	}
	for _, entry := range parseAccept(acceptHeader) {
		if entry.q == 0 {
			continue
		}
		if ct, ok := matchAccept(entry.mediaType, offered, fallback); ok {
			return base, ct, nil
		}
	}
	return base, fallback, nil
}

// negotiateBody decides how to read a request body from its Content-Type.
// A missing header falls back; an unusable one is a 415.
func negotiateBody(contentTypeHeader string, supported []ContentType, fallback ContentType) (ContentType, error) {
	if strings.TrimSpace(contentTypeHeader) == "" {
		return fallback, nil
	}
	mediaType, _, err := mime.ParseMediaType(contentTypeHeader)
	if err != nil {
		return 0, dto.UnsupportedMediaType(contentTypeHeader)
	}
	for _, ct := range supported {
		if ct.MIME() == mediaType {
			return ct, nil
		}
	}
	// Browsers post forms; callers that accept form bodies check for them
	// before negotiating.
	return 0, dto.UnsupportedMediaType(mediaType)
}
