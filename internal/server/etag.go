// Weak ETags for table and row views. The tag hashes the identity of the
// content (table uuid, representation, boundary, last-changed) rather than
// the bytes, so it can be checked before any rows are fetched.

package server

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// weakETag builds a weak ETag from its parts.
func weakETag(parts ...string) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf(`W/"%x"`, h.Sum(nil)[:16])
}

// checkETag writes the ETag header and reports whether the client already has
// this version, in which case a 304 has been written.
func checkETag(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", etag)
	for m := range strings.SplitSeq(r.Header.Get("If-None-Match"), ",") {
		if strings.TrimSpace(m) == etag {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}
