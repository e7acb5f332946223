package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brelow/eml-archiver/internal/store"
)

// documentResponse is the JSON shape of a document. Filesystem locations
// stay internal; clients fetch artifacts through the archive and thumbnail
// endpoints.
type documentResponse struct {
	ID           int64      `json:"id"`
	Filename     string     `json:"filename"`
	Checksum     string     `json:"checksum"`
	Title        string     `json:"title"`
	Sender       string     `json:"sender"`
	Recipients   string     `json:"recipients"`
	Created      *time.Time `json:"created,omitempty"`
	ConsumedAt   *time.Time `json:"consumed_at,omitempty"`
	Size         int64      `json:"size"`
	RuleID       int64      `json:"rule_id,omitempty"`
	HasThumbnail bool       `json:"has_thumbnail"`
	Text         string     `json:"text,omitempty"`
}

func toDocumentResponse(doc *store.Document, includeText bool) documentResponse {
	resp := documentResponse{
		ID:           doc.ID,
		Filename:     doc.Filename,
		Checksum:     doc.Checksum,
		Title:        doc.Title,
		Sender:       doc.Sender,
		Recipients:   doc.Recipients,
		Size:         doc.Size,
		RuleID:       doc.RuleID,
		HasThumbnail: doc.ThumbnailPath != "",
	}
	if doc.Created.Valid {
		t := doc.Created.Time
		resp.Created = &t
	}
	if doc.ConsumedAt.Valid {
		t := doc.ConsumedAt.Time
		resp.ConsumedAt = &t
	}
	if includeText {
		resp.Text = doc.Text
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// The status line is out; an encode failure here can only truncate the body.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// idParam parses the {id} route parameter. On failure it writes a 400 and
// returns false.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return 0, false
	}
	return id, true
}

// queryInt parses an integer query parameter, clamped to [1, max], using
// fallback when the parameter is absent or unparseable.
func queryInt(r *http.Request, name string, fallback, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
