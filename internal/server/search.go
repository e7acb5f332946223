package server

import (
	"net/http"

	"go.uber.org/zap"
)

type searchHit struct {
	documentResponse
	Snippet string `json:"snippet"`
}

// Search runs a full-text query over titles, senders and extracted text.
// Without a query it returns the most recently consumed documents.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 50, 200)

	results, err := s.store.SearchDocuments(query, limit)
	if err != nil {
		s.log.Error("search failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	hits := make([]searchHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, searchHit{
			documentResponse: toDocumentResponse(&res.Document, false),
			Snippet:          res.Snippet,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(hits),
		"results": hits,
	})
}
