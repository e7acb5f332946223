package server

import (
	"net/http"

	"go.uber.org/zap"
)

// Scan runs one consume-directory pass and returns its stats. Only one scan
// runs at a time; concurrent triggers get a 409.
func (s *Server) Scan(w http.ResponseWriter, r *http.Request) {
	if s.consumeDir == "" {
		writeError(w, http.StatusNotFound, "no consume directory configured")
		return
	}

	if !s.scanMu.TryLock() {
		writeError(w, http.StatusConflict, "scan already in progress")
		return
	}
	defer s.scanMu.Unlock()

	stats, err := s.consumer.ConsumeDir(r.Context(), s.consumeDir, 0)
	if err != nil {
		s.log.Error("scan failed", zap.String("dir", s.consumeDir), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
