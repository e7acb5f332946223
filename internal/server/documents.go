package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/brelow/eml-archiver/internal/consumer"
	"github.com/brelow/eml-archiver/internal/store"
)

// maxUploadBytes caps document uploads at 100 MiB.
const maxUploadBytes = 100 << 20

// ListDocuments returns the newest documents first. Listing entries omit
// the extracted text; GET /api/documents/{id} includes it.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 200)
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	docs, err := s.store.ListDocuments(limit, offset)
	if err != nil {
		s.log.Error("failed to list documents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	total, err := s.store.CountDocuments()
	if err != nil {
		s.log.Error("failed to count documents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toDocumentResponse(doc, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": resp,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// GetDocument returns one document including its extracted text.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	doc, err := s.store.GetDocumentByID(id)
	if err != nil {
		s.log.Error("failed to load document", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, true))
}

// UploadDocument accepts a multipart upload (field "file", optional
// "rule_id") and converts it synchronously.
func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	var ruleID int64
	if v := r.FormValue("rule_id"); v != "" {
		ruleID, err = strconv.ParseInt(v, 10, 64)
		if err != nil || ruleID < 0 {
			writeError(w, http.StatusBadRequest, "invalid rule_id")
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	doc, err := s.consumer.ConsumeBytes(r.Context(), data, header.Filename, ruleID)
	switch {
	case errors.Is(err, consumer.ErrDuplicate):
		writeError(w, http.StatusConflict, "document already archived")
		return
	case errors.Is(err, consumer.ErrUnsupportedType):
		s.metrics.RecordRejectedUpload()
		writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("no parser for this document type (supported: %s)",
				strings.Join(s.registry.SupportedTypes(), ", ")))
		return
	case err != nil:
		s.log.Error("failed to convert upload",
			zap.String("filename", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "conversion failed")
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc, true))
}

// DownloadArchive serves the archived PDF.
func (s *Server) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	if doc.ArchivePath == "" {
		writeError(w, http.StatusNotFound, "archive not available")
		return
	}

	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{
			"filename": archiveDownloadName(doc),
		}))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, doc.ArchivePath)
}

// DownloadThumbnail serves the first-page PNG of the archive.
func (s *Server) DownloadThumbnail(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	if doc.ThumbnailPath == "" {
		writeError(w, http.StatusNotFound, "thumbnail not available")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, doc.ThumbnailPath)
}

func (s *Server) loadDocument(w http.ResponseWriter, r *http.Request) (*store.Document, bool) {
	id, ok := idParam(w, r)
	if !ok {
		return nil, false
	}
	doc, err := s.store.GetDocumentByID(id)
	if err != nil {
		s.log.Error("failed to load document", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return nil, false
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return nil, false
	}
	return doc, true
}

// archiveDownloadName derives the download filename from the consumed
// file's name, swapping the extension for .pdf.
func archiveDownloadName(doc *store.Document) string {
	base := filepath.Base(doc.Filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." {
		name = fmt.Sprintf("document-%d", doc.ID)
	}
	return name + ".pdf"
}
