package server

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragworks/ragserve/internal/blob"
	"github.com/ragworks/ragserve/internal/logging"
	"github.com/ragworks/ragserve/internal/registry"
)

// handleUpload handles POST /v1/upload: store the file, register the
// document, and enqueue an ingestion job. The response is 202 Accepted —
// ingestion happens asynchronously and the document starts in "uploaded".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	// The declared content type is recorded but never gated on here: an
	// unknown type goes through the parser's byte-to-text fallback during
	// ingestion and fails asynchronously if the bytes are not text.
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	docID := uuid.NewString()
	key := blob.ObjectKey(docID, header.Filename)

	hash := sha256.New()
	if err := s.deps.Blobs.Put(ctx, key, io.TeeReader(file, hash), header.Size, contentType); err != nil {
		s.metrics.uploadsTotal.WithLabelValues("error").Inc()
		log.Error("upload storage failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	doc := &registry.Document{
		ID:          docID,
		UserID:      r.FormValue("user_id"),
		Filename:    header.Filename,
		ContentType: contentType,
		StorageURI:  key,
		Status:      registry.StatusUploaded,
		Tags:        parseTags(r.FormValue("tags")),
		Checksum:    hex.EncodeToString(hash.Sum(nil)),
	}
	if err := s.deps.Registry.CreateDocument(ctx, doc); err != nil {
		s.metrics.uploadsTotal.WithLabelValues("error").Inc()
		log.Error("document registration failed", slog.String("error", err.Error()))
		_ = s.deps.Blobs.Delete(ctx, key)
		writeError(w, http.StatusInternalServerError, "could not register document")
		return
	}

	job, err := s.deps.Queue.Enqueue(ctx, docID)
	if err != nil {
		// The document stays registered as "uploaded"; a later explicit
		// ingest trigger can retry.
		s.metrics.uploadsTotal.WithLabelValues("error").Inc()
		log.Error("ingestion enqueue failed",
			slog.String("document_id", docID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "document stored but ingestion could not be queued")
		return
	}
	s.recordEnqueued(r, job.ID, docID, job.EnqueuedAt)

	s.metrics.uploadsTotal.WithLabelValues("accepted").Inc()
	log.Info("upload accepted",
		slog.String("document_id", docID),
		slog.String("filename", header.Filename),
		slog.Int64("bytes", header.Size),
	)
	writeJSON(w, http.StatusAccepted, uploadResponse{
		DocumentID: docID,
		Status:     string(registry.StatusUploaded),
		JobID:      job.ID,
	})
}

// handleListDocuments handles GET /v1/documents with skip/limit paging.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	skip := intQuery(r, "skip", 0)
	limit := intQuery(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}

	docs, total, err := s.deps.Registry.ListDocuments(r.Context(), skip, limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("list documents failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not list documents")
		return
	}
	resp := documentListResponse{
		Documents: make([]documentResponse, 0, len(docs)),
		Total:     total,
		Skip:      skip,
		Limit:     limit,
	}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetDocument handles GET /v1/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Registry.GetDocument(r.Context(), r.PathValue("id"))
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("get document failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not load document")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// handleDocumentHistory handles GET /v1/documents/{id}/history.
func (s *Server) handleDocumentHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "job history not enabled")
		return
	}
	id := r.PathValue("id")
	if _, err := s.deps.Registry.GetDocument(r.Context(), id); errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	recs, err := s.deps.History.History(r.Context(), id, intQuery(r, "limit", 20))
	if err != nil {
		logging.FromContext(r.Context()).Error("job history read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not load job history")
		return
	}
	resp := historyResponse{DocumentID: id, Jobs: make([]historyEntry, 0, len(recs))}
	for _, rec := range recs {
		entry := historyEntry{
			JobID:      rec.JobID,
			Outcome:    string(rec.Outcome),
			Error:      rec.Error,
			EnqueuedAt: rec.EnqueuedAt.Format(time.RFC3339),
		}
		if !rec.StartedAt.IsZero() {
			entry.StartedAt = rec.StartedAt.Format(time.RFC3339)
		}
		if !rec.CompletedAt.IsZero() {
			entry.CompletedAt = rec.CompletedAt.Format(time.RFC3339)
		}
		resp.Jobs = append(resp.Jobs, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteDocument handles DELETE /v1/documents/{id}. Fragments are
// removed before the metadata record so a query can never cite fragments of
// a document that no longer resolves.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	ctx := r.Context()
	id := r.PathValue("id")

	doc, err := s.deps.Registry.GetDocument(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		log.Error("get document failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not load document")
		return
	}

	if s.deps.FragmentsDeleter != nil {
		if err := s.deps.FragmentsDeleter.DeleteFragments(ctx, id); err != nil {
			log.Error("fragment deletion failed",
				slog.String("document_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "could not delete fragments")
			return
		}
	}
	if err := s.deps.Blobs.Delete(ctx, doc.StorageURI); err != nil {
		log.Warn("stored file deletion failed",
			slog.String("document_id", id),
			slog.String("error", err.Error()),
		)
	}

	deleted, err := s.deps.Registry.DeleteDocument(ctx, id)
	if err != nil {
		log.Error("document deletion failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not delete document")
		return
	}
	if !deleted {
		// A concurrent delete won the race after our existence check.
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	log.Info("document deleted", slog.String("document_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// handleIngest handles POST /v1/ingest/{id}: re-queue ingestion for an
// existing document. Documents currently processing are rejected with 409,
// everything else (uploaded, failed, even already ingested) re-enqueues.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	doc, err := s.deps.Registry.GetDocument(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		logging.FromContext(ctx).Error("get document failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not load document")
		return
	}
	if doc.Status == registry.StatusProcessing {
		writeError(w, http.StatusConflict, "document is already being processed")
		return
	}

	job, err := s.deps.Queue.Enqueue(ctx, id)
	if err != nil {
		logging.FromContext(ctx).Error("ingestion enqueue failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "ingestion could not be queued")
		return
	}
	s.recordEnqueued(r, job.ID, id, job.EnqueuedAt)

	writeJSON(w, http.StatusAccepted, ingestResponse{
		DocumentID: id,
		JobID:      job.ID,
		Status:     string(doc.Status),
	})
}

func (s *Server) recordEnqueued(r *http.Request, jobID, documentID string, at time.Time) {
	if s.deps.History == nil {
		return
	}
	if err := s.deps.History.RecordEnqueued(r.Context(), jobID, documentID, at); err != nil {
		logging.FromContext(r.Context()).Warn("job history write failed", slog.String("error", err.Error()))
	}
}

func toDocumentResponse(doc *registry.Document) documentResponse {
	resp := documentResponse{
		DocumentID:  doc.ID,
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		Status:      string(doc.Status),
		CreatedAt:   doc.CreatedAt.Format(time.RFC3339),
		Tags:        doc.Tags,
		Checksum:    doc.Checksum,
		Error:       doc.Error,
	}
	if !doc.UpdatedAt.IsZero() {
		resp.UpdatedAt = doc.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}

func parseTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func intQuery(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}
	return fallback
}
