package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ragworks/ragserve/internal/logging"
	"github.com/ragworks/ragserve/internal/rag"
)

// handleQuery handles POST /v1/query: retrieve relevant fragments and
// synthesize a cited answer. Retrieval or synthesis failures degrade to an
// empty answer with the error in metadata rather than a non-200 status, so
// clients always get the same response shape.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.queriesTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.metrics.queriesTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, outcome := s.runQuery(r, req.Question, req.TopK)
	s.metrics.queriesTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	log.Info("query answered",
		slog.String("outcome", outcome),
		slog.Int("sources", len(answer.Sources)),
	)
	writeJSON(w, http.StatusOK, answer)
}

// runQuery runs retrieval and synthesis, returning the answer and a metrics
// outcome label ("ok" or "degraded").
func (s *Server) runQuery(r *http.Request, question string, topK int) (*rag.Answer, string) {
	log := logging.FromContext(r.Context())

	fragments, err := s.deps.Retriever.Retrieve(r.Context(), question, topK)
	if err != nil {
		log.Error("retrieval failed", slog.String("error", err.Error()))
		return &rag.Answer{
			Answer:   "",
			Sources:  []rag.Source{},
			Metadata: map[string]string{"error": "retrieval failed: " + err.Error()},
		}, "degraded"
	}

	answer := s.deps.Synthesizer.Synthesize(r.Context(), question, fragments)
	if answer.Metadata != nil && answer.Metadata["error"] != "" {
		return answer, "degraded"
	}
	return answer, "ok"
}

// handleQueryStream handles GET /v1/query/stream, delivering the answer as
// Server-Sent Events: an "answer" event with the synthesized text, a
// "sources" event with the citation list, then "done". Failures emit an
// "error" event on the open stream instead of an HTTP error status.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	question := strings.TrimSpace(r.URL.Query().Get("q"))
	if question == "" {
		s.metrics.queriesTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	topK := 0
	if v := r.URL.Query().Get("top_k"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			topK = i
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.metrics.queryActiveStreams.Inc()
	defer s.metrics.queryActiveStreams.Dec()

	answer, outcome := s.runQuery(r, question, topK)
	s.metrics.queriesTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if outcome == "degraded" && answer.Answer == "" {
		writeSSE(w, flusher, "error", answer.Metadata["error"])
		writeSSE(w, flusher, "done", "")
		return
	}

	writeSSE(w, flusher, "answer", answer.Answer)
	sources, err := json.Marshal(answer.Sources)
	if err != nil {
		log.Error("sources encoding failed", slog.String("error", err.Error()))
		writeSSE(w, flusher, "error", "could not encode sources")
		writeSSE(w, flusher, "done", "")
		return
	}
	writeSSE(w, flusher, "sources", string(sources))
	writeSSE(w, flusher, "done", "")
	log.Info("query streamed",
		slog.String("outcome", outcome),
		slog.Int("sources", len(answer.Sources)),
	)
}

// writeSSE emits one Server-Sent Event frame and flushes it. Multi-line data
// is split into one "data:" line per line, per the SSE wire format.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
	flusher.Flush()
}
