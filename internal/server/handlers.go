package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/doc-sentinel/internal/audit"
	"github.com/raaihank/doc-sentinel/internal/cache"
	"github.com/raaihank/doc-sentinel/internal/privacy"
	"github.com/raaihank/doc-sentinel/internal/review"
	"github.com/raaihank/doc-sentinel/internal/summarize"
	"github.com/raaihank/doc-sentinel/internal/websocket"
)

var (
	errBadRequest         = errors.New("bad request")
	errSummarizerDisabled = errors.New("summarization is not configured")
)

// upstreamError marks failures of the summarization provider. partial holds
// any sections generated before the failure.
type upstreamError struct {
	err     error
	partial *summarize.Result
}

func (e *upstreamError) Error() string { return e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

type errorResponse struct {
	Error     string            `json:"error"`
	RequestID string            `json:"request_id,omitempty"`
	Partial   *summarize.Result `json:"partial,omitempty"`
}

type redactRequest struct {
	Text   string `json:"text"`
	Report bool   `json:"report"`
}

type redactResponse struct {
	DocumentID string               `json:"document_id"`
	Text       string               `json:"text"`
	Counts     []privacy.LabelCount `json:"counts"`
	Report     string               `json:"report,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) templateKeys() []string {
	if s.summarizer == nil {
		return summarize.TemplateKeys()
	}
	return s.summarizer.TemplateKeys()
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Load()
	info := map[string]any{
		"name":             "doc-sentinel",
		"version":          Version,
		"privacy_enabled":  cfg.Privacy.Enabled,
		"detectors":        s.detector.Load().EnabledCategories(),
		"strict_names":     cfg.Privacy.StrictNames,
		"interactive":      cfg.Review.Interactive,
		"templates":        s.templateKeys(),
		"summarizer":       s.summarizer != nil,
		"total_redactions": s.totalRedactions.Load(),
		"uptime":           time.Since(s.startTime).Round(time.Second).String(),
		"websocket":        s.wsHub.GetStats(),
	}
	if stats, err := s.store.Stats(r.Context()); err == nil {
		info["session_store"] = stats
	} else {
		s.logger.Warn("Failed to read session store stats", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, info)
}

// handleRedact redacts a document in one shot, without review
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req redactRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	documentID := uuid.NewString()
	start := time.Now()
	result := s.detector.Load().Redact(req.Text)
	counts := privacy.Summarize(result.Events)

	s.afterRedaction(r, documentID, "api", counts, time.Since(start))
	s.recordAudit(r, documentID, "api", counts)

	resp := redactResponse{DocumentID: documentID, Text: result.Text, Counts: counts}
	if req.Report {
		resp.Report = privacy.BuildReport(result.Events)
	}
	writeJSON(w, http.StatusOK, resp)
}

// afterRedaction updates counters and notifies dashboards
func (s *Server) afterRedaction(r *http.Request, documentID, source string, counts []privacy.LabelCount, elapsed time.Duration) {
	total := 0
	for _, lc := range counts {
		total += lc.Count
	}
	s.totalRedactions.Add(int64(total))

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRedaction,
		RequestID: getRequestID(r.Context()),
		Data: websocket.RedactionEvent{
			DocumentID:   documentID,
			Source:       source,
			Counts:       counts,
			Total:        total,
			ProcessingMS: float64(elapsed.Microseconds()) / 1000,
		},
	})
}

// recordAudit writes the audit entry. Failures are logged; the caller
// already holds the redacted text and it is not withheld.
func (s *Server) recordAudit(r *http.Request, documentID, source string, counts []privacy.LabelCount) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(r.Context(), audit.Entry{
		DocumentID: documentID,
		Source:     source,
		Counts:     counts,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to record audit entry",
			zap.String("document_id", documentID),
			zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(v)
}

// writeError maps domain errors to HTTP status codes
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status   int
		maxErr   *http.MaxBytesError
		upstream *upstreamError
	)
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, review.ErrEmptyQuery),
		errors.Is(err, summarize.ErrUnknownTemplate):
		status = http.StatusBadRequest
	case errors.As(err, &maxErr):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, cache.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, review.ErrInvalidState), errors.Is(err, review.ErrNoSession):
		status = http.StatusConflict
	case errors.Is(err, errSummarizerDisabled):
		status = http.StatusServiceUnavailable
	case errors.As(err, &upstream):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	requestID := getRequestID(r.Context())
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.WithRequestID(requestID).Error("Request failed", zap.Error(err))
		message = "internal server error"
	}
	resp := errorResponse{Error: message, RequestID: requestID}
	if upstream != nil {
		resp.Partial = upstream.partial
	}
	writeJSON(w, status, resp)
}
