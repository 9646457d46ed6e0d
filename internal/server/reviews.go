package server

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/doc-sentinel/internal/privacy"
	"github.com/raaihank/doc-sentinel/internal/review"
	"github.com/raaihank/doc-sentinel/internal/summarize"
	"github.com/raaihank/doc-sentinel/internal/websocket"
)

type createReviewRequest struct {
	Text          string `json:"text"`
	Interactive   *bool  `json:"interactive,omitempty"`
	ContextWindow *int   `json:"context_window,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type navigateRequest struct {
	Direction string `json:"direction"`
}

type replaceTextRequest struct {
	Text string `json:"text"`
}

type summarizeRequest struct {
	Template    string `json:"template"`
	History     bool   `json:"history"`
	Symptoms    bool   `json:"symptoms"`
	FullSummary bool   `json:"full_summary"`
}

type reviewResponse struct {
	ID      string               `json:"id"`
	State   review.State         `json:"state"`
	Text    string               `json:"text"`
	Counts  []privacy.LabelCount `json:"counts"`
	Session *sessionView         `json:"session,omitempty"`
	Report  string               `json:"report,omitempty"`
}

type sessionView struct {
	Query     string          `json:"query"`
	Matches   int             `json:"matches"`
	Exhausted bool            `json:"exhausted"`
	Current   *review.Context `json:"current,omitempty"`
}

func newReviewResponse(id string, wf *review.Workflow) reviewResponse {
	resp := reviewResponse{ID: id, State: wf.State(), Text: wf.Text(), Counts: wf.Counts()}
	if resp.Counts == nil {
		resp.Counts = []privacy.LabelCount{}
	}

	session, ok := wf.Session()
	if !ok {
		return resp
	}
	view := &sessionView{Query: session.Query(), Matches: session.Len(), Exhausted: session.Exhausted()}
	if c, ok, err := wf.Current(); err == nil && ok {
		view.Current = &c
	}
	resp.Session = view
	return resp
}

// handleCreateReview redacts a document and parks it for review. The report
// with the removed values is returned only in this response.
func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	cfg := s.config.Load()
	interactive := cfg.Review.Interactive
	if req.Interactive != nil {
		interactive = *req.Interactive
	}

	id := uuid.NewString()
	wf := review.NewWorkflow(req.Text, interactive)
	wf.SetContextWindow(cfg.Review.ContextWindow)
	if req.ContextWindow != nil {
		wf.SetContextWindow(*req.ContextWindow)
	}

	start := time.Now()
	result, err := wf.Redact(s.detector.Load())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.afterRedaction(r, id, "review", wf.Counts(), time.Since(start))

	if err := s.store.Save(r.Context(), id, wf.Snapshot()); err != nil {
		s.writeError(w, r, err)
		return
	}
	if wf.State() == review.Confirmed {
		s.recordAudit(r, id, "review", wf.Counts())
	}

	s.logger.WithRequestID(getRequestID(r.Context())).Info("Review session created",
		zap.String("session_id", id),
		zap.String("state", wf.State().String()),
		zap.Int("redactions", len(result.Events)))

	resp := newReviewResponse(id, wf)
	resp.Report = privacy.BuildReport(result.Events)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	s.withWorkflow(w, r, "", nil)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.withWorkflow(w, r, "search", func(wf *review.Workflow) error {
		_, err := wf.Search(req.Query)
		return err
	})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	dir, err := review.ParseDirection(req.Direction)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.withWorkflow(w, r, "navigate", func(wf *review.Workflow) error {
		return wf.Navigate(dir)
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.withWorkflow(w, r, "delete", func(wf *review.Workflow) error {
		return wf.DeleteCurrent()
	})
}

func (s *Server) handleReplaceText(w http.ResponseWriter, r *http.Request) {
	var req replaceTextRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.withWorkflow(w, r, "replace", func(wf *review.Workflow) error {
		return wf.ReplaceText(req.Text)
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.withWorkflow(w, r, "confirm", func(wf *review.Workflow) error {
		_, err := wf.Confirm()
		return err
	})
}

// handleSummarize sends a confirmed document to the summarization provider.
// The session lock is not held during the provider call; confirmed text no
// longer changes.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.summarizer == nil {
		s.writeError(w, r, errSummarizerDisabled)
		return
	}

	wf, err := s.loadWorkflow(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if wf.State() != review.Confirmed {
		s.writeError(w, r, review.ErrInvalidState)
		return
	}

	template := req.Template
	if template == "" {
		template = s.config.Load().Summarizer.Template
	}
	opts := summarize.Options{Template: template, History: req.History, Symptoms: req.Symptoms, FullSummary: req.FullSummary}
	if !opts.History && !opts.Symptoms && !opts.FullSummary {
		opts = summarize.DefaultOptions(template)
	}
	if !slices.Contains(s.summarizer.TemplateKeys(), template) {
		s.writeError(w, r, fmt.Errorf("%w %q", summarize.ErrUnknownTemplate, template))
		return
	}

	result, err := s.summarizer.Summarize(r.Context(), wf.Text(), opts)
	if err != nil {
		upstream := &upstreamError{err: err}
		if !result.Empty() {
			upstream.partial = result
		}
		s.writeError(w, r, upstream)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) loadWorkflow(ctx context.Context, id string) (*review.Workflow, error) {
	snap, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return review.Restore(snap)
}

// withWorkflow runs fn on the session's workflow under the session lock and
// persists the result. A nil fn only reads.
func (s *Server) withWorkflow(w http.ResponseWriter, r *http.Request, action string, fn func(*review.Workflow) error) {
	id := mux.Vars(r)["id"]
	unlock := s.locks.lock(id)
	defer unlock()

	wf, err := s.loadWorkflow(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if fn != nil {
		if err := fn(wf); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.store.Save(r.Context(), id, wf.Snapshot()); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.notifyReview(r, id, action, wf)
	}

	writeJSON(w, http.StatusOK, newReviewResponse(id, wf))
}

func (s *Server) notifyReview(r *http.Request, id, action string, wf *review.Workflow) {
	requestID := getRequestID(r.Context())

	if wf.State() == review.Confirmed {
		s.recordAudit(r, id, "review", wf.Counts())
		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeConfirmed,
			RequestID: requestID,
			Data: websocket.ConfirmedEvent{
				SessionID: id,
				Counts:    wf.Counts(),
				Chars:     utf8.RuneCountInString(wf.Text()),
			},
		})
		return
	}

	event := websocket.ReviewEvent{SessionID: id, Action: action, State: wf.State().String()}
	if session, ok := wf.Session(); ok {
		event.Matches = session.Len()
		if !session.Exhausted() {
			event.Ordinal = session.Cursor() + 1
		}
	}
	s.wsHub.BroadcastEvent(websocket.Event{Type: websocket.EventTypeReview, RequestID: requestID, Data: event})
}
