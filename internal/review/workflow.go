package review

import (
	"errors"
	"fmt"

	"github.com/raaihank/doc-sentinel/internal/privacy"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// workflow's current state
	ErrInvalidState = errors.New("operation not allowed in current review state")
	// ErrNoSession is returned by navigation and deletion before any search
	ErrNoSession = errors.New("no active search session")
)

// State is a workflow stage
type State int

const (
	PendingRedaction State = iota
	AwaitingReview
	Confirmed
)

var stateNames = map[State]string{
	PendingRedaction: "pending_redaction",
	AwaitingReview:   "awaiting_review",
	Confirmed:        "confirmed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown review state: %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a state name
func (s *State) UnmarshalText(b []byte) error {
	for state, name := range stateNames {
		if name == string(b) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown review state: %s", b)
}

// Redactor is what the workflow needs from the redaction engine
type Redactor interface {
	Redact(text string) privacy.Result
}

// Workflow owns one document from raw text to confirmed output:
//
//	PendingRedaction -> AwaitingReview -> Confirmed
//
// AwaitingReview is skipped for non-interactive workflows. A workflow is not
// safe for concurrent use; callers serialize access per document.
type Workflow struct {
	state         State
	text          string
	interactive   bool
	contextWindow int
	session       *Session
	counts        []privacy.LabelCount
}

// NewWorkflow starts a workflow over raw document text
func NewWorkflow(text string, interactive bool) *Workflow {
	return &Workflow{
		state:         PendingRedaction,
		text:          text,
		interactive:   interactive,
		contextWindow: DefaultContextWindow,
	}
}

// SetContextWindow changes how much surrounding text Current returns
func (w *Workflow) SetContextWindow(n int) {
	if n >= 0 {
		w.contextWindow = n
	}
}

// State returns the current stage
func (w *Workflow) State() State { return w.state }

// Text returns the current buffer
func (w *Workflow) Text() string { return w.text }

// Interactive reports whether the review stage is used
func (w *Workflow) Interactive() bool { return w.interactive }

// Counts returns the per-label redaction counts
func (w *Workflow) Counts() []privacy.LabelCount { return w.counts }

// Session returns a copy of the active search session, if any
func (w *Workflow) Session() (Session, bool) {
	if w.session == nil {
		return Session{}, false
	}
	return *w.session, true
}

// Redact runs the engine over the buffer. The full result is returned once so
// the caller can show the report; the workflow keeps only label counts.
func (w *Workflow) Redact(r Redactor) (privacy.Result, error) {
	if w.state != PendingRedaction {
		return privacy.Result{}, ErrInvalidState
	}

	result := r.Redact(w.text)
	w.text = result.Text
	w.counts = privacy.Summarize(result.Events)

	if w.interactive {
		w.state = AwaitingReview
	} else {
		w.state = Confirmed
	}
	return result, nil
}

// Search starts a new search session over the buffer
func (w *Workflow) Search(query string) (Session, error) {
	if w.state != AwaitingReview {
		return Session{}, ErrInvalidState
	}

	s, err := Search(w.text, query)
	if err != nil {
		return Session{}, err
	}
	w.session = &s
	return s, nil
}

// Navigate moves the active session's cursor
func (w *Workflow) Navigate(dir Direction) error {
	if err := w.requireSession(); err != nil {
		return err
	}
	w.session.Navigate(dir)
	return nil
}

// Current returns the current match in context. ok is false once the session
// is exhausted.
func (w *Workflow) Current() (Context, bool, error) {
	if err := w.requireSession(); err != nil {
		return Context{}, false, err
	}
	c, ok := w.session.ContextAround(w.text, w.contextWindow)
	return c, ok, nil
}

// DeleteCurrent removes the current match from the buffer
func (w *Workflow) DeleteCurrent() error {
	if err := w.requireSession(); err != nil {
		return err
	}
	text, next := w.session.DeleteCurrent(w.text)
	w.text = text
	w.session = &next
	return nil
}

// ReplaceText swaps in an externally edited buffer. Offsets from the previous
// session would be stale, so the session is discarded.
func (w *Workflow) ReplaceText(text string) error {
	if w.state != AwaitingReview {
		return ErrInvalidState
	}
	w.text = text
	w.session = nil
	return nil
}

// Confirm ends the review and returns the text to hand off
func (w *Workflow) Confirm() (string, error) {
	if w.state != AwaitingReview {
		return "", ErrInvalidState
	}
	w.state = Confirmed
	w.session = nil
	return w.text, nil
}

func (w *Workflow) requireSession() error {
	if w.state != AwaitingReview {
		return ErrInvalidState
	}
	if w.session == nil {
		return ErrNoSession
	}
	return nil
}
