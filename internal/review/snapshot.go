package review

import (
	"fmt"
	"unicode/utf8"

	"github.com/raaihank/doc-sentinel/internal/privacy"
)

// Snapshot is the serializable form of a workflow. It holds the redacted
// buffer and label counts, never the original values.
type Snapshot struct {
	State         State                `json:"state"`
	Text          string               `json:"text"`
	Interactive   bool                 `json:"interactive"`
	ContextWindow int                  `json:"context_window"`
	Session       *SessionState        `json:"session,omitempty"`
	Counts        []privacy.LabelCount `json:"counts"`
}

// SessionState is the serializable form of a Session
type SessionState struct {
	Query   string `json:"query"`
	Matches []int  `json:"matches"`
	Cursor  int    `json:"cursor"`
}

// Snapshot captures the workflow
func (w *Workflow) Snapshot() Snapshot {
	snap := Snapshot{
		State:         w.state,
		Text:          w.text,
		Interactive:   w.interactive,
		ContextWindow: w.contextWindow,
		Counts:        w.counts,
	}
	if w.session != nil {
		snap.Session = &SessionState{
			Query:   w.session.query,
			Matches: w.session.Matches(),
			Cursor:  w.session.cursor,
		}
	}
	return snap
}

// Restore rebuilds a workflow from a snapshot
func Restore(snap Snapshot) (*Workflow, error) {
	if _, ok := stateNames[snap.State]; !ok {
		return nil, fmt.Errorf("invalid snapshot: unknown state %d", int(snap.State))
	}

	w := &Workflow{
		state:         snap.State,
		text:          snap.Text,
		interactive:   snap.Interactive,
		contextWindow: snap.ContextWindow,
		counts:        snap.Counts,
	}

	if snap.Session != nil {
		s, err := restoreSession(*snap.Session, utf8.RuneCountInString(snap.Text))
		if err != nil {
			return nil, err
		}
		w.session = &s
	}
	return w, nil
}

func restoreSession(state SessionState, textLen int) (Session, error) {
	if state.Query == "" {
		return Session{}, fmt.Errorf("invalid snapshot: %w", ErrEmptyQuery)
	}

	prev := -1
	for _, m := range state.Matches {
		if m <= prev || m >= textLen {
			return Session{}, fmt.Errorf("invalid snapshot: match offset %d out of order or range", m)
		}
		prev = m
	}
	if len(state.Matches) > 0 && (state.Cursor < 0 || state.Cursor >= len(state.Matches)) {
		return Session{}, fmt.Errorf("invalid snapshot: cursor %d out of range", state.Cursor)
	}

	matches := make([]int, len(state.Matches))
	copy(matches, state.Matches)
	return Session{
		query:   state.Query,
		qlen:    utf8.RuneCountInString(state.Query),
		matches: matches,
		cursor:  state.Cursor,
	}, nil
}
