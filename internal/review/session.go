package review

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultContextWindow is how many code points Current shows on each side
const DefaultContextWindow = 50

// ErrEmptyQuery is returned by Search for an empty query
var ErrEmptyQuery = errors.New("empty query")

// Direction selects which way Navigate moves the cursor
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// ParseDirection accepts forward/next and backward/prev
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "next", "":
		return Forward, nil
	case "backward", "prev", "previous":
		return Backward, nil
	default:
		return Forward, fmt.Errorf("unknown direction: %s", s)
	}
}

// Session is the result of a search over one text buffer: match offsets in
// code points, ascending, plus a cursor into them.
//
// Offsets are only meaningful for the exact text they were computed on.
// DeleteCurrent keeps them in step with its own edit; any other change to the
// text leaves the session stale and the caller must Search again. A stale
// session never panics but its results are meaningless.
type Session struct {
	query   string
	qlen    int
	matches []int
	cursor  int
}

// Search finds every offset at which query occurs in text. Every offset is
// tried, so overlapping occurrences are all reported. No matches is a valid,
// empty session.
func Search(text, query string) (Session, error) {
	if query == "" {
		return Session{}, ErrEmptyQuery
	}

	t := []rune(text)
	q := []rune(query)
	matches := make([]int, 0)

	for i := 0; i+len(q) <= len(t); i++ {
		if runesEqual(t[i:i+len(q)], q) {
			matches = append(matches, i)
		}
	}

	return Session{query: query, qlen: len(q), matches: matches}, nil
}

func runesEqual(a, b []rune) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Query returns the searched string
func (s Session) Query() string { return s.query }

// Matches returns a copy of the match offsets
func (s Session) Matches() []int {
	out := make([]int, len(s.matches))
	copy(out, s.matches)
	return out
}

// Cursor returns the index of the current match
func (s Session) Cursor() int { return s.cursor }

// Len returns the number of remaining matches
func (s Session) Len() int { return len(s.matches) }

// Exhausted reports whether no matches remain
func (s Session) Exhausted() bool { return len(s.matches) == 0 }

// Navigate moves the cursor one match in dir, wrapping at both ends
func (s *Session) Navigate(dir Direction) {
	n := len(s.matches)
	if n == 0 {
		return
	}
	switch dir {
	case Backward:
		s.cursor = (s.cursor - 1 + n) % n
	default:
		s.cursor = (s.cursor + 1) % n
	}
}

// Context describes the current match for a reviewer
type Context struct {
	Offset  int    `json:"offset"`
	Ordinal int    `json:"ordinal"`
	Total   int    `json:"total"`
	Before  string `json:"before"`
	Match   string `json:"match"`
	After   string `json:"after"`
}

// Current returns the current match with DefaultContextWindow code points of
// surrounding text on each side. ok is false when no matches remain.
func (s Session) Current(text string) (Context, bool) {
	return s.ContextAround(text, DefaultContextWindow)
}

// ContextAround is Current with a caller-chosen window size
func (s Session) ContextAround(text string, window int) (Context, bool) {
	if len(s.matches) == 0 {
		return Context{}, false
	}

	t := []rune(text)
	offset := s.matches[s.cursor]
	start := clamp(offset, 0, len(t))
	end := clamp(offset+s.qlen, start, len(t))

	return Context{
		Offset:  offset,
		Ordinal: s.cursor + 1,
		Total:   len(s.matches),
		Before:  string(t[clamp(start-window, 0, start):start]),
		Match:   string(t[start:end]),
		After:   string(t[end:clamp(end+window, end, len(t))]),
	}, true
}

// DeleteCurrent removes the query-length run of code points at the current
// match and returns the new text with a session adjusted to it. The deleted
// entry is dropped and every later offset shifts left by the query length.
// Matches that overlapped the deleted run no longer exist and are dropped as
// well. When the last entry goes, the cursor clamps to the new last index.
func (s Session) DeleteCurrent(text string) (string, Session) {
	if len(s.matches) == 0 {
		return text, s
	}

	t := []rune(text)
	offset := s.matches[s.cursor]
	if offset < 0 || offset >= len(t) {
		return text, s
	}
	end := min(offset+s.qlen, len(t))

	var b strings.Builder
	b.WriteString(string(t[:offset]))
	b.WriteString(string(t[end:]))

	next := Session{query: s.query, qlen: s.qlen, matches: make([]int, 0, len(s.matches)-1)}
	for i, m := range s.matches {
		switch {
		case i == s.cursor:
			continue
		case m+s.qlen <= offset:
			next.matches = append(next.matches, m)
		case m >= end:
			next.matches = append(next.matches, m-(end-offset))
		default:
			// overlapped the deleted run
			continue
		}
		if i < s.cursor {
			next.cursor++
		}
	}

	if next.cursor >= len(next.matches) {
		next.cursor = max(len(next.matches)-1, 0)
	}

	return b.String(), next
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
