// Package normalizer rewrites chat conversations so that, after an optional
// leading system turn, roles strictly alternate user/assistant and the
// conversation ends on a user turn.
//
// Normalize is a pure function: it never mutates its input and keeps no state
// between calls, so it is safe for concurrent use.
package normalizer

import (
	"fmt"
	"strings"
)

const (
	// StartContent opens a conversation whose first conversational turn is
	// an assistant turn.
	StartContent = "[Start the conversation]"
	// ContinueContent closes a conversation that does not end on a user turn.
	ContinueContent = "[Continue]"
	// MergeSeparator joins the contents of adjacent same-role turns.
	MergeSeparator = "\n\n"
)

// Turn is one message of a conversation.
//
// Raw holds the JSON object the turn was decoded from, if any. The normalizer
// does not look inside it; it only decides which original turn's Raw
// survives a merge (always the first one of the run).
type Turn struct {
	Role    Role
	Content string
	Raw     []byte
}

// Stats describes what a single normalization run did.
type Stats struct {
	InputTurns  int
	OutputTurns int
	Merged      int
	Demoted     int
	Bridged     int
}

// Changed reports whether the output differs structurally from the input.
func (s Stats) Changed() bool {
	return s.Merged > 0 || s.Demoted > 0 || s.Bridged > 0
}

// Normalize returns a new conversation satisfying the alternation contract.
func Normalize(turns []Turn) []Turn {
	out, _ := NormalizeWithStats(turns)
	return out
}

// NormalizeWithStats is Normalize plus counters describing the run.
func NormalizeWithStats(turns []Turn) ([]Turn, Stats) {
	s := newState(len(turns))
	for i := range turns {
		s.push(turns[i])
	}
	s.flush()
	if s.lastRole != User {
		s.bridge(ContinueContent)
	}
	s.stats.OutputTurns = len(s.out)
	return s.out, s.stats
}

// Validate reports the first turn whose role is not understood.
func Validate(turns []Turn) error {
	for i := range turns {
		if !turns[i].Role.Valid() {
			return fmt.Errorf("turn %d: %w: %q", i, ErrUnknownRole, string(turns[i].Role))
		}
	}
	return nil
}

// state is the single-pass machine behind NormalizeWithStats. The buffer is
// either empty or holds turns that will be emitted under pending.
type state struct {
	out           []Turn
	buf           []Turn
	pending       Role
	lastRole      Role
	seenSystem    bool
	seenNonSystem bool
	stats         Stats
}

func newState(n int) *state {
	return &state{
		out:      make([]Turn, 0, n+2),
		lastRole: System,
		stats:    Stats{InputTurns: n},
	}
}

func (s *state) push(t Turn) {
	role := t.Role
	if role == System && (s.seenSystem || s.seenNonSystem) {
		role = User
		s.stats.Demoted++
	}
	if role != s.lastRole {
		s.flush()
	}
	if !s.seenNonSystem && role == Assistant {
		s.bridge(StartContent)
		s.lastRole = User
	}
	s.buf = append(s.buf, t)
	s.pending = role
	s.lastRole = role
	if role == System {
		s.seenSystem = true
	} else {
		s.seenNonSystem = true
	}
}

func (s *state) flush() {
	switch len(s.buf) {
	case 0:
		return
	case 1:
		t := s.buf[0]
		t.Role = s.pending
		s.out = append(s.out, t)
	default:
		merged := s.buf[0]
		merged.Role = s.pending
		merged.Content = joinContents(s.buf)
		s.out = append(s.out, merged)
		s.stats.Merged += len(s.buf) - 1
	}
	if s.pending == System {
		s.seenSystem = true
	}
	s.buf = s.buf[:0]
}

func (s *state) bridge(content string) {
	s.out = append(s.out, Turn{Role: User, Content: content})
	s.stats.Bridged++
}

func joinContents(turns []Turn) string {
	var sb strings.Builder
	for i := range turns {
		if i > 0 {
			sb.WriteString(MergeSeparator)
		}
		sb.WriteString(turns[i].Content)
	}
	return sb.String()
}
