package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrTurnInProgress = errors.New("a turn is already in progress")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrNoActiveTurn   = errors.New("no active assistant turn")
	ErrNotPending     = errors.New("no submitted turn is waiting for a response")
)

// Session holds the ordered turns of one conversation and the thread id
// sent with every request.
//
// A Session is owned by a single execution context and is not safe for
// concurrent use.
type Session struct {
	threadID  string
	startedAt time.Time
	updatedAt time.Time
	turns     []Turn
	index     map[string]int

	// activeID is the turn currently in progress; empty when idle.
	activeID string
	pending  bool

	now func() time.Time
}

// New starts a session with a fresh thread id
func New() *Session {
	s := &Session{now: time.Now}
	s.start()
	return s
}

func (s *Session) start() {
	now := s.now()
	s.threadID = NewThreadID()
	s.startedAt = now
	s.updatedAt = now
	s.turns = []Turn{}
	s.index = map[string]int{}
	s.activeID = ""
	s.pending = false
}

// NewThreadID returns a session-continuity token
func NewThreadID() string {
	return "session_" + uuid.New().String()
}

// ThreadID returns the identifier sent with every request of this session
func (s *Session) ThreadID() string {
	return s.threadID
}

// InProgress reports whether a submitted turn has not completed yet
func (s *Session) InProgress() bool {
	return s.pending || s.activeID != ""
}

// Turns returns a copy of the conversation so far
func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = t
		out[i].Traces = append([]TraceEvent(nil), t.Traces...)
	}
	return out
}

// Turn looks up a turn by id
func (s *Session) Turn(id string) (Turn, bool) {
	i, ok := s.index[id]
	if !ok {
		return Turn{}, false
	}
	t := s.turns[i]
	t.Traces = append([]TraceEvent(nil), t.Traces...)
	return t, true
}

// ActiveID returns the id of the streaming assistant turn, or "".
func (s *Session) ActiveID() string {
	return s.activeID
}

// Submit appends a user turn. It is rejected while another turn is in progress.
func (s *Session) Submit(text string) (Turn, error) {
	if s.InProgress() {
		return Turn{}, ErrTurnInProgress
	}
	if strings.TrimSpace(text) == "" {
		return Turn{}, ErrEmptyMessage
	}

	t := s.append(RoleUser, text, StateComplete)
	s.pending = true
	return t, nil
}

// BeginAssistant creates the empty assistant turn that streamed events
// fold into and makes it the active turn.
func (s *Session) BeginAssistant() (Turn, error) {
	if !s.pending {
		return Turn{}, ErrNotPending
	}
	t := s.append(RoleAssistant, "", StateStreaming)
	s.turns[s.index[t.ID]].Traces = []TraceEvent{}
	s.pending = false
	s.activeID = t.ID
	turn, _ := s.Turn(t.ID)
	return turn, nil
}

// ReplaceContent overwrites the content of the active turn
func (s *Session) ReplaceContent(text string) error {
	t, err := s.active()
	if err != nil {
		return err
	}
	t.Content = text
	s.touch()
	return nil
}

// AppendTrace adds ev to the active turn unless it equals the most recently
// appended trace. It reports whether ev was appended.
func (s *Session) AppendTrace(ev TraceEvent) (bool, error) {
	t, err := s.active()
	if err != nil {
		return false, err
	}
	if n := len(t.Traces); n > 0 && t.Traces[n-1].Equal(ev) {
		return false, nil
	}
	t.Traces = append(t.Traces, ev)
	s.touch()
	return true, nil
}

// Fail appends a system turn carrying message
func (s *Session) Fail(message string) Turn {
	return s.append(RoleSystem, message, StateComplete)
}

// Complete marks the active turn complete and clears the in-progress state.
// Calling it when idle is a no-op.
func (s *Session) Complete() {
	if t, err := s.active(); err == nil {
		t.State = StateComplete
		s.touch()
	}
	s.activeID = ""
	s.pending = false
}

// Reset drops every turn and starts over with a new thread id
func (s *Session) Reset() error {
	if s.InProgress() {
		return ErrTurnInProgress
	}
	s.start()
	return nil
}

// Record returns the persisted form of the session
func (s *Session) Record() Record {
	return Record{
		ThreadID:  s.threadID,
		StartedAt: s.startedAt,
		UpdatedAt: s.updatedAt,
		Turns:     s.Turns(),
	}
}

func (s *Session) active() (*Turn, error) {
	if s.activeID == "" {
		return nil, ErrNoActiveTurn
	}
	i, ok := s.index[s.activeID]
	if !ok {
		return nil, ErrNoActiveTurn
	}
	return &s.turns[i], nil
}

func (s *Session) append(role Role, content string, state State) Turn {
	t := Turn{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		State:     state,
		CreatedAt: s.now(),
	}
	s.index[t.ID] = len(s.turns)
	s.turns = append(s.turns, t)
	s.touch()
	return t
}

func (s *Session) touch() {
	s.updatedAt = s.now()
}
