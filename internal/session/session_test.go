package session

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func streamingSession(t *testing.T) *Session {
	t.Helper()
	s := New()
	_, err := s.Submit("How is Amazon doing?")
	require.NoError(t, err)
	_, err = s.BeginAssistant()
	require.NoError(t, err)
	return s
}

func TestNew_ThreadID(t *testing.T) {
	s := New()
	require.True(t, strings.HasPrefix(s.ThreadID(), "session_"))
	require.NotEqual(t, s.ThreadID(), New().ThreadID())
	require.False(t, s.InProgress())
	require.Empty(t, s.Turns())
}

func TestSubmit_LifecycleStates(t *testing.T) {
	s := New()
	thread := s.ThreadID()

	user, err := s.Submit("hello")
	require.NoError(t, err)
	require.Equal(t, RoleUser, user.Role)
	require.True(t, s.InProgress())
	require.Empty(t, s.ActiveID())

	asst, err := s.BeginAssistant()
	require.NoError(t, err)
	require.Equal(t, RoleAssistant, asst.Role)
	require.Equal(t, StateStreaming, asst.State)
	require.Empty(t, asst.Content)
	require.Empty(t, asst.Traces)
	require.Equal(t, asst.ID, s.ActiveID())

	s.Complete()
	require.False(t, s.InProgress())
	got, ok := s.Turn(asst.ID)
	require.True(t, ok)
	require.Equal(t, StateComplete, got.State)
	require.Equal(t, thread, s.ThreadID())
}

func TestSubmit_RejectedWhileInProgress(t *testing.T) {
	s := streamingSession(t)
	before := len(s.Turns())

	_, err := s.Submit("second")
	require.ErrorIs(t, err, ErrTurnInProgress)
	require.Len(t, s.Turns(), before)
}

func TestSubmit_RejectedWhilePending(t *testing.T) {
	s := New()
	_, err := s.Submit("first")
	require.NoError(t, err)

	_, err = s.Submit("second")
	require.ErrorIs(t, err, ErrTurnInProgress)
	require.Len(t, s.Turns(), 1)
}

func TestSubmit_EmptyMessage(t *testing.T) {
	s := New()
	_, err := s.Submit("   \n")
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.False(t, s.InProgress())
	require.Empty(t, s.Turns())
}

func TestBeginAssistant_RequiresPendingSubmission(t *testing.T) {
	s := New()
	_, err := s.BeginAssistant()
	require.ErrorIs(t, err, ErrNotPending)
}

func TestReplaceContent(t *testing.T) {
	s := streamingSession(t)

	require.NoError(t, s.ReplaceContent("draft"))
	require.NoError(t, s.ReplaceContent("final"))

	got, _ := s.Turn(s.ActiveID())
	require.Equal(t, "final", got.Content)
}

func TestActiveTurnOps_NoActiveTurn(t *testing.T) {
	s := New()
	require.ErrorIs(t, s.ReplaceContent("x"), ErrNoActiveTurn)
	_, err := s.AppendTrace(TraceEvent{Node: "Critic"})
	require.ErrorIs(t, err, ErrNoActiveTurn)
}

func TestAppendTrace_DeduplicatesConsecutive(t *testing.T) {
	s := streamingSession(t)
	ev := TraceEvent{Node: "ClientIntel", Type: "ai", Content: Content{Text: "looking up"}}

	for i := 0; i < 3; i++ {
		_, err := s.AppendTrace(ev)
		require.NoError(t, err)
	}
	other := TraceEvent{Node: "Critic", Type: "ai", Content: Content{Text: "ok"}}
	added, err := s.AppendTrace(other)
	require.NoError(t, err)
	require.True(t, added)

	added, err = s.AppendTrace(ev)
	require.NoError(t, err)
	require.True(t, added, "only the most recent trace is compared")

	got, _ := s.Turn(s.ActiveID())
	require.Len(t, got.Traces, 3)
	for i := 1; i < len(got.Traces); i++ {
		require.False(t, got.Traces[i-1].Equal(got.Traces[i]))
	}
}

func TestAppendTrace_StructuralEquality(t *testing.T) {
	s := streamingSession(t)
	a := TraceEvent{
		Node:      "tools",
		Type:      "tool",
		Content:   Content{Text: "x"},
		ToolCalls: []ToolCall{{ToolName: "get_client", Args: map[string]any{"name": "Amazon", "year": 2024}}},
	}
	b := TraceEvent{
		Node:      "tools",
		Type:      "tool",
		Content:   Content{Text: "x"},
		ToolCalls: []ToolCall{{ToolName: "get_client", Args: map[string]any{"year": 2024, "name": "Amazon"}}},
	}

	added, err := s.AppendTrace(a)
	require.NoError(t, err)
	require.True(t, added)
	added, err = s.AppendTrace(b)
	require.NoError(t, err)
	require.False(t, added)
}

func TestFail_AppendsSystemTurn(t *testing.T) {
	s := streamingSession(t)
	s.Fail("Error: backend down")
	s.Complete()

	turns := s.Turns()
	require.Len(t, turns, 3)
	require.Equal(t, RoleSystem, turns[2].Role)
	require.Equal(t, "Error: backend down", turns[2].Content)
	require.Equal(t, StateComplete, turns[1].State)
	require.False(t, s.InProgress())
}

func TestComplete_Idempotent(t *testing.T) {
	s := New()
	s.Complete()
	require.False(t, s.InProgress())
}

func TestReset(t *testing.T) {
	s := streamingSession(t)
	require.ErrorIs(t, s.Reset(), ErrTurnInProgress)

	s.Complete()
	old := s.ThreadID()
	require.NoError(t, s.Reset())
	require.Empty(t, s.Turns())
	require.NotEqual(t, old, s.ThreadID())
}

func TestTurns_ReturnsCopies(t *testing.T) {
	s := streamingSession(t)
	_, err := s.AppendTrace(TraceEvent{Node: "Critic"})
	require.NoError(t, err)

	turns := s.Turns()
	turns[1].Content = "mutated"
	turns[1].Traces[0].Node = "mutated"

	got, _ := s.Turn(s.ActiveID())
	require.Empty(t, got.Content)
	require.Equal(t, "Critic", got.Traces[0].Node)
}

func TestContent_JSON(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`"plain"`), &c))
	require.False(t, c.IsBlocks())
	require.Equal(t, "plain", c.PlainText())

	require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"A"},{"type":"tool_use","name":"x"},{"type":"text","text":"B"}]`), &c))
	require.True(t, c.IsBlocks())
	require.Equal(t, "AB", c.PlainText())

	out, err := json.Marshal(c)
	require.NoError(t, err)
	require.JSONEq(t, `[{"type":"text","text":"A"},{"type":"tool_use","name":"x"},{"type":"text","text":"B"}]`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`[]`), &c))
	require.True(t, c.IsBlocks())
	require.Empty(t, c.PlainText())

	require.Error(t, json.Unmarshal([]byte(`{"oops":1}`), &c))
}
