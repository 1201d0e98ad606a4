package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"strategic-advisor/internal/advisor"
	"strategic-advisor/internal/config"
	"strategic-advisor/internal/replay"
	"strategic-advisor/internal/session"
)

type fakeStreamer struct {
	calls     int
	endpoints []string
	requests  []advisor.ChatRequest
	open      func() (*advisor.EventStream, error)
}

func (f *fakeStreamer) Open(_ context.Context, endpoint string, req advisor.ChatRequest) (*advisor.EventStream, error) {
	f.calls++
	f.endpoints = append(f.endpoints, endpoint)
	f.requests = append(f.requests, req)
	return f.open()
}

func bodyStream(body string) func() (*advisor.EventStream, error) {
	return func() (*advisor.EventStream, error) {
		return advisor.NewEventStream(strings.NewReader(body)), nil
	}
}

// brokenBody returns data once, then fails like a dropped connection.
type brokenBody struct {
	data string
	done bool
}

func (b *brokenBody) Read(p []byte) (int, error) {
	if !b.done {
		b.done = true
		return copy(p, b.data), nil
	}
	return 0, errors.New("unexpected EOF from peer")
}

type events struct {
	started   []session.Turn
	completed []session.Turn
	system    []session.Turn
	contents  []string
	traces    []session.TraceEvent
}

func (e *events) ContentReplaced(_ string, c string) {
	e.contents = append(e.contents, c)
}

func (e *events) TraceAppended(_ string, tr session.TraceEvent) {
	e.traces = append(e.traces, tr)
}

func (e *events) TurnStarted(t session.Turn) {
	e.started = append(e.started, t)
}

func (e *events) TurnCompleted(t session.Turn) {
	e.completed = append(e.completed, t)
}

func (e *events) SystemMessage(t session.Turn) {
	e.system = append(e.system, t)
}

type memSaver struct {
	records []session.Record
}

func (m *memSaver) Put(rec session.Record) error {
	m.records = append(m.records, rec)
	return nil
}

func newController(t *testing.T, s Streamer) (*Controller, *events, *memSaver) {
	t.Helper()
	ev := &events{}
	saver := &memSaver{}
	c, err := NewController(Options{
		Config:   config.NewConfig(),
		Streamer: s,
		Saver:    saver,
		Observer: ev,
	})
	require.NoError(t, err)
	return c, ev, saver
}

func TestNewController_Validates(t *testing.T) {
	_, err := NewController(Options{})
	require.ErrorContains(t, err, "config is nil")
	_, err = NewController(Options{Config: config.NewConfig()})
	require.ErrorContains(t, err, "streamer is nil")
}

func TestSubmit_StreamsIntoAssistantTurn(t *testing.T) {
	fs := &fakeStreamer{open: bodyStream(
		"data: {\"node\":\"ClientIntel\",\"type\":\"ai\",\"content\":\"fetching\"}\n\n" +
			"data: {\"node\":\"Supervisor\",\"type\":\"ai\",\"content\":\"Risk is low.\"}\n\n" +
			"data: [DONE]\n\n" +
			"data: {\"node\":\"Supervisor\",\"type\":\"ai\",\"content\":\"ignored\"}\n\n")}
	c, ev, saver := newController(t, fs)

	require.NoError(t, c.Submit(context.Background(), "How risky is Amazon?"))

	turns := c.Session().Turns()
	require.Len(t, turns, 2)
	require.Equal(t, session.RoleUser, turns[0].Role)
	require.Equal(t, "How risky is Amazon?", turns[0].Content)
	require.Equal(t, session.RoleAssistant, turns[1].Role)
	require.Equal(t, "Risk is low.", turns[1].Content)
	require.Equal(t, session.StateComplete, turns[1].State)
	require.Len(t, turns[1].Traces, 1)

	require.False(t, c.Busy())
	require.Len(t, ev.started, 1)
	require.Len(t, ev.completed, 1)
	require.Empty(t, ev.system)
	require.Len(t, saver.records, 1)
	require.Equal(t, c.Session().ThreadID(), saver.records[0].ThreadID)

	require.Equal(t, []advisor.ChatRequest{{Message: "How risky is Amazon?", ThreadID: c.Session().ThreadID()}}, fs.requests)
}

func TestSubmit_ThreadIDReusedAcrossTurns(t *testing.T) {
	fs := &fakeStreamer{open: bodyStream("data: [DONE]\n\n")}
	c, _, _ := newController(t, fs)

	require.NoError(t, c.Submit(context.Background(), "one"))
	require.NoError(t, c.Submit(context.Background(), "two"))

	require.Len(t, fs.requests, 2)
	require.Equal(t, fs.requests[0].ThreadID, fs.requests[1].ThreadID)
	require.Len(t, c.Session().Turns(), 4)
}

func TestSubmit_RejectedWhileStreaming(t *testing.T) {
	var c *Controller
	var nestedErr error
	fs := &fakeStreamer{}
	fs.open = func() (*advisor.EventStream, error) {
		if fs.calls == 1 {
			nestedErr = c.Submit(context.Background(), "impatient")
		}
		return advisor.NewEventStream(strings.NewReader("data: [DONE]\n\n")), nil
	}
	c, _, _ = newController(t, fs)

	require.NoError(t, c.Submit(context.Background(), "first"))
	require.ErrorIs(t, nestedErr, session.ErrTurnInProgress)
	require.Equal(t, 1, fs.calls, "rejected submissions issue no request")
	require.Len(t, c.Session().Turns(), 2)
}

func TestSubmit_EmptyMessageIssuesNoRequest(t *testing.T) {
	fs := &fakeStreamer{open: bodyStream("data: [DONE]\n\n")}
	c, _, saver := newController(t, fs)

	require.ErrorIs(t, c.Submit(context.Background(), "  "), session.ErrEmptyMessage)
	require.Zero(t, fs.calls)
	require.Empty(t, saver.records)
}

func TestSubmit_OpenFailureAddsSystemTurn(t *testing.T) {
	fs := &fakeStreamer{open: func() (*advisor.EventStream, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	c, ev, _ := newController(t, fs)

	require.NoError(t, c.Submit(context.Background(), "hello"))

	turns := c.Session().Turns()
	require.Len(t, turns, 2)
	require.Equal(t, session.RoleSystem, turns[1].Role)
	require.Equal(t, ErrorMessage, turns[1].Content)
	require.False(t, c.Busy())
	require.Len(t, ev.system, 1)
	require.Empty(t, ev.started)
}

func TestSubmit_MidStreamFailure(t *testing.T) {
	fs := &fakeStreamer{open: func() (*advisor.EventStream, error) {
		return advisor.NewEventStream(&brokenBody{
			data: "data: {\"node\":\"Supervisor\",\"type\":\"ai\",\"content\":\"partial\"}\n\n",
		}), nil
	}}
	c, ev, _ := newController(t, fs)

	require.NoError(t, c.Submit(context.Background(), "hello"))

	turns := c.Session().Turns()
	require.Len(t, turns, 3)
	require.Equal(t, "partial", turns[1].Content)
	require.Equal(t, session.StateComplete, turns[1].State)

	var system []session.Turn
	for _, tr := range turns {
		if tr.Role == session.RoleSystem {
			system = append(system, tr)
		}
	}
	require.Len(t, system, 1)
	require.Equal(t, ErrorMessage, system[0].Content)
	require.Len(t, ev.completed, 1)

	// input is accepted again
	fs.open = bodyStream("data: [DONE]\n\n")
	require.NoError(t, c.Submit(context.Background(), "retry"))
	require.Len(t, c.Session().Turns(), 5)
}

func TestSubmit_MalformedFrameDoesNotAbort(t *testing.T) {
	fs := &fakeStreamer{open: bodyStream(
		"data: {\"node\":\"Critic\",\"type\":\"ai\",\"content\":\"first\"}\n\n" +
			"data: {broken\n\n" +
			"data: {\"node\":\"Supervisor\",\"type\":\"ai\",\"content\":\"answer\"}\n\n" +
			"data: [DONE]\n\n")}
	c, _, _ := newController(t, fs)

	require.NoError(t, c.Submit(context.Background(), "q"))

	turns := c.Session().Turns()
	require.Len(t, turns, 2)
	require.Equal(t, "answer", turns[1].Content)
	require.Len(t, turns[1].Traces, 1)
}

func TestEndpointSelection(t *testing.T) {
	fs := &fakeStreamer{open: bodyStream("data: [DONE]\n\n")}
	c, _, _ := newController(t, fs)
	cfg := config.NewConfig()

	require.NoError(t, c.Submit(context.Background(), "a"))
	c.SetMode(config.ModeExecutive)
	require.NoError(t, c.Submit(context.Background(), "b"))
	c.SetMock(true)
	require.NoError(t, c.Submit(context.Background(), "c"))

	require.Equal(t, []string{cfg.AdvisorURL, cfg.ExecutiveURL, cfg.MockURL}, fs.endpoints)
	mode, mock := c.Mode()
	require.Equal(t, config.ModeExecutive, mode)
	require.True(t, mock)
}

func TestReset(t *testing.T) {
	fs := &fakeStreamer{open: bodyStream("data: [DONE]\n\n")}
	c, _, _ := newController(t, fs)
	require.NoError(t, c.Submit(context.Background(), "a"))
	old := c.Session().ThreadID()

	require.NoError(t, c.Reset())
	require.Empty(t, c.Session().Turns())
	require.NotEqual(t, old, c.Session().ThreadID())
}

func TestSubmit_AgainstReplayServer(t *testing.T) {
	trace, err := replay.LoadFile(filepath.Join("..", "replay", "testdata", "golden_trace.json"))
	require.NoError(t, err)
	srv := httptest.NewServer(replay.NewMux(replay.NewHandler(trace.Payloads(), 0, zerolog.Nop())))
	defer srv.Close()

	cfg := config.NewConfig()
	cfg.MockURL = srv.URL + "/api/mock-chat-golden"
	cfg.Mock = true

	store := session.NewStore(filepath.Join(t.TempDir(), "history.json"), 3)
	require.NoError(t, store.Load())

	c, err := NewController(Options{
		Config:   cfg,
		Streamer: advisor.NewClient(0),
		Saver:    store,
	})
	require.NoError(t, err)

	require.NoError(t, c.Submit(context.Background(), "Analyze the churn risk for Amazon"))

	turns := c.Session().Turns()
	require.Len(t, turns, 2)
	answer := turns[1]
	require.Equal(t, "## Amazon churn risk\n\nRisk is **low**. Renewal is due 2025-03.", answer.Content)

	nodes := make([]string, 0, len(answer.Traces))
	for _, tr := range answer.Traces {
		nodes = append(nodes, tr.Node)
	}
	require.Equal(t, []string{"model", "tools", "Critic", "model"}, nodes)

	rec, ok := store.Get(c.Session().ThreadID())
	require.True(t, ok)
	require.Len(t, rec.Turns, 2)
}

func TestSubmit_BackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := config.NewConfig()
	cfg.AdvisorURL = srv.URL
	c, err := NewController(Options{Config: cfg, Streamer: advisor.NewClient(0)})
	require.NoError(t, err)

	require.NoError(t, c.Submit(context.Background(), "hi"))
	turns := c.Session().Turns()
	require.Len(t, turns, 2)
	require.Equal(t, session.RoleSystem, turns[1].Role)
}
