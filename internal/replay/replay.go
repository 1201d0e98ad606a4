package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Trace is a captured agent run: one map of node name to output per update.
type Trace []map[string]json.RawMessage

type nodeOutput struct {
	Messages []message `json:"messages"`
}

type message struct {
	Type      string            `json:"type"`
	Content   json.RawMessage   `json:"content"`
	ToolCalls []capturedToolArg `json:"tool_calls"`
}

// capturedToolArg accepts both the capture format {name, args} and the
// wire format {tool_name, args}.
type capturedToolArg struct {
	Name     string         `json:"name"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
}

// Payload is one replayed SSE event
type Payload struct {
	Node         string          `json:"node"`
	Type         string          `json:"type"`
	Content      json.RawMessage `json:"content"`
	HasToolCalls bool            `json:"has_tool_calls"`
	ToolCalls    []ToolCall      `json:"tool_calls,omitempty"`
}

// ToolCall is the wire form of a tool invocation
type ToolCall struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
}

// LoadFile reads a golden trace from path
func LoadFile(path string) (Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open golden trace")
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a golden trace
func Load(r io.Reader) (Trace, error) {
	var t Trace
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, errors.Wrap(err, "failed to parse golden trace")
	}
	return t, nil
}

// Payloads flattens the trace into the events a live backend would stream.
// Node outputs without messages are skipped, as are messages with neither
// content nor tool calls.
func (t Trace) Payloads() []Payload {
	var out []Payload
	for _, update := range t {
		for _, node := range sortedKeys(update) {
			var output nodeOutput
			if err := json.Unmarshal(update[node], &output); err != nil {
				// "None" and other non-message outputs
				continue
			}
			for _, m := range output.Messages {
				calls := make([]ToolCall, 0, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					name := tc.ToolName
					if name == "" {
						name = tc.Name
					}
					calls = append(calls, ToolCall{ToolName: name, Args: tc.Args})
				}
				if isEmptyContent(m.Content) && len(calls) == 0 {
					continue
				}
				content := m.Content
				if len(content) == 0 {
					content = json.RawMessage(`""`)
				}
				typ := m.Type
				if typ == "" {
					typ = "unknown"
				}
				p := Payload{
					Node:         node,
					Type:         typ,
					Content:      content,
					HasToolCalls: len(calls) > 0,
				}
				if len(calls) > 0 {
					p.ToolCalls = calls
				}
				out = append(out, p)
			}
		}
	}
	return out
}

// sortedKeys orders node names within one update; captured updates
// normally carry a single node.
func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isEmptyContent(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", `""`, "[]":
		return true
	}
	return false
}

// Handler streams a fixed list of payloads as server-sent events
type Handler struct {
	payloads []Payload
	delay    time.Duration
	logger   zerolog.Logger
}

// NewHandler creates a handler replaying payloads with delay between frames
func NewHandler(payloads []Payload, delay time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{payloads: payloads, delay: delay, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Message  string `json:"message"`
		ThreadID string `json:"thread_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error().Msg("Streaming unsupported")
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info().Str("thread_id", req.ThreadID).Int("events", len(h.payloads)).Msg("Replaying golden trace")

	for _, p := range h.payloads {
		if h.delay > 0 {
			select {
			case <-r.Context().Done():
				h.logger.Info().Str("thread_id", req.ThreadID).Msg("Client went away")
				return
			case <-time.After(h.delay):
			}
		}

		data, err := json.Marshal(p)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to marshal payload")
			continue
		}
		h.logger.Debug().RawJSON("payload", data).Msg("Mock payload")
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// NewMux serves the mock chat endpoint and a health probe
func NewMux(h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/mock-chat-golden", h)
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"active","system":"strategic-advisor mock"}`)
	})
	return mux
}
