package router

import (
	"encoding/json"

	"github.com/pkg/errors"

	"strategic-advisor/internal/session"
)

// Kind classifies a decoded stream event
type Kind int

const (
	// KindTrace is intermediate agent activity routed to the trace log.
	KindTrace Kind = iota
	// KindFinalAnswer comes from a supervisor stage and replaces the turn content.
	KindFinalAnswer
)

func (k Kind) String() string {
	switch k {
	case KindFinalAnswer:
		return "final_answer"
	case KindTrace:
		return "trace"
	}
	return "unknown"
}

// BackendNode labels traces synthesized from backend error payloads
const BackendNode = "backend"

// Event is one decoded payload
type Event struct {
	Kind         Kind
	Trace        session.TraceEvent
	HasToolCalls bool
}

// Text returns the displayable text of the event content
func (e Event) Text() string {
	return e.Trace.Content.PlainText()
}

// payload is the wire form: {node, type, content, has_tool_calls?, tool_calls?}
// or {error} when the backend failed while streaming.
type payload struct {
	Node         string             `json:"node"`
	Type         string             `json:"type"`
	Content      session.Content    `json:"content"`
	HasToolCalls bool               `json:"has_tool_calls"`
	ToolCalls    []session.ToolCall `json:"tool_calls"`
	Error        *string            `json:"error"`
}

// Labels is the set of node labels whose events carry the final answer
type Labels map[string]struct{}

// NewLabels builds a label set
func NewLabels(nodes ...string) Labels {
	l := make(Labels, len(nodes))
	for _, n := range nodes {
		l[n] = struct{}{}
	}
	return l
}

// Has reports whether node is a supervisor label
func (l Labels) Has(node string) bool {
	_, ok := l[node]
	return ok
}

// Decode parses one payload and classifies it.
func Decode(data []byte, supervisors Labels) (Event, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, errors.Wrap(err, "malformed payload")
	}

	if p.Error != nil && p.Node == "" {
		return Event{
			Kind: KindTrace,
			Trace: session.TraceEvent{
				Node:    BackendNode,
				Type:    "error",
				Content: session.Content{Text: *p.Error},
			},
		}, nil
	}

	ev := Event{
		Kind: KindTrace,
		Trace: session.TraceEvent{
			Node:      p.Node,
			Type:      p.Type,
			Content:   p.Content,
			ToolCalls: p.ToolCalls,
		},
		HasToolCalls: p.HasToolCalls || len(p.ToolCalls) > 0,
	}
	if supervisors.Has(p.Node) {
		ev.Kind = KindFinalAnswer
	}
	return ev, nil
}
