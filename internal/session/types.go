package session

import (
	"bytes"
	"encoding/json"
	"time"
)

// Role identifies who authored a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system" // error channel
)

// State tracks the streaming lifecycle of a turn
type State string

const (
	StatePending   State = "pending"
	StateStreaming State = "streaming"
	StateComplete  State = "complete"
)

// Turn represents a single message in a conversation
type Turn struct {
	ID        string       `json:"id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Traces    []TraceEvent `json:"traces,omitempty"` // assistant turns only
	State     State        `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

// TraceEvent is one unit of intermediate agent activity attached to an
// assistant turn.
type TraceEvent struct {
	Node      string     `json:"node"`
	Type      string     `json:"type"`
	Content   Content    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Equal reports whether two trace events serialize identically.
func (t TraceEvent) Equal(other TraceEvent) bool {
	a, errA := json.Marshal(t)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// ToolCall is a tool invocation requested by an agent stage
type ToolCall struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
}

// ContentBlock is one typed element of a structured content array.
// Only "text" blocks carry displayable text; the rest is kept verbatim.
type ContentBlock struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw block so unknown fields survive a round trip.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	b.Type = head.Type
	b.Text = head.Text
	b.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the raw block back when it is known.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	if len(b.Raw) > 0 {
		return b.Raw, nil
	}
	type plain ContentBlock
	return json.Marshal(plain(b))
}

// Content is either plain text or an ordered list of content blocks.
type Content struct {
	Text   string
	Blocks []ContentBlock
}

// IsBlocks reports whether the content arrived as a block array.
func (c Content) IsBlocks() bool {
	return c.Blocks != nil
}

// PlainText concatenates the content: the string itself, or the text of
// every "text" block in order.
func (c Content) PlainText() string {
	if !c.IsBlocks() {
		return c.Text
	}
	var buf bytes.Buffer
	for _, b := range c.Blocks {
		if b.Type == "text" {
			buf.WriteString(b.Text)
		}
	}
	return buf.String()
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '[':
		var blocks []ContentBlock
		if err := json.Unmarshal(data, &blocks); err != nil {
			return err
		}
		if blocks == nil {
			blocks = []ContentBlock{}
		}
		*c = Content{Blocks: blocks}
		return nil
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsBlocks() {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// Record is the persisted form of a session
type Record struct {
	ThreadID  string    `json:"thread_id"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Turns     []Turn    `json:"turns"`
}

// History represents all stored sessions
type History struct {
	Sessions []Record `json:"sessions"`
}
