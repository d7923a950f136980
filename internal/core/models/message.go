package models

import (
	"encoding/json"
	"time"
)

// MessageType discriminates the JSONL entry variants
type MessageType string

const (
	MessageTypeUser                MessageType = "user"
	MessageTypeAssistant           MessageType = "assistant"
	MessageTypeSystem              MessageType = "system"
	MessageTypeSummary             MessageType = "summary"
	MessageTypeCustomTitle         MessageType = "custom-title"
	MessageTypeFileHistorySnapshot MessageType = "file-history-snapshot"
	MessageTypeQueueOperation      MessageType = "queue-operation"
	MessageTypeSubagent            MessageType = "subagent"
)

// Message represents a single entry in a transcript JSONL file.
// Unknown types are preserved as-is so generic field checks (e.g.
// "has a timestamp") still work on them.
type Message struct {
	Type      MessageType
	SessionID string
	Timestamp time.Time // zero when absent or unparseable
	GitBranch string
	CWD       string

	// user/assistant payload: content is either a plain string or
	// an ordered list of content blocks. Exactly one of Text/Blocks
	// is populated.
	Text   string
	Blocks []ContentBlock
	Model  string      // assistant only
	Usage  *TokenUsage // assistant only

	Summary      string // summary entries
	Title        string // custom-title entries
	QueueContent string // queue-operation entries
}

// HasTimestamp reports whether the entry carried a parseable timestamp.
func (m *Message) HasTimestamp() bool {
	return !m.Timestamp.IsZero()
}

// DateKey returns the message's UTC calendar date as YYYY-MM-DD,
// or "" when no timestamp is present.
func (m *Message) DateKey() string {
	if m.Timestamp.IsZero() {
		return ""
	}
	return m.Timestamp.UTC().Format("2006-01-02")
}

// ContentBlock is one element of a block-form message content
type ContentBlock struct {
	Type     string          `json:"type"` // "text", "thinking", "tool_use", "tool_result"
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    map[string]any  `json:"input,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"` // tool_result payload: string or text blocks
}

// TokenUsage tracks API token usage on assistant messages
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens"`
	CacheReadTokens     int `json:"cache_read_input_tokens"`
}

// ToolUse is a tool invocation extracted from an assistant message
type ToolUse struct {
	Name  string
	Input map[string]any
}
