// Package transcript reads line-delimited JSON conversation files
// into typed message records. Parsing is tolerant: a malformed line
// is dropped, never aborting the file; only I/O failures propagate.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/genesiscz/cchistory/internal/core/models"
)

const (
	// headByteLimit bounds the head-read variant used by the session
	// metadata cache. Summary, title, sessionId, cwd and the first
	// user prompt are conventionally emitted early in a transcript.
	headByteLimit = 64 * 1024
	headLineLimit = 50

	// maxLineBytes accommodates transcripts with very long tool
	// results on a single line.
	maxLineBytes = 10 * 1024 * 1024
)

// rawEntry mirrors one JSONL line
type rawEntry struct {
	Type        string          `json:"type"`
	SessionID   string          `json:"sessionId,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
	GitBranch   string          `json:"gitBranch,omitempty"`
	CWD         string          `json:"cwd,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	CustomTitle string          `json:"customTitle,omitempty"`
	Title       string          `json:"title,omitempty"`
	Content     string          `json:"content,omitempty"` // queue-operation payload
	Message     json.RawMessage `json:"message,omitempty"`
}

// rawMessage is the nested message object on user/assistant lines
type rawMessage struct {
	Role    string             `json:"role"`
	Model   string             `json:"model,omitempty"`
	Usage   *models.TokenUsage `json:"usage,omitempty"`
	Content json.RawMessage    `json:"content"`
}

// ParseFile reads every message in a transcript file. The returned
// error wraps models.ErrFileRead for open/read failures.
func ParseFile(path string) ([]models.Message, error) {
	return parse(path, 0, 0)
}

// ParseFileHead reads at most the first 64KB and stops after 50
// successfully parsed lines. Used by the session metadata cache
// where completeness is traded for speed.
func ParseFileHead(path string) ([]models.Message, error) {
	return parse(path, headByteLimit, headLineLimit)
}

func parse(path string, byteLimit int64, lineLimit int) (msgs []models.Message, err error) {
	file, ferr := os.Open(path)
	if ferr != nil {
		return nil, fmt.Errorf("%w: open %s: %v", models.ErrFileRead, path, ferr)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %v", models.ErrFileRead, path, cerr)
		}
	}()

	var reader io.Reader = file
	if byteLimit > 0 {
		reader = io.LimitReader(file, byteLimit)
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(trimCR(line)) == 0 {
			continue
		}

		var raw rawEntry
		if jerr := json.Unmarshal(trimCR(line), &raw); jerr != nil {
			// Malformed line, skip it
			continue
		}

		msgs = append(msgs, buildMessage(&raw))
		if lineLimit > 0 && len(msgs) >= lineLimit {
			return msgs, nil
		}
	}

	if serr := scanner.Err(); serr != nil {
		// A line past the byte limit may be cut mid-token; that is
		// expected for the bounded read, not an I/O failure.
		if byteLimit > 0 && serr == bufio.ErrTooLong {
			return msgs, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrFileRead, path, serr)
	}

	return msgs, nil
}

func trimCR(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\r' || line[len(line)-1] == '\n') {
		line = line[:len(line)-1]
	}
	return line
}

func buildMessage(raw *rawEntry) models.Message {
	msg := models.Message{
		Type:      models.MessageType(raw.Type),
		SessionID: raw.SessionID,
		GitBranch: raw.GitBranch,
		CWD:       raw.CWD,
	}

	if raw.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			msg.Timestamp = t
		} else if t, err := time.Parse(time.RFC3339Nano, raw.Timestamp); err == nil {
			msg.Timestamp = t
		}
	}

	switch msg.Type {
	case models.MessageTypeUser, models.MessageTypeAssistant, models.MessageTypeSubagent:
		var inner rawMessage
		if err := json.Unmarshal(raw.Message, &inner); err == nil {
			msg.Model = inner.Model
			msg.Usage = inner.Usage
			msg.Text, msg.Blocks = decodeContent(inner.Content)
		}
	case models.MessageTypeSummary:
		msg.Summary = raw.Summary
	case models.MessageTypeCustomTitle:
		msg.Title = raw.CustomTitle
		if msg.Title == "" {
			msg.Title = raw.Title
		}
	case models.MessageTypeQueueOperation:
		msg.QueueContent = raw.Content
	}

	return msg
}

// decodeContent handles both content forms: a plain string (older
// format) or an ordered array of content blocks.
func decodeContent(raw json.RawMessage) (string, []models.ContentBlock) {
	if len(raw) == 0 {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var blocks []models.ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return "", blocks
	}

	return "", nil
}
