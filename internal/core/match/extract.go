// Package match extracts searchable text from message records and
// evaluates query predicates, auxiliary filters and relevance scores.
package match

import (
	"encoding/json"
	"strings"

	"github.com/genesiscz/cchistory/internal/core/models"
)

// ExtractText flattens one message into a searchable string. Unknown
// message kinds yield empty text.
func ExtractText(msg *models.Message, excludeThinking bool) string {
	switch msg.Type {
	case models.MessageTypeUser, models.MessageTypeSubagent:
		if msg.Text != "" {
			return msg.Text
		}
		var sb strings.Builder
		for _, block := range msg.Blocks {
			switch block.Type {
			case "text":
				appendPart(&sb, block.Text)
			case "tool_result":
				appendPart(&sb, toolResultText(block.Content))
			}
		}
		return sb.String()

	case models.MessageTypeAssistant:
		if msg.Text != "" {
			return msg.Text
		}
		var sb strings.Builder
		for _, block := range msg.Blocks {
			switch block.Type {
			case "text":
				appendPart(&sb, block.Text)
			case "thinking":
				if !excludeThinking {
					appendPart(&sb, block.Thinking)
				}
			}
		}
		return sb.String()

	case models.MessageTypeSummary:
		return msg.Summary
	case models.MessageTypeCustomTitle:
		return msg.Title
	case models.MessageTypeQueueOperation:
		return msg.QueueContent
	}
	return ""
}

// ExtractToolUses returns the tool_use blocks of an assistant message.
func ExtractToolUses(msg *models.Message) []models.ToolUse {
	if msg.Type != models.MessageTypeAssistant {
		return nil
	}
	var uses []models.ToolUse
	for _, block := range msg.Blocks {
		if block.Type == "tool_use" {
			uses = append(uses, models.ToolUse{Name: block.Name, Input: block.Input})
		}
	}
	return uses
}

// filePathKeys are the input fields tools use to reference files.
var filePathKeys = []string{"file_path", "path", "filePath"}

// ExtractFilePaths scans tool-use inputs for file path arguments.
func ExtractFilePaths(msg *models.Message) []string {
	var paths []string
	for _, use := range ExtractToolUses(msg) {
		for _, key := range filePathKeys {
			if v, ok := use.Input[key]; ok {
				if s, ok := v.(string); ok && s != "" {
					paths = append(paths, s)
				}
			}
		}
	}
	return paths
}

// toolResultText decodes a tool_result content payload, which is
// either a plain string or an array of text blocks.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == "text" {
				appendPart(&sb, b.Text)
			}
		}
		return sb.String()
	}

	return ""
}

func appendPart(sb *strings.Builder, part string) {
	if part == "" {
		return
	}
	if sb.Len() > 0 {
		sb.WriteByte('\n')
	}
	sb.WriteString(part)
}
