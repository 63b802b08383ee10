// Package transcript reads Claude Code's line-delimited JSON transcript
// files into the conversation shape the rest of the pipeline understands.
//
// The format is documented only informally: one JSON object per line, with
// unspecified entry shapes for tool-use and tool-result records. The reader
// is deliberately permissive — it extracts {role, content} from whatever
// shape resolves to one, and silently skips lines that don't.
package transcript

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/recall-run/recall/internal/model"
)

// contentBlock is one entry in Claude Code's nested message.content[] array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// rawEntry is the permissive superset of shapes a transcript line may take:
// either a flat {role, content} record, or Claude Code's nested
// {type, message:{role, content:[{type:"text", text}]}} record. Unknown
// fields are ignored by encoding/json by default.
type rawEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Type    string `json:"type"`
	Message *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// ReadFile reads a JSONL transcript file from disk, tolerating malformed or
// unrecognized lines. It never fails outright on a bad line — only a read
// error on the file itself is returned.
func ReadFile(path string, logger *slog.Logger) (model.Conversation, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Conversation{}, err
	}
	defer f.Close()
	return Read(f, logger)
}

// Read parses line-delimited JSON from r, extracting {role, content} pairs.
// Malformed lines are skipped with a warning; empty lines are skipped
// silently.
func Read(r io.Reader, logger *slog.Logger) (model.Conversation, error) {
	var conv model.Conversation

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg, ok := parseLine(line)
		if !ok {
			if logger != nil {
				logger.Warn("transcript: skipping malformed or unrecognized line", "line", lineNo)
			}
			continue
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return conv, err
	}
	return conv, nil
}

// parseLine attempts to resolve one transcript line into a {role, content}
// message, trying the flat shape first and Claude Code's nested
// message.content[] shape second.
func parseLine(line string) (model.Message, bool) {
	var entry rawEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return model.Message{}, false
	}

	if entry.Role != "" && entry.Content != "" {
		return model.Message{Role: entry.Role, Content: entry.Content}, true
	}

	if entry.Message != nil && entry.Message.Role != "" {
		if text, ok := extractText(entry.Message.Content); ok {
			return model.Message{Role: entry.Message.Role, Content: text}, true
		}
	}

	return model.Message{}, false
}

// extractText resolves a message.content field that may be either a plain
// string or an array of {type:"text", text} blocks, concatenating all text
// blocks in order.
func extractText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if strings.TrimSpace(asString) == "" {
			return "", false
		}
		return asString, true
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type != "text" || b.Text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(b.Text)
		}
		if sb.Len() == 0 {
			return "", false
		}
		return sb.String(), true
	}

	return "", false
}
