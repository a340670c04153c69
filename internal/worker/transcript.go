package worker

import (
	"encoding/json"
	"strings"
)

// streamRecord is the subset of a structured output record the transcript
// extractor cares about. Workers emit records in a few shapes; the fields
// here cover the common ones.
type streamRecord struct {
	Type    string          `json:"type"`
	Result  string          `json:"result"`
	Content string          `json:"content"`
	Message json.RawMessage `json:"message"`
}

type recordMessage struct {
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// extractText reduces a worker's raw accumulated output to the response
// text. Structured record streams yield the final result record's text (or
// the concatenated assistant text when no result field is present); plain
// output comes back unchanged.
func extractText(raw string) string {
	var assistant []string
	result := ""
	sawRecord := false

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		var rec streamRecord
		if err := json.Unmarshal([]byte(trimmed), &rec); err != nil || rec.Type == "" {
			continue
		}
		sawRecord = true

		switch rec.Type {
		case "result":
			if rec.Result != "" {
				result = rec.Result
			} else if rec.Content != "" {
				result = rec.Content
			}
		case "assistant":
			if text := messageText(rec); text != "" {
				assistant = append(assistant, text)
			}
		}
	}

	if !sawRecord {
		return strings.TrimSpace(raw)
	}
	if result != "" {
		return result
	}
	return strings.TrimSpace(strings.Join(assistant, "\n"))
}

// messageText pulls the text out of an assistant record, accepting both a
// plain string message and the block-array shape.
func messageText(rec streamRecord) string {
	if rec.Content != "" {
		return rec.Content
	}
	if len(rec.Message) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(rec.Message, &plain); err == nil {
		return plain
	}

	var msg recordMessage
	if err := json.Unmarshal(rec.Message, &msg); err != nil || len(msg.Content) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(msg.Content, &asString); err == nil {
		return asString
	}

	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return ""
	}
	var texts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}
