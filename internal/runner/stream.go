package runner

import "encoding/json"

// ExtractStreamText extracts the human-readable text payload from one
// newline-delimited JSON line of agent CLI output. It recognizes four
// shapes, in this order:
//
//  1. {"type":"stream_event","event":{"type":"content_block_delta","delta":{"text":"..."}}}
//  2. {"type":"assistant","message":{"content":[{"type":"text","text":"..."}]}}
//  3. {"type":"result","result":"..."}
//  4. {"type":"content_block_delta","delta":{"text":"..."}} (legacy, no envelope)
//
// Lines that don't parse as JSON, or don't match any shape, return ("", false).
func ExtractStreamText(line string) (string, bool) {
	var env struct {
		Type  string          `json:"type"`
		Event json.RawMessage `json:"event"`
		Result json.RawMessage `json:"result"`
		Message json.RawMessage `json:"message"`
		Delta json.RawMessage `json:"delta"`
	}
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return "", false
	}

	switch env.Type {
	case "stream_event":
		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal(env.Event, &event); err != nil {
			return "", false
		}
		if event.Type == "content_block_delta" && event.Delta.Text != "" {
			return event.Delta.Text, true
		}
		return "", false

	case "assistant":
		var msg struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return "", false
		}
		for _, c := range msg.Content {
			if c.Type == "text" && c.Text != "" {
				return c.Text, true
			}
		}
		return "", false

	case "result":
		var result string
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return "", false
		}
		return result, result != ""

	case "content_block_delta":
		var delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(env.Delta, &delta); err != nil {
			return "", false
		}
		return delta.Text, delta.Text != ""

	default:
		return "", false
	}
}
