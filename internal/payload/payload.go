// Package payload normalizes frame data into a literal or structured value.
package payload

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

// Kind tags the shape of a normalized payload.
type Kind int

const (
	Literal Kind = iota
	Structured
)

func (k Kind) String() string {
	if k == Structured {
		return "structured"
	}
	return "literal"
}

// textFields are tried in order when an object carries no msg field.
var textFields = []string{"report", "critique", "verdict", "message"}

// Value is a normalized payload.
type Value struct {
	Kind Kind
	// Text is the literal text. Set only for Literal values.
	Text string
	// Data is the decoded JSON value. Set only for Structured values.
	Data any
	// Malformed is set when the data looked like JSON but failed to parse.
	Malformed bool
}

// Normalize converts raw frame data into a Value. It never fails: anything
// that is not valid JSON is returned as a Literal of the raw string.
func Normalize(data string) Value {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return Value{Kind: Literal, Text: data}
	}

	var decoded any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil || dec.More() {
		return Value{Kind: Literal, Text: data, Malformed: looksLikeJSON(trimmed)}
	}

	s, ok := decoded.(string)
	if !ok {
		return Value{Kind: Structured, Data: decoded}
	}

	// Double encoding: a JSON string carrying a JSON object or array.
	inner := strings.TrimSpace(s)
	if strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") {
		var nested any
		if err := json.Unmarshal([]byte(inner), &nested); err == nil {
			return Value{Kind: Structured, Data: nested}
		}
	}
	return Value{Kind: Literal, Text: s}
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") || strings.HasPrefix(s, `"`)
}

// Object returns the value as a JSON object if it is one.
func (v Value) Object() (map[string]any, bool) {
	if v.Kind != Structured {
		return nil, false
	}
	obj, ok := v.Data.(map[string]any)
	return obj, ok
}

// String returns display text for the value. Objects yield their first
// text-bearing field, anything else its compact JSON form.
func (v Value) String() string {
	if v.Kind == Literal {
		return v.Text
	}
	if obj, ok := v.Object(); ok {
		if msg, ok := stringField(obj, "msg"); ok {
			return msg
		}
		for _, field := range textFields {
			if text, ok := stringField(obj, field); ok {
				return text
			}
		}
	}
	return compact(v.Data)
}

// Thought extracts the thinking message of a *_thinking payload and whether
// it is an incremental log line. ok is false when there is nothing to show.
func (v Value) Thought(eventType domain.EventType) (msg string, isLog bool, ok bool) {
	if v.Kind == Literal {
		if strings.TrimSpace(v.Text) == "" {
			return "", false, false
		}
		return v.Text, IsThinking(eventType), true
	}

	obj, isObj := v.Object()
	if !isObj {
		return compact(v.Data), IsThinking(eventType), true
	}

	if msg, found := stringField(obj, "msg"); found {
		isLog, _ := obj["is_log"].(bool)
		return msg, isLog, true
	}
	for _, field := range textFields {
		if text, found := stringField(obj, field); found {
			return text, false, true
		}
	}
	return "", false, false
}

// Done extracts the run identity and closing message of a done payload.
// A literal payload is taken as the message. Missing fields are left empty.
func (v Value) Done() domain.DoneEventData {
	if v.Kind == Literal {
		if strings.TrimSpace(v.Text) == "" {
			return domain.DoneEventData{}
		}
		return domain.DoneEventData{Message: v.Text}
	}

	var done domain.DoneEventData
	obj, ok := v.Object()
	if !ok {
		return done
	}
	done.FeatureID, _ = stringField(obj, "feature_id")
	done.RunID, _ = stringField(obj, "run_id")
	done.Message, _ = stringField(obj, "message")
	return done
}

// IsThinking reports whether eventType is an agent thinking event.
func IsThinking(eventType domain.EventType) bool {
	return strings.HasSuffix(string(eventType), "_thinking")
}

// stringField returns obj[key] as text. Non-string values are rendered as JSON.
func stringField(obj map[string]any, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return "", false
	}
	if s, ok := raw.(string); ok {
		return s, true
	}
	return compact(raw), true
}

func compact(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
