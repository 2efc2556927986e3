package stream

import (
	"encoding/json"
	"strings"

	"github.com/vaidyahealth/vaidya/core/parse"
)

const (
	// probeParseThreshold: once a suspected JSON buffer passes this many
	// characters, a strict parse is attempted after every token.
	probeParseThreshold = 10
	// probeBracketThreshold: past this size, strict parsing per token gets
	// expensive, so completion is detected by bracket counting first.
	probeBracketThreshold = 500
)

// jsonProbe guards a conversational stream against structured-output leaks.
// Models occasionally answer a prose prompt with a JSON envelope like
// {"response": "..."}; streaming that raw would show the user JSON
// punctuation. The probe buffers streams that open with a brace or bracket,
// and once the payload parses, releases only the embedded text. Streams that
// open with anything else pass through untouched.
type jsonProbe struct {
	buffer    strings.Builder
	decided   bool
	buffering bool
	drained   bool
}

// feed processes one token and returns the text (if any) that may be shown to
// the user now.
func (probe *jsonProbe) feed(token string) string {
	if probe.drained {
		return ""
	}
	if probe.decided && !probe.buffering {
		return token
	}

	probe.buffer.WriteString(token)
	buffered := probe.buffer.String()

	if !probe.decided {
		trimmed := strings.TrimLeft(buffered, " \t\r\n")
		if trimmed == "" {
			return ""
		}
		probe.decided = true
		if trimmed[0] == '{' || trimmed[0] == '[' {
			probe.buffering = true
		} else {
			probe.buffer.Reset()
			return buffered
		}
	}

	if len(buffered) <= probeParseThreshold {
		return ""
	}

	// Small buffers are parse-checked every token; large ones only once the
	// brackets balance.
	if len(buffered) > probeBracketThreshold && !bracketsBalanced(buffered) {
		return ""
	}
	if extracted, complete := extractEnvelope(buffered); complete {
		probe.drained = true
		return extracted
	}
	return ""
}

// finish releases whatever the probe is still holding at end of stream. An
// unparseable buffer goes through the repairing parser first and falls back
// to the raw text, so nothing the model said is ever lost.
func (probe *jsonProbe) finish() string {
	if probe.drained || !probe.buffering {
		return ""
	}
	buffered := probe.buffer.String()
	probe.drained = true

	if extracted, complete := extractEnvelope(buffered); complete {
		return extracted
	}
	if repaired, err := parse.ParseStringAs[map[string]any](buffered); err == nil {
		if text, found := envelopeText(repaired); found {
			return text
		}
	}
	return buffered
}

// extractEnvelope strict-parses the buffer and pulls the display text out of a
// recognized envelope. A parsed document without a recognized text field
// returns its compact form so JSON-only stages still produce output.
func extractEnvelope(buffered string) (string, bool) {
	var document map[string]any
	if err := json.Unmarshal([]byte(buffered), &document); err != nil {
		return "", false
	}
	if text, found := envelopeText(document); found {
		return text, true
	}
	return buffered, true
}

// envelopeText looks for the conventional text-bearing keys.
func envelopeText(document map[string]any) (string, bool) {
	for _, key := range []string{"response", "message", "content", "answer", "text"} {
		if value, exists := document[key]; exists {
			if text, isString := value.(string); isString && text != "" {
				return text, true
			}
		}
	}
	return "", false
}

// bracketsBalanced reports whether every { and [ outside string literals has
// been closed.
func bracketsBalanced(buffered string) bool {
	depth := 0
	inString := false
	escaped := false
	for _, character := range buffered {
		if escaped {
			escaped = false
			continue
		}
		switch character {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
			}
		}
	}
	return depth == 0 && !inString
}
