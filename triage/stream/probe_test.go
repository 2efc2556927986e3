package stream

import (
	"strings"
	"testing"
)

func feedAll(probe *jsonProbe, tokens ...string) string {
	var released strings.Builder
	for _, token := range tokens {
		released.WriteString(probe.feed(token))
	}
	return released.String()
}

func TestProbePassesProseThrough(t *testing.T) {
	probe := &jsonProbe{}

	if got := probe.feed("Hello, "); got != "Hello, " {
		t.Errorf("first prose token = %q", got)
	}
	if got := probe.feed("how are you?"); got != "how are you?" {
		t.Errorf("second prose token = %q, want raw passthrough once decided", got)
	}
}

func TestProbeHoldsLeadingWhitespaceUntilDecidable(t *testing.T) {
	probe := &jsonProbe{}

	if got := probe.feed("  \n"); got != "" {
		t.Errorf("whitespace-only token released %q", got)
	}
	if got := probe.feed("Take rest"); got != "  \nTake rest" {
		t.Errorf("decided prose = %q, want held whitespace included", got)
	}
}

func TestProbeExtractsJSONEnvelope(t *testing.T) {
	probe := &jsonProbe{}

	released := feedAll(probe, `{"resp`, `onse": "Drink`, ` fluids and rest."`)
	if released != "" {
		t.Fatalf("released %q before the envelope closed", released)
	}

	if got := probe.feed(`}`); got != "Drink fluids and rest." {
		t.Errorf("envelope text = %q", got)
	}
	if got := probe.feed("trailing"); got != "" {
		t.Errorf("drained probe released %q", got)
	}
}

func TestProbeRecognizesAlternateEnvelopeKeys(t *testing.T) {
	probe := &jsonProbe{}
	released := feedAll(probe, `{"message": `, `"See a doctor soon."}`)
	if released != "See a doctor soon." {
		t.Errorf("message envelope text = %q", released)
	}
}

func TestProbeFinishRepairsTruncatedJSON(t *testing.T) {
	probe := &jsonProbe{}
	if released := feedAll(probe, `{"response": "partial advi`); released != "" {
		t.Fatalf("released %q from an open envelope", released)
	}

	if got := probe.finish(); got != "partial advi" {
		t.Errorf("finish = %q, want the repaired envelope text", got)
	}
}

func TestProbeFinishKeepsUnrecognizedDocuments(t *testing.T) {
	probe := &jsonProbe{}
	feedAll(probe, `{"foo": 1}`)

	if got := probe.finish(); got != `{"foo": 1}` {
		t.Errorf("finish = %q, want the raw document", got)
	}
}

func TestProbeFinishIsEmptyForProseStreams(t *testing.T) {
	probe := &jsonProbe{}
	probe.feed("plain text")
	if got := probe.finish(); got != "" {
		t.Errorf("prose finish = %q, want nothing held back", got)
	}
}

func TestBracketsBalanced(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{`{"a": [1, 2, {"b": 3}]}`, true},
		{`{"a": [1, 2`, false},
		{`{"text": "brace } inside string"}`, true},
		{`{"text": "escaped \" quote }"}`, true},
		{`{"open": "string`, false},
	}
	for _, testCase := range cases {
		if got := bracketsBalanced(testCase.input); got != testCase.want {
			t.Errorf("bracketsBalanced(%q) = %v, want %v", testCase.input, got, testCase.want)
		}
	}
}
