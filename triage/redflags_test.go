package triage

import (
	"testing"
)

func TestDetectRedFlagsByCategory(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"I have crushing chest pain radiating to my arm", "cardiac_emergency"},
		{"I CAN'T BREATHE properly since this morning", "respiratory_emergency"},
		{"cant breathe", "respiratory_emergency"},
		{"this is the worst headache of my life", "neurological_emergency"},
		{"my speech is slurred speech and my face droops", "neurological_emergency"},
		{"I want to kill myself", "psychiatric_emergency"},
		{"the bleeding won't stop", "trauma_emergency"},
		{"I've been vomiting blood", "abdominal_emergency"},
		{"my throat is closing up", "allergic_emergency"},
	}

	for _, testCase := range cases {
		detected := DetectRedFlags(testCase.text)
		if len(detected) == 0 {
			t.Errorf("DetectRedFlags(%q) found nothing, want %s", testCase.text, testCase.want)
			continue
		}
		found := false
		for _, category := range detected {
			if category == testCase.want {
				found = true
			}
		}
		if !found {
			t.Errorf("DetectRedFlags(%q) = %v, want to include %s", testCase.text, detected, testCase.want)
		}
	}
}

func TestDetectRedFlagsNoFalsePositivesOnBenignText(t *testing.T) {
	for _, text := range []string{
		"I have a mild headache since yesterday",
		"my knee hurts when I run",
		"I think I caught a cold",
		"",
	} {
		if detected := DetectRedFlags(text); len(detected) != 0 {
			t.Errorf("DetectRedFlags(%q) = %v, want none", text, detected)
		}
	}
}

func TestDetectRedFlagsOneEntryPerCategory(t *testing.T) {
	// Two cardiac patterns in one message still yield a single cardiac entry.
	detected := DetectRedFlags("chest pain with pressure in my chest")
	cardiac := 0
	for _, category := range detected {
		if category == "cardiac_emergency" {
			cardiac++
		}
	}
	if cardiac != 1 {
		t.Errorf("cardiac_emergency reported %d times, want 1 (detected: %v)", cardiac, detected)
	}
}

func TestDetectRedFlagsPreservesEvaluationOrder(t *testing.T) {
	detected := DetectRedFlags("chest pain and I can't breathe")
	if len(detected) < 2 {
		t.Fatalf("detected = %v, want cardiac and respiratory", detected)
	}
	if detected[0] != "cardiac_emergency" || detected[1] != "respiratory_emergency" {
		t.Errorf("order = %v, want cardiac before respiratory", detected)
	}
}

func TestRedFlagDescription(t *testing.T) {
	if description := RedFlagDescription("allergic_emergency"); description != "Severe allergic reaction" {
		t.Errorf("description = %q", description)
	}
	if description := RedFlagDescription("unknown_thing"); description != "unknown_thing" {
		t.Errorf("unknown category description = %q, want pass-through", description)
	}
}
