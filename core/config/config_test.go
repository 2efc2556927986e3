package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	settings := Load()

	if settings.Addr != ":8080" {
		t.Errorf("Addr = %q", settings.Addr)
	}
	if settings.ClassificationModel != "gpt-4o-mini" || settings.ClinicalModel != "gpt-4o" {
		t.Errorf("model defaults = %q/%q", settings.ClassificationModel, settings.ClinicalModel)
	}
	if settings.LLMTimeout != 60*time.Second {
		t.Errorf("LLMTimeout = %v", settings.LLMTimeout)
	}
	if settings.CompactFirstThreshold != 20 || settings.CompactRepeatThreshold != 40 {
		t.Errorf("compaction thresholds = %d/%d", settings.CompactFirstThreshold, settings.CompactRepeatThreshold)
	}
	if settings.WindowMinMessages != 12 || settings.WindowTailMessages != 10 {
		t.Errorf("window shape = %d/%d", settings.WindowMinMessages, settings.WindowTailMessages)
	}
	if settings.MaxSessionMessages != 50 {
		t.Errorf("MaxSessionMessages = %d", settings.MaxSessionMessages)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VAIDYA_ADDR", ":9999")
	t.Setenv("VAIDYA_CLINICAL_MODEL", "gpt-4o-2024")
	t.Setenv("VAIDYA_LLM_TIMEOUT", "90s")
	t.Setenv("VAIDYA_MAX_SESSION_MESSAGES", "10")

	settings := Load()
	if settings.Addr != ":9999" {
		t.Errorf("Addr = %q", settings.Addr)
	}
	if settings.ClinicalModel != "gpt-4o-2024" {
		t.Errorf("ClinicalModel = %q", settings.ClinicalModel)
	}
	if settings.LLMTimeout != 90*time.Second {
		t.Errorf("LLMTimeout = %v", settings.LLMTimeout)
	}
	if settings.MaxSessionMessages != 10 {
		t.Errorf("MaxSessionMessages = %d", settings.MaxSessionMessages)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("VAIDYA_LLM_TIMEOUT", "soonish")
	t.Setenv("VAIDYA_MAX_SESSION_MESSAGES", "lots")

	settings := Load()
	if settings.LLMTimeout != 60*time.Second {
		t.Errorf("malformed duration override applied: %v", settings.LLMTimeout)
	}
	if settings.MaxSessionMessages != 50 {
		t.Errorf("malformed int override applied: %d", settings.MaxSessionMessages)
	}
}
