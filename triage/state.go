// Package triage defines the conversation state model shared by the stage
// engine, the routing policy, and the streaming synthesis layer, together
// with the reducer that merges sparse stage results into it.
package triage

import (
	"time"
)

// TriageLevel is the urgency classification assigned to a conversation.
type TriageLevel string

const (
	// LevelHome: self-care at home is appropriate.
	LevelHome TriageLevel = "HOME"
	// LevelGPSoon: see a general practitioner within the next few days.
	LevelGPSoon TriageLevel = "GP_SOON"
	// LevelGP24h: see a general practitioner within 24 hours.
	LevelGP24h TriageLevel = "GP_24H"
	// LevelERNow: go to an emergency room immediately.
	LevelERNow TriageLevel = "ER_NOW"
)

// QuestionType records which interview question was asked last, so the next
// user message can be captured into the right field without an LLM call.
type QuestionType string

const (
	AskChiefComplaint QuestionType = "CHIEF_COMPLAINT"
	AskLocation       QuestionType = "ASK_LOCATION"
	AskDuration       QuestionType = "ASK_DURATION"
	AskSeverity       QuestionType = "ASK_SEVERITY"
	AskTriggers       QuestionType = "ASK_TRIGGERS"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in the append-only conversation log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// GeoPoint is a user-supplied coordinate pair for location-aware lookups.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Interaction describes one detected drug-drug interaction.
type Interaction struct {
	DrugA           string `json:"drug_a"`
	DrugB           string `json:"drug_b"`
	Severity        string `json:"severity"` // MAJOR, MODERATE, MINOR
	Description     string `json:"description"`
	Mechanism       string `json:"mechanism"`
	Management      string `json:"management"`
	ClinicalEffects string `json:"clinical_effects"`
}

// ProviderEntry is one healthcare provider returned by the directory lookup.
type ProviderEntry struct {
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Specialty string `json:"specialty,omitempty"`
}

// ConversationState is the complete state of one triage conversation. Fields
// fall into three merge classes enforced by [Reducer]:
//
//   - Messages is an append-only log; stage results contribute new entries
//     but can never rewrite history.
//   - The monotonic flags (EmergencyMode, GoldenFourComplete, and the other
//     *Done/*Analyzed/*Triggered/*Saved booleans) latch: once true, no stage
//     result can clear them.
//   - Everything else is overwritable with last-writer-wins semantics; a
//     stage result only touches the fields it explicitly sets.
type ConversationState struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`

	Messages            []Message `json:"messages"`
	MessageCount        int       `json:"message_count"`
	ConversationSummary string    `json:"conversation_summary,omitempty"`

	// Golden four symptom interview fields.
	ChiefComplaint     string       `json:"chief_complaint,omitempty"`
	SymptomLocation    string       `json:"symptom_location,omitempty"`
	Duration           string       `json:"duration,omitempty"`
	Severity           int          `json:"severity,omitempty"` // 1-10, 0 when unknown
	Triggers           string       `json:"triggers,omitempty"`
	Relievers          string       `json:"relievers,omitempty"`
	AssociatedSymptoms []string     `json:"associated_symptoms,omitempty"`
	QuestionsAsked     int          `json:"questions_asked,omitempty"`
	LastQuestionType   QuestionType `json:"last_question_type,omitempty"`
	GoldenFourComplete bool         `json:"golden_four_complete,omitempty"` // monotonic

	// Red-flag screening and emergency handling.
	RedFlagsDetected []string `json:"red_flags_detected,omitempty"`
	EmergencyMode    bool     `json:"emergency_mode,omitempty"` // monotonic
	EmergencyType    string   `json:"emergency_type,omitempty"`

	// Assessment output.
	Classification        TriageLevel `json:"classification,omitempty"`
	DifferentialDiagnosis []string    `json:"differential_diagnosis,omitempty"`
	Recommendations       []string    `json:"recommendations,omitempty"`
	UrgencyScore          int         `json:"urgency_score,omitempty"`

	// Medical history lookup results.
	PatientID          string   `json:"patient_id,omitempty"`
	HistorySummary     string   `json:"history_summary,omitempty"`
	ChronicConditions  []string `json:"chronic_conditions,omitempty"`
	RecentLabs         string   `json:"recent_labs,omitempty"`
	CurrentMedications []string `json:"current_medications,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	RiskLevel          string   `json:"risk_level,omitempty"`
	HistoryAnalyzed    bool     `json:"history_analyzed,omitempty"` // monotonic

	// Preventive care context.
	Age              string `json:"age,omitempty"`
	Sex              string `json:"sex,omitempty"`
	PreventiveAdvice string `json:"preventive_advice,omitempty"`

	// Drug interaction check.
	UserMedications      []string      `json:"user_medications,omitempty"`
	InteractionResults   []Interaction `json:"interaction_results,omitempty"`
	InteractionCheckDone bool          `json:"interaction_check_done,omitempty"` // monotonic

	// Provider lookup.
	UserCountry        string          `json:"user_country,omitempty"` // ISO 3166-1 alpha-2
	UserLocation       *GeoPoint       `json:"user_location,omitempty"`
	ProviderQuery      string          `json:"provider_query,omitempty"`
	NearbyProviders    []ProviderEntry `json:"nearby_providers,omitempty"`
	ProviderSearchDone bool            `json:"provider_search_done,omitempty"` // monotonic

	// ER lookup fan-out results.
	ERSearchTriggered bool              `json:"er_search_triggered,omitempty"` // monotonic
	EmergencyNumbers  map[string]string `json:"emergency_numbers,omitempty"`

	// Routing scratch for the current turn.
	Intent         string   `json:"intent,omitempty"`
	NextStage      string   `json:"next_stage,omitempty"`
	StatusEvents   []string `json:"status_events,omitempty"`
	LastError      string   `json:"last_error,omitempty"`
	ShouldContinue bool     `json:"should_continue,omitempty"`

	AssessmentSaved bool `json:"assessment_saved,omitempty"` // monotonic
}

// LastUserMessage returns the content of the most recent user message, or ""
// when the log has none.
func (state ConversationState) LastUserMessage() string {
	for index := len(state.Messages) - 1; index >= 0; index-- {
		if state.Messages[index].Role == RoleUser {
			return state.Messages[index].Content
		}
	}
	return ""
}

// MissingGoldenFour reports which of the four core interview facts (what,
// where, how long, how bad) are still unknown, in interview order.
func (state ConversationState) MissingGoldenFour() []QuestionType {
	var missing []QuestionType
	if state.ChiefComplaint == "" {
		missing = append(missing, AskChiefComplaint)
	}
	if state.SymptomLocation == "" {
		missing = append(missing, AskLocation)
	}
	if state.Duration == "" {
		missing = append(missing, AskDuration)
	}
	if state.Severity == 0 {
		missing = append(missing, AskSeverity)
	}
	return missing
}

// AllMedications returns the union of history medications and medications the
// user mentioned directly, preserving order and dropping duplicates.
func (state ConversationState) AllMedications() []string {
	seen := make(map[string]bool, len(state.CurrentMedications)+len(state.UserMedications))
	var combined []string
	for _, medication := range append(append([]string{}, state.CurrentMedications...), state.UserMedications...) {
		if medication == "" || seen[medication] {
			continue
		}
		seen[medication] = true
		combined = append(combined, medication)
	}
	return combined
}

// NewMessage builds a log entry stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, CreatedAt: time.Now().UTC()}
}
