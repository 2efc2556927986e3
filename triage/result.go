package triage

// StageResult is the sparse partial a stage contributes to the conversation
// state. A zero StageResult changes nothing. Overwritable scalar fields are
// pointers so "unset" and "set to zero value" stay distinguishable; slices
// and maps replace the state's value when non-nil; Messages are appended;
// the monotonic flags only latch to true.
type StageResult struct {
	Messages []Message

	// Monotonic flags. Only true is meaningful; false leaves state untouched.
	EmergencyMode        bool
	GoldenFourComplete   bool
	HistoryAnalyzed      bool
	InteractionCheckDone bool
	ProviderSearchDone   bool
	ERSearchTriggered    bool
	AssessmentSaved      bool

	// Overwritable fields.
	ChiefComplaint        *string
	SymptomLocation       *string
	Duration              *string
	Severity              *int
	Triggers              *string
	Relievers             *string
	AssociatedSymptoms    []string
	QuestionsAsked        *int
	LastQuestionType      *QuestionType
	RedFlagsDetected      []string
	EmergencyType         *string
	Classification        *TriageLevel
	DifferentialDiagnosis []string
	Recommendations       []string
	UrgencyScore          *int
	PatientID             *string
	HistorySummary        *string
	ChronicConditions     []string
	RecentLabs            *string
	CurrentMedications    []string
	Allergies             []string
	RiskLevel             *string
	Age                   *string
	Sex                   *string
	PreventiveAdvice      *string
	UserMedications       []string
	InteractionResults    []Interaction
	ProviderQuery         *string
	NearbyProviders       []ProviderEntry
	EmergencyNumbers      map[string]string
	Intent                *string
	NextStage             *string
	StatusEvents          []string
	LastError             *string
	ShouldContinue        *bool
	ConversationSummary   *string
}

// AssistantSays is a convenience constructor for the common case of a stage
// that only emits an assistant message.
func AssistantSays(content string) StageResult {
	return StageResult{Messages: []Message{NewMessage(RoleAssistant, content)}}
}

// Reducer implements the shared merge semantics for ConversationState and
// StageResult. The same reducer instance is used by the stage engine, by
// sub-flows (Fold), and by the streaming synthesis layer, so state can never
// diverge between them.
type Reducer struct{}

// Apply merges one stage result into the state and returns the updated copy.
// The input state is not mutated.
func (Reducer) Apply(state ConversationState, result StageResult) ConversationState {
	if len(result.Messages) > 0 {
		state.Messages = append(state.Messages, result.Messages...)
		state.MessageCount += len(result.Messages)
	}

	// Monotonic flags latch to true and never reset.
	state.EmergencyMode = state.EmergencyMode || result.EmergencyMode
	state.GoldenFourComplete = state.GoldenFourComplete || result.GoldenFourComplete
	state.HistoryAnalyzed = state.HistoryAnalyzed || result.HistoryAnalyzed
	state.InteractionCheckDone = state.InteractionCheckDone || result.InteractionCheckDone
	state.ProviderSearchDone = state.ProviderSearchDone || result.ProviderSearchDone
	state.ERSearchTriggered = state.ERSearchTriggered || result.ERSearchTriggered
	state.AssessmentSaved = state.AssessmentSaved || result.AssessmentSaved

	setString(&state.ChiefComplaint, result.ChiefComplaint)
	setString(&state.SymptomLocation, result.SymptomLocation)
	setString(&state.Duration, result.Duration)
	setInt(&state.Severity, result.Severity)
	setString(&state.Triggers, result.Triggers)
	setString(&state.Relievers, result.Relievers)
	if result.AssociatedSymptoms != nil {
		state.AssociatedSymptoms = result.AssociatedSymptoms
	}
	setInt(&state.QuestionsAsked, result.QuestionsAsked)
	if result.LastQuestionType != nil {
		state.LastQuestionType = *result.LastQuestionType
	}
	if result.RedFlagsDetected != nil {
		state.RedFlagsDetected = result.RedFlagsDetected
	}
	setString(&state.EmergencyType, result.EmergencyType)
	if result.Classification != nil {
		state.Classification = *result.Classification
	}
	if result.DifferentialDiagnosis != nil {
		state.DifferentialDiagnosis = result.DifferentialDiagnosis
	}
	if result.Recommendations != nil {
		state.Recommendations = result.Recommendations
	}
	setInt(&state.UrgencyScore, result.UrgencyScore)
	setString(&state.PatientID, result.PatientID)
	setString(&state.HistorySummary, result.HistorySummary)
	if result.ChronicConditions != nil {
		state.ChronicConditions = result.ChronicConditions
	}
	setString(&state.RecentLabs, result.RecentLabs)
	if result.CurrentMedications != nil {
		state.CurrentMedications = result.CurrentMedications
	}
	if result.Allergies != nil {
		state.Allergies = result.Allergies
	}
	setString(&state.RiskLevel, result.RiskLevel)
	setString(&state.Age, result.Age)
	setString(&state.Sex, result.Sex)
	setString(&state.PreventiveAdvice, result.PreventiveAdvice)
	if result.UserMedications != nil {
		state.UserMedications = result.UserMedications
	}
	if result.InteractionResults != nil {
		state.InteractionResults = result.InteractionResults
	}
	setString(&state.ProviderQuery, result.ProviderQuery)
	if result.NearbyProviders != nil {
		state.NearbyProviders = result.NearbyProviders
	}
	if result.EmergencyNumbers != nil {
		state.EmergencyNumbers = result.EmergencyNumbers
	}
	setString(&state.Intent, result.Intent)
	setString(&state.NextStage, result.NextStage)
	if result.StatusEvents != nil {
		state.StatusEvents = result.StatusEvents
	}
	setString(&state.LastError, result.LastError)
	if result.ShouldContinue != nil {
		state.ShouldContinue = *result.ShouldContinue
	}
	setString(&state.ConversationSummary, result.ConversationSummary)

	return state
}

// Fold combines two stage results into one, preserving the same semantics a
// sequential Apply of both would produce: messages concatenate, monotonic
// flags OR together, and overwritable fields take the later value when set.
func (Reducer) Fold(accumulated StageResult, next StageResult) StageResult {
	accumulated.Messages = append(accumulated.Messages, next.Messages...)

	accumulated.EmergencyMode = accumulated.EmergencyMode || next.EmergencyMode
	accumulated.GoldenFourComplete = accumulated.GoldenFourComplete || next.GoldenFourComplete
	accumulated.HistoryAnalyzed = accumulated.HistoryAnalyzed || next.HistoryAnalyzed
	accumulated.InteractionCheckDone = accumulated.InteractionCheckDone || next.InteractionCheckDone
	accumulated.ProviderSearchDone = accumulated.ProviderSearchDone || next.ProviderSearchDone
	accumulated.ERSearchTriggered = accumulated.ERSearchTriggered || next.ERSearchTriggered
	accumulated.AssessmentSaved = accumulated.AssessmentSaved || next.AssessmentSaved

	pickPointer(&accumulated.ChiefComplaint, next.ChiefComplaint)
	pickPointer(&accumulated.SymptomLocation, next.SymptomLocation)
	pickPointer(&accumulated.Duration, next.Duration)
	pickPointer(&accumulated.Severity, next.Severity)
	pickPointer(&accumulated.Triggers, next.Triggers)
	pickPointer(&accumulated.Relievers, next.Relievers)
	pickSlice(&accumulated.AssociatedSymptoms, next.AssociatedSymptoms)
	pickPointer(&accumulated.QuestionsAsked, next.QuestionsAsked)
	pickPointer(&accumulated.LastQuestionType, next.LastQuestionType)
	pickSlice(&accumulated.RedFlagsDetected, next.RedFlagsDetected)
	pickPointer(&accumulated.EmergencyType, next.EmergencyType)
	pickPointer(&accumulated.Classification, next.Classification)
	pickSlice(&accumulated.DifferentialDiagnosis, next.DifferentialDiagnosis)
	pickSlice(&accumulated.Recommendations, next.Recommendations)
	pickPointer(&accumulated.UrgencyScore, next.UrgencyScore)
	pickPointer(&accumulated.PatientID, next.PatientID)
	pickPointer(&accumulated.HistorySummary, next.HistorySummary)
	pickSlice(&accumulated.ChronicConditions, next.ChronicConditions)
	pickPointer(&accumulated.RecentLabs, next.RecentLabs)
	pickSlice(&accumulated.CurrentMedications, next.CurrentMedications)
	pickSlice(&accumulated.Allergies, next.Allergies)
	pickPointer(&accumulated.RiskLevel, next.RiskLevel)
	pickPointer(&accumulated.Age, next.Age)
	pickPointer(&accumulated.Sex, next.Sex)
	pickPointer(&accumulated.PreventiveAdvice, next.PreventiveAdvice)
	pickSlice(&accumulated.UserMedications, next.UserMedications)
	pickSlice(&accumulated.InteractionResults, next.InteractionResults)
	pickPointer(&accumulated.ProviderQuery, next.ProviderQuery)
	pickSlice(&accumulated.NearbyProviders, next.NearbyProviders)
	if next.EmergencyNumbers != nil {
		accumulated.EmergencyNumbers = next.EmergencyNumbers
	}
	pickPointer(&accumulated.Intent, next.Intent)
	pickPointer(&accumulated.NextStage, next.NextStage)

	// Status events from consecutive stages accumulate within a fold so the
	// synthesis layer sees every stage's events, matching sequential merges.
	accumulated.StatusEvents = append(accumulated.StatusEvents, next.StatusEvents...)

	pickPointer(&accumulated.LastError, next.LastError)
	pickPointer(&accumulated.ShouldContinue, next.ShouldContinue)
	pickPointer(&accumulated.ConversationSummary, next.ConversationSummary)

	return accumulated
}

func setString(target *string, value *string) {
	if value != nil {
		*target = *value
	}
}

func setInt(target *int, value *int) {
	if value != nil {
		*target = *value
	}
}

func pickPointer[T any](target **T, value *T) {
	if value != nil {
		*target = value
	}
}

func pickSlice[T any](target *[]T, value []T) {
	if value != nil {
		*target = value
	}
}

// Pointer helpers for building sparse stage results.

// String returns a pointer to value for use in a StageResult.
func String(value string) *string { return &value }

// Int returns a pointer to value for use in a StageResult.
func Int(value int) *int { return &value }

// Bool returns a pointer to value for use in a StageResult.
func Bool(value bool) *bool { return &value }

// Level returns a pointer to a triage level for use in a StageResult.
func Level(value TriageLevel) *TriageLevel { return &value }

// Question returns a pointer to a question type for use in a StageResult.
func Question(value QuestionType) *QuestionType { return &value }
