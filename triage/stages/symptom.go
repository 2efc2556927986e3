package stages

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/vaidyahealth/vaidya/core/parse"
	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
)

// severityPattern matches a 1-10 rating anywhere in a free-text answer.
var severityPattern = regexp.MustCompile(`\b([1-9]|10)\b`)

const extractionSystemPrompt = `Extract symptom facts from this triage conversation.
Reply with one JSON object; use "" (or 0 for severity) for anything the user has not said:
{"chief_complaint": "", "symptom_location": "", "duration": "", "severity": 0,
"triggers": "", "associated_symptoms": [], "medications": []}
Only report what the user actually stated. Do not infer or diagnose.`

type extractReply struct {
	ChiefComplaint     string   `json:"chief_complaint"`
	SymptomLocation    string   `json:"symptom_location"`
	Duration           string   `json:"duration"`
	Severity           int      `json:"severity"`
	Triggers           string   `json:"triggers"`
	AssociatedSymptoms []string `json:"associated_symptoms"`
	Medications        []string `json:"medications"`
}

// extractHandler captures the user's latest answer into the interview fields.
// The capture is keyed off which question was asked last, so a plain answer
// like "about two days" lands in the right field without a model call. A
// best-effort model extraction then fills any facts the user volunteered out
// of order.
func extractHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		message := strings.TrimSpace(state.LastUserMessage())
		result := captureAnswer(state, message)

		captured := triage.Reducer{}.Apply(state, result)
		if deps.Classifier == nil || len(captured.MissingGoldenFour()) == 0 {
			return result, nil
		}

		reply, err := extractFacts(ctx, deps, captured)
		if err != nil {
			deps.logger().DebugContext(ctx, "symptom fact extraction failed",
				slog.String("session_id", state.SessionID),
				slog.String("error", err.Error()),
			)
			return result, nil
		}

		return triage.Reducer{}.Fold(result, fillMissing(captured, reply)), nil
	}
}

// captureAnswer maps the latest user message onto the field the last interview
// question asked about. A severity answer with no 1-10 number is left unset so
// the question is asked again.
func captureAnswer(state State, message string) Result {
	if message == "" {
		return Result{}
	}

	switch state.LastQuestionType {
	case triage.AskChiefComplaint:
		return Result{ChiefComplaint: triage.String(message)}
	case triage.AskLocation:
		return Result{SymptomLocation: triage.String(message)}
	case triage.AskDuration:
		return Result{Duration: triage.String(message)}
	case triage.AskSeverity:
		if match := severityPattern.FindString(message); match != "" {
			severity, _ := strconv.Atoi(match)
			return Result{Severity: triage.Int(severity)}
		}
		return Result{}
	case triage.AskTriggers:
		return Result{Triggers: triage.String(message)}
	}

	// No question pending: a substantive first message becomes the complaint.
	if state.ChiefComplaint == "" && !isBareGreeting(message) {
		return Result{ChiefComplaint: triage.String(message)}
	}
	return Result{}
}

// extractFacts runs the structured extraction prompt over the conversation
// window.
func extractFacts(ctx context.Context, deps Deps, state State) (extractReply, error) {
	response, err := deps.Classifier.SendStructured(ctx, extractionSystemPrompt, deps.window(state))
	if err != nil {
		return extractReply{}, err
	}

	reply, err := parse.ParseStringAs[extractReply](response.Content)
	if err != nil {
		return extractReply{}, &triage.ClassificationParseError{Raw: response.Content, Err: err}
	}
	return reply, nil
}

// fillMissing turns extracted facts into a result touching only fields the
// state does not already have. The keyed capture always wins over the model.
func fillMissing(state State, reply extractReply) Result {
	var result Result
	if state.ChiefComplaint == "" && reply.ChiefComplaint != "" {
		result.ChiefComplaint = triage.String(reply.ChiefComplaint)
	}
	if state.SymptomLocation == "" && reply.SymptomLocation != "" {
		result.SymptomLocation = triage.String(reply.SymptomLocation)
	}
	if state.Duration == "" && reply.Duration != "" {
		result.Duration = triage.String(reply.Duration)
	}
	if state.Severity == 0 && reply.Severity >= 1 && reply.Severity <= 10 {
		result.Severity = triage.Int(reply.Severity)
	}
	if state.Triggers == "" && reply.Triggers != "" {
		result.Triggers = triage.String(reply.Triggers)
	}
	if len(state.AssociatedSymptoms) == 0 && len(reply.AssociatedSymptoms) > 0 {
		result.AssociatedSymptoms = reply.AssociatedSymptoms
	}
	if len(state.UserMedications) == 0 && len(reply.Medications) > 0 {
		result.UserMedications = reply.Medications
	}
	return result
}

// redFlagHandler screens the latest message and the chief complaint against
// the red-flag pattern table. Detection is purely deterministic: no model in
// the loop between a danger phrase and the emergency latch.
func redFlagHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		screenText := state.LastUserMessage() + " " + state.ChiefComplaint
		categories := triage.DetectRedFlags(screenText)
		if len(categories) == 0 {
			return Result{}, nil
		}

		deps.logger().WarnContext(ctx, "red flags detected",
			slog.String("session_id", state.SessionID),
			slog.Any("categories", categories),
		)
		return Result{RedFlagsDetected: categories}, nil
	}
}

// afterRedFlagCheck branches the sub-flow: red flags latch the emergency,
// a complete interview proceeds to assessment, anything else asks the next
// question.
func afterRedFlagCheck(state State) graph.StageID {
	if len(state.RedFlagsDetected) > 0 && !state.EmergencyMode {
		return StageEmergency
	}
	if state.GoldenFourComplete || len(state.MissingGoldenFour()) == 0 {
		return StageAssess
	}
	return StageInterview
}

// emergencyHandler latches emergency mode off a red-flag hit. It writes only
// state: the ER lookup and the final response produce the user-facing
// messaging.
func emergencyHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		emergencyType := ""
		if len(state.RedFlagsDetected) > 0 {
			emergencyType = state.RedFlagsDetected[0]
		}

		emitter.Emit("STATUS:EMERGENCY_DETECTED")
		return Result{
			EmergencyMode:  true,
			Classification: triage.Level(triage.LevelERNow),
			UrgencyScore:   triage.Int(10),
			EmergencyType:  triage.String(emergencyType),
			ShouldContinue: triage.Bool(true),
			StatusEvents:   []string{"STATUS:EMERGENCY_DETECTED"},
		}, nil
	}
}

// interviewQuestions are the deterministic phrasings of the four core
// questions, used verbatim when no interview model is configured or its call
// fails.
var interviewQuestions = map[triage.QuestionType]string{
	triage.AskChiefComplaint: "What symptom is bothering you the most right now?",
	triage.AskLocation:       "Where in your body do you feel it?",
	triage.AskDuration:       "How long has this been going on?",
	triage.AskSeverity:       "On a scale of 1 to 10, how bad is it right now?",
	triage.AskTriggers:       "Does anything make it better or worse?",
}

const interviewSystemPrompt = `You are a warm, efficient triage nurse gathering symptom
details. Ask exactly the one question you are instructed to ask, briefly acknowledging
what the user just said. One or two sentences, no diagnosis, no advice.`

// interviewHandler asks the next unanswered core question and ends the turn.
// The question type is recorded so the next turn's extraction can capture the
// answer without a model call.
func interviewHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		missing := state.MissingGoldenFour()
		if len(missing) == 0 {
			return Result{GoldenFourComplete: true, ShouldContinue: triage.Bool(true)}, nil
		}

		nextQuestion := missing[0]
		questionText := askQuestion(ctx, deps, emitter, state, nextQuestion)

		result := triage.AssistantSays(questionText)
		result.LastQuestionType = triage.Question(nextQuestion)
		result.QuestionsAsked = triage.Int(state.QuestionsAsked + 1)
		result.ShouldContinue = triage.Bool(false)
		return result, nil
	}
}

// askQuestion streams a model phrasing of the question when an interview
// model is available, falling back to the fixed template. The template
// fallback emits nothing; the synthesis layer replays the message instead.
func askQuestion(ctx context.Context, deps Deps, emitter *Emitter, state State, question triage.QuestionType) string {
	template := interviewQuestions[question]
	if deps.Interviewer == nil {
		return template
	}

	window := deps.window(state)
	instruction := "Ask the user this now: " + template
	phrased, err := streamCompletion(ctx, deps.Interviewer, emitter, interviewSystemPrompt+"\n\n"+instruction, window)
	if err != nil || strings.TrimSpace(phrased) == "" {
		if err != nil {
			deps.logger().DebugContext(ctx, "interview phrasing failed, using template",
				slog.String("session_id", state.SessionID),
				slog.String("error", err.Error()),
			)
		}
		return template
	}
	return phrased
}

const assessmentSystemPrompt = `You are a clinical triage engine. Based on the symptom
facts and history in this conversation, produce a JSON object:
{"classification": "HOME|GP_SOON|GP_24H|ER_NOW",
 "urgency_score": 1-10,
 "differential_diagnosis": ["most likely first"],
 "recommendations": ["concrete next steps for the patient"]}
Be conservative: when in doubt between two levels, pick the more urgent one.`

type assessReply struct {
	Classification        string   `json:"classification"`
	UrgencyScore          int      `json:"urgency_score"`
	DifferentialDiagnosis []string `json:"differential_diagnosis"`
	Recommendations       []string `json:"recommendations"`
}

// assessHandler produces the triage classification once the interview is
// complete. A model failure or an undecodable reply degrades to GP_SOON so
// the user always leaves with a safe recommendation; the parse failure is
// recorded on the state.
func assessHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		emitter.Emit("STATUS:TRIAGE_ASSESSMENT")

		result := Result{
			GoldenFourComplete: true,
			ShouldContinue:     triage.Bool(true),
			StatusEvents:       []string{"STATUS:TRIAGE_ASSESSMENT"},
		}

		if deps.Clinical == nil {
			level := severityOnlyLevel(state.Severity)
			result.Classification = triage.Level(level)
			result.UrgencyScore = triage.Int(state.Severity)
			return result, nil
		}

		response, err := deps.Clinical.SendStructured(ctx, assessmentSystemPrompt, deps.window(state))
		if err != nil {
			return degradedAssessment(ctx, deps, state, result, err), nil
		}

		reply, err := parse.ParseStringAs[assessReply](response.Content)
		if err != nil {
			parseErr := &triage.ClassificationParseError{Raw: response.Content, Err: err}
			return degradedAssessment(ctx, deps, state, result, parseErr), nil
		}

		level, valid := normalizeLevel(reply.Classification)
		if !valid {
			parseErr := &triage.ClassificationParseError{Raw: response.Content}
			return degradedAssessment(ctx, deps, state, result, parseErr), nil
		}

		result.Classification = triage.Level(level)
		result.UrgencyScore = triage.Int(clampUrgency(reply.UrgencyScore))
		if len(reply.DifferentialDiagnosis) > 0 {
			result.DifferentialDiagnosis = reply.DifferentialDiagnosis
		}
		if len(reply.Recommendations) > 0 {
			result.Recommendations = reply.Recommendations
		}
		return result, nil
	}
}

// degradedAssessment is the GP_SOON fallback applied when the clinical model
// cannot produce a usable classification.
func degradedAssessment(ctx context.Context, deps Deps, state State, result Result, err error) Result {
	deps.logger().WarnContext(ctx, "assessment degraded to GP_SOON",
		slog.String("session_id", state.SessionID),
		slog.String("error", err.Error()),
	)
	result.Classification = triage.Level(triage.LevelGPSoon)
	result.UrgencyScore = triage.Int(5)
	result.LastError = triage.String(err.Error())
	return result
}

// severityOnlyLevel is the offline classification used when no clinical model
// is configured.
func severityOnlyLevel(severity int) triage.TriageLevel {
	switch {
	case severity >= 8:
		return triage.LevelGP24h
	case severity >= 5:
		return triage.LevelGPSoon
	default:
		return triage.LevelHome
	}
}

func normalizeLevel(raw string) (triage.TriageLevel, bool) {
	switch triage.TriageLevel(strings.ToUpper(strings.TrimSpace(raw))) {
	case triage.LevelHome:
		return triage.LevelHome, true
	case triage.LevelGPSoon:
		return triage.LevelGPSoon, true
	case triage.LevelGP24h:
		return triage.LevelGP24h, true
	case triage.LevelERNow:
		return triage.LevelERNow, true
	default:
		return "", false
	}
}

func clampUrgency(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
