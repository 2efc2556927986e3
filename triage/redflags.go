package triage

import (
	"regexp"
	"strings"
)

// Red-flag screening runs deterministically on the raw user message before
// any model call in the turn. A match short-circuits the interview straight
// into the emergency path, so the patterns err on the side of sensitivity.

type redFlagCategory struct {
	name        string
	description string
	patterns    []*regexp.Regexp
}

func compilePatterns(expressions ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(expressions))
	for _, expression := range expressions {
		compiled = append(compiled, regexp.MustCompile(expression))
	}
	return compiled
}

// redFlagCategories is evaluated in order; each category contributes at most
// one entry to the detected list.
var redFlagCategories = []redFlagCategory{
	{
		name:        "cardiac_emergency",
		description: "Possible heart-related emergency (chest pain, pressure)",
		patterns: compilePatterns(
			`chest pain`,
			`crushing.*chest`,
			`pressure.*chest`,
			`chest.*tight`,
			`pain.*radiating.*(arm|jaw|shoulder|back)`,
			`pain.*(arm|jaw).*chest`,
		),
	},
	{
		name:        "respiratory_emergency",
		description: "Severe breathing difficulty",
		patterns: compilePatterns(
			`can'?t breathe`,
			`can'?t catch.*breath`,
			`difficulty breathing`,
			`shortness of breath.*rest`,
			`gasping for air`,
			`choking`,
			`lips.*blue`,
			`turning blue`,
		),
	},
	{
		name:        "neurological_emergency",
		description: "Possible stroke or severe neurological event",
		patterns: compilePatterns(
			`worst headache.*life`,
			`thunderclap headache`,
			`sudden.*severe.*headache`,
			`loss of consciousness`,
			`passed out`,
			`blacked out`,
			`face.*droop`,
			`facial.*droop`,
			`arm.*weak`,
			`leg.*weak`,
			`slurred speech`,
			`can'?t speak properly`,
			`confused`,
			`disoriented`,
			`seizure`,
		),
	},
	{
		name:        "psychiatric_emergency",
		description: "Mental health crisis requiring immediate attention",
		patterns: compilePatterns(
			`want to (die|kill myself)`,
			`suicidal`,
			`plan to.*harm`,
			`going to end it`,
			`thoughts of (suicide|killing myself)`,
			`better off dead`,
		),
	},
	{
		name:        "trauma_emergency",
		description: "Severe injury or uncontrolled bleeding",
		patterns: compilePatterns(
			`heavy bleeding`,
			`profuse bleeding`,
			`bleeding.*won'?t stop`,
			`severe.*injury`,
			`can'?t move.*(limb|arm|leg)`,
			`broken bone.*protruding`,
			`compound fracture`,
		),
	},
	{
		name:        "abdominal_emergency",
		description: "Severe abdominal emergency",
		patterns: compilePatterns(
			`severe.*abdominal pain`,
			`abdomen.*rigid`,
			`stomach.*rigid`,
			`severe.*stomach pain`,
			`vomiting blood`,
			`blood in.*vomit`,
			`blood in.*stool`,
			`black.*tarry.*stool`,
		),
	},
	{
		name:        "allergic_emergency",
		description: "Severe allergic reaction",
		patterns: compilePatterns(
			`severe allergic reaction`,
			`anaphylaxis`,
			`face.*swelling`,
			`tongue.*swelling`,
			`throat.*closing`,
			`hives.*difficulty breathing`,
		),
	},
}

// DetectRedFlags scans the text for emergency symptom language and returns
// the matched category names in evaluation order. An empty result means no
// red flags were found.
func DetectRedFlags(text string) []string {
	lowered := strings.ToLower(text)

	var detected []string
	for _, category := range redFlagCategories {
		for _, pattern := range category.patterns {
			if pattern.MatchString(lowered) {
				detected = append(detected, category.name)
				break
			}
		}
	}
	return detected
}

// RedFlagDescription returns the human-readable description for a detected
// category, falling back to the category name itself.
func RedFlagDescription(category string) string {
	for _, candidate := range redFlagCategories {
		if candidate.name == category {
			return candidate.description
		}
	}
	return category
}
