// Package tools holds the non-LLM lookups the specialist stages call: the
// drug interaction database, regional emergency numbers, the provider
// directory fetch, and the patient record service.
package tools

import (
	"sort"
	"strings"

	"github.com/vaidyahealth/vaidya/triage"
)

// brandToGeneric maps common brand names to their generic equivalents so the
// interaction database only needs generic-name pairs.
var brandToGeneric = map[string]string{
	// Pain / anti-inflammatory
	"tylenol": "acetaminophen",
	"advil":   "ibuprofen",
	"motrin":  "ibuprofen",
	"aleve":   "naproxen",
	"aspirin": "aspirin",
	// Cardiovascular
	"prinivil":  "lisinopril",
	"zestril":   "lisinopril",
	"norvasc":   "amlodipine",
	"lopressor": "metoprolol",
	"toprol":    "metoprolol",
	"coumadin":  "warfarin",
	"plavix":    "clopidogrel",
	// Cholesterol
	"lipitor": "atorvastatin",
	"crestor": "rosuvastatin",
	"zocor":   "simvastatin",
	// Diabetes
	"glucophage": "metformin",
	// Mental health
	"prozac": "fluoxetine",
	"zoloft": "sertraline",
	"xanax":  "alprazolam",
	"ativan": "lorazepam",
	// Antibiotics
	"z-pack": "azithromycin",
	"cipro":  "ciprofloxacin",
	// Respiratory
	"proair":   "albuterol",
	"ventolin": "albuterol",
}

// drugPair is the lookup key for the interaction database; pairs are checked
// in both orderings.
type drugPair struct {
	a, b string
}

// knownInteractions is a curated pair database standing in for a clinical
// interaction API. Severity is MAJOR, MODERATE, or MINOR.
var knownInteractions = map[drugPair]triage.Interaction{
	{"warfarin", "ibuprofen"}: {
		Severity:        "MAJOR",
		Description:     "NSAIDs like ibuprofen can increase bleeding risk when combined with warfarin",
		Mechanism:       "NSAIDs inhibit platelet function and may displace warfarin from protein binding",
		Management:      "Monitor INR more frequently. Watch for signs of bleeding (bruising, blood in urine/stool). Consider alternative pain relief like acetaminophen.",
		ClinicalEffects: "Increased risk of serious bleeding including gastrointestinal hemorrhage",
	},
	{"warfarin", "aspirin"}: {
		Severity:        "MAJOR",
		Description:     "Aspirin combined with warfarin significantly increases bleeding risk",
		Mechanism:       "Aspirin irreversibly inhibits platelet aggregation and may increase warfarin effect",
		Management:      "Avoid combination unless specifically prescribed by cardiologist. Requires close INR monitoring and bleeding surveillance.",
		ClinicalEffects: "Substantially increased risk of major bleeding events",
	},
	{"lisinopril", "ibuprofen"}: {
		Severity:        "MODERATE",
		Description:     "NSAIDs can reduce the blood pressure-lowering effect of ACE inhibitors like lisinopril",
		Mechanism:       "NSAIDs inhibit prostaglandin synthesis, reducing ACE inhibitor effectiveness",
		Management:      "Monitor blood pressure regularly. Use lowest effective NSAID dose for shortest duration. Consider acetaminophen as alternative.",
		ClinicalEffects: "Decreased antihypertensive effect, possible increase in blood pressure",
	},
	{"metformin", "alcohol"}: {
		Severity:        "MODERATE",
		Description:     "Alcohol consumption with metformin can increase risk of lactic acidosis",
		Mechanism:       "Both metformin and alcohol can cause lactic acidosis, effects may be additive",
		Management:      "Avoid excessive alcohol consumption. Limit to moderate intake (1-2 drinks maximum). Avoid binge drinking.",
		ClinicalEffects: "Increased risk of lactic acidosis (rare but serious), altered glucose control",
	},
	{"atorvastatin", "azithromycin"}: {
		Severity:        "MODERATE",
		Description:     "Azithromycin may increase atorvastatin levels, raising risk of muscle problems",
		Mechanism:       "Azithromycin may inhibit metabolism of statins",
		Management:      "Watch for muscle pain, weakness, or dark urine. Report symptoms immediately. Short-term use generally acceptable.",
		ClinicalEffects: "Increased risk of myopathy and rhabdomyolysis",
	},
	{"fluoxetine", "ibuprofen"}: {
		Severity:        "MODERATE",
		Description:     "SSRIs like fluoxetine combined with NSAIDs increase gastrointestinal bleeding risk",
		Mechanism:       "Both drugs affect platelet function and gastric protection",
		Management:      "Consider alternative pain relief. If NSAIDs needed, take with food and consider adding stomach protection (PPI).",
		ClinicalEffects: "Increased risk of upper GI bleeding",
	},
	{"alprazolam", "alcohol"}: {
		Severity:        "MAJOR",
		Description:     "Combining benzodiazepines like alprazolam with alcohol is dangerous and potentially deadly",
		Mechanism:       "Both are CNS depressants with additive effects",
		Management:      "Avoid alcohol completely while taking alprazolam. Risk of severe sedation, respiratory depression, and overdose.",
		ClinicalEffects: "Severe sedation, confusion, respiratory depression, coma, death",
	},
	{"sertraline", "fluoxetine"}: {
		Severity:        "MAJOR",
		Description:     "Combining two SSRIs increases risk of serotonin syndrome",
		Mechanism:       "Excessive serotonin accumulation in the brain",
		Management:      "Do not take together. Requires washout period when switching between SSRIs. Consult prescriber.",
		ClinicalEffects: "Serotonin syndrome: agitation, confusion, rapid heart rate, high blood pressure, dilated pupils, muscle rigidity",
	},
	{"lisinopril", "albuterol"}: {
		Severity:        "MINOR",
		Description:     "Albuterol may slightly increase heart rate and blood pressure",
		Mechanism:       "Beta-2 agonist effects on cardiovascular system",
		Management:      "Usually not clinically significant. Monitor blood pressure if using albuterol frequently.",
		ClinicalEffects: "Mild temporary increase in heart rate and blood pressure",
	},
	{"metformin", "atorvastatin"}: {
		Severity:        "MINOR",
		Description:     "Generally safe combination, commonly prescribed together",
		Mechanism:       "No significant interaction mechanism",
		Management:      "No special precautions needed. Both are commonly used in patients with diabetes and high cholesterol.",
		ClinicalEffects: "No significant clinical interaction",
	},
}

// severityRank orders interactions MAJOR first for display.
var severityRank = map[string]int{"MAJOR": 0, "MODERATE": 1, "MINOR": 2}

// NormalizeDrugNames lowercases, trims, strips parenthetical notes, and maps
// known brand names to generics. Unknown names pass through cleaned.
func NormalizeDrugNames(medications []string) []string {
	normalized := make([]string, 0, len(medications))
	for _, medication := range medications {
		cleaned := strings.ToLower(strings.TrimSpace(medication))
		if open := strings.IndexByte(cleaned, '('); open >= 0 {
			cleaned = strings.TrimSpace(cleaned[:open])
		}
		if cleaned == "" {
			continue
		}
		if generic, known := brandToGeneric[cleaned]; known {
			cleaned = generic
		}
		normalized = append(normalized, cleaned)
	}
	return normalized
}

// CheckInteractions normalizes the medication list and returns every known
// pairwise interaction, sorted by severity (MAJOR first). Fewer than two
// medications can never interact, so the result is empty.
func CheckInteractions(medications []string) []triage.Interaction {
	if len(medications) < 2 {
		return nil
	}

	normalized := NormalizeDrugNames(medications)

	var found []triage.Interaction
	for i, drugA := range normalized {
		for _, drugB := range normalized[i+1:] {
			interaction, matched := lookupPair(drugA, drugB)
			if !matched {
				continue
			}
			found = append(found, interaction)
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return severityRank[found[i].Severity] < severityRank[found[j].Severity]
	})
	return found
}

// lookupPair checks both orderings of the pair against the database and
// fills in the drug names on a hit.
func lookupPair(drugA, drugB string) (triage.Interaction, bool) {
	if interaction, exists := knownInteractions[drugPair{drugA, drugB}]; exists {
		interaction.DrugA = drugA
		interaction.DrugB = drugB
		return interaction, true
	}
	if interaction, exists := knownInteractions[drugPair{drugB, drugA}]; exists {
		interaction.DrugA = drugB
		interaction.DrugB = drugA
		return interaction, true
	}
	return triage.Interaction{}, false
}

// FormatInteractions renders the interaction list as user-facing Markdown
// grouped by severity. Used as the static fallback when the explanation
// model is unavailable.
func FormatInteractions(interactions []triage.Interaction) string {
	if len(interactions) == 0 {
		return "No known drug interactions detected in the provided medications."
	}

	var builder strings.Builder
	builder.WriteString("**Drug Interaction Analysis**\n")

	for _, severity := range []string{"MAJOR", "MODERATE", "MINOR"} {
		var group []triage.Interaction
		for _, interaction := range interactions {
			if interaction.Severity == severity {
				group = append(group, interaction)
			}
		}
		if len(group) == 0 {
			continue
		}

		builder.WriteString("\n**" + severity + " interactions:**\n")
		for _, interaction := range group {
			builder.WriteString("- **" + title(interaction.DrugA) + " + " + title(interaction.DrugB) + "**: ")
			builder.WriteString(interaction.Description + " Action: " + interaction.Management + "\n")
		}
	}

	builder.WriteString("\n**Important**: Do not stop or change any medications without consulting your doctor or pharmacist.")
	return builder.String()
}

// title uppercases the first letter of a drug name for display.
func title(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
