package tools

import (
	"context"

	"github.com/vaidyahealth/vaidya/triage"
)

// regionalEmergencyNumbers maps ISO country codes to their emergency service
// numbers. The "112" set is the international default used when the region
// cannot be determined.
var regionalEmergencyNumbers = map[string]map[string]string{
	"NP": {"ambulance": "102", "police": "100", "fire": "101", "general": "102"},
	"IN": {"ambulance": "108", "police": "100", "fire": "101", "general": "112"},
	"US": {"ambulance": "911", "police": "911", "fire": "911", "general": "911"},
	"GB": {"ambulance": "999", "police": "999", "fire": "999", "general": "999"},
	"CA": {"ambulance": "911", "police": "911", "fire": "911", "general": "911"},
	"AU": {"ambulance": "000", "police": "000", "fire": "000", "general": "000"},
	"DE": {"ambulance": "112", "police": "110", "fire": "112", "general": "112"},
	"FR": {"ambulance": "15", "police": "17", "fire": "18", "general": "112"},
	"PK": {"ambulance": "115", "police": "15", "fire": "16", "general": "115"},
	"BD": {"ambulance": "199", "police": "999", "fire": "199", "general": "999"},
	"CN": {"ambulance": "120", "police": "110", "fire": "119", "general": "120"},
	"JP": {"ambulance": "119", "police": "110", "fire": "119", "general": "119"},
	"SG": {"ambulance": "995", "police": "999", "fire": "995", "general": "995"},
	"MY": {"ambulance": "999", "police": "999", "fire": "994", "general": "999"},
	"LK": {"ambulance": "110", "police": "119", "fire": "111", "general": "110"},
	"PH": {"ambulance": "911", "police": "911", "fire": "911", "general": "911"},
	"NG": {"ambulance": "199", "police": "199", "fire": "199", "general": "199"},
	"ZA": {"ambulance": "10177", "police": "10111", "fire": "10111", "general": "112"},
	"BR": {"ambulance": "192", "police": "190", "fire": "193", "general": "192"},
	"MX": {"ambulance": "065", "police": "060", "fire": "068", "general": "911"},
	"EU": {"ambulance": "112", "police": "112", "fire": "112", "general": "112"},
}

// DefaultEmergencyNumbers returns the international fallback set. The map is
// freshly allocated so callers may modify it.
func DefaultEmergencyNumbers() map[string]string {
	return map[string]string{
		"ambulance": "112",
		"police":    "112",
		"fire":      "112",
		"general":   "112",
	}
}

// EmergencyNumbersForCountry returns the emergency numbers for an ISO country
// code, or the international default when the code is unknown.
func EmergencyNumbersForCountry(countryCode string) map[string]string {
	if numbers, known := regionalEmergencyNumbers[countryCode]; known {
		copied := make(map[string]string, len(numbers))
		for service, number := range numbers {
			copied[service] = number
		}
		return copied
	}
	return DefaultEmergencyNumbers()
}

// RegionalEmergencyNumbers resolves the emergency numbers for a coordinate.
// Reverse geocoding is not wired to an external service, so this currently
// returns the international default set regardless of position. The context
// parameter keeps the signature stable for a future geocoding integration.
func RegionalEmergencyNumbers(ctx context.Context, location triage.GeoPoint) (map[string]string, error) {
	_ = ctx
	_ = location
	return DefaultEmergencyNumbers(), nil
}

// SearchERHospitals looks up verified emergency rooms near the coordinate.
// The hospital search backend was removed along with the maps integration;
// the lookup returns an empty list and callers fall back to emergency
// numbers only.
func SearchERHospitals(ctx context.Context, location triage.GeoPoint) ([]triage.ProviderEntry, error) {
	_ = ctx
	_ = location
	return []triage.ProviderEntry{}, nil
}
