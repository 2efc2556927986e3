package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vaidyahealth/vaidya/triage"
)

func TestDirectoryLookupConvertsPageToMarkdown(t *testing.T) {
	var seenQuery map[string][]string
	page := httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		seenQuery = request.URL.Query()
		response.Header().Set("Content-Type", "text/html")
		_, _ = response.Write([]byte(`<html><body>
			<h1>Cardiology near you</h1>
			<ul><li><strong>City Heart Clinic</strong> - 123 Main St</li></ul>
		</body></html>`))
	}))
	defer page.Close()

	directory := NewDirectory(page.URL)
	markdown, err := directory.Lookup(context.Background(), "cardiology", triage.GeoPoint{Lat: 27.7, Lng: 85.3})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if !strings.Contains(markdown, "City Heart Clinic") {
		t.Errorf("markdown missing the provider name: %q", markdown)
	}
	if strings.Contains(markdown, "<li>") {
		t.Errorf("markdown still contains HTML: %q", markdown)
	}

	if got := seenQuery["specialty"]; len(got) != 1 || got[0] != "cardiology" {
		t.Errorf("specialty query = %v", got)
	}
	if got := seenQuery["lat"]; len(got) != 1 || got[0] != "27.7" {
		t.Errorf("lat query = %v", got)
	}
	if got := seenQuery["lng"]; len(got) != 1 || got[0] != "85.3" {
		t.Errorf("lng query = %v", got)
	}
}

func TestDirectoryLookupWrapsUpstreamFailures(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		response.WriteHeader(http.StatusBadGateway)
	}))
	defer page.Close()

	directory := NewDirectory(page.URL)
	_, err := directory.Lookup(context.Background(), "cardiology", triage.GeoPoint{})

	var providerErr *triage.ExternalProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("error = %v, want ExternalProviderError", err)
	}
	if providerErr.Service != "provider-directory" {
		t.Errorf("service = %q", providerErr.Service)
	}
}

func TestDirectoryWithoutEndpointIsUnavailable(t *testing.T) {
	directory := NewDirectory("")
	if directory.Available() {
		t.Error("empty endpoint reported available")
	}

	_, err := directory.Lookup(context.Background(), "cardiology", triage.GeoPoint{})
	var providerErr *triage.ExternalProviderError
	if !errors.As(err, &providerErr) {
		t.Errorf("error = %v, want ExternalProviderError", err)
	}
}

func TestRecordServiceLookup(t *testing.T) {
	service := NewRecordService(map[string]PatientRecord{
		"user-1": {
			PatientID:   "P-100",
			Summary:     "Hypertension, managed",
			Medications: []string{"lisinopril"},
			RiskLevel:   "MODERATE",
		},
	})

	record, found := service.Lookup(context.Background(), "user-1")
	if !found || record.PatientID != "P-100" {
		t.Errorf("Lookup = %+v/%v", record, found)
	}

	if _, found := service.Lookup(context.Background(), "stranger"); found {
		t.Error("unknown user has a record")
	}

	service.Put("user-2", PatientRecord{PatientID: "P-200"})
	if record, found := service.Lookup(context.Background(), "user-2"); !found || record.PatientID != "P-200" {
		t.Errorf("Put/Lookup = %+v/%v", record, found)
	}
}
