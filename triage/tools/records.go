package tools

import (
	"context"
	"sync"
)

// PatientRecord is the medical history snapshot returned by the record
// service: chronic conditions, active medications, allergies, recent labs,
// and an overall risk level.
type PatientRecord struct {
	PatientID         string
	Summary           string
	ChronicConditions []string
	Medications       []string
	Allergies         []string
	RecentLabs        string
	RiskLevel         string // LOW, MODERATE, HIGH
}

// RecordService resolves a user to their medical history. This in-memory
// implementation stands in for an EHR integration; records are seeded at
// construction and can be added at runtime for tests and demos.
type RecordService struct {
	mutex   sync.RWMutex
	records map[string]PatientRecord
}

// NewRecordService creates a RecordService with the given seed records,
// keyed by user ID.
func NewRecordService(seed map[string]PatientRecord) *RecordService {
	records := make(map[string]PatientRecord, len(seed))
	for userID, record := range seed {
		records[userID] = record
	}
	return &RecordService{records: records}
}

// Put stores or replaces the record for a user.
func (service *RecordService) Put(userID string, record PatientRecord) {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	service.records[userID] = record
}

// Lookup returns the record for a user. The boolean reports whether a record
// exists; users without one get an empty history rather than an error.
func (service *RecordService) Lookup(ctx context.Context, userID string) (PatientRecord, bool) {
	_ = ctx

	service.mutex.RLock()
	defer service.mutex.RUnlock()

	record, exists := service.records[userID]
	return record, exists
}
