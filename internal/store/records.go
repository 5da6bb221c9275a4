package store

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/pathakanu/medremind/internal/model"
)

// RecordFile is the name of the medical record collection under the data
// directory.
const RecordFile = "user_medical_records.json"

// RecordStore is the durable collection of per-user uploaded document
// summaries. It follows the same whole-file write discipline as the
// reminder store.
type RecordStore struct {
	path      string
	backupDir string
	loc       *time.Location
	mu        sync.Mutex
	logger    *log.Logger
}

// NewRecordStore creates a store backed by dataDir/user_medical_records.json.
// Persisted timestamps are anchored to loc on every read.
func NewRecordStore(dataDir, backupDir string, loc *time.Location, logger *log.Logger) *RecordStore {
	if loc == nil {
		loc = time.Local
	}
	return &RecordStore{
		path:      filepath.Join(dataDir, RecordFile),
		backupDir: backupDir,
		loc:       loc,
		logger:    logger,
	}
}

func (s *RecordStore) load() []model.MedicalRecord {
	data := readFile(s.path, s.logger)
	if len(data) == 0 {
		return nil
	}
	var records []model.MedicalRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Printf("store: invalid JSON in %s, treating as empty: %v", s.path, err)
		return nil
	}
	for i := range records {
		for j := range records[i].Reports {
			records[i].Reports[j].UploadTime = records[i].Reports[j].UploadTime.InLocation(s.loc)
		}
	}
	return records
}

func (s *RecordStore) save(records []model.MedicalRecord) error {
	if records == nil {
		records = []model.MedicalRecord{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal medical records: %w", err)
	}
	return atomicWrite(s.path, s.backupDir, data, s.logger)
}

// AddReport appends a report to the user's history. A file name already
// present for that user is refused with (false, nil) and the stored report is
// left untouched.
func (s *RecordStore) AddReport(chatID, fileName string, details model.RecordSummary) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := model.Report{
		FileName:   fileName,
		UploadTime: model.NewTimestamp(time.Now().In(s.loc)),
		Details:    details,
	}

	records := s.load()
	for i, record := range records {
		if record.ChatID != chatID {
			continue
		}
		for _, existing := range record.Reports {
			if existing.FileName == fileName {
				s.logger.Printf("store: duplicate report %s for user %s", fileName, chatID)
				return false, nil
			}
		}
		records[i].Reports = append(records[i].Reports, report)
		if err := s.save(records); err != nil {
			return false, err
		}
		return true, nil
	}

	records = append(records, model.MedicalRecord{
		ChatID:  chatID,
		Reports: []model.Report{report},
	})
	if err := s.save(records); err != nil {
		return false, err
	}
	return true, nil
}

// ListForUser returns the user's reports in upload order.
func (s *RecordStore) ListForUser(chatID string) []model.Report {
	for _, record := range s.load() {
		if record.ChatID == chatID {
			return record.Reports
		}
	}
	return nil
}
