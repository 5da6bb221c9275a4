package store

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pathakanu/medremind/internal/model"
)

// ReminderFile is the name of the reminder collection under the data
// directory.
const ReminderFile = "medicine_reminders.json"

// ReminderStore is the durable collection of scheduled reminders. The backing
// file is the source of truth; every mutation is a locked read-modify-write
// of the whole collection.
type ReminderStore struct {
	path      string
	backupDir string
	loc       *time.Location
	mu        sync.Mutex
	logger    *log.Logger
}

// NewReminderStore creates a store backed by dataDir/medicine_reminders.json.
// Persisted timestamps are anchored to loc on every read.
func NewReminderStore(dataDir, backupDir string, loc *time.Location, logger *log.Logger) *ReminderStore {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderStore{
		path:      filepath.Join(dataDir, ReminderFile),
		backupDir: backupDir,
		loc:       loc,
		logger:    logger,
	}
}

func (s *ReminderStore) load() []model.Reminder {
	data := readFile(s.path, s.logger)
	if len(data) == 0 {
		return nil
	}
	var reminders []model.Reminder
	if err := json.Unmarshal(data, &reminders); err != nil {
		s.logger.Printf("store: invalid JSON in %s, treating as empty: %v", s.path, err)
		return nil
	}
	// The wire format carries no zone; re-anchor to the configured location
	// so triggers keep their instant across zone configurations.
	for i := range reminders {
		reminders[i].Time = reminders[i].Time.InLocation(s.loc)
		reminders[i].CreatedAt = reminders[i].CreatedAt.InLocation(s.loc)
	}
	return reminders
}

func (s *ReminderStore) save(reminders []model.Reminder) error {
	if reminders == nil {
		reminders = []model.Reminder{}
	}
	data, err := json.MarshalIndent(reminders, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal reminders: %w", err)
	}
	return atomicWrite(s.path, s.backupDir, data, s.logger)
}

// ReplaceForMedicine removes every reminder for the (chatID, medicine) pair,
// compared case-insensitively, and installs the new group. An error leaves the
// prior state intact.
func (s *ReminderStore) ReplaceForMedicine(chatID, medicine string, reminders []model.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.load()
	kept := make([]model.Reminder, 0, len(existing)+len(reminders))
	for _, r := range existing {
		if r.ChatID == chatID && strings.EqualFold(r.Medicine, medicine) {
			continue
		}
		kept = append(kept, r)
	}
	kept = append(kept, reminders...)
	return s.save(kept)
}

// DueWithin returns the reminders whose trigger is at most window in the past
// and not in the future. Read-only; the atomic write discipline guarantees a
// consistent snapshot without taking the lock.
func (s *ReminderStore) DueWithin(now time.Time, window time.Duration) []model.Reminder {
	var due []model.Reminder
	for _, r := range s.load() {
		if isDue(r, now, window) {
			due = append(due, r)
		}
	}
	return due
}

func isDue(r model.Reminder, now time.Time, window time.Duration) bool {
	age := now.Sub(r.Time.Time)
	return age >= 0 && age < window
}

// Sweep is the per-tick transaction: it collects the reminders due within
// window, drops every reminder whose trigger is not in the future (fired or
// missed), and persists the remainder. The due set is returned even when the
// write fails, so delivery still happens; the stale entries are then retried
// on a later sweep.
func (s *ReminderStore) Sweep(now time.Time, window time.Duration) ([]model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load()
	var due, kept []model.Reminder
	for _, r := range all {
		if isDue(r, now, window) {
			due = append(due, r)
		}
		if r.Time.Time.After(now) {
			kept = append(kept, r)
		}
	}

	if len(kept) == len(all) {
		return due, nil
	}
	if err := s.save(kept); err != nil {
		return due, fmt.Errorf("sweep reminders: %w", err)
	}
	return due, nil
}

// PruneExpired removes every reminder whose trigger is older than maxAge and
// reports how many were dropped. Used by the weekly retention sweep.
func (s *ReminderStore) PruneExpired(now time.Time, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-maxAge)
	all := s.load()
	kept := make([]model.Reminder, 0, len(all))
	for _, r := range all {
		if r.Time.Time.After(cutoff) {
			kept = append(kept, r)
		}
	}

	removed := len(all) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.save(kept); err != nil {
		return 0, fmt.Errorf("prune reminders: %w", err)
	}
	return removed, nil
}

// RemoveMedicine deletes every reminder for the (chatID, medicine) pair,
// compared case-insensitively. The bool reports whether anything matched.
func (s *ReminderStore) RemoveMedicine(chatID, medicine string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load()
	kept := make([]model.Reminder, 0, len(all))
	for _, r := range all {
		if r.ChatID == chatID && strings.EqualFold(r.Medicine, medicine) {
			continue
		}
		kept = append(kept, r)
	}

	if len(kept) == len(all) {
		return false, nil
	}
	if err := s.save(kept); err != nil {
		return false, err
	}
	return true, nil
}

// MedicineSchedule is a display projection of one tracked medicine.
type MedicineSchedule struct {
	Medicine string
	Dosage   string
	Times    []string // "HH:MM", sorted
}

// ListForUser groups a user's reminders by medicine, in first-seen order,
// aggregating the daily trigger times.
func (s *ReminderStore) ListForUser(chatID string) []MedicineSchedule {
	var order []string
	grouped := make(map[string]*MedicineSchedule)

	for _, r := range s.load() {
		if r.ChatID != chatID {
			continue
		}
		key := strings.ToLower(r.Medicine)
		entry, ok := grouped[key]
		if !ok {
			entry = &MedicineSchedule{Medicine: r.Medicine, Dosage: r.Dosage}
			grouped[key] = entry
			order = append(order, key)
		}
		clock := r.Time.Format("15:04")
		if !containsString(entry.Times, clock) {
			entry.Times = append(entry.Times, clock)
		}
	}

	schedules := make([]MedicineSchedule, 0, len(order))
	for _, key := range order {
		entry := grouped[key]
		sort.Strings(entry.Times)
		schedules = append(schedules, *entry)
	}
	return schedules
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
