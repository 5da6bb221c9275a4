package store

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pathakanu/medremind/internal/model"
)

func newTestReminderStore(t *testing.T) *ReminderStore {
	t.Helper()
	return NewReminderStore(t.TempDir(), "", time.Local, log.New(io.Discard, "", 0))
}

func makeReminder(chatID, medicine string, trigger time.Time) model.Reminder {
	return model.Reminder{
		ChatID:    chatID,
		Medicine:  medicine,
		Dosage:    "500mg",
		Message:   "Take " + medicine + " 500mg",
		Time:      model.NewTimestamp(trigger),
		CreatedAt: model.NewTimestamp(time.Now()),
	}
}

func TestReplaceForMedicineIsIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestReminderStore(t)

	now := time.Now()
	group := []model.Reminder{
		makeReminder("u", "Paracetamol", now.Add(time.Hour)),
		makeReminder("u", "Paracetamol", now.Add(2*time.Hour)),
	}

	if err := s.ReplaceForMedicine("u", "Paracetamol", group); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	// Re-ingestion with a different case must replace, not accumulate.
	if err := s.ReplaceForMedicine("u", "PARACETAMOL", group); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got := s.load()
	if len(got) != len(group) {
		t.Fatalf("expected %d reminders after double replace, got %d", len(group), len(got))
	}
}

func TestReplaceForMedicineKeepsOtherEntries(t *testing.T) {
	t.Parallel()
	s := newTestReminderStore(t)

	now := time.Now()
	seed := []model.Reminder{
		makeReminder("u", "Amoxicillin", now.Add(time.Hour)),
		makeReminder("other", "Amoxicillin", now.Add(time.Hour)),
		makeReminder("u", "Ibuprofen", now.Add(time.Hour)),
	}
	for _, r := range seed {
		if err := s.ReplaceForMedicine(r.ChatID, r.Medicine, []model.Reminder{r}); err != nil {
			t.Fatalf("seed replace: %v", err)
		}
	}

	replacement := []model.Reminder{makeReminder("u", "Amoxicillin", now.Add(3 * time.Hour))}
	if err := s.ReplaceForMedicine("u", "amoxicillin", replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got := s.load()
	if len(got) != 3 {
		t.Fatalf("expected 3 reminders, got %d", len(got))
	}
	for _, r := range got {
		if r.ChatID == "u" && strings.EqualFold(r.Medicine, "Amoxicillin") {
			if !r.Time.Time.Equal(replacement[0].Time.Time) {
				t.Fatalf("replacement trigger not installed: %v", r.Time.Time)
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestReminderStore(t)

	now := time.Now()
	want := []model.Reminder{
		makeReminder("u", "Amoxicillin", now.Add(time.Hour)),
		makeReminder("u", "Amoxicillin", now.Add(13*time.Hour)),
		makeReminder("v", "Metformin", now.Add(time.Hour)),
	}
	if err := s.save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := s.load()
	if len(got) != len(want) {
		t.Fatalf("round trip lost reminders: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ChatID != want[i].ChatID ||
			got[i].Medicine != want[i].Medicine ||
			got[i].Dosage != want[i].Dosage ||
			got[i].Message != want[i].Message ||
			!got[i].Time.Time.Equal(want[i].Time.Time) {
			t.Fatalf("round trip mismatch at %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestRoundTripAnchorsToConfiguredZone(t *testing.T) {
	t.Parallel()
	ist := time.FixedZone("IST", 5*3600+1800)
	s := NewReminderStore(t.TempDir(), "", ist, log.New(io.Discard, "", 0))

	// The file format carries wall-clock time only, so the stored reading
	// must come back as the same instant in the configured zone.
	trigger := time.Date(2025, time.June, 2, 8, 0, 0, 0, ist)
	if err := s.save([]model.Reminder{makeReminder("u", "Metformin", trigger)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := s.load()
	if len(got) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(got))
	}
	if !got[0].Time.Time.Equal(trigger) {
		t.Fatalf("reload shifted the trigger instant: got %v want %v", got[0].Time.Time, trigger)
	}
	if _, offset := got[0].Time.Zone(); offset != 5*3600+1800 {
		t.Fatalf("reload lost the configured zone offset: got %d", offset)
	}

	due := s.DueWithin(trigger.Add(30*time.Second), time.Minute)
	if len(due) != 1 {
		t.Fatalf("reloaded reminder not due in its own zone: got %d due", len(due))
	}
}

func TestDueWithinWindow(t *testing.T) {
	t.Parallel()
	s := newTestReminderStore(t)

	now := time.Now().Truncate(time.Second)
	seed := []model.Reminder{
		makeReminder("u", "Future", now.Add(time.Second)),
		makeReminder("u", "Now", now),
		makeReminder("u", "Recent", now.Add(-59*time.Second)),
		makeReminder("u", "Stale", now.Add(-60*time.Second)),
	}
	if err := s.save(seed); err != nil {
		t.Fatalf("save: %v", err)
	}

	due := s.DueWithin(now, 60*time.Second)
	names := make(map[string]bool)
	for _, r := range due {
		if r.Time.Time.After(now) {
			t.Fatalf("due set contains a future reminder: %+v", r)
		}
		names[r.Medicine] = true
	}
	if !names["Now"] || !names["Recent"] {
		t.Fatalf("due set missed an in-window reminder: %v", names)
	}
	if names["Future"] || names["Stale"] {
		t.Fatalf("due set includes an out-of-window reminder: %v", names)
	}
}

func TestSweepDeliversAndRetires(t *testing.T) {
	t.Parallel()
	s := newTestReminderStore(t)

	now := time.Now().Truncate(time.Second)
	seed := []model.Reminder{
		makeReminder("u", "Due", now.Add(-30*time.Second)),
		makeReminder("u", "Missed", now.Add(-2*time.Hour)),
		makeReminder("u", "Future", now.Add(time.Hour)),
	}
	if err := s.save(seed); err != nil {
		t.Fatalf("save: %v", err)
	}

	due, err := s.Sweep(now, 60*time.Second)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(due) != 1 || due[0].Medicine != "Due" {
		t.Fatalf("expected only the in-window reminder due, got %+v", due)
	}

	// The missed reminder is retired without delivery; the future one stays.
	remaining := s.load()
	if len(remaining) != 1 || remaining[0].Medicine != "Future" {
		t.Fatalf("expected only the future reminder kept, got %+v", remaining)
	}
}

func TestPruneExpiredRetention(t *testing.T) {
	t.Parallel()
	s := newTestReminderStore(t)

	now := time.Now()
	seed := []model.Reminder{
		makeReminder("u", "Ancient", now.Add(-31*24*time.Hour)),
		makeReminder("u", "Recent", now.Add(-29*24*time.Hour)),
	}
	if err := s.save(seed); err != nil {
		t.Fatalf("save: %v", err)
	}

	removed, err := s.PruneExpired(now, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 reminder pruned, got %d", removed)
	}

	remaining := s.load()
	if len(remaining) != 1 || remaining[0].Medicine != "Recent" {
		t.Fatalf("expected only the 29-day reminder kept, got %+v", remaining)
	}
}

func TestRemoveMedicine(t *testing.T) {
	t.Parallel()
	s := newTestReminderStore(t)

	now := time.Now()
	seed := []model.Reminder{
		makeReminder("u", "Amoxicillin", now.Add(time.Hour)),
		makeReminder("u", "Amoxicillin", now.Add(13*time.Hour)),
		makeReminder("u", "Metformin", now.Add(time.Hour)),
	}
	if err := s.save(seed); err != nil {
		t.Fatalf("save: %v", err)
	}

	removed, err := s.RemoveMedicine("u", "amoxicillin")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatalf("expected removal to report true")
	}
	if got := s.load(); len(got) != 1 || got[0].Medicine != "Metformin" {
		t.Fatalf("unexpected reminders after removal: %+v", got)
	}

	removed, err = s.RemoveMedicine("u", "amoxicillin")
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if removed {
		t.Fatalf("expected second removal to report false")
	}
}

func TestListForUserGroupsByMedicine(t *testing.T) {
	t.Parallel()
	s := newTestReminderStore(t)

	day := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.Local)
	seed := []model.Reminder{
		makeReminder("u", "Amoxicillin", day.Add(20*time.Hour)),
		makeReminder("u", "Amoxicillin", day.Add(8*time.Hour)),
		makeReminder("u", "Metformin", day.Add(8*time.Hour)),
		makeReminder("v", "Aspirin", day.Add(8*time.Hour)),
	}
	if err := s.save(seed); err != nil {
		t.Fatalf("save: %v", err)
	}

	schedules := s.ListForUser("u")
	if len(schedules) != 2 {
		t.Fatalf("expected 2 grouped medicines, got %d", len(schedules))
	}
	first := schedules[0]
	if first.Medicine != "Amoxicillin" {
		t.Fatalf("expected first-seen ordering, got %q first", first.Medicine)
	}
	if len(first.Times) != 2 || first.Times[0] != "08:00" || first.Times[1] != "20:00" {
		t.Fatalf("unexpected aggregated times: %v", first.Times)
	}
}

func TestCorruptFileReadsAsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewReminderStore(dir, "", time.Local, log.New(io.Discard, "", 0))

	if err := os.WriteFile(filepath.Join(dir, ReminderFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	if got := s.load(); got != nil {
		t.Fatalf("expected empty collection from corrupt file, got %+v", got)
	}
	if due := s.DueWithin(time.Now(), time.Minute); due != nil {
		t.Fatalf("expected no due reminders from corrupt file, got %+v", due)
	}
}

func TestWriteProducesBackup(t *testing.T) {
	t.Parallel()
	dataDir := t.TempDir()
	backupDir := t.TempDir()
	s := NewReminderStore(dataDir, backupDir, time.Local, log.New(io.Discard, "", 0))

	if err := s.ReplaceForMedicine("u", "Amoxicillin", []model.Reminder{
		makeReminder("u", "Amoxicillin", time.Now().Add(time.Hour)),
	}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatalf("read backup dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected a backup copy after a successful write")
	}
	if !strings.HasPrefix(entries[0].Name(), ReminderFile+".bak_") {
		t.Fatalf("unexpected backup name %q", entries[0].Name())
	}
}

func TestBackupFailureDoesNotBlockWrite(t *testing.T) {
	t.Parallel()
	dataDir := t.TempDir()
	// Backup directory that does not exist: copies fail, writes must not.
	s := NewReminderStore(dataDir, filepath.Join(dataDir, "missing", "backups"), time.Local, log.New(io.Discard, "", 0))

	if err := s.ReplaceForMedicine("u", "Amoxicillin", []model.Reminder{
		makeReminder("u", "Amoxicillin", time.Now().Add(time.Hour)),
	}); err != nil {
		t.Fatalf("expected write to succeed despite backup failure, got %v", err)
	}
	if got := s.load(); len(got) != 1 {
		t.Fatalf("expected the reminder persisted, got %+v", got)
	}
}
