package main

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "echo_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return db
}

func TestSettingsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if got := db.GetSetting("missing"); got != "" {
		t.Errorf("GetSetting(missing) = %q, want empty", got)
	}
	if err := db.SetSetting("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if got := db.GetSetting("k"); got != "v1" {
		t.Errorf("got %q, want v1", got)
	}
	// Upsert
	if err := db.SetSetting("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if got := db.GetSetting("k"); got != "v2" {
		t.Errorf("got %q, want v2", got)
	}
}

func TestInsertEventsAndCounts(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	now := time.Now().UTC()
	events := []AnalyticsEvent{
		{Type: EvtConnect, SessionID: "s1", Timestamp: now},
		{Type: EvtConnect, SessionID: "s2", Timestamp: now},
		{Type: EvtPulse, SessionID: "s1", Timestamp: now},
		{Type: EvtDisconnect, SessionID: "s1", Timestamp: now},
	}
	if err := db.InsertEvents(events); err != nil {
		t.Fatal(err)
	}

	total, err := db.EventCount()
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 {
		t.Errorf("EventCount = %d, want 4", total)
	}

	counts, err := db.EventCountsSince(now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if counts[EvtConnect] != 2 || counts[EvtPulse] != 1 || counts[EvtDisconnect] != 1 {
		t.Errorf("counts = %v", counts)
	}

	sessions, err := db.ActiveSessionsSince(now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if sessions != 2 {
		t.Errorf("ActiveSessionsSince = %d, want 2", sessions)
	}

	// Nothing matches a future cutoff
	counts, err = db.EventCountsSince(now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 0 {
		t.Errorf("future counts = %v, want none", counts)
	}
}

func TestAnalyticsFlushOnStop(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	a := NewAnalytics(db)
	a.Track(EvtConnect, "s1", "")
	a.Track(EvtPulse, "s1", "")
	a.Track(EvtDisconnect, "s1", "")
	a.Stop() // drains and flushes pending events

	total, err := db.EventCount()
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("EventCount after stop = %d, want 3", total)
	}
}

// Stop must be safe while game goroutines are still emitting events;
// late events are dropped, never a panic.
func TestAnalyticsTrackDuringStop(t *testing.T) {
	a := NewAnalytics(nil)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 2000; j++ {
				a.Track(EvtPulse, "s1", "")
			}
		}()
	}

	close(start)
	a.Stop()
	wg.Wait()

	// Tracking after Stop is a no-op
	a.Track(EvtDamage, "s1", "")
}

func TestAnalyticsLiveMetric(t *testing.T) {
	a := NewAnalytics(nil)
	defer a.Stop()

	a.SetConcurrentPlayers(7)
	if got := a.ConcurrentPlayers(); got != 7 {
		t.Errorf("ConcurrentPlayers = %d, want 7", got)
	}
}
