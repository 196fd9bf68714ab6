package main

import (
	"log"
	"sync"
	"time"
)

// Event types for analytics tracking
const (
	EvtConnect    = "connect"
	EvtDisconnect = "disconnect"
	EvtPulse      = "pulse_fired"
	EvtDamage     = "damage_dealt"
	EvtRespawn    = "respawn"
)

const (
	analyticsBufSize    = 1024
	analyticsBatchSize  = 50
	analyticsFlushEvery = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	SessionID string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup

	mu                sync.RWMutex
	concurrentPlayers int
}

// Metrics is the admin API response
type Metrics struct {
	ConcurrentPlayers int            `json:"concurrent_players"`
	TotalEvents       int            `json:"total_events"`
	EventsToday       map[string]int `json:"events_today"`
	SessionsToday     int            `json:"sessions_today"`
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, analyticsBufSize),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking).
// Events arriving after Stop are dropped.
func (a *Analytics) Track(evtType, sessionID, data string) {
	select {
	case <-a.stop:
		return
	default:
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full: drop the event rather than block the game
	}
}

// SetConcurrentPlayers updates the live player count metric
func (a *Analytics) SetConcurrentPlayers(n int) {
	a.mu.Lock()
	a.concurrentPlayers = n
	a.mu.Unlock()
}

// ConcurrentPlayers returns the live player count metric
func (a *Analytics) ConcurrentPlayers() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.concurrentPlayers
}

// Metrics gathers the admin API figures from the event log
func (a *Analytics) Metrics() (*Metrics, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	total, err := a.db.EventCount()
	if err != nil {
		return nil, err
	}
	today, err := a.db.EventCountsSince(midnight)
	if err != nil {
		return nil, err
	}
	sessions, err := a.db.ActiveSessionsSince(midnight)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		ConcurrentPlayers: a.ConcurrentPlayers(),
		TotalEvents:       total,
		EventsToday:       today,
		SessionsToday:     sessions,
	}, nil
}

// Stop gracefully shuts down the analytics writer
func (a *Analytics) Stop() {
	close(a.stop)
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			// Flush immediately if batch is large
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			// Drain whatever is already buffered. The channel is never
			// closed: game goroutines may still be inside Track.
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					if len(batch) > 0 {
						a.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	if err := a.db.InsertEvents(events); err != nil {
		log.Printf("analytics: flush error: %v", err)
	}
}
