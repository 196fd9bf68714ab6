package main

import (
	"encoding/json"
	"log"
	"time"
)

const (
	tickInterval = 100 * time.Millisecond
	pulseTTL     = 5 * time.Second
	tickCooldown = time.Second // pause after a faulted tick
)

// Run is the broadcast loop: every tick it fans the current positions
// out to all sessions and prunes expired pulses. It runs until
// Shutdown and survives any fault inside a single tick.
func (w *World) Run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if !w.tick(time.Now()) {
				select {
				case <-w.stop:
					return
				case <-time.After(tickCooldown):
				}
			}
		}
	}
}

// tick runs one broadcast pass. Reports false if the pass faulted.
func (w *World) tick(now time.Time) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("broadcast tick error: %v", r)
			ok = false
		}
	}()

	if data, live := w.snapshotPositions(); live {
		w.BroadcastAll(data)
	}
	w.prunePulses(now)
	return true
}

// snapshotPositions builds the positions_update payload from the
// current player map. Returns live=false when nobody is connected.
func (w *World) snapshotPositions() (data []byte, live bool) {
	w.mu.RLock()
	if len(w.sessions) == 0 {
		w.mu.RUnlock()
		return nil, false
	}
	players := make(map[string]Transform, len(w.players))
	for id, st := range w.players {
		players[id] = st.pos
	}
	w.mu.RUnlock()

	data, err := json.Marshal(PositionsUpdateMsg{Type: MsgPositionsUpdate, Players: players})
	if err != nil {
		log.Printf("marshal error: %v", err)
		return nil, false
	}
	return data, true
}

// prunePulses drops pulses that have been retained for pulseTTL or
// longer. Pulses are never re-broadcast; only the retention set shrinks.
func (w *World) prunePulses(now time.Time) {
	cutoff := unixSeconds(now) - pulseTTL.Seconds()

	w.mu.Lock()
	kept := w.pulses[:0]
	for _, p := range w.pulses {
		if p.Timestamp > cutoff {
			kept = append(kept, p)
		}
	}
	w.pulses = kept
	w.mu.Unlock()
}

// PulseCount returns the number of retained pulse events
func (w *World) PulseCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.pulses)
}
