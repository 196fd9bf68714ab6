package main

import (
	"testing"
	"time"
)

func injectPulse(w *World, age time.Duration) {
	w.mu.Lock()
	w.pulses = append(w.pulses, Pulse{
		ID:        "test",
		Timestamp: unixSeconds(time.Now().Add(-age)),
	})
	w.mu.Unlock()
}

func TestTickBroadcastsPositions(t *testing.T) {
	w := NewWorld(nil)
	c1 := &mockConn{}
	id1 := w.Register(c1)
	c2 := &mockConn{}
	id2 := w.Register(c2)

	send(w, id1, `{"type":"position","x":7,"z":-2}`)
	c1.reset()
	c2.reset()

	if !w.tick(time.Now()) {
		t.Fatal("tick faulted")
	}

	for i, c := range []*mockConn{c1, c2} {
		var upd PositionsUpdateMsg
		if !c.lastOfType(t, MsgPositionsUpdate, &upd) {
			t.Fatalf("client %d got no positions_update", i)
		}
		if len(upd.Players) != 2 {
			t.Errorf("client %d snapshot has %d players, want 2", i, len(upd.Players))
		}
		if got := upd.Players[id1]; got.X != 7 || got.Z != -2 || got.Y != eyeHeight {
			t.Errorf("client %d sees %+v for mover", i, got)
		}
		if got := upd.Players[id2]; got != defaultTransform() {
			t.Errorf("client %d sees %+v for idle player", i, got)
		}
	}
}

func TestTickWithNoSessionsStillPrunes(t *testing.T) {
	w := NewWorld(nil)
	injectPulse(w, 10*time.Second)

	if !w.tick(time.Now()) {
		t.Fatal("tick faulted")
	}
	if w.PulseCount() != 0 {
		t.Errorf("expected stale pulse pruned, have %d", w.PulseCount())
	}
}

func TestPrunePulsesHorizon(t *testing.T) {
	w := NewWorld(nil)
	injectPulse(w, 6*time.Second) // stale
	injectPulse(w, 5*time.Second) // exactly at the horizon: dropped
	injectPulse(w, time.Second)   // fresh
	injectPulse(w, 0)             // fresh

	w.prunePulses(time.Now())

	if got := w.PulseCount(); got != 2 {
		t.Errorf("retained %d pulses, want 2", got)
	}
}

func TestPulsesNotRebroadcast(t *testing.T) {
	w := NewWorld(nil)
	conn := &mockConn{}
	id := w.Register(conn)

	send(w, id, `{"type":"pulse"}`)
	conn.reset()

	w.tick(time.Now())
	w.tick(time.Now())

	if got := conn.countType(t, MsgNewPulse); got != 0 {
		t.Errorf("pulse re-broadcast %d times after initial send", got)
	}
	if w.PulseCount() != 1 {
		t.Errorf("fresh pulse should still be retained, have %d", w.PulseCount())
	}
}

func TestTickPanickingConnContained(t *testing.T) {
	w := NewWorld(nil)
	healthy := &mockConn{}
	healthyID := w.Register(healthy)
	// Build the faulty session by hand so its panic cannot fire during
	// registration fan-out
	w.mu.Lock()
	w.sessions["victim"] = &mockConn{panicSend: true}
	w.players["victim"] = newPlayerState()
	w.mu.Unlock()
	healthy.reset()

	if !w.tick(time.Now()) {
		t.Error("per-recipient fault should not abort the tick")
	}
	if w.HasPlayer("victim") {
		t.Error("panicking session still registered")
	}
	if !w.HasPlayer(healthyID) {
		t.Error("healthy session was dropped")
	}
	if healthy.countType(t, MsgPositionsUpdate) != 1 {
		t.Error("healthy session missed the broadcast")
	}
}

func TestTickSendFailureUnregistersOnlyFailedSession(t *testing.T) {
	w := NewWorld(nil)
	good := &mockConn{}
	goodID := w.Register(good)
	bad := &mockConn{}
	badID := w.Register(bad)
	bad.mu.Lock()
	bad.failSend = true
	bad.mu.Unlock()
	good.reset()

	if !w.tick(time.Now()) {
		t.Fatal("tick faulted")
	}

	if good.countType(t, MsgPositionsUpdate) != 1 {
		t.Error("healthy session missed the periodic broadcast")
	}
	if good.countType(t, MsgPlayerLeft) != 1 {
		t.Error("healthy session got no player_left for the dead one")
	}
	if w.HasPlayer(badID) {
		t.Error("dead session still registered")
	}
	if !w.HasPlayer(goodID) {
		t.Error("healthy session was dropped")
	}
}

func TestRunStopsOnShutdown(t *testing.T) {
	w := NewWorld(nil)
	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	w.Shutdown("test")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast loop did not stop on shutdown")
	}
}
