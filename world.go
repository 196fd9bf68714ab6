package main

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

const (
	maxHealth          = 100
	eyeHeight          = 1.7
	defaultPulseSpeed  = 15
	defaultPulseDamage = 20
	respawnRange       = 5 // respawn x/z drawn from [-respawnRange, respawnRange]
)

// Conn is the transport handle bound to one session. Send must not
// block; it reports an error only when the connection is gone for good.
type Conn interface {
	Send(data []byte) error
	Close(reason string) error
}

// playerState is the authoritative per-session state
type playerState struct {
	pos    Transform
	health int
}

func newPlayerState() *playerState {
	return &playerState{pos: defaultTransform(), health: maxHealth}
}

// World owns all shared game state: the session map, player states and
// the retained pulse list. Every mutation goes through its methods and
// is guarded by the mutex; connection goroutines and the broadcast loop
// all share one World.
type World struct {
	mu       sync.RWMutex
	sessions map[string]Conn
	players  map[string]*playerState
	pulses   []Pulse

	stop      chan struct{}
	stopOnce  sync.Once
	analytics *Analytics // optional, nil when running without a database
}

// NewWorld creates an empty world. analytics may be nil.
func NewWorld(analytics *Analytics) *World {
	return &World{
		sessions:  make(map[string]Conn),
		players:   make(map[string]*playerState),
		stop:      make(chan struct{}),
		analytics: analytics,
	}
}

// Register assigns a fresh ID to the connection, creates its default
// player state and exchanges join notifications: the new client learns
// about every existing player before the others learn about it.
func (w *World) Register(conn Conn) string {
	id := uuid.NewString()

	w.mu.Lock()
	w.sessions[id] = conn
	w.players[id] = newPlayerState()

	peers := make([]PlayerJoinedMsg, 0, len(w.players)-1)
	others := make([]recipient, 0, len(w.sessions)-1)
	for pid, st := range w.players {
		if pid == id {
			continue
		}
		peers = append(peers, PlayerJoinedMsg{Type: MsgPlayerJoined, ID: pid, Position: st.pos, Health: st.health})
		others = append(others, recipient{id: pid, conn: w.sessions[pid]})
	}
	total := len(w.sessions)
	w.mu.Unlock()

	if !w.sendToConn(id, conn, RegisterMsg{Type: MsgRegister, ID: id}) {
		return id
	}
	for _, msg := range peers {
		if !w.sendToConn(id, conn, msg) {
			return id
		}
	}

	joined := PlayerJoinedMsg{Type: MsgPlayerJoined, ID: id, Position: defaultTransform(), Health: maxHealth}
	data, err := json.Marshal(joined)
	if err == nil {
		w.deliver(others, data)
	}

	w.track(EvtConnect, id, "")
	w.setPlayerMetric(total)
	log.Printf("player %s connected. total players: %d", id, total)
	return id
}

// Unregister removes the session and its player state and tells the
// remaining players. Safe to call repeatedly; only the first call for
// an ID has any effect.
func (w *World) Unregister(id string) {
	w.mu.Lock()
	if _, ok := w.sessions[id]; !ok {
		w.mu.Unlock()
		return
	}
	delete(w.sessions, id)
	delete(w.players, id)
	remaining := len(w.sessions)
	w.mu.Unlock()

	w.broadcast(PlayerLeftMsg{Type: MsgPlayerLeft, ID: id})
	w.track(EvtDisconnect, id, "")
	w.setPlayerMetric(remaining)
	log.Printf("player %s disconnected. remaining players: %d", id, remaining)
}

// PlayerCount returns the number of live sessions
func (w *World) PlayerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sessions)
}

// HasPlayer reports whether a player state exists for the ID
func (w *World) HasPlayer(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.players[id]
	return ok
}

// Health returns a player's current health
func (w *World) Health(id string) (int, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	st, ok := w.players[id]
	if !ok {
		return 0, false
	}
	return st.health, true
}

type recipient struct {
	id   string
	conn Conn
}

// recipients returns a point-in-time copy of the session map. Fan-out
// always iterates such a copy so failed sessions can be unregistered
// after the pass instead of mutating the map mid-iteration.
func (w *World) recipients() []recipient {
	w.mu.RLock()
	defer w.mu.RUnlock()
	list := make([]recipient, 0, len(w.sessions))
	for id, conn := range w.sessions {
		list = append(list, recipient{id: id, conn: conn})
	}
	return list
}

// BroadcastAll delivers one payload to every live session. A failed
// send never aborts the pass; failing sessions are unregistered once
// the pass completes.
func (w *World) BroadcastAll(data []byte) {
	w.deliver(w.recipients(), data)
}

func (w *World) deliver(list []recipient, data []byte) {
	var failed []string
	for _, r := range list {
		if err := safeSend(r.conn, data); err != nil {
			log.Printf("send to %s failed: %v", r.id, err)
			failed = append(failed, r.id)
		}
	}
	for _, id := range failed {
		w.Unregister(id)
	}
}

// safeSend contains any fault inside a single delivery attempt
func safeSend(conn Conn, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panic: %v", r)
		}
	}()
	return conn.Send(data)
}

// SendToOne delivers a payload to a single session, unregistering it
// on failure. Unknown IDs are ignored.
func (w *World) SendToOne(id string, data []byte) {
	w.mu.RLock()
	conn, ok := w.sessions[id]
	w.mu.RUnlock()
	if !ok {
		return
	}
	if err := safeSend(conn, data); err != nil {
		log.Printf("send to %s failed: %v", id, err)
		w.Unregister(id)
	}
}

// broadcast marshals a message once and fans it out
func (w *World) broadcast(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	w.BroadcastAll(data)
}

// sendTo marshals a message and sends it to one session
func (w *World) sendTo(id string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	w.SendToOne(id, data)
}

// sendToConn sends to a known connection during registration, before
// the normal fan-out paths apply. Reports false after unregistering
// the session on failure.
func (w *World) sendToConn(id string, conn Conn, msg interface{}) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return true
	}
	if err := safeSend(conn, data); err != nil {
		log.Printf("send to %s failed: %v", id, err)
		w.Unregister(id)
		return false
	}
	return true
}

// Shutdown stops the broadcast loop and closes every live connection
// with the given reason. Called once during orderly teardown.
func (w *World) Shutdown(reason string) {
	w.stopOnce.Do(func() { close(w.stop) })

	w.mu.Lock()
	conns := make([]Conn, 0, len(w.sessions))
	for _, conn := range w.sessions {
		conns = append(conns, conn)
	}
	w.sessions = make(map[string]Conn)
	w.players = make(map[string]*playerState)
	w.pulses = nil
	w.mu.Unlock()

	for _, conn := range conns {
		conn.Close(reason)
	}
}

func (w *World) track(evtType, sessionID, data string) {
	if w.analytics != nil {
		w.analytics.Track(evtType, sessionID, data)
	}
}

func (w *World) setPlayerMetric(n int) {
	if w.analytics != nil {
		w.analytics.SetConcurrentPlayers(n)
	}
}
