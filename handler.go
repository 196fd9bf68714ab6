package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// HandleMessage decodes one inbound frame and applies it to the world.
// Malformed payloads and unknown types are dropped without touching the
// connection; a panic while handling is contained to this one message.
func (w *World) HandleMessage(senderID string, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("error processing message from %s: %v", senderID, r)
		}
	}()

	var head msgHead
	if err := json.Unmarshal(raw, &head); err != nil {
		log.Printf("invalid JSON from player %s: %v", senderID, err)
		return
	}

	switch head.Type {
	case MsgPosition:
		w.handlePosition(senderID, raw)
	case MsgPulse:
		w.handlePulse(senderID, raw)
	case MsgDamage:
		w.handleDamage(senderID, raw)
	}
}

// handlePosition overwrites the sender's transform wholesale. Absent
// fields fall back to the spawn defaults, not to the previous values.
func (w *World) handlePosition(senderID string, raw []byte) {
	t := defaultTransform()
	if err := json.Unmarshal(raw, &t); err != nil {
		log.Printf("invalid position from player %s: %v", senderID, err)
		return
	}

	w.mu.Lock()
	if st, ok := w.players[senderID]; ok {
		st.pos = t
	}
	w.mu.Unlock()
}

// handlePulse creates a pulse event, retains it, and echoes it to every
// session including the sender.
func (w *World) handlePulse(senderID string, raw []byte) {
	msg := defaultPulseMsg()
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("invalid pulse from player %s: %v", senderID, err)
		return
	}

	pulse := Pulse{
		ID:        uuid.NewString(),
		PlayerID:  senderID,
		Position:  msg.Position,
		Direction: msg.Direction,
		Speed:     max(msg.Speed, 0),
		Damage:    max(msg.Damage, 0),
		Bounces:   max(msg.Bounces, 0),
		Timestamp: unixSeconds(time.Now()),
	}

	w.mu.Lock()
	w.pulses = append(w.pulses, pulse)
	w.mu.Unlock()

	w.broadcast(NewPulseMsg{Type: MsgNewPulse, Pulse: pulse})
	w.track(EvtPulse, senderID, "")
}

// handleDamage applies client-asserted damage to the target. Health is
// clamped at zero; hitting zero triggers an immediate respawn, with the
// health update broadcast before the respawn notice.
func (w *World) handleDamage(senderID string, raw []byte) {
	var msg DamageMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("invalid damage from player %s: %v", senderID, err)
		return
	}

	w.mu.Lock()
	st, ok := w.players[msg.TargetID]
	if !ok {
		// Nonexistent target: silently ignored
		w.mu.Unlock()
		return
	}
	st.health -= msg.Damage
	if st.health < 0 {
		st.health = 0
	}
	health := st.health

	died := health == 0
	var spawn Transform
	if died {
		st.health = maxHealth
		st.pos = respawnTransform()
		spawn = st.pos
	}
	w.mu.Unlock()

	w.broadcast(HealthUpdateMsg{Type: MsgHealthUpdate, ID: msg.TargetID, Health: health})
	w.track(EvtDamage, senderID, fmt.Sprintf(`{"target":%q,"damage":%d}`, msg.TargetID, msg.Damage))

	if died {
		w.sendTo(msg.TargetID, RespawnMsg{Type: MsgRespawn, Position: spawn})
		w.track(EvtRespawn, msg.TargetID, "")
	}
}

// respawnTransform picks a respawn point with integer x/z in
// [-respawnRange, respawnRange] at eye height, looking straight ahead
func respawnTransform() Transform {
	return Transform{
		X: float64(rand.IntN(2*respawnRange+1) - respawnRange),
		Y: eyeHeight,
		Z: float64(rand.IntN(2*respawnRange+1) - respawnRange),
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
