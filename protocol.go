package main

// Client -> Server message types
const (
	MsgPosition = "position"
	MsgPulse    = "pulse"
	MsgDamage   = "damage"
)

// Server -> Client message types
const (
	MsgRegister        = "register"
	MsgPlayerJoined    = "player_joined"
	MsgPlayerLeft      = "player_left"
	MsgPositionsUpdate = "positions_update"
	MsgNewPulse        = "new_pulse"
	MsgHealthUpdate    = "health_update"
	MsgRespawn         = "respawn"
)

// msgHead is the first-pass decode of every inbound message.
// Unknown or missing types are ignored, not errors.
type msgHead struct {
	Type string `json:"type"`
}

// Vec3 is a point or direction in world space
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Transform is a player's position plus look direction.
// RX is pitch, RY is yaw, both in radians.
type Transform struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	RX float64 `json:"rx"`
	RY float64 `json:"ry"`
}

// defaultTransform is the spawn transform: world origin at eye height
func defaultTransform() Transform {
	return Transform{Y: eyeHeight}
}

// PulseMsg is an inbound request to fire a sonic pulse.
// Decode into defaultPulseMsg() so absent fields keep their defaults.
type PulseMsg struct {
	Position  Vec3    `json:"position"`
	Direction Vec3    `json:"direction"`
	Speed     float64 `json:"speed"`
	Damage    int     `json:"damage"`
	Bounces   int     `json:"bounces"`
}

func defaultPulseMsg() PulseMsg {
	return PulseMsg{Speed: defaultPulseSpeed, Damage: defaultPulseDamage}
}

// DamageMsg is an inbound damage assertion against another player
type DamageMsg struct {
	TargetID string `json:"target_id"`
	Damage   int    `json:"damage"`
}

// Pulse is a transient pulse event, broadcast once and retained
// briefly for future bounce resolution. Timestamp is Unix seconds.
type Pulse struct {
	ID        string  `json:"id"`
	PlayerID  string  `json:"player_id"`
	Position  Vec3    `json:"position"`
	Direction Vec3    `json:"direction"`
	Speed     float64 `json:"speed"`
	Damage    int     `json:"damage"`
	Bounces   int     `json:"bounces"`
	Timestamp float64 `json:"timestamp"`
}

// RegisterMsg tells a freshly connected client its player ID
type RegisterMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// PlayerJoinedMsg announces a player with their current state
type PlayerJoinedMsg struct {
	Type     string    `json:"type"`
	ID       string    `json:"id"`
	Position Transform `json:"position"`
	Health   int       `json:"health"`
}

// PlayerLeftMsg announces a disconnect
type PlayerLeftMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// PositionsUpdateMsg is the periodic full-state broadcast
type PositionsUpdateMsg struct {
	Type    string               `json:"type"`
	Players map[string]Transform `json:"players"`
}

// NewPulseMsg broadcasts a freshly fired pulse to every player
type NewPulseMsg struct {
	Type  string `json:"type"`
	Pulse Pulse  `json:"pulse"`
}

// HealthUpdateMsg broadcasts a player's health after a damage hit
type HealthUpdateMsg struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Health int    `json:"health"`
}

// RespawnMsg is sent only to the respawning player
type RespawnMsg struct {
	Type     string    `json:"type"`
	Position Transform `json:"position"`
}
