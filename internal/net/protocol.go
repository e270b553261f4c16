package net

import "encoding/json"

const (
	TypeJoin        = "join"
	TypeMove        = "move"
	TypeFire        = "fire"
	TypeChat        = "chat"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeUpdate      = "update"
	TypeHit         = "hit"
	TypeRespawn     = "respawn"
	TypeGameOver    = "game_over"
	TypeLobbyInfo   = "lobby_info"
	TypeVoiceOffer  = "voice-offer"
	TypeVoiceAnswer = "voice-answer"
	TypeVoiceICE    = "voice-ice"
)

// Inbound is a message received from the server. The set of
// implementations is closed to this package.
type Inbound interface {
	inbound()
}

// Outbound is a message the client sends to the server.
type Outbound interface {
	outbound()
}

// Client → Server messages

type JoinMessage struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type MoveMessage struct {
	Type  string `json:"type"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Angle int    `json:"angle"`
}

type FireMessage struct {
	Type      string `json:"type"`
	Angle     int    `json:"angle"`
	MouseX    int    `json:"mouseX"`
	MouseY    int    `json:"mouseY"`
	HeatLevel int    `json:"heatLevel"`
}

type PingMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type LobbyInfoRequest struct {
	Type string `json:"type"`
}

// Server → Client messages

// UpdateMessage is a full snapshot. Entries stay raw so that a malformed
// record can be rejected without losing the rest of the snapshot.
type UpdateMessage struct {
	Type     string            `json:"type"`
	Players  []json.RawMessage `json:"players"`
	Bullets  []json.RawMessage `json:"bullets"`
	PowerUps []json.RawMessage `json:"powerUps"`
}

type PlayerState struct {
	ID                     string  `json:"id"`
	Name                   string  `json:"name"`
	X                      float64 `json:"x"`
	Y                      float64 `json:"y"`
	Angle                  float64 `json:"angle"`
	Score                  int     `json:"score"`
	Health                 int     `json:"health"`
	Alive                  bool    `json:"alive"`
	HasShield              bool    `json:"hasShield"`
	SpeedBoost             bool    `json:"speedBoost"`
	DoubleFire             bool    `json:"doubleFire"`
	LastPowerUpCollectTime int64   `json:"lastPowerUpCollectTime"`
	LastPowerUpType        string  `json:"lastPowerUpType"`
}

type BulletState struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"ownerId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	DX      float64 `json:"dx"`
	DY      float64 `json:"dy"`
}

type PowerUpState struct {
	ID   string  `json:"id"`
	Kind string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type HitMessage struct {
	Type    string `json:"type"`
	Target  string `json:"target"`
	Shooter string `json:"shooter"`
}

type RespawnMessage struct {
	Type     string  `json:"type"`
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type ScoreEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type GameOverMessage struct {
	Type        string       `json:"type"`
	WinnerID    string       `json:"winnerId"`
	WinnerName  string       `json:"winnerName"`
	Leaderboard []ScoreEntry `json:"leaderboard"`
}

type PongMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type LobbyInfoMessage struct {
	Type         string       `json:"type"`
	PlayerCount  int          `json:"playerCount"`
	WinningScore int          `json:"winningScore"`
	Players      []ScoreEntry `json:"players"`
}

// Both directions

// ChatMessage is sent by the client and broadcast back by the server.
type ChatMessage struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Voice signaling messages carry Target on the way out; the server relays
// them with From set to the sender.
type VoiceOfferMessage struct {
	Type   string             `json:"type"`
	Target string             `json:"target,omitempty"`
	From   string             `json:"from,omitempty"`
	Offer  SessionDescription `json:"offer"`
}

type VoiceAnswerMessage struct {
	Type   string             `json:"type"`
	Target string             `json:"target,omitempty"`
	From   string             `json:"from,omitempty"`
	Answer SessionDescription `json:"answer"`
}

type VoiceICEMessage struct {
	Type      string       `json:"type"`
	Target    string       `json:"target,omitempty"`
	From      string       `json:"from,omitempty"`
	Candidate ICECandidate `json:"candidate"`
}

func (JoinMessage) outbound()        {}
func (MoveMessage) outbound()        {}
func (FireMessage) outbound()        {}
func (PingMessage) outbound()        {}
func (LobbyInfoRequest) outbound()   {}
func (ChatMessage) outbound()        {}
func (VoiceOfferMessage) outbound()  {}
func (VoiceAnswerMessage) outbound() {}
func (VoiceICEMessage) outbound()    {}

func (UpdateMessage) inbound()      {}
func (HitMessage) inbound()         {}
func (RespawnMessage) inbound()     {}
func (GameOverMessage) inbound()    {}
func (PongMessage) inbound()        {}
func (LobbyInfoMessage) inbound()   {}
func (ChatMessage) inbound()        {}
func (VoiceOfferMessage) inbound()  {}
func (VoiceAnswerMessage) inbound() {}
func (VoiceICEMessage) inbound()    {}
