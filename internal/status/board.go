// Package status exposes a read-only HTTP view of the running match.
package status

import (
	"sync"
	"time"

	"tankfire/internal/game"
	"tankfire/internal/voice"
)

// View is one frame's worth of match state as seen by the local client.
type View struct {
	MatchID   string    `json:"matchId"`
	Player    string    `json:"player"`
	LocalID   string    `json:"localId,omitempty"`
	Connected bool      `json:"connected"`
	Finished  bool      `json:"finished"`
	UpdatedAt time.Time `json:"updatedAt"`

	Heat     float64 `json:"heat"`
	PingMs   int64   `json:"pingMs"`
	Kills    int     `json:"kills"`
	Deaths   int     `json:"deaths"`
	VoiceOn  bool    `json:"voiceOn"`
	WinnerID string  `json:"winnerId,omitempty"`
	Winner   string  `json:"winnerName,omitempty"`

	Roster game.Roster        `json:"-"`
	Peers  []voice.PeerStatus `json:"-"`
}

// Board holds the latest published view. The update loop publishes; HTTP
// handlers read copies.
type Board struct {
	mu   sync.RWMutex
	view View
	set  bool
}

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) Publish(v View) {
	b.mu.Lock()
	b.view = v
	b.set = true
	b.mu.Unlock()
}

// View returns the latest view and whether anything was published yet.
func (b *Board) View() (View, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.view, b.set
}
