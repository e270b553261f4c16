package game

// Player is one participant as last reported by the server.
type Player struct {
	ID         string
	Name       string
	X, Y       float64
	Angle      float64
	Score      int
	Health     int
	Alive      bool
	Shield     bool
	SpeedBoost bool
	DoubleFire bool

	// PowerUpAt is the server timestamp of the last pickup, 0 if none.
	PowerUpAt   int64
	PowerUpKind string
}

// Bullet is a live projectile. OwnerID is a lookup key into the roster,
// the owner may already be gone.
type Bullet struct {
	ID      string
	OwnerID string
	X, Y    float64
	DX, DY  float64
}

type PowerUp struct {
	ID   string
	Kind string
	X, Y float64
}

const (
	PowerUpShield     = "SHIELD"
	PowerUpSpeedBoost = "SPEED_BOOST"
	PowerUpDoubleFire = "DOUBLE_FIRE"
)

// Roster is a read-only copy of the current snapshot tables.
type Roster struct {
	Players  []Player
	Bullets  []Bullet
	PowerUps []PowerUp
}

// Player looks up a participant by id.
func (r Roster) Player(id string) (Player, bool) {
	for _, p := range r.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Stats is the local kill/death tally.
type Stats struct {
	Kills  int
	Deaths int
}

// GameResult is the final outcome of a match.
type GameResult struct {
	WinnerID    string
	WinnerName  string
	Leaderboard []Score
}

type Score struct {
	Name  string
	Score int
}
