package game

import (
	"log"
	"sort"

	"tankfire/internal/net"
)

// Reconciler owns the entity tables. Every update replaces them wholesale;
// nothing survives from one snapshot to the next except what is tracked
// about the local player.
type Reconciler struct {
	logger *log.Logger

	localName string
	localID   string

	players  []Player
	byID     map[string]int
	bullets  []Bullet
	powerUps []PowerUp

	local    int // index into players, -1 when absent
	seen     bool
	alive    bool
	pickupAt int64

	stats    Stats
	finished bool
	result   *GameResult
}

// NewReconciler creates a reconciler for a player who joined under name.
// The local id is learned from the first snapshot that lists that name.
func NewReconciler(name string, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{
		logger:    logger,
		localName: name,
		byID:      make(map[string]int),
		local:     -1,
	}
}

// Apply replaces the participant, projectile and pickup tables with the
// contents of msg and returns the events derived for the local player.
// Malformed entries are logged and skipped.
func (r *Reconciler) Apply(msg net.UpdateMessage) []Event {
	players := make([]Player, 0, len(msg.Players))
	byID := make(map[string]int, len(msg.Players))
	local := -1

	for i, raw := range msg.Players {
		ps, err := net.DecodePlayer(raw)
		if err != nil {
			r.logger.Printf("snapshot: skipping player entry %d: %v", i, err)
			continue
		}
		if _, dup := byID[ps.ID]; dup {
			r.logger.Printf("snapshot: skipping duplicate player %s", ps.ID)
			continue
		}
		byID[ps.ID] = len(players)
		players = append(players, playerFromWire(ps))

		if local < 0 && r.isLocal(ps) {
			local = len(players) - 1
		}
	}

	bullets := make([]Bullet, 0, len(msg.Bullets))
	for i, raw := range msg.Bullets {
		bs, err := net.DecodeBullet(raw)
		if err != nil {
			r.logger.Printf("snapshot: skipping bullet entry %d: %v", i, err)
			continue
		}
		bullets = append(bullets, Bullet{ID: bs.ID, OwnerID: bs.OwnerID, X: bs.X, Y: bs.Y, DX: bs.DX, DY: bs.DY})
	}

	powerUps := make([]PowerUp, 0, len(msg.PowerUps))
	for i, raw := range msg.PowerUps {
		pu, err := net.DecodePowerUp(raw)
		if err != nil {
			r.logger.Printf("snapshot: skipping power-up entry %d: %v", i, err)
			continue
		}
		powerUps = append(powerUps, PowerUp{ID: pu.ID, Kind: pu.Kind, X: pu.X, Y: pu.Y})
	}

	r.players, r.byID, r.bullets, r.powerUps = players, byID, bullets, powerUps
	r.local = local
	if local < 0 {
		return nil
	}

	me := players[local]
	if r.localID == "" {
		r.localID = me.ID
		r.logger.Printf("snapshot: resolved local player %q as %s", r.localName, me.ID)
	}
	r.stats.Kills = me.Score
	return r.diffLocal(me)
}

// isLocal matches by id once one is known. Before that, the join name is
// the only handle the client has.
func (r *Reconciler) isLocal(ps net.PlayerState) bool {
	if r.localID != "" {
		return ps.ID == r.localID
	}
	return r.localName != "" && ps.Name == r.localName
}

func (r *Reconciler) diffLocal(me Player) []Event {
	var events []Event

	if me.PowerUpAt != r.pickupAt {
		r.pickupAt = me.PowerUpAt
		if me.PowerUpAt != 0 {
			events = append(events, Event{Kind: EventBonusCollected, PlayerID: me.ID, PowerUp: me.PowerUpKind})
		}
	}

	if r.seen && me.Alive != r.alive {
		if me.Alive {
			events = append(events, Event{Kind: EventRespawned, PlayerID: me.ID})
		} else {
			r.stats.Deaths++
			events = append(events, Event{Kind: EventDown, PlayerID: me.ID})
		}
	}
	r.seen = true
	r.alive = me.Alive

	return events
}

// ApplyHit turns a hit notification into kill-feed events.
func (r *Reconciler) ApplyHit(msg net.HitMessage) []Event {
	events := []Event{{Kind: EventHit, PlayerID: msg.Target, ShooterID: msg.Shooter}}
	if r.localID != "" && msg.Shooter == r.localID && msg.Target != r.localID {
		events = append(events, Event{Kind: EventKill, PlayerID: msg.Target, ShooterID: msg.Shooter})
	}
	return events
}

// ApplyGameOver records the final result. The leaderboard is ranked by
// score, highest first, regardless of the order the server used.
func (r *Reconciler) ApplyGameOver(msg net.GameOverMessage) []Event {
	board := make([]Score, 0, len(msg.Leaderboard))
	for _, e := range msg.Leaderboard {
		board = append(board, Score{Name: e.Name, Score: e.Score})
	}
	sort.SliceStable(board, func(i, j int) bool { return board[i].Score > board[j].Score })

	res := &GameResult{WinnerID: msg.WinnerID, WinnerName: msg.WinnerName, Leaderboard: board}
	r.result = res
	r.finished = true
	return []Event{{Kind: EventGameOver, PlayerID: msg.WinnerID, Result: res}}
}

// LocalID returns the server-assigned id of the local player, or "" before
// the first snapshot that contained it.
func (r *Reconciler) LocalID() string { return r.localID }

func (r *Reconciler) LocalName() string { return r.localName }

// Local returns the local player mirror from the latest snapshot.
func (r *Reconciler) Local() (Player, bool) {
	if r.local < 0 {
		return Player{}, false
	}
	return r.players[r.local], true
}

// LocalAlive reports whether the local player can act. A player missing
// from the latest snapshot is treated as not alive.
func (r *Reconciler) LocalAlive() bool {
	p, ok := r.Local()
	return ok && p.Alive && !r.finished
}

func (r *Reconciler) Player(id string) (Player, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Player{}, false
	}
	return r.players[i], true
}

// PlayerIDs lists the participants of the latest snapshot in server order.
func (r *Reconciler) PlayerIDs() []string {
	ids := make([]string, len(r.players))
	for i, p := range r.players {
		ids[i] = p.ID
	}
	return ids
}

// Roster returns a copy of the current tables.
func (r *Reconciler) Roster() Roster {
	return Roster{
		Players:  append([]Player(nil), r.players...),
		Bullets:  append([]Bullet(nil), r.bullets...),
		PowerUps: append([]PowerUp(nil), r.powerUps...),
	}
}

func (r *Reconciler) Stats() Stats { return r.stats }

func (r *Reconciler) Finished() bool { return r.finished }

func (r *Reconciler) Result() *GameResult { return r.result }

func playerFromWire(ps net.PlayerState) Player {
	return Player{
		ID:          ps.ID,
		Name:        ps.Name,
		X:           ps.X,
		Y:           ps.Y,
		Angle:       ps.Angle,
		Score:       ps.Score,
		Health:      ps.Health,
		Alive:       ps.Alive,
		Shield:      ps.HasShield,
		SpeedBoost:  ps.SpeedBoost,
		DoubleFire:  ps.DoubleFire,
		PowerUpAt:   ps.LastPowerUpCollectTime,
		PowerUpKind: ps.LastPowerUpType,
	}
}
