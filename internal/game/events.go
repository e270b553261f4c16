package game

type EventKind string

const (
	EventBonusCollected EventKind = "bonus-collected"
	EventDown           EventKind = "down"
	EventRespawned      EventKind = "respawned"
	EventHit            EventKind = "hit"
	EventKill           EventKind = "kill"
	EventGameOver       EventKind = "game-over"
	EventChat           EventKind = "chat-received"
	EventPeerVoice      EventKind = "peer-voice-state-changed"
	EventDisconnected   EventKind = "disconnected"
)

// Event is a notification for UI and audio collaborators. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind     EventKind
	PlayerID string

	// ShooterID is set on hit and kill events.
	ShooterID string

	// PowerUp is the pickup kind on bonus-collected.
	PowerUp string

	// Text carries chat text, a voice state name, or a disconnect reason.
	Text string

	Result *GameResult
}

// EventQueue buffers events raised during a frame until collaborators drain
// them. It is owned by the update loop and is not safe for concurrent use.
type EventQueue struct {
	events []Event
}

func (q *EventQueue) Push(events ...Event) {
	q.events = append(q.events, events...)
}

// Drain returns all queued events in order and empties the queue.
func (q *EventQueue) Drain() []Event {
	out := q.events
	q.events = nil
	return out
}

func (q *EventQueue) Len() int {
	return len(q.events)
}
