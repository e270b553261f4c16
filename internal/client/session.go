package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tankfire/internal/game"
	"tankfire/internal/net"
	"tankfire/internal/status"
	"tankfire/internal/voice"
)

var ErrDisconnected = errors.New("disconnected from server")

// Publisher receives one status view per frame.
type Publisher interface {
	Publish(v status.View)
}

// Recorder receives every applied snapshot.
type Recorder interface {
	Record(at time.Time, roster game.Roster) error
}

// link is the part of Transport a match drives.
type link interface {
	Send(msg net.Outbound)
	Drain(handle func([]byte)) int
	Disconnected() <-chan error
	Close() error
}

type Options struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	Weapon         game.WeaponConfig

	// Voice opens peer channels. Without it voice stays off.
	Voice              voice.PeerChannelFactory
	VoiceEnabled       bool
	NegotiationTimeout time.Duration

	Publisher Publisher
	Recorder  Recorder
	Logger    *log.Logger
}

// Match is one joined game. Every method must be called from the host's
// update loop; only the transport pumps run elsewhere.
type Match struct {
	id     string
	logger *log.Logger
	link   link

	recon   *game.Reconciler
	heat    *game.HeatController
	emitter *Emitter
	probe   *LatencyProbe
	voice   *voice.Coordinator
	events  game.EventQueue

	publisher Publisher
	recorder  Recorder

	voiceAvailable bool

	now      time.Time
	lastTick time.Time
	err      error
}

// Join connects to opts.URL and announces the player. The returned match is
// live until Leave or a disconnect.
func Join(ctx context.Context, opts Options) (*Match, error) {
	id := uuid.NewString()
	logger := matchLogger(opts.Logger, id)

	t := NewTransport(opts.ConnectTimeout, logger)
	if err := t.Connect(ctx, opts.URL); err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	m := newMatch(id, t, opts, logger)
	t.Send(net.JoinMessage{Name: opts.Name})
	logger.Printf("joined %s as %q", opts.URL, opts.Name)
	return m, nil
}

func matchLogger(base *log.Logger, id string) *log.Logger {
	if base == nil {
		base = log.Default()
	}
	return log.New(base.Writer(), fmt.Sprintf("[match %s] ", id[:8]), base.Flags())
}

func newMatch(id string, l link, opts Options, logger *log.Logger) *Match {
	weapon := opts.Weapon
	if weapon.MaxHeat <= 0 {
		weapon = game.DefaultWeapon()
	}
	m := &Match{
		id:        id,
		logger:    logger,
		link:      l,
		recon:     game.NewReconciler(opts.Name, logger),
		heat:      game.NewHeatController(weapon),
		probe:     NewLatencyProbe(opts.PingInterval),
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
	}
	m.emitter = NewEmitter(l, m.heat, m.recon)

	factory := opts.Voice
	if factory == nil {
		factory = noVoice{}
	}
	m.voiceAvailable = opts.Voice != nil
	m.voice = voice.NewCoordinator(factory, l, voice.Options{
		Logger:             logger,
		NegotiationTimeout: opts.NegotiationTimeout,
		OnStateChange: func(peerID string, s voice.State) {
			m.events.Push(game.Event{Kind: game.EventPeerVoice, PlayerID: peerID, Text: s.String()})
		},
	})
	if opts.VoiceEnabled && m.voiceAvailable {
		m.voice.SetEnabled(true, nil)
	}
	return m
}

// SetRecorder starts recording applied snapshots to rec.
func (m *Match) SetRecorder(rec Recorder) { m.recorder = rec }

// ID is the match id used in logs and recordings.
func (m *Match) ID() string { return m.id }

// Update advances the match by one frame: it applies everything received
// since the last frame, cools the weapon, pings, and drives voice
// negotiation. After a disconnect every call returns the same error.
func (m *Match) Update(now time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.now = now
	m.link.Drain(m.handleFrame)

	select {
	case err := <-m.link.Disconnected():
		// The reader queues its last frames before it reports the loss.
		m.link.Drain(m.handleFrame)
		m.logger.Printf("connection lost: %v", err)
		m.voice.CloseAll("disconnected")
		m.events.Push(game.Event{Kind: game.EventDisconnected, Text: err.Error()})
		m.err = fmt.Errorf("match %s: %w: %v", m.id, ErrDisconnected, err)
		m.publish(now, false)
		return m.err
	default:
	}

	if !m.lastTick.IsZero() {
		m.heat.Tick(now.Sub(m.lastTick))
	}
	m.lastTick = now

	if ping, ok := m.probe.Tick(now); ok {
		m.link.Send(ping)
	}
	m.voice.Pump()
	m.voice.Tick(now)
	m.publish(now, true)
	return nil
}

func (m *Match) handleFrame(frame []byte) {
	msg, err := net.Decode(frame)
	if err != nil {
		m.logger.Printf("dropping frame: %v", err)
		return
	}
	m.dispatch(msg)
}

func (m *Match) dispatch(msg net.Inbound) {
	switch msg := msg.(type) {
	case net.UpdateMessage:
		m.events.Push(m.recon.Apply(msg)...)
		m.voice.SetLocalID(m.recon.LocalID())
		m.voice.SyncRoster(m.recon.PlayerIDs())
		if m.recorder != nil {
			if err := m.recorder.Record(m.now, m.recon.Roster()); err != nil {
				m.logger.Printf("replay: %v", err)
			}
		}
	case net.HitMessage:
		m.events.Push(m.recon.ApplyHit(msg)...)
	case net.GameOverMessage:
		m.events.Push(m.recon.ApplyGameOver(msg)...)
		m.logger.Printf("game over, winner %q", msg.WinnerName)
	case net.RespawnMessage:
		// The next update carries the new position and alive flag.
		m.logger.Printf("respawn %s at (%.0f,%.0f)", msg.PlayerID, msg.X, msg.Y)
	case net.ChatMessage:
		m.events.Push(game.Event{Kind: game.EventChat, Text: msg.Msg})
	case net.PongMessage:
		m.probe.HandlePong(msg, m.now)
	case net.LobbyInfoMessage:
		// Only the lobby watcher cares about these.
	case net.VoiceOfferMessage:
		m.voice.HandleOffer(msg)
	case net.VoiceAnswerMessage:
		m.voice.HandleAnswer(msg)
	case net.VoiceICEMessage:
		m.voice.HandleICE(msg)
	}
}

func (m *Match) publish(now time.Time, connected bool) {
	if m.publisher == nil {
		return
	}
	stats := m.recon.Stats()
	v := status.View{
		MatchID:   m.id,
		Player:    m.recon.LocalName(),
		LocalID:   m.recon.LocalID(),
		Connected: connected,
		Finished:  m.recon.Finished(),
		UpdatedAt: now,
		Heat:      m.heat.Heat(),
		Kills:     stats.Kills,
		Deaths:    stats.Deaths,
		VoiceOn:   m.voice.Enabled(),
		Roster:    m.recon.Roster(),
		Peers:     m.voice.Peers(),
	}
	if rtt, ok := m.probe.RTT(); ok {
		v.PingMs = rtt.Milliseconds()
	}
	if r := m.recon.Result(); r != nil {
		v.WinnerID = r.WinnerID
		v.Winner = r.WinnerName
	}
	m.publisher.Publish(v)
}

// Steer moves the local player one step in the held direction and faces the
// cursor. Nothing is sent when the result matches what was sent last.
func (m *Match) Steer(s game.Steering, cursorX, cursorY float64) bool {
	me, ok := m.recon.Local()
	if !ok {
		return false
	}
	x, y := me.X, me.Y
	if !s.Idle() {
		x, y = game.Steer(me, s)
	}
	return m.emitter.Move(x, y, game.AimAngle(me, cursorX, cursorY))
}

// Fire shoots at the cursor if the weapon is ready.
func (m *Match) Fire(now time.Time, cursorX, cursorY float64) bool {
	me, ok := m.recon.Local()
	if !ok {
		return false
	}
	return m.emitter.Fire(now, game.AimAngle(me, cursorX, cursorY), cursorX, cursorY)
}

func (m *Match) Chat(text string) bool { return m.emitter.Chat(text) }

// SetVoice turns voice chat on or off. It reports false when the match was
// joined without a voice factory.
func (m *Match) SetVoice(enabled bool) bool {
	if enabled && !m.voiceAvailable {
		return false
	}
	m.voice.SetEnabled(enabled, m.recon.PlayerIDs())
	return true
}

func (m *Match) VoiceEnabled() bool { return m.voice.Enabled() }

// Events drains the notifications raised since the last call.
func (m *Match) Events() []game.Event { return m.events.Drain() }

func (m *Match) Roster() game.Roster { return m.recon.Roster() }

func (m *Match) Local() (game.Player, bool) { return m.recon.Local() }

func (m *Match) LocalID() string { return m.recon.LocalID() }

func (m *Match) Heat() *game.HeatController { return m.heat }

func (m *Match) Stats() game.Stats { return m.recon.Stats() }

func (m *Match) Result() *game.GameResult { return m.recon.Result() }

func (m *Match) Ping() (time.Duration, bool) { return m.probe.RTT() }

func (m *Match) VoicePeers() []voice.PeerStatus { return m.voice.Peers() }

// Leave closes every peer session and the connection.
func (m *Match) Leave() error {
	m.voice.CloseAll("leaving")
	if m.err == nil {
		m.err = fmt.Errorf("match %s: left", m.id)
	}
	return m.link.Close()
}

type noVoice struct{}

func (noVoice) NewChannel(string, voice.Callbacks) (voice.PeerChannel, error) {
	return nil, errors.New("voice not available")
}
