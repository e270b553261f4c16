// Package voice negotiates one audio channel per remote participant over
// the game connection.
package voice

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"tankfire/internal/net"
)

// ErrChannelClosed is returned by channels closed more than once.
var ErrChannelClosed = errors.New("voice: channel closed")

// State is the negotiation state of one peer session. A peer with no
// session is absent.
type State int

const (
	StateOffering State = iota + 1
	StateAwaitingAnswer
	StateAnswering
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateAnswering:
		return "answering"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "absent"
	}
}

// ChannelState is what the media layer reports about a channel.
type ChannelState int

const (
	ChannelConnected ChannelState = iota + 1
	ChannelFailed
	ChannelClosed
)

// Callbacks are invoked by a PeerChannel from any goroutine.
type Callbacks struct {
	OnCandidate func(net.ICECandidate)
	OnState     func(ChannelState)
}

// PeerChannel is one direct media connection. CreateOffer and AcceptOffer
// may block; the coordinator never calls them on the update loop.
type PeerChannel interface {
	CreateOffer() (net.SessionDescription, error)
	AcceptOffer(offer net.SessionDescription) (net.SessionDescription, error)
	SetAnswer(answer net.SessionDescription) error
	AddCandidate(c net.ICECandidate) error
	Close() error
}

type PeerChannelFactory interface {
	NewChannel(peerID string, cb Callbacks) (PeerChannel, error)
}

// Sender delivers signaling messages. Delivery is best effort.
type Sender interface {
	Send(msg net.Outbound)
}

type Options struct {
	Logger             *log.Logger
	NegotiationTimeout time.Duration

	// RetryDelay is how long a peer whose session failed waits before the
	// next offer from this side. Defaults to 5s.
	RetryDelay time.Duration

	// OnStateChange is called on the update loop for every transition.
	OnStateChange func(peerID string, s State)

	// Spawn runs blocking negotiation steps. Defaults to a new goroutine.
	Spawn func(func())
	Now   func() time.Time
}

type session struct {
	peerID  string
	gen     uint64
	state   State
	ch      PeerChannel
	started time.Time

	remoteSet     bool
	pendingRemote []net.ICECandidate
	queuedAnswer  *net.SessionDescription

	localSent    bool
	pendingLocal []net.ICECandidate
}

// Coordinator owns every peer session. All methods except the channel
// callbacks must be called from the update loop.
type Coordinator struct {
	logger  *log.Logger
	factory PeerChannelFactory
	sender  Sender
	onState func(string, State)
	spawn   func(func())
	now     func() time.Time
	timeout time.Duration
	retry   time.Duration

	localID  string
	enabled  bool
	sessions map[string]*session
	retryAt  map[string]time.Time
	gen      uint64

	mu     sync.Mutex
	posted []func()
}

func NewCoordinator(factory PeerChannelFactory, sender Sender, opts Options) *Coordinator {
	c := &Coordinator{
		logger:   opts.Logger,
		factory:  factory,
		sender:   sender,
		onState:  opts.OnStateChange,
		spawn:    opts.Spawn,
		now:      opts.Now,
		timeout:  opts.NegotiationTimeout,
		retry:    opts.RetryDelay,
		sessions: make(map[string]*session),
		retryAt:  make(map[string]time.Time),
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if c.spawn == nil {
		c.spawn = func(f func()) { go f() }
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.retry <= 0 {
		c.retry = 5 * time.Second
	}
	return c
}

// SetLocalID sets the identity used for addressing and tie-breaking.
func (c *Coordinator) SetLocalID(id string) { c.localID = id }

func (c *Coordinator) Enabled() bool { return c.enabled }

// SetEnabled turns voice on or off. Turning it off closes every session;
// turning it on offers to the eligible members of roster.
func (c *Coordinator) SetEnabled(enabled bool, roster []string) {
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if !enabled {
		c.CloseAll("voice disabled")
		clear(c.retryAt)
		return
	}
	c.SyncRoster(roster)
}

// SyncRoster closes sessions for peers that left and, while voice is on,
// opens sessions toward new peers this side is responsible for offering to.
func (c *Coordinator) SyncRoster(ids []string) {
	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}
	for id, s := range c.sessions {
		if !present[id] {
			c.closeSession(s, "left roster")
		}
	}
	for id := range c.retryAt {
		if !present[id] {
			delete(c.retryAt, id)
		}
	}

	if !c.enabled || c.localID == "" {
		return
	}
	for _, id := range ids {
		if id == c.localID || !c.initiates(id) {
			continue
		}
		if _, ok := c.sessions[id]; ok {
			continue
		}
		if until, ok := c.retryAt[id]; ok && c.now().Before(until) {
			continue
		}
		c.startOffer(id)
	}
}

// initiates reports whether the local side offers to peer. Only the lower
// identifier offers, so two clients never race offers at each other.
func (c *Coordinator) initiates(peer string) bool {
	return c.localID < peer
}

func (c *Coordinator) openSession(peerID string, state State) (*session, bool) {
	c.gen++
	gen := c.gen
	ch, err := c.factory.NewChannel(peerID, c.callbacks(peerID, gen))
	if err != nil {
		c.logger.Printf("voice: open channel to %s: %v", peerID, err)
		c.retryAt[peerID] = c.now().Add(c.retry)
		return nil, false
	}
	s := &session{peerID: peerID, gen: gen, ch: ch, started: c.now()}
	c.sessions[peerID] = s
	c.setState(s, state)
	return s, true
}

func (c *Coordinator) startOffer(peerID string) {
	s, ok := c.openSession(peerID, StateOffering)
	if !ok {
		return
	}
	ch, gen := s.ch, s.gen
	c.spawn(func() {
		offer, err := ch.CreateOffer()
		c.post(peerID, gen, func(s *session) {
			if err != nil {
				c.failSession(s, "create offer: "+err.Error())
				return
			}
			c.sender.Send(net.VoiceOfferMessage{Target: peerID, Offer: offer})
			c.markLocalSent(s)
			c.setState(s, StateAwaitingAnswer)
			if s.queuedAnswer != nil {
				answer := *s.queuedAnswer
				s.queuedAnswer = nil
				c.applyAnswer(s, answer)
			}
		})
	})
}

// HandleOffer answers an inbound offer. An offer for a peer that already
// has a session is ignored: the first session wins.
func (c *Coordinator) HandleOffer(msg net.VoiceOfferMessage) {
	if !c.addressedToUs(msg.Target, msg.From) {
		return
	}
	if !c.enabled {
		c.logger.Printf("voice: ignoring offer from %s, voice disabled", msg.From)
		return
	}
	if s, ok := c.sessions[msg.From]; ok {
		c.logger.Printf("voice: ignoring offer from %s, session already %s", msg.From, s.state)
		return
	}

	peerID := msg.From
	s, ok := c.openSession(peerID, StateAnswering)
	if !ok {
		return
	}
	ch, gen, offer := s.ch, s.gen, msg.Offer
	c.spawn(func() {
		answer, err := ch.AcceptOffer(offer)
		c.post(peerID, gen, func(s *session) {
			if err != nil {
				c.failSession(s, "accept offer: "+err.Error())
				return
			}
			c.sender.Send(net.VoiceAnswerMessage{Target: peerID, Answer: answer})
			c.markLocalSent(s)
			c.markRemoteSet(s)
			if s.state == StateAnswering {
				c.setState(s, StateConnecting)
			}
		})
	})
}

// HandleAnswer completes a local offer. An answer that arrives while the
// offer is still being created is held until the offer has been sent.
func (c *Coordinator) HandleAnswer(msg net.VoiceAnswerMessage) {
	if !c.addressedToUs(msg.Target, msg.From) {
		return
	}
	s, ok := c.sessions[msg.From]
	if !ok {
		return
	}
	switch s.state {
	case StateOffering:
		answer := msg.Answer
		s.queuedAnswer = &answer
	case StateAwaitingAnswer:
		c.applyAnswer(s, msg.Answer)
	default:
		c.logger.Printf("voice: ignoring answer from %s in state %s", msg.From, s.state)
	}
}

func (c *Coordinator) applyAnswer(s *session, answer net.SessionDescription) {
	if err := s.ch.SetAnswer(answer); err != nil {
		c.failSession(s, "set answer: "+err.Error())
		return
	}
	c.setState(s, StateConnecting)
	c.markRemoteSet(s)
}

// HandleICE applies a remote candidate, or buffers it until the remote
// description for that peer is in place.
func (c *Coordinator) HandleICE(msg net.VoiceICEMessage) {
	if !c.addressedToUs(msg.Target, msg.From) {
		return
	}
	s, ok := c.sessions[msg.From]
	if !ok {
		return
	}
	if !s.remoteSet {
		s.pendingRemote = append(s.pendingRemote, msg.Candidate)
		return
	}
	c.addCandidate(s, msg.Candidate)
}

func (c *Coordinator) markRemoteSet(s *session) {
	s.remoteSet = true
	pending := s.pendingRemote
	s.pendingRemote = nil
	for _, cand := range pending {
		if s.state == StateClosed {
			return
		}
		c.addCandidate(s, cand)
	}
}

func (c *Coordinator) addCandidate(s *session, cand net.ICECandidate) {
	if err := s.ch.AddCandidate(cand); err != nil {
		c.logger.Printf("voice: add candidate from %s: %v", s.peerID, err)
	}
}

func (c *Coordinator) markLocalSent(s *session) {
	s.localSent = true
	pending := s.pendingLocal
	s.pendingLocal = nil
	for _, cand := range pending {
		c.sender.Send(net.VoiceICEMessage{Target: s.peerID, Candidate: cand})
	}
}

func (c *Coordinator) callbacks(peerID string, gen uint64) Callbacks {
	return Callbacks{
		OnCandidate: func(cand net.ICECandidate) {
			c.post(peerID, gen, func(s *session) {
				// The remote side drops candidates for a session it has not
				// seen an offer or answer for yet.
				if !s.localSent {
					s.pendingLocal = append(s.pendingLocal, cand)
					return
				}
				c.sender.Send(net.VoiceICEMessage{Target: peerID, Candidate: cand})
			})
		},
		OnState: func(st ChannelState) {
			c.post(peerID, gen, func(s *session) {
				switch st {
				case ChannelConnected:
					delete(c.retryAt, peerID)
					c.setState(s, StateConnected)
				case ChannelFailed:
					c.failSession(s, "channel failed")
				case ChannelClosed:
					c.failSession(s, "channel closed")
				}
			})
		},
	}
}

// post queues fn to run on the update loop. It is dropped if the session
// it was issued for has since been closed or replaced.
func (c *Coordinator) post(peerID string, gen uint64, fn func(*session)) {
	c.mu.Lock()
	c.posted = append(c.posted, func() {
		s, ok := c.sessions[peerID]
		if !ok || s.gen != gen || s.state == StateClosed {
			return
		}
		fn(s)
	})
	c.mu.Unlock()
}

// Pump runs the continuations posted since the last call, in order.
func (c *Coordinator) Pump() {
	for {
		c.mu.Lock()
		batch := c.posted
		c.posted = nil
		c.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// Tick closes sessions that failed to connect in time. The peer becomes
// eligible for a fresh offer on the next roster sync.
func (c *Coordinator) Tick(now time.Time) {
	for _, s := range c.sessions {
		if s.state != StateConnected && now.Sub(s.started) > c.timeout {
			c.failSession(s, "negotiation timed out")
		}
	}
}

// Close ends the session with peerID, if any. Closing twice is a no-op.
func (c *Coordinator) Close(peerID string) {
	if s, ok := c.sessions[peerID]; ok {
		c.closeSession(s, "closed locally")
	}
}

func (c *Coordinator) CloseAll(reason string) {
	for _, s := range c.sessions {
		c.closeSession(s, reason)
	}
}

func (c *Coordinator) closeSession(s *session, reason string) {
	if s.state == StateClosed {
		return
	}
	if cur, ok := c.sessions[s.peerID]; ok && cur == s {
		delete(c.sessions, s.peerID)
	}
	s.pendingRemote = nil
	s.pendingLocal = nil
	s.queuedAnswer = nil
	c.logger.Printf("voice: closing session with %s: %s", s.peerID, reason)
	c.setState(s, StateClosed)

	ch := s.ch
	c.spawn(func() {
		if err := ch.Close(); err != nil && !errors.Is(err, ErrChannelClosed) {
			c.logger.Printf("voice: close channel to %s: %v", s.peerID, err)
		}
	})
}

// failSession closes s and holds off the next offer to its peer for the
// retry delay.
func (c *Coordinator) failSession(s *session, reason string) {
	if s.state == StateClosed {
		return
	}
	c.retryAt[s.peerID] = c.now().Add(c.retry)
	c.closeSession(s, reason)
}

func (c *Coordinator) setState(s *session, st State) {
	if s.state == st {
		return
	}
	s.state = st
	if c.onState != nil {
		c.onState(s.peerID, st)
	}
}

func (c *Coordinator) addressedToUs(target, from string) bool {
	if c.localID == "" || from == "" || from == c.localID {
		return false
	}
	return target == "" || target == c.localID
}

// State returns the state of the session with peerID, 0 if absent.
func (c *Coordinator) State(peerID string) State {
	if s, ok := c.sessions[peerID]; ok {
		return s.state
	}
	return 0
}

// Peers returns the live sessions sorted by peer id.
func (c *Coordinator) Peers() []PeerStatus {
	out := make([]PeerStatus, 0, len(c.sessions))
	for id, s := range c.sessions {
		out = append(out, PeerStatus{PeerID: id, State: s.state.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

type PeerStatus struct {
	PeerID string `json:"peerId"`
	State  string `json:"state"`
}
