package voice

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"tankfire/internal/net"
)

type fakeChannel struct {
	peerID  string
	cb      Callbacks
	applied []string
	answer  string
	closed  int

	offerErr error
}

func (f *fakeChannel) CreateOffer() (net.SessionDescription, error) {
	if f.offerErr != nil {
		return net.SessionDescription{}, f.offerErr
	}
	return net.SessionDescription{Type: "offer", SDP: "offer-to-" + f.peerID}, nil
}

func (f *fakeChannel) AcceptOffer(offer net.SessionDescription) (net.SessionDescription, error) {
	f.applied = append(f.applied, "remote:"+offer.SDP)
	return net.SessionDescription{Type: "answer", SDP: "answer-to-" + f.peerID}, nil
}

func (f *fakeChannel) SetAnswer(answer net.SessionDescription) error {
	f.answer = answer.SDP
	f.applied = append(f.applied, "remote:"+answer.SDP)
	return nil
}

func (f *fakeChannel) AddCandidate(c net.ICECandidate) error {
	f.applied = append(f.applied, c.Candidate)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

type fakeFactory struct {
	channels []*fakeChannel
	offerErr error
	openErr  error
	opens    int
}

func (f *fakeFactory) NewChannel(peerID string, cb Callbacks) (PeerChannel, error) {
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	ch := &fakeChannel{peerID: peerID, cb: cb, offerErr: f.offerErr}
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeFactory) last() *fakeChannel { return f.channels[len(f.channels)-1] }

type fakeSender struct {
	sent []net.Outbound
}

func (f *fakeSender) Send(msg net.Outbound) { f.sent = append(f.sent, msg) }

// manualSpawn holds blocking work until the test runs it.
type manualSpawn struct {
	jobs []func()
}

func (m *manualSpawn) spawn(f func()) { m.jobs = append(m.jobs, f) }

func (m *manualSpawn) runAll() {
	for len(m.jobs) > 0 {
		jobs := m.jobs
		m.jobs = nil
		for _, j := range jobs {
			j()
		}
	}
}

type harness struct {
	c       *Coordinator
	factory *fakeFactory
	sender  *fakeSender
	spawner *manualSpawn
	changes []string
	now     time.Time
}

func newHarness(localID string) *harness {
	h := &harness{
		factory: &fakeFactory{},
		sender:  &fakeSender{},
		spawner: &manualSpawn{},
		now:     time.Unix(1000, 0),
	}
	h.c = NewCoordinator(h.factory, h.sender, Options{
		Logger:             log.New(io.Discard, "", 0),
		NegotiationTimeout: 10 * time.Second,
		RetryDelay:         5 * time.Second,
		Spawn:              h.spawner.spawn,
		Now:                func() time.Time { return h.now },
		OnStateChange: func(peer string, s State) {
			h.changes = append(h.changes, peer+":"+s.String())
		},
	})
	h.c.SetLocalID(localID)
	return h
}

// settle runs pending work and the continuations it posted.
func (h *harness) settle() {
	h.spawner.runAll()
	h.c.Pump()
}

func cand(s string) net.ICECandidate { return net.ICECandidate{Candidate: s} }

func TestLowerIDOffersOnRosterJoin(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b"})
	if h.c.State("b") != StateOffering {
		t.Fatalf("state = %s, want offering", h.c.State("b"))
	}
	h.settle()
	if h.c.State("b") != StateAwaitingAnswer {
		t.Fatalf("state = %s, want awaiting-answer", h.c.State("b"))
	}
	if len(h.sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(h.sender.sent))
	}
	offer, ok := h.sender.sent[0].(net.VoiceOfferMessage)
	if !ok || offer.Target != "b" || offer.Offer.SDP != "offer-to-b" {
		t.Fatalf("unexpected offer: %#v", h.sender.sent[0])
	}
}

func TestHigherIDWaitsForOffer(t *testing.T) {
	h := newHarness("b")
	h.c.SetEnabled(true, []string{"a", "b"})
	if h.c.State("a") != 0 {
		t.Fatalf("higher id initiated toward lower id")
	}

	h.c.HandleOffer(net.VoiceOfferMessage{Target: "b", From: "a", Offer: net.SessionDescription{Type: "offer", SDP: "x"}})
	if h.c.State("a") != StateAnswering {
		t.Fatalf("state = %s, want answering", h.c.State("a"))
	}
	h.settle()
	if h.c.State("a") != StateConnecting {
		t.Fatalf("state = %s, want connecting", h.c.State("a"))
	}
	if _, ok := h.sender.sent[0].(net.VoiceAnswerMessage); !ok {
		t.Fatalf("expected answer, got %#v", h.sender.sent[0])
	}
}

func TestCandidatesBufferedUntilAnswer(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b"})
	h.settle()

	h.c.HandleICE(net.VoiceICEMessage{From: "b", Candidate: cand("c1")})
	h.c.HandleICE(net.VoiceICEMessage{From: "b", Candidate: cand("c2")})
	ch := h.factory.last()
	if len(ch.applied) != 0 {
		t.Fatalf("candidates applied before remote description: %v", ch.applied)
	}

	h.c.HandleAnswer(net.VoiceAnswerMessage{From: "b", Answer: net.SessionDescription{Type: "answer", SDP: "ans"}})
	h.c.HandleICE(net.VoiceICEMessage{From: "b", Candidate: cand("c3")})

	want := []string{"remote:ans", "c1", "c2", "c3"}
	if len(ch.applied) != len(want) {
		t.Fatalf("applied = %v, want %v", ch.applied, want)
	}
	for i := range want {
		if ch.applied[i] != want[i] {
			t.Fatalf("applied = %v, want %v", ch.applied, want)
		}
	}
	if h.c.State("b") != StateConnecting {
		t.Fatalf("state = %s, want connecting", h.c.State("b"))
	}

	ch.cb.OnState(ChannelConnected)
	h.c.Pump()
	if h.c.State("b") != StateConnected {
		t.Fatalf("state = %s, want connected", h.c.State("b"))
	}
}

func TestAnswerBeforeOfferSentIsQueued(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b"})

	h.c.HandleAnswer(net.VoiceAnswerMessage{From: "b", Answer: net.SessionDescription{SDP: "early"}})
	ch := h.factory.last()
	if ch.answer != "" {
		t.Fatalf("answer applied before local offer was ready")
	}
	h.settle()
	if ch.answer != "early" {
		t.Fatalf("queued answer not applied after offer, got %q", ch.answer)
	}
}

func TestMutualOffersYieldOneSession(t *testing.T) {
	offerFromB := net.VoiceOfferMessage{Target: "a", From: "b", Offer: net.SessionDescription{SDP: "from-b"}}

	t.Run("local offer first", func(t *testing.T) {
		h := newHarness("a")
		h.c.SetEnabled(true, []string{"a", "b"})
		h.c.HandleOffer(offerFromB)
		h.settle()
		if len(h.factory.channels) != 1 {
			t.Fatalf("channels = %d, want 1", len(h.factory.channels))
		}
		if h.c.State("b") != StateAwaitingAnswer {
			t.Fatalf("state = %s, want awaiting-answer", h.c.State("b"))
		}
	})

	t.Run("remote offer first", func(t *testing.T) {
		h := newHarness("a")
		h.c.SetEnabled(true, nil)
		h.c.HandleOffer(offerFromB)
		h.c.SyncRoster([]string{"a", "b"})
		h.settle()
		if len(h.factory.channels) != 1 {
			t.Fatalf("channels = %d, want 1", len(h.factory.channels))
		}
		if h.c.State("b") != StateConnecting {
			t.Fatalf("state = %s, want connecting", h.c.State("b"))
		}
	})
}

func TestStaleCompletionIgnoredAfterClose(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b"})
	ch := h.factory.last()

	// The peer leaves while the offer is still being created.
	h.c.SyncRoster([]string{"a"})
	h.settle()

	for _, m := range h.sender.sent {
		if _, ok := m.(net.VoiceOfferMessage); ok {
			t.Fatalf("offer sent for a closed session")
		}
	}
	if ch.closed != 1 {
		t.Fatalf("channel closed %d times, want 1", ch.closed)
	}

	// Rejoin opens a new session; a late callback from the old channel
	// must not touch it.
	h.c.SyncRoster([]string{"a", "b"})
	ch.cb.OnState(ChannelConnected)
	h.c.Pump()
	if h.c.State("b") != StateOffering {
		t.Fatalf("state = %s, want offering", h.c.State("b"))
	}
}

func TestCloseIsIdempotentAndIgnoresLaterMessages(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b"})
	h.settle()
	ch := h.factory.last()

	h.c.Close("b")
	h.c.Close("b")
	h.settle()
	if ch.closed != 1 {
		t.Fatalf("closed %d times, want 1", ch.closed)
	}

	h.c.HandleAnswer(net.VoiceAnswerMessage{From: "b", Answer: net.SessionDescription{SDP: "late"}})
	h.c.HandleICE(net.VoiceICEMessage{From: "b", Candidate: cand("late")})
	if len(ch.applied) != 0 {
		t.Fatalf("closed session applied %v", ch.applied)
	}
}

func TestDisableClosesAllSessions(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b", "c"})
	h.settle()
	if len(h.c.Peers()) != 2 {
		t.Fatalf("peers = %v, want 2", h.c.Peers())
	}
	h.c.SetEnabled(false, nil)
	if len(h.c.Peers()) != 0 {
		t.Fatalf("peers = %v after disable", h.c.Peers())
	}

	h.c.HandleOffer(net.VoiceOfferMessage{From: "b", Offer: net.SessionDescription{SDP: "x"}})
	if h.c.State("b") != 0 {
		t.Fatalf("offer accepted while voice disabled")
	}
}

func TestChannelFailureClosesOnlyThatPeer(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b", "c"})
	h.settle()

	h.factory.channels[0].cb.OnState(ChannelFailed)
	h.c.Pump()

	peers := h.c.Peers()
	if len(peers) != 1 {
		t.Fatalf("peers = %v, want one survivor", peers)
	}
}

func TestOfferFailureClosesSession(t *testing.T) {
	h := newHarness("a")
	h.factory.offerErr = errors.New("no codecs")
	h.c.SetEnabled(true, []string{"a", "b"})
	h.settle()
	if h.c.State("b") != 0 {
		t.Fatalf("state = %s, want absent", h.c.State("b"))
	}
}

func TestNegotiationTimeout(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b"})
	h.settle()

	h.now = h.now.Add(11 * time.Second)
	h.c.Tick(h.now)
	if h.c.State("b") != 0 {
		t.Fatalf("state = %s, want closed after timeout", h.c.State("b"))
	}

	h.c.SyncRoster([]string{"a", "b"})
	if h.c.State("b") != 0 {
		t.Fatalf("state = %s, want no offer inside the retry delay", h.c.State("b"))
	}

	h.now = h.now.Add(5 * time.Second)
	h.c.SyncRoster([]string{"a", "b"})
	if h.c.State("b") != StateOffering {
		t.Fatalf("state = %s, want a fresh offer", h.c.State("b"))
	}
}

func TestFailedPeerWaitsBeforeReoffer(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b"})
	h.settle()

	for i := 0; i < 5; i++ {
		if ch := h.factory.last(); h.c.State("b") != 0 {
			ch.cb.OnState(ChannelFailed)
			h.c.Pump()
		}
		h.now = h.now.Add(time.Second)
		h.c.SyncRoster([]string{"a", "b"})
		h.settle()
	}
	// The first channel failed at t=0; the next offer waits until t=5.
	if n := len(h.factory.channels); n != 2 {
		t.Fatalf("opened %d channels, want 2", n)
	}
}

func TestOpenErrorBacksOff(t *testing.T) {
	h := newHarness("a")
	h.factory.openErr = errors.New("no audio device")
	h.c.SetEnabled(true, []string{"a", "b"})

	for i := 0; i < 4; i++ {
		h.now = h.now.Add(time.Second)
		h.c.SyncRoster([]string{"a", "b"})
	}
	if h.factory.opens != 1 {
		t.Fatalf("opened %d times inside the retry delay, want 1", h.factory.opens)
	}

	h.factory.openErr = nil
	h.now = h.now.Add(time.Second)
	h.c.SyncRoster([]string{"a", "b"})
	if h.c.State("b") != StateOffering {
		t.Fatalf("state = %s, want offering after the delay", h.c.State("b"))
	}
}

func TestConnectedClearsRetryDelay(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b"})
	h.settle()
	h.factory.last().cb.OnState(ChannelFailed)
	h.c.Pump()

	h.c.HandleOffer(net.VoiceOfferMessage{Target: "a", From: "b", Offer: net.SessionDescription{Type: "offer", SDP: "x"}})
	h.settle()
	h.factory.last().cb.OnState(ChannelConnected)
	h.c.Pump()
	if h.c.State("b") != StateConnected {
		t.Fatalf("state = %s, want connected", h.c.State("b"))
	}

	h.c.Close("b")
	h.c.SyncRoster([]string{"a", "b"})
	if h.c.State("b") != StateOffering {
		t.Fatalf("state = %s, want an immediate offer after a successful session", h.c.State("b"))
	}
}

func TestLocalCandidatesWaitForOffer(t *testing.T) {
	h := newHarness("a")
	h.c.SetEnabled(true, []string{"a", "b"})
	ch := h.factory.last()

	ch.cb.OnCandidate(cand("local1"))
	h.c.Pump()
	if len(h.sender.sent) != 0 {
		t.Fatalf("candidate sent before offer: %#v", h.sender.sent)
	}

	h.settle()
	if len(h.sender.sent) != 2 {
		t.Fatalf("sent = %#v, want offer then candidate", h.sender.sent)
	}
	if _, ok := h.sender.sent[0].(net.VoiceOfferMessage); !ok {
		t.Fatalf("first message %#v, want offer", h.sender.sent[0])
	}
	ice, ok := h.sender.sent[1].(net.VoiceICEMessage)
	if !ok || ice.Candidate.Candidate != "local1" || ice.Target != "b" {
		t.Fatalf("second message %#v, want candidate", h.sender.sent[1])
	}
}

func TestMessagesForOtherTargetsIgnored(t *testing.T) {
	h := newHarness("b")
	h.c.SetEnabled(true, nil)
	h.c.HandleOffer(net.VoiceOfferMessage{Target: "z", From: "a", Offer: net.SessionDescription{SDP: "x"}})
	if h.c.State("a") != 0 {
		t.Fatalf("accepted offer addressed to someone else")
	}
}
