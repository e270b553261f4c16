package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"tankfire/internal/net"
)

// MediaSource supplies the local audio track shared by every peer channel.
type MediaSource interface {
	LocalTrack() (webrtc.TrackLocal, error)
}

// AudioSink receives the remote audio of a peer.
type AudioSink interface {
	Play(peerID string, track *webrtc.TrackRemote)
}

// PionFactory opens peer channels with pion/webrtc.
type PionFactory struct {
	config webrtc.Configuration
	source MediaSource
	sink   AudioSink
	logger *log.Logger
}

// NewPionFactory builds a factory using stunURL as the only ICE server. A
// nil source makes channels receive-only; a nil sink discards remote audio.
func NewPionFactory(stunURL string, source MediaSource, sink AudioSink, logger *log.Logger) *PionFactory {
	if logger == nil {
		logger = log.Default()
	}
	if sink == nil {
		sink = DiscardSink{Logger: logger}
	}
	cfg := webrtc.Configuration{}
	if stunURL != "" {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: []string{stunURL}}}
	}
	return &PionFactory{config: cfg, source: source, sink: sink, logger: logger}
}

func (f *PionFactory) NewChannel(peerID string, cb Callbacks) (PeerChannel, error) {
	pc, err := webrtc.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	if f.source != nil {
		track, err := f.source.LocalTrack()
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("local track: %w", err)
		}
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add track: %w", err)
		}
	} else {
		_, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add transceiver: %w", err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || cb.OnCandidate == nil {
			return
		}
		cb.OnCandidate(candidateFromPion(c.ToJSON()))
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if cb.OnState == nil {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnected:
			cb.OnState(ChannelConnected)
		case webrtc.PeerConnectionStateFailed:
			cb.OnState(ChannelFailed)
		case webrtc.PeerConnectionStateClosed:
			cb.OnState(ChannelClosed)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		f.sink.Play(peerID, track)
	})

	return &pionChannel{pc: pc}, nil
}

type pionChannel struct {
	pc *webrtc.PeerConnection

	closeOnce sync.Once
}

func (p *pionChannel) CreateOffer() (net.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return net.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return net.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return net.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (p *pionChannel) AcceptOffer(offer net.SessionDescription) (net.SessionDescription, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return net.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return net.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return net.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return net.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (p *pionChannel) SetAnswer(answer net.SessionDescription) error {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}
	return p.pc.SetRemoteDescription(remote)
}

func (p *pionChannel) AddCandidate(c net.ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *pionChannel) Close() error {
	err := ErrChannelClosed
	p.closeOnce.Do(func() {
		err = p.pc.Close()
	})
	return err
}

func candidateFromPion(c webrtc.ICECandidateInit) net.ICECandidate {
	return net.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// SampleSource is a MediaSource backed by one Opus track. This package does
// no capture or encoding: the embedder records the microphone, encodes Opus
// and hands the frames over through WriteSample or Feed. Until it does, an
// open channel carries silence. Frames written while muted are dropped.
type SampleSource struct {
	track *webrtc.TrackLocalStaticSample

	mu    sync.Mutex
	muted bool
}

func NewSampleSource(streamID string) (*SampleSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("new opus track: %w", err)
	}
	return &SampleSource{track: track, muted: true}, nil
}

func (s *SampleSource) LocalTrack() (webrtc.TrackLocal, error) {
	return s.track, nil
}

// SetMuted toggles whether written frames reach peers. Sources start muted.
func (s *SampleSource) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

func (s *SampleSource) WriteSample(data []byte, d time.Duration) error {
	s.mu.Lock()
	muted := s.muted
	s.mu.Unlock()
	if muted {
		return nil
	}
	return s.track.WriteSample(media.Sample{Data: data, Duration: d})
}

// Feed writes every frame received on frames, each lasting d, until frames
// is closed or ctx is done. It returns the first write error.
func (s *SampleSource) Feed(ctx context.Context, frames <-chan []byte, d time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.WriteSample(frame, d); err != nil {
				return fmt.Errorf("write sample: %w", err)
			}
		}
	}
}

// DiscardSink drains remote tracks without playing them. Playback belongs
// to the host; this keeps the RTP buffers from filling up when there is none.
type DiscardSink struct {
	Logger *log.Logger
}

func (d DiscardSink) Play(peerID string, track *webrtc.TrackRemote) {
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				if !errors.Is(err, io.EOF) && d.Logger != nil {
					d.Logger.Printf("voice: remote track from %s ended: %v", peerID, err)
				}
				return
			}
		}
	}()
}
