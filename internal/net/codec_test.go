package net

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeUpdateKeepsEntriesRaw(t *testing.T) {
	frame := []byte(`{"type":"update","players":[{"id":"p1","name":"a","x":10,"y":20}],"bullets":[],"powerUps":[]}`)
	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	up, ok := msg.(UpdateMessage)
	if !ok {
		t.Fatalf("got %T, want UpdateMessage", msg)
	}
	if len(up.Players) != 1 {
		t.Fatalf("players = %d, want 1", len(up.Players))
	}
	p, err := DecodePlayer(up.Players[0])
	if err != nil {
		t.Fatalf("decode player: %v", err)
	}
	if p.ID != "p1" || p.X != 10 || p.Y != 20 {
		t.Fatalf("unexpected player: %+v", p)
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  error
	}{
		{"empty", ``, ErrEmptyFrame},
		{"unknown type", `{"type":"teleport"}`, ErrUnknownType},
		{"missing type", `{"msg":"hi"}`, ErrMissingField},
		{"missing field", `{"type":"hit","target":"a"}`, ErrMissingField},
		{"null field", `{"type":"chat","msg":null}`, ErrMissingField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.frame))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		if _, err := Decode([]byte(`{"type":"chat","msg":"hi","color":"red"}`)); err == nil {
			t.Fatalf("expected unknown field to be rejected")
		}
	})
}

func TestDecodePlayerRejectsMalformedEntries(t *testing.T) {
	bad := []string{
		`{"name":"noid","x":1,"y":2}`,
		`{"id":"p1","x":"left","y":2}`,
		`{"id":"p1","x":1}`,
		`not json`,
	}
	for _, raw := range bad {
		if _, err := DecodePlayer(json.RawMessage(raw)); err == nil {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}
}

func TestDecodeVoiceMessages(t *testing.T) {
	frame := []byte(`{"type":"voice-ice","target":"me","from":"peer","candidate":{"candidate":"candidate:1 1 udp 1 1.2.3.4 5 typ host","sdpMid":"0","sdpMLineIndex":0}}`)
	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ice, ok := msg.(VoiceICEMessage)
	if !ok {
		t.Fatalf("got %T, want VoiceICEMessage", msg)
	}
	if ice.From != "peer" || ice.Target != "me" {
		t.Fatalf("unexpected addressing: %+v", ice)
	}
	if ice.Candidate.SDPMid == nil || *ice.Candidate.SDPMid != "0" {
		t.Fatalf("sdpMid not decoded: %+v", ice.Candidate)
	}
	if ice.Candidate.SDPMLineIndex == nil || *ice.Candidate.SDPMLineIndex != 0 {
		t.Fatalf("sdpMLineIndex not decoded: %+v", ice.Candidate)
	}
}

// relayed rewrites a client frame the way the server forwards it: every
// closing brace, nested ones included, gains the sender's id.
func relayed(t *testing.T, msg Outbound, from string) []byte {
	t.Helper()
	b, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return []byte(strings.ReplaceAll(string(b), "}", `,"from":"`+from+`"}`))
}

func TestDecodeRelayedVoiceMessages(t *testing.T) {
	mid, idx := "0", uint16(0)

	msg, err := Decode(relayed(t, VoiceOfferMessage{Target: "me", Offer: SessionDescription{Type: "offer", SDP: "v=0 offer"}}, "peer"))
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	offer := msg.(VoiceOfferMessage)
	if offer.From != "peer" || offer.Target != "me" || offer.Offer.Type != "offer" || offer.Offer.SDP != "v=0 offer" {
		t.Fatalf("offer = %+v", offer)
	}

	msg, err = Decode(relayed(t, VoiceAnswerMessage{Target: "me", Answer: SessionDescription{Type: "answer", SDP: "v=0 answer"}}, "peer"))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answer := msg.(VoiceAnswerMessage); answer.From != "peer" || answer.Answer.SDP != "v=0 answer" {
		t.Fatalf("answer = %+v", answer)
	}

	msg, err = Decode(relayed(t, VoiceICEMessage{Target: "me", Candidate: ICECandidate{Candidate: "candidate:1", SDPMid: &mid, SDPMLineIndex: &idx}}, "peer"))
	if err != nil {
		t.Fatalf("ice: %v", err)
	}
	ice := msg.(VoiceICEMessage)
	if ice.From != "peer" || ice.Candidate.Candidate != "candidate:1" || ice.Candidate.SDPMid == nil || *ice.Candidate.SDPMid != "0" {
		t.Fatalf("ice = %+v", ice)
	}
}

func TestDecodeVoiceEnvelopeStaysStrict(t *testing.T) {
	cases := map[string]string{
		"unknown envelope field": `{"type":"voice-offer","from":"p","extra":1,"offer":{"type":"offer","sdp":"x"}}`,
		"missing from":           `{"type":"voice-answer","answer":{"type":"answer","sdp":"x"}}`,
		"missing sdp":            `{"type":"voice-offer","from":"p","offer":{"type":"offer"}}`,
		"payload not an object":  `{"type":"voice-ice","from":"p","candidate":"candidate:1"}`,
		"missing candidate":      `{"type":"voice-ice","from":"p","candidate":{"sdpMid":"0"}}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(frame)); err == nil {
				t.Fatalf("decoded %s", frame)
			}
		})
	}
}

func TestEncodeSetsType(t *testing.T) {
	b, err := Encode(MoveMessage{X: 100, Y: 200, Angle: 45})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != TypeMove {
		t.Fatalf("type = %v, want %q", got["type"], TypeMove)
	}
	if got["x"] != float64(100) || got["angle"] != float64(45) {
		t.Fatalf("unexpected payload: %v", got)
	}

	if _, err := Encode(nil); err == nil {
		t.Fatalf("expected nil message to fail")
	}
}
