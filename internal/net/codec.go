package net

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
)

// Encode marshals an outbound message, filling in its type tag.
func Encode(msg Outbound) ([]byte, error) {
	switch m := msg.(type) {
	case JoinMessage:
		m.Type = TypeJoin
		return json.Marshal(m)
	case MoveMessage:
		m.Type = TypeMove
		return json.Marshal(m)
	case FireMessage:
		m.Type = TypeFire
		return json.Marshal(m)
	case PingMessage:
		m.Type = TypePing
		return json.Marshal(m)
	case LobbyInfoRequest:
		m.Type = TypeLobbyInfo
		return json.Marshal(m)
	case ChatMessage:
		m.Type = TypeChat
		return json.Marshal(m)
	case VoiceOfferMessage:
		m.Type = TypeVoiceOffer
		return json.Marshal(m)
	case VoiceAnswerMessage:
		m.Type = TypeVoiceAnswer
		return json.Marshal(m)
	case VoiceICEMessage:
		m.Type = TypeVoiceICE
		return json.Marshal(m)
	case nil:
		return nil, fmt.Errorf("encode: nil message")
	default:
		return nil, fmt.Errorf("encode %T: %w", msg, ErrUnknownType)
	}
}

// Decode parses one inbound frame into its typed message. Unknown types,
// unknown fields and missing required fields are rejected.
func Decode(b []byte) (Inbound, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, ErrEmptyFrame
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch head.Type {
	case TypeUpdate:
		return decodeAs[UpdateMessage](b, "players", "bullets", "powerUps")
	case TypeHit:
		return decodeAs[HitMessage](b, "target", "shooter")
	case TypeRespawn:
		return decodeAs[RespawnMessage](b, "playerId")
	case TypeGameOver:
		return decodeAs[GameOverMessage](b, "winnerId")
	case TypePong:
		return decodeAs[PongMessage](b, "timestamp")
	case TypeLobbyInfo:
		return decodeAs[LobbyInfoMessage](b, "playerCount")
	case TypeChat:
		return decodeAs[ChatMessage](b, "msg")
	case TypeVoiceOffer:
		return decodeOffer(b)
	case TypeVoiceAnswer:
		return decodeAnswer(b)
	case TypeVoiceICE:
		return decodeICE(b)
	case "":
		return nil, fmt.Errorf("decode envelope: %w: type", ErrMissingField)
	default:
		return nil, fmt.Errorf("decode %q: %w", head.Type, ErrUnknownType)
	}
}

// DecodePlayer parses one participant entry of an update.
func DecodePlayer(raw json.RawMessage) (PlayerState, error) {
	return decodeEntry[PlayerState](raw, "id", "x", "y")
}

// DecodeBullet parses one projectile entry of an update.
func DecodeBullet(raw json.RawMessage) (BulletState, error) {
	return decodeEntry[BulletState](raw, "id", "x", "y")
}

// DecodePowerUp parses one pickup entry of an update.
func DecodePowerUp(raw json.RawMessage) (PowerUpState, error) {
	return decodeEntry[PowerUpState](raw, "id", "type", "x", "y")
}

// Voice envelopes are checked strictly, but the payloads belong to the media
// layer and are relayed untouched by the server, which may add its own keys
// to them. Only the fields the channel needs are read from a payload.
type offerEnvelope struct {
	Type   string          `json:"type"`
	Target string          `json:"target"`
	From   string          `json:"from"`
	Offer  json.RawMessage `json:"offer"`
}

type answerEnvelope struct {
	Type   string          `json:"type"`
	Target string          `json:"target"`
	From   string          `json:"from"`
	Answer json.RawMessage `json:"answer"`
}

type iceEnvelope struct {
	Type      string          `json:"type"`
	Target    string          `json:"target"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

func decodeOffer(b []byte) (Inbound, error) {
	env, err := decodeEntry[offerEnvelope](b, "from", "offer")
	if err != nil {
		return nil, err
	}
	desc, err := decodePayload[SessionDescription](env.Offer, "sdp")
	if err != nil {
		return nil, fmt.Errorf("decode voice-offer: %w", err)
	}
	return VoiceOfferMessage{Type: env.Type, Target: env.Target, From: env.From, Offer: desc}, nil
}

func decodeAnswer(b []byte) (Inbound, error) {
	env, err := decodeEntry[answerEnvelope](b, "from", "answer")
	if err != nil {
		return nil, err
	}
	desc, err := decodePayload[SessionDescription](env.Answer, "sdp")
	if err != nil {
		return nil, fmt.Errorf("decode voice-answer: %w", err)
	}
	return VoiceAnswerMessage{Type: env.Type, Target: env.Target, From: env.From, Answer: desc}, nil
}

func decodeICE(b []byte) (Inbound, error) {
	env, err := decodeEntry[iceEnvelope](b, "from", "candidate")
	if err != nil {
		return nil, err
	}
	cand, err := decodePayload[ICECandidate](env.Candidate, "candidate")
	if err != nil {
		return nil, fmt.Errorf("decode voice-ice: %w", err)
	}
	return VoiceICEMessage{Type: env.Type, Target: env.Target, From: env.From, Candidate: cand}, nil
}

// decodePayload reads the known fields of an opaque payload object and
// ignores the rest.
func decodePayload[T any](raw json.RawMessage, required ...string) (T, error) {
	var out T
	if err := requireFields(raw, required); err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func decodeAs[T Inbound](b []byte, required ...string) (Inbound, error) {
	out, err := decodeEntry[T](b, required...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeEntry[T any](b []byte, required ...string) (T, error) {
	var out T
	if err := requireFields(b, required); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	if dec.More() {
		return out, fmt.Errorf("decode %T: trailing data", out)
	}
	return out, nil
}

func requireFields(b []byte, required []string) error {
	if len(required) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	for _, name := range required {
		v, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	return nil
}
