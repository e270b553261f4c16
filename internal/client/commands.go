package client

import (
	"math"
	"strings"
	"time"

	"tankfire/internal/game"
	"tankfire/internal/net"
)

// Sender is the outbound half of a transport.
type Sender interface {
	Send(msg net.Outbound)
}

// Emitter turns local intent into outbound commands. Movement is only sent
// when it differs from the last position sent, and firing goes through the
// heat controller.
type Emitter struct {
	sender Sender
	heat   *game.HeatController
	recon  *game.Reconciler

	last  net.MoveMessage
	moved bool
}

func NewEmitter(sender Sender, heat *game.HeatController, recon *game.Reconciler) *Emitter {
	return &Emitter{sender: sender, heat: heat, recon: recon}
}

// Move sends the target position and facing. It reports whether a message
// went out.
func (e *Emitter) Move(x, y, angle float64) bool {
	if e.recon.LocalID() == "" || !e.recon.LocalAlive() {
		return false
	}
	x, y = game.ClampToArena(x, y)
	msg := net.MoveMessage{
		X:     int(math.Round(x)),
		Y:     int(math.Round(y)),
		Angle: int(math.Round(angle)),
	}
	if e.moved && msg == e.last {
		return false
	}
	e.last = msg
	e.moved = true
	e.sender.Send(msg)
	return true
}

// Fire shoots toward (targetX, targetY) if the weapon allows it at now. The
// heat level sent is the level after this shot.
func (e *Emitter) Fire(now time.Time, angle, targetX, targetY float64) bool {
	if !e.heat.TryFire(now, e.recon.LocalAlive()) {
		return false
	}
	e.sender.Send(net.FireMessage{
		Angle:     int(math.Round(angle)),
		MouseX:    int(math.Round(targetX)),
		MouseY:    int(math.Round(targetY)),
		HeatLevel: int(math.Round(e.heat.Heat())),
	})
	return true
}

// Chat sends text to everyone in the match. Blank text is ignored.
func (e *Emitter) Chat(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	e.sender.Send(net.ChatMessage{Msg: text})
	return true
}
