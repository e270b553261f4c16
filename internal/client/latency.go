package client

import (
	"strconv"
	"time"

	"tankfire/internal/net"
)

// LatencyProbe schedules pings and measures round trips from the matching
// pongs. Only the pong for the most recent ping counts.
type LatencyProbe struct {
	interval time.Duration
	lastPing time.Time
	pending  string
	rtt      time.Duration
	measured bool
}

func NewLatencyProbe(interval time.Duration) *LatencyProbe {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &LatencyProbe{interval: interval}
}

// Tick returns a ping to send when the interval has elapsed since the last one.
func (p *LatencyProbe) Tick(now time.Time) (net.PingMessage, bool) {
	if !p.lastPing.IsZero() && now.Sub(p.lastPing) < p.interval {
		return net.PingMessage{}, false
	}
	p.lastPing = now
	p.pending = strconv.FormatInt(now.UnixMilli(), 10)
	return net.PingMessage{Timestamp: p.pending}, true
}

// HandlePong records the round trip if msg answers the outstanding ping.
func (p *LatencyProbe) HandlePong(msg net.PongMessage, now time.Time) bool {
	if p.pending == "" || msg.Timestamp != p.pending {
		return false
	}
	sent, err := strconv.ParseInt(msg.Timestamp, 10, 64)
	if err != nil {
		return false
	}
	p.pending = ""
	p.rtt = now.Sub(time.UnixMilli(sent))
	if p.rtt < 0 {
		p.rtt = 0
	}
	p.measured = true
	return true
}

// RTT returns the last measured round trip, false before the first pong.
func (p *LatencyProbe) RTT() (time.Duration, bool) { return p.rtt, p.measured }
