package game

import (
	"math"
	"time"
)

// WeaponConfig tunes the client-side heat prediction.
type WeaponConfig struct {
	MaxHeat        float64
	HeatStep       float64
	DecayPerSecond float64

	BaseInterval time.Duration // heat [0,40)
	Interval40   time.Duration // heat [40,60)
	Interval60   time.Duration // heat [60,80)
	Interval80   time.Duration // heat [80,100)
}

func DefaultWeapon() WeaponConfig {
	return WeaponConfig{
		MaxHeat:        100,
		HeatStep:       20,
		DecayPerSecond: 12,
		BaseInterval:   500 * time.Millisecond,
		Interval40:     800 * time.Millisecond,
		Interval60:     1200 * time.Millisecond,
		Interval80:     2000 * time.Millisecond,
	}
}

// HeatController predicts whether the local weapon may fire. The server
// never corrects it; it only decides whether a fire command is sent.
type HeatController struct {
	cfg      WeaponConfig
	heat     float64
	lastFire time.Time
	fired    bool
}

func NewHeatController(cfg WeaponConfig) *HeatController {
	if cfg.MaxHeat <= 0 {
		cfg = DefaultWeapon()
	}
	return &HeatController{cfg: cfg}
}

// Heat returns the current heat value in [0, MaxHeat].
func (h *HeatController) Heat() float64 { return h.heat }

// Percent returns heat as a percentage of the maximum.
func (h *HeatController) Percent() float64 {
	return h.heat / h.cfg.MaxHeat * 100
}

func (h *HeatController) LastFire() time.Time { return h.lastFire }

// Interval returns the minimum time between shots at the current heat.
// ok is false when the weapon is overheated and cannot fire at all.
func (h *HeatController) Interval() (d time.Duration, ok bool) {
	pct := h.Percent()
	switch {
	case pct >= 100:
		return 0, false
	case pct >= 80:
		return h.cfg.Interval80, true
	case pct >= 60:
		return h.cfg.Interval60, true
	case pct >= 40:
		return h.cfg.Interval40, true
	default:
		return h.cfg.BaseInterval, true
	}
}

// TryFire admits or rejects a shot at now. A rejected shot leaves the
// state untouched.
func (h *HeatController) TryFire(now time.Time, alive bool) bool {
	if !alive {
		return false
	}
	interval, ok := h.Interval()
	if !ok {
		return false
	}
	if h.fired && now.Sub(h.lastFire) < interval {
		return false
	}

	h.heat = math.Min(h.cfg.MaxHeat, h.heat+h.cfg.HeatStep)
	h.lastFire = now
	h.fired = true
	return true
}

// Tick cools the weapon by dt worth of decay. It runs every frame whether
// or not anything was fired.
func (h *HeatController) Tick(dt time.Duration) {
	if dt <= 0 {
		return
	}
	h.heat = math.Max(0, h.heat-h.cfg.DecayPerSecond*dt.Seconds())
}

// Reset clears heat and fire history, used when a match starts.
func (h *HeatController) Reset() {
	h.heat = 0
	h.lastFire = time.Time{}
	h.fired = false
}
