package game

import (
	"math"
	"testing"
)

func TestSteerClampsToArena(t *testing.T) {
	p := Player{X: 20, Y: 20}
	x, y := Steer(p, Steering{Up: true, Left: true})
	if x != EdgeMargin || y != EdgeMargin {
		t.Fatalf("steer = (%v,%v), want (%v,%v)", x, y, EdgeMargin, EdgeMargin)
	}
}

func TestSteerUsesBoost(t *testing.T) {
	p := Player{X: 500, Y: 500}
	x, _ := Steer(p, Steering{Right: true})
	if x != 500+SpeedNormal {
		t.Fatalf("x = %v, want %v", x, 500+SpeedNormal)
	}
	p.SpeedBoost = true
	x, _ = Steer(p, Steering{Right: true})
	if x != 500+SpeedBoosted {
		t.Fatalf("boosted x = %v, want %v", x, 500+SpeedBoosted)
	}
}

func TestAimAngle(t *testing.T) {
	p := Player{X: 100, Y: 100}
	if a := AimAngle(p, 200, 100); a != 0 {
		t.Fatalf("angle = %v, want 0", a)
	}
	if a := AimAngle(p, 100, 200); math.Abs(a-90) > 1e-9 {
		t.Fatalf("angle = %v, want 90", a)
	}
}
