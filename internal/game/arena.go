package game

import "math"

const (
	ArenaWidth  = 1920.0
	ArenaHeight = 1080.0

	// Tank centres stay this far from the arena edge.
	EdgeMargin = 15.0

	SpeedNormal  = 12.0
	SpeedBoosted = 20.0
)

// Steering is the local directional input for one frame.
type Steering struct {
	Up, Down, Left, Right bool
}

func (s Steering) Idle() bool {
	return !s.Up && !s.Down && !s.Left && !s.Right
}

// ClampToArena keeps a position inside the playable area.
func ClampToArena(x, y float64) (float64, float64) {
	x = math.Max(EdgeMargin, math.Min(ArenaWidth-EdgeMargin, x))
	y = math.Max(EdgeMargin, math.Min(ArenaHeight-EdgeMargin, y))
	return x, y
}

// Steer returns the target position for the player after applying one
// frame of input. Speed depends on the player's boost flag.
func Steer(p Player, s Steering) (float64, float64) {
	speed := SpeedNormal
	if p.SpeedBoost {
		speed = SpeedBoosted
	}

	x, y := p.X, p.Y
	if s.Up {
		y -= speed
	}
	if s.Down {
		y += speed
	}
	if s.Left {
		x -= speed
	}
	if s.Right {
		x += speed
	}
	return ClampToArena(x, y)
}

// AimAngle returns the angle in degrees from the player to the cursor.
func AimAngle(p Player, cursorX, cursorY float64) float64 {
	return math.Atan2(cursorY-p.Y, cursorX-p.X) * 180 / math.Pi
}

// InArena reports whether a point lies inside the arena rectangle.
func InArena(x, y float64) bool {
	return x >= 0 && x <= ArenaWidth && y >= 0 && y <= ArenaHeight
}
