package client

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"tankfire/internal/game"
)

const (
	ScreenWidth  = 960
	ScreenHeight = 540
	Scale        = float64(ScreenWidth) / game.ArenaWidth

	PlayerRadius  = 20.0
	BulletRadius  = 5.0
	PowerUpRadius = 14.0
	barrelLength  = 32.0
)

var (
	colorBackground = color.RGBA{24, 26, 32, 255}
	colorBorder     = color.RGBA{90, 96, 110, 255}
	colorLocal      = color.RGBA{70, 160, 255, 255}
	colorEnemy      = color.RGBA{230, 80, 70, 255}
	colorDown       = color.RGBA{80, 80, 80, 255}
	colorShield     = color.RGBA{120, 220, 255, 255}
	colorBullet     = color.RGBA{255, 220, 90, 255}
	colorHeatCool   = color.RGBA{80, 200, 120, 255}
	colorHeatHot    = color.RGBA{240, 70, 50, 255}
)

var powerUpColors = map[string]color.RGBA{
	game.PowerUpShield:     {120, 220, 255, 255},
	game.PowerUpSpeedBoost: {250, 200, 60, 255},
	game.PowerUpDoubleFire: {240, 110, 200, 255},
}

// Frame is everything the renderer draws for one tick.
type Frame struct {
	Roster      game.Roster
	LocalID     string
	HeatPercent float64
	Ping        time.Duration
	Stats       game.Stats
	Result      *game.GameResult
	VoiceOn     bool
	Status      string
}

// Renderer draws the arena top-down at Scale.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Draw(screen *ebiten.Image, f Frame) {
	screen.Fill(colorBackground)
	vector.StrokeRect(screen, 1, 1, ScreenWidth-2, ScreenHeight-2, 2, colorBorder, false)

	for _, pu := range f.Roster.PowerUps {
		c, ok := powerUpColors[pu.Kind]
		if !ok {
			c = colorBorder
		}
		x, y := toScreen(pu.X, pu.Y)
		vector.DrawFilledRect(screen, x-PowerUpRadius*float32(Scale), y-PowerUpRadius*float32(Scale),
			2*PowerUpRadius*float32(Scale), 2*PowerUpRadius*float32(Scale), c, false)
	}

	for _, b := range f.Roster.Bullets {
		x, y := toScreen(b.X, b.Y)
		vector.DrawFilledCircle(screen, x, y, BulletRadius*float32(Scale), colorBullet, true)
	}

	for _, p := range f.Roster.Players {
		r.drawPlayer(screen, p, p.ID == f.LocalID)
	}

	r.drawHUD(screen, f)
}

func (r *Renderer) drawPlayer(screen *ebiten.Image, p game.Player, local bool) {
	x, y := toScreen(p.X, p.Y)
	radius := float32(PlayerRadius * Scale)

	body := colorEnemy
	if local {
		body = colorLocal
	}
	if !p.Alive {
		body = colorDown
	}
	if p.Shield && p.Alive {
		vector.StrokeCircle(screen, x, y, radius+4, 2, colorShield, true)
	}
	vector.DrawFilledCircle(screen, x, y, radius, body, true)

	rad := p.Angle * math.Pi / 180
	bx := x + float32(math.Cos(rad)*barrelLength*Scale)
	by := y + float32(math.Sin(rad)*barrelLength*Scale)
	vector.StrokeLine(screen, x, y, bx, by, 3, body, true)

	label := fmt.Sprintf("%s %d", p.Name, p.Score)
	ebitenutil.DebugPrintAt(screen, label, int(x)-len(label)*3, int(y+radius)+2)
}

func (r *Renderer) drawHUD(screen *ebiten.Image, f Frame) {
	const barW, barH = 160, 10
	x, y := float32(10), float32(ScreenHeight-20)

	pct := float32(f.HeatPercent / 100)
	vector.DrawFilledRect(screen, x, y, barW, barH, colorBorder, false)
	vector.DrawFilledRect(screen, x, y, barW*pct, barH, heatColor(f.HeatPercent), false)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("heat %3.0f%%", f.HeatPercent), int(x)+barW+8, int(y)-3)

	voice := "off"
	if f.VoiceOn {
		voice = "on"
	}
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("K %d  D %d  ping %dms  voice %s",
		f.Stats.Kills, f.Stats.Deaths, f.Ping.Milliseconds(), voice), 10, 8)

	if f.Status != "" {
		ebitenutil.DebugPrintAt(screen, f.Status, 10, 24)
	}

	if f.Result != nil {
		lines := fmt.Sprintf("GAME OVER - %s wins\n", f.Result.WinnerName)
		for i, s := range f.Result.Leaderboard {
			lines += fmt.Sprintf("%d. %s %d\n", i+1, s.Name, s.Score)
		}
		ebitenutil.DebugPrintAt(screen, lines, ScreenWidth/2-80, ScreenHeight/3)
	}
}

// heatColor blends from cool to hot as the weapon heats up.
func heatColor(pct float64) color.RGBA {
	t := math.Max(0, math.Min(1, pct/100))
	lerp := func(a, b uint8) uint8 { return uint8(float64(a) + (float64(b)-float64(a))*t) }
	return color.RGBA{
		lerp(colorHeatCool.R, colorHeatHot.R),
		lerp(colorHeatCool.G, colorHeatHot.G),
		lerp(colorHeatCool.B, colorHeatHot.B),
		255,
	}
}

func toScreen(x, y float64) (float32, float32) {
	return float32(x * Scale), float32(y * Scale)
}

// ToArena converts a cursor position on screen to arena coordinates.
func ToArena(sx, sy int) (float64, float64) {
	return float64(sx) / Scale, float64(sy) / Scale
}
