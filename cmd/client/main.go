package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"tankfire/internal/client"
	"tankfire/internal/config"
	"tankfire/internal/game"
	"tankfire/internal/net"
	"tankfire/internal/replay"
	"tankfire/internal/status"
	"tankfire/internal/voice"
)

type Game struct {
	match    *client.Match
	renderer *client.Renderer
	voice    *voice.SampleSource
	status   string
}

func (g *Game) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	now := time.Now()
	err := g.match.Update(now)
	for _, ev := range g.match.Events() {
		g.handleEvent(ev)
	}
	if err != nil {
		return err
	}

	cx, cy := client.ToArena(ebiten.CursorPosition())
	g.match.Steer(game.Steering{
		Up:    ebiten.IsKeyPressed(ebiten.KeyW) || ebiten.IsKeyPressed(ebiten.KeyArrowUp),
		Down:  ebiten.IsKeyPressed(ebiten.KeyS) || ebiten.IsKeyPressed(ebiten.KeyArrowDown),
		Left:  ebiten.IsKeyPressed(ebiten.KeyA) || ebiten.IsKeyPressed(ebiten.KeyArrowLeft),
		Right: ebiten.IsKeyPressed(ebiten.KeyD) || ebiten.IsKeyPressed(ebiten.KeyArrowRight),
	}, cx, cy)

	if ebiten.IsKeyPressed(ebiten.KeySpace) || ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.match.Fire(now, cx, cy)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyV) {
		on := !g.match.VoiceEnabled()
		if g.match.SetVoice(on) && g.voice != nil {
			g.voice.SetMuted(!on)
		}
	}
	return nil
}

func (g *Game) handleEvent(ev game.Event) {
	switch ev.Kind {
	case game.EventBonusCollected:
		g.status = "picked up " + ev.PowerUp
	case game.EventDown:
		g.status = "you are down"
	case game.EventRespawned:
		g.status = "respawned"
	case game.EventKill:
		g.status = "you hit " + ev.PlayerID
	case game.EventChat:
		log.Printf("chat: %s", ev.Text)
	case game.EventPeerVoice:
		log.Printf("voice %s: %s", ev.PlayerID, ev.Text)
	case game.EventGameOver:
		g.status = "game over"
	case game.EventDisconnected:
		log.Printf("disconnected: %s", ev.Text)
	}
}

func (g *Game) Draw(screen *ebiten.Image) {
	ping, _ := g.match.Ping()
	g.renderer.Draw(screen, client.Frame{
		Roster:      g.match.Roster(),
		LocalID:     g.match.LocalID(),
		HeatPercent: g.match.Heat().Percent(),
		Ping:        ping,
		Stats:       g.match.Stats(),
		Result:      g.match.Result(),
		VoiceOn:     g.match.VoiceEnabled(),
		Status:      g.status,
	})
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return client.ScreenWidth, client.ScreenHeight
}

// waitForLobby watches the lobby until it reports at least one summary or
// ctx ends.
func waitForLobby(ctx context.Context, cfg config.Config) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var once sync.Once
	w := &client.LobbyWatcher{URL: cfg.URL(), Retry: cfg.LobbyRetry, Timeout: cfg.ConnectTimeout}
	w.Run(ctx, func(info net.LobbyInfoMessage) {
		log.Printf("lobby: %d players, first to %d", info.PlayerCount, info.WinningScore)
		once.Do(cancel)
	})
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	waitForLobby(ctx, cfg)
	if ctx.Err() != nil {
		return nil
	}

	opts := client.Options{
		URL:                cfg.URL(),
		Name:               cfg.Name,
		ConnectTimeout:     cfg.ConnectTimeout,
		PingInterval:       cfg.PingInterval,
		VoiceEnabled:       cfg.VoiceEnabled,
		NegotiationTimeout: cfg.NegotiationTimeout,
	}
	opts.Weapon = game.DefaultWeapon()
	opts.Weapon.HeatStep = cfg.HeatStep
	opts.Weapon.DecayPerSecond = cfg.HeatDecay

	g := &Game{renderer: client.NewRenderer()}

	// No microphone capture here: a build with an Opus capture pipeline
	// passes its frames to src.Feed. Without one, peers hear silence.
	src, err := voice.NewSampleSource(cfg.Name)
	if err != nil {
		log.Printf("voice unavailable: %v", err)
	} else {
		g.voice = src
		src.SetMuted(!cfg.VoiceEnabled)
		opts.Voice = voice.NewPionFactory(cfg.STUNURL, src, nil, nil)
	}

	if cfg.StatusAddr != "" {
		board := status.NewBoard()
		opts.Publisher = board
		go func() {
			if err := status.Serve(ctx, cfg.StatusAddr, board, nil); err != nil {
				log.Printf("status: %v", err)
			}
		}()
	}

	match, err := client.Join(ctx, opts)
	if err != nil {
		return err
	}
	g.match = match
	defer match.Leave()

	if cfg.ReplayPath != "" {
		rec, err := replay.Create(cfg.ReplayPath, replay.Header{MatchID: match.ID(), Player: cfg.Name, Started: time.Now()})
		if err != nil {
			log.Printf("replay disabled: %v", err)
		} else {
			defer rec.Close()
			match.SetRecorder(rec)
		}
	}

	ebiten.SetWindowSize(client.ScreenWidth, client.ScreenHeight)
	ebiten.SetWindowTitle(fmt.Sprintf("tankfire - %s", cfg.Name))

	err = ebiten.RunGame(g)
	if errors.Is(err, client.ErrDisconnected) {
		log.Printf("%v", err)
		return nil
	}
	return err
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
