package status

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"tankfire/internal/game"
	"tankfire/internal/voice"
)

type playerJSON struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Score  int     `json:"score"`
	Health int     `json:"health"`
	Alive  bool    `json:"alive"`
	Local  bool    `json:"local"`
}

type rosterJSON struct {
	Players  []playerJSON `json:"players"`
	Bullets  int          `json:"bullets"`
	PowerUps int          `json:"powerUps"`
}

// NewRouter serves the board as JSON:
//
//	GET /status  summary of the match
//	GET /roster  participants from the latest snapshot
//	GET /voice   peer voice session states
func NewRouter(board *Board, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		v, ok := board.View()
		if !ok {
			http.Error(w, "no match", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, logger, v)
	})
	r.Get("/roster", func(w http.ResponseWriter, req *http.Request) {
		v, ok := board.View()
		if !ok {
			http.Error(w, "no match", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, logger, rosterFromView(v))
	})
	r.Get("/voice", func(w http.ResponseWriter, req *http.Request) {
		v, ok := board.View()
		if !ok {
			http.Error(w, "no match", http.StatusServiceUnavailable)
			return
		}
		peers := v.Peers
		if peers == nil {
			peers = []voice.PeerStatus{}
		}
		writeJSON(w, logger, peers)
	})
	return r
}

func rosterFromView(v View) rosterJSON {
	out := rosterJSON{
		Players:  make([]playerJSON, 0, len(v.Roster.Players)),
		Bullets:  len(v.Roster.Bullets),
		PowerUps: len(v.Roster.PowerUps),
	}
	for _, p := range v.Roster.Players {
		out.Players = append(out.Players, playerFrom(p, v.LocalID))
	}
	return out
}

func playerFrom(p game.Player, localID string) playerJSON {
	return playerJSON{
		ID:     p.ID,
		Name:   p.Name,
		X:      p.X,
		Y:      p.Y,
		Score:  p.Score,
		Health: p.Health,
		Alive:  p.Alive,
		Local:  localID != "" && p.ID == localID,
	}
}

func writeJSON(w http.ResponseWriter, logger *log.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("status: encode response: %v", err)
	}
}

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, addr string, board *Board, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(board, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("status: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
