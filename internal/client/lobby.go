package client

import (
	"context"
	"log"
	"time"

	"tankfire/internal/net"
)

// LobbyWatcher keeps a socket open to the server before a match is joined
// and reports the lobby summary. When the socket closes or cannot be opened
// it tries again after Retry.
type LobbyWatcher struct {
	URL     string
	Retry   time.Duration
	Timeout time.Duration
	Logger  *log.Logger
}

// Run blocks until ctx is done. onInfo is called from the watcher goroutine.
func (w *LobbyWatcher) Run(ctx context.Context, onInfo func(net.LobbyInfoMessage)) error {
	logger := w.Logger
	if logger == nil {
		logger = log.Default()
	}
	retry := w.Retry
	if retry <= 0 {
		retry = 3 * time.Second
	}

	for {
		t := NewTransport(w.Timeout, logger)
		if err := t.Connect(ctx, w.URL); err != nil {
			logger.Printf("lobby: %v", err)
		} else {
			t.Send(net.LobbyInfoRequest{})
			w.watch(ctx, t, logger, onInfo)
			t.Close()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

func (w *LobbyWatcher) watch(ctx context.Context, t *Transport, logger *log.Logger, onInfo func(net.LobbyInfoMessage)) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-t.Disconnected():
			logger.Printf("lobby: connection lost: %v", err)
			return
		case frame := <-t.Frames():
			msg, err := net.Decode(frame)
			if err != nil {
				logger.Printf("lobby: %v", err)
				continue
			}
			if info, ok := msg.(net.LobbyInfoMessage); ok && onInfo != nil {
				onInfo(info)
			}
		}
	}
}
