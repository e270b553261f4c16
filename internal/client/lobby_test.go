package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tankfire/internal/net"
)

func TestLobbyWatcherRequestsAndReconnects(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)

		_, data, err := conn.ReadMessage()
		if err != nil || !strings.Contains(string(data), `"lobby_info"`) {
			return
		}
		reply := `{"type":"lobby_info","playerCount":` + strconv.Itoa(int(n)) + `,"winningScore":10,"players":[]}`
		conn.WriteMessage(websocket.TextMessage, []byte(reply))
		// Drop the connection so the watcher has to come back.
		time.Sleep(20 * time.Millisecond)
	}))
	defer srv.Close()

	infos := make(chan net.LobbyInfoMessage, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := &LobbyWatcher{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Retry:   30 * time.Millisecond,
		Timeout: time.Second,
		Logger:  quietLogger(),
	}
	go func() {
		done <- w.Run(ctx, func(info net.LobbyInfoMessage) { infos <- info })
	}()

	for want := 1; want <= 2; want++ {
		select {
		case info := <-infos:
			if info.PlayerCount != want || info.WinningScore != 10 {
				t.Fatalf("info %d = %+v", want, info)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("no lobby info %d", want)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
