package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tankfire/internal/net"
)

var (
	ErrConnectTimeout = errors.New("connect timed out")
	ErrNotOpen        = errors.New("transport not open")
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 1 << 20
	sendBufferSize = 256
	inboxSize      = 256
)

// Transport is a duplex websocket channel to the game server. Sends are
// best effort: while the channel is not open they are silently dropped.
// Inbound frames queue up until the owner drains them.
type Transport struct {
	logger  *log.Logger
	dialer  *websocket.Dialer
	timeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	open   bool
	closed bool

	send         chan []byte
	inbox        chan []byte
	done         chan struct{}
	disconnected chan error
	closeOnce    sync.Once
}

// NewTransport returns an unconnected transport. A connect attempt that has
// not completed within timeout fails with ErrConnectTimeout.
func NewTransport(timeout time.Duration, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Transport{
		logger:       logger,
		dialer:       &websocket.Dialer{HandshakeTimeout: timeout},
		timeout:      timeout,
		send:         make(chan []byte, sendBufferSize),
		inbox:        make(chan []byte, inboxSize),
		done:         make(chan struct{}),
		disconnected: make(chan error, 1),
	}
}

// Connect dials url and starts the read and write pumps. A transport
// connects at most once; reconnecting means building a new one.
func (t *Transport) Connect(ctx context.Context, url string) error {
	t.mu.Lock()
	if t.conn != nil || t.closed {
		t.mu.Unlock()
		return fmt.Errorf("connect %s: transport already used", url)
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("connect %s: %w", url, ErrConnectTimeout)
		}
		return fmt.Errorf("connect %s: %w", url, err)
	}
	conn.SetReadLimit(maxFrameSize)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return fmt.Errorf("connect %s: %w", url, ErrNotOpen)
	}
	t.conn = conn
	t.open = true
	t.mu.Unlock()

	go t.readPump()
	go t.writePump()
	return nil
}

func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Send encodes msg and queues it for writing. It never blocks: when the
// channel is not open or the send buffer is full the message is dropped.
func (t *Transport) Send(msg net.Outbound) {
	if !t.IsOpen() {
		return
	}
	data, err := net.Encode(msg)
	if err != nil {
		t.logger.Printf("transport: encode %T: %v", msg, err)
		return
	}
	select {
	case t.send <- data:
	default:
		t.logger.Printf("transport: send buffer full, dropping %T", msg)
	}
}

// Frames exposes the inbound queue for owners that select on it.
func (t *Transport) Frames() <-chan []byte { return t.inbox }

// Drain hands every queued inbound frame to handle, in arrival order,
// without blocking. It returns the number of frames handled.
func (t *Transport) Drain(handle func([]byte)) int {
	n := 0
	for {
		select {
		case frame := <-t.inbox:
			handle(frame)
			n++
		default:
			return n
		}
	}
}

// Disconnected delivers one error when the connection fails or the server
// closes it. It is never signalled for a local Close.
func (t *Transport) Disconnected() <-chan error { return t.disconnected }

// Close shuts the connection down. It is safe to call more than once.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.open = false
		conn := t.conn
		t.mu.Unlock()

		close(t.done)
		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			err = conn.Close()
		}
	})
	return err
}

// fail records an unexpected end of the connection.
func (t *Transport) fail(err error) {
	t.mu.Lock()
	if t.closed || !t.open {
		t.mu.Unlock()
		return
	}
	t.open = false
	conn := t.conn
	t.mu.Unlock()

	conn.Close()
	select {
	case t.disconnected <- err:
	default:
	}
}

func (t *Transport) readPump() {
	for {
		msgType, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Printf("transport: read: %v", err)
			}
			t.fail(fmt.Errorf("read: %w", err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case t.inbox <- message:
		case <-t.done:
			return
		}
	}
}

func (t *Transport) writePump() {
	for {
		select {
		case message := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				t.fail(fmt.Errorf("write: %w", err))
				return
			}
		case <-t.done:
			return
		}
	}
}
