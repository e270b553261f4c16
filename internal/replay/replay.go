// Package replay records applied snapshots to a msgpack stream and reads
// them back.
package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"tankfire/internal/game"
)

// Header opens every recording.
type Header struct {
	MatchID string    `msgpack:"matchId"`
	Player  string    `msgpack:"player"`
	Started time.Time `msgpack:"started"`
}

// Frame is one snapshot as the client applied it.
type Frame struct {
	At     time.Time   `msgpack:"at"`
	Roster game.Roster `msgpack:"roster"`
}

// Recorder appends frames to a stream. The stream is a header value followed
// by one value per frame.
type Recorder struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	enc    *msgpack.Encoder
	closer io.Closer
	frames int
}

// NewRecorder writes header to w and returns a recorder for the frames that
// follow. Close closes w if it is an io.Closer.
func NewRecorder(w io.Writer, header Header) (*Recorder, error) {
	buf := bufio.NewWriter(w)
	enc := msgpack.NewEncoder(buf)
	if err := enc.Encode(&header); err != nil {
		return nil, fmt.Errorf("write replay header: %w", err)
	}
	r := &Recorder{buf: buf, enc: enc}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// Create starts a recording in a new file at path.
func Create(path string, header Header) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create replay: %w", err)
	}
	r, err := NewRecorder(f, header)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) Record(at time.Time, roster game.Roster) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return errors.New("replay recorder closed")
	}
	if err := r.enc.Encode(&Frame{At: at, Roster: roster}); err != nil {
		return fmt.Errorf("write replay frame %d: %w", r.frames, err)
	}
	r.frames++
	return nil
}

// Frames returns how many frames were written.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return nil
	}
	r.enc = nil
	err := r.buf.Flush()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Load reads a whole recording.
func Load(rd io.Reader) (Header, []Frame, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(rd))
	var header Header
	if err := dec.Decode(&header); err != nil {
		return Header{}, nil, fmt.Errorf("read replay header: %w", err)
	}
	var frames []Frame
	for {
		var f Frame
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			return header, frames, nil
		}
		if err != nil {
			return header, frames, fmt.Errorf("read replay frame %d: %w", len(frames), err)
		}
		frames = append(frames, f)
	}
}

// Open loads the recording at path.
func Open(path string) (Header, []Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("open replay: %w", err)
	}
	defer f.Close()
	return Load(f)
}
