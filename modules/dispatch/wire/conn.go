package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxMessageSize bounds a single frame body (a 1080p RGBA frame is ~8 MiB).
const MaxMessageSize = 64 << 20

// ErrMessageTooLarge is returned when a length prefix exceeds MaxMessageSize.
var ErrMessageTooLarge = errors.New("wire: message too large")

// Conn is one endpoint of a message stream. Each message is a 4-byte
// big-endian length followed by a msgpack body. Writes are serialised;
// reads must come from a single goroutine.
type Conn struct {
	r io.ReadCloser
	w io.WriteCloser

	wmu   sync.Mutex
	rbuf  [4]byte
	limit int

	closeOnce sync.Once
}

// NewConn wraps a reader and writer pair.
func NewConn(r io.ReadCloser, w io.WriteCloser) *Conn {
	return &Conn{r: r, w: w}
}

// SetMaxMessageSize lowers or raises the body bound for both directions.
// Values < 1 restore MaxMessageSize. Call it before the first message.
func (c *Conn) SetMaxMessageSize(n int) { c.limit = n }

func (c *Conn) maxMessageSize() int {
	if c.limit < 1 {
		return MaxMessageSize
	}
	return c.limit
}

// Pipe returns two connected endpoints. Nothing is shared between them
// except the byte stream.
func Pipe() (producer, processing *Conn) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	return NewConn(respR, reqW), NewConn(reqR, respW)
}

// WriteMessage encodes v and writes it as one framed message.
func (c *Conn) WriteMessage(v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: failed to marshal msgpack message: %w", err)
	}
	if len(body) > c.maxMessageSize() {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(body))
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("wire: failed to write length prefix: %w", err)
	}
	if _, err := c.w.Write(body); err != nil {
		return fmt.Errorf("wire: failed to write msgpack data: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message into v. It returns io.EOF when the
// peer closed cleanly between messages.
func (c *Conn) ReadMessage(v any) error {
	if _, err := io.ReadFull(c.r, c.rbuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			return io.EOF
		}
		return fmt.Errorf("wire: failed to read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(c.rbuf[:])
	if int64(n) > int64(c.maxMessageSize()) {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return fmt.Errorf("wire: failed to read msgpack data (expected %d bytes): %w", n, err)
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("wire: failed to unmarshal msgpack message: %w", err)
	}
	return nil
}

// Close closes both directions. The peer's pending ReadMessage returns io.EOF.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = errors.Join(c.w.Close(), c.r.Close())
	})
	return err
}
