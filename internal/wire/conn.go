package wire

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/kapu/duel-arena-go/internal/protocol"
)

// ErrClosed is returned by Send/Recv after Close.
var ErrClosed = errors.New("connection closed")

const defaultWriteTimeout = 10 * time.Second

// Conn wraps one client's byte stream and exchanges typed protocol messages
// over it. Reads are expected from a single owning goroutine; writes may come
// from the owner, the challenge coordinator, or a game session acting on its
// behalf, so they are serialized by a mutex to keep the single-writer
// discipline on the stream.
type Conn struct {
	nc net.Conn
	br *bufio.Reader

	wmu          sync.Mutex
	maxFrame     int
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

type Option func(*Conn)

// WithMaxFrame overrides the inbound/outbound frame size bound.
func WithMaxFrame(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.maxFrame = n
		}
	}
}

// WithWriteTimeout bounds how long a single outbound frame may block.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

func New(nc net.Conn, opts ...Option) *Conn {
	c := &Conn{
		nc:           nc,
		br:           bufio.NewReader(nc),
		maxFrame:     protocol.DefaultMaxFrame,
		writeTimeout: defaultWriteTimeout,
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send writes one framed message. Safe for concurrent use.
func (c *Conn) Send(m protocol.Message) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return protocol.WriteFrame(c.nc, m)
}

// Recv blocks for the next inbound frame. Only the owning connection worker
// may call it.
func (c *Conn) Recv() (protocol.Message, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return protocol.ReadFrame(c.br, c.maxFrame)
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.nc.Close()
	})
	return err
}

func (c *Conn) RemoteAddr() string {
	if addr := c.nc.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
