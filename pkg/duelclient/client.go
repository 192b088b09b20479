// Package duelclient is a small client for the duel-arena framed protocol.
// It dials any listener the server exposes (tcp or unix) and speaks the same
// length-prefixed frames.
package duelclient

import (
	"fmt"
	"net"
	"time"

	"github.com/kapu/duel-arena-go/internal/protocol"
	"github.com/kapu/duel-arena-go/internal/wire"
)

const defaultDialTimeout = 5 * time.Second

type Client struct {
	conn *wire.Conn
}

type Option func(*options)

type options struct {
	dialTimeout time.Duration
	maxFrame    int
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithMaxFrame caps inbound frame size, mirroring the server's setting.
func WithMaxFrame(n int) Option {
	return func(o *options) { o.maxFrame = n }
}

// Dial connects to a duel-arena listener. network is "tcp" or "unix".
func Dial(network, addr string, opts ...Option) (*Client, error) {
	o := options{dialTimeout: defaultDialTimeout, maxFrame: protocol.DefaultMaxFrame}
	for _, opt := range opts {
		opt(&o)
	}
	nc, err := net.DialTimeout(network, addr, o.dialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: wire.New(nc, wire.WithMaxFrame(o.maxFrame))}, nil
}

// Hello registers with the server and returns the assigned player id. A
// rejection (bad name, wrong password) comes back as an error carrying the
// server's notice text.
func (c *Client) Hello(displayName, password string) (string, error) {
	if err := c.conn.Send(&protocol.Hello{DisplayName: displayName, Password: password}); err != nil {
		return "", err
	}
	m, err := c.conn.Recv()
	if err != nil {
		return "", err
	}
	switch msg := m.(type) {
	case *protocol.Welcome:
		return msg.ID, nil
	case *protocol.ErrorNotice:
		return "", fmt.Errorf("registration rejected: %s", msg.Text)
	default:
		return "", fmt.Errorf("unexpected reply to hello: %s", m.Kind())
	}
}

func (c *Client) Send(m protocol.Message) error {
	return c.conn.Send(m)
}

func (c *Client) Recv() (protocol.Message, error) {
	return c.conn.Recv()
}

// Challenge asks the server to challenge the player with the given id.
func (c *Client) Challenge(targetID string) error {
	return c.conn.Send(&protocol.ChallengeRequest{Target: targetID})
}

// Respond answers a pending challenge by id.
func (c *Client) Respond(challengeID string, accept bool) error {
	return c.conn.Send(&protocol.ChallengeResult{ChallengeID: challengeID, Accepted: accept})
}

// Move relays one opaque move payload into the active session.
func (c *Client) Move(payload []byte) error {
	return c.conn.Send(&protocol.MoveData{Payload: payload})
}

// Goodbye announces an orderly departure. The server closes the connection.
func (c *Client) Goodbye() error {
	return c.conn.Send(&protocol.Goodbye{})
}

func (c *Client) Close() error {
	return c.conn.Close()
}
