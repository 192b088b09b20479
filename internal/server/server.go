package server

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/duel-arena-go/internal/challenge"
	"github.com/kapu/duel-arena-go/internal/config"
	"github.com/kapu/duel-arena-go/internal/msgcat"
	"github.com/kapu/duel-arena-go/internal/obslog"
	"github.com/kapu/duel-arena-go/internal/protocol"
	"github.com/kapu/duel-arena-go/internal/registry"
	"github.com/kapu/duel-arena-go/internal/session"
	"github.com/kapu/duel-arena-go/internal/wire"
)

// Server accepts client connections over TCP, a unix domain socket, and an
// optional WebSocket endpoint, all speaking the identical framed protocol.
// Each accepted connection runs in its own goroutine.
type Server struct {
	cfg      *config.AppConfig
	reg      *registry.Registry
	coord    *challenge.Coordinator
	sessions *session.Manager
	cat      *msgcat.Catalog

	mu     sync.Mutex
	tcpLn  net.Listener
	unixLn net.Listener
	conns  map[*wire.Conn]struct{}
	closed bool

	wsSrv *wsServer
	wg    sync.WaitGroup
}

func New(cfg *config.AppConfig, reg *registry.Registry, coord *challenge.Coordinator, sessions *session.Manager, cat *msgcat.Catalog) *Server {
	return &Server{
		cfg:      cfg,
		reg:      reg,
		coord:    coord,
		sessions: sessions,
		cat:      cat,
		conns:    make(map[*wire.Conn]struct{}),
	}
}

// Start binds every configured listener and begins accepting.
func (s *Server) Start() error {
	if s.cfg.TCPAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.TCPAddr)
		if err != nil {
			return err
		}
		s.tcpLn = ln
		obslog.L().Info("listen_tcp", zap.String("addr", ln.Addr().String()))
		s.wg.Add(1)
		go s.acceptLoop(ln)
	}
	if s.cfg.UnixSocketPath != "" {
		// clean up a socket file left over from a previous run
		_ = os.Remove(s.cfg.UnixSocketPath)
		ln, err := net.Listen("unix", s.cfg.UnixSocketPath)
		if err != nil {
			s.closeListeners()
			return err
		}
		s.unixLn = ln
		obslog.L().Info("listen_unix", zap.String("path", s.cfg.UnixSocketPath))
		s.wg.Add(1)
		go s.acceptLoop(ln)
	}
	if s.cfg.WSAddr != "" {
		ws, err := newWSServer(s, s.cfg.WSAddr)
		if err != nil {
			s.closeListeners()
			return err
		}
		s.wsSrv = ws
		obslog.L().Info("listen_ws", zap.String("addr", ws.Addr()))
	}
	return nil
}

// TCPAddr reports the bound TCP address, useful when configured with port 0.
func (s *Server) TCPAddr() string {
	if s.tcpLn == nil {
		return ""
	}
	return s.tcpLn.Addr().String()
}

// WSAddr reports the bound WebSocket address when that listener is enabled.
func (s *Server) WSAddr() string {
	if s.wsSrv == nil {
		return ""
	}
	return s.wsSrv.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			obslog.L().Warn("accept_error", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(nc)
		}()
	}
}

// Shutdown stops accepting, pushes Goodbye to every connected client, closes
// all connections and waits for the workers to drain, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*wire.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.closeListeners()
	for _, c := range conns {
		_ = c.Send(&protocol.Goodbye{})
		_ = c.Close()
	}
	// all connections are closed, so websocket handlers unwind before this
	if s.wsSrv != nil {
		_ = s.wsSrv.Close(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if s.cfg.UnixSocketPath != "" {
		_ = os.Remove(s.cfg.UnixSocketPath)
	}
	obslog.L().Info("server_shutdown")
	return err
}

func (s *Server) closeListeners() {
	if s.tcpLn != nil {
		_ = s.tcpLn.Close()
	}
	if s.unixLn != nil {
		_ = s.unixLn.Close()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// track registers a live connection for shutdown broadcasting. It reports
// false when the server is already closing.
func (s *Server) track(c *wire.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *wire.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
