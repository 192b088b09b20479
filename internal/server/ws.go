package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/kapu/duel-arena-go/internal/obslog"
)

// wsServer bridges browser clients onto the framed protocol: each accepted
// WebSocket is wrapped as a net.Conn carrying binary messages and handed to
// the same per-connection worker the raw listeners use.
type wsServer struct {
	srv *Server
	ln  net.Listener
	hs  *http.Server
}

func newWSServer(s *Server, addr string) (*wsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	ws := &wsServer{srv: s, ln: ln}
	mux := http.NewServeMux()
	mux.HandleFunc("/duel", ws.handleUpgrade)
	ws.hs = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := ws.hs.Serve(ln); err != nil && err != http.ErrServerClosed {
			obslog.L().Warn("ws_serve_error", zap.Error(err))
		}
	}()
	return ws, nil
}

func (w *wsServer) Addr() string {
	return w.ln.Addr().String()
}

func (w *wsServer) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(rw, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Debug("ws_upgrade_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	// NetConn closes the websocket when the worker closes the net.Conn.
	nc := websocket.NetConn(context.Background(), c, websocket.MessageBinary)
	w.srv.handleConn(nc)
}

func (w *wsServer) Close(ctx context.Context) error {
	return w.hs.Shutdown(ctx)
}
