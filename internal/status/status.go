package status

import (
	"context"
	"encoding/json"
	"net"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/kapu/duel-arena-go/internal/archive"
	"github.com/kapu/duel-arena-go/internal/challenge"
	"github.com/kapu/duel-arena-go/internal/obslog"
	"github.com/kapu/duel-arena-go/internal/registry"
	"github.com/kapu/duel-arena-go/internal/session"
)

const recentLimit = 20

// Stats is the /stats payload.
type Stats struct {
	PlayersOnline     int `json:"players_online"`
	Available         int `json:"available"`
	PendingChallenges int `json:"pending_challenges"`
	ActiveSessions    int `json:"active_sessions"`
}

// Server exposes a small read-only HTTP surface next to the game protocol:
// /healthz, /stats and /recent. It never mutates game state.
type Server struct {
	reg      *registry.Registry
	coord    *challenge.Coordinator
	sessions *session.Manager
	store    *archive.Store

	ln  net.Listener
	srv *fasthttp.Server
}

// New builds the status server. store may be nil; /recent then serves an
// empty list.
func New(reg *registry.Registry, coord *challenge.Coordinator, sessions *session.Manager, store *archive.Store) *Server {
	s := &Server{reg: reg, coord: coord, sessions: sessions, store: store}
	s.srv = &fasthttp.Server{
		Handler:         s.Handle,
		Name:            "duel-status",
		ReadBufferSize:  8 << 10,
		WriteBufferSize: 8 << 10,
	}
	return s
}

// Start binds addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	obslog.L().Info("listen_status", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil {
			obslog.L().Warn("status_serve_error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	return s.srv.ShutdownWithContext(ctx)
}

// Handle routes a single request. GET only.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("ok")
	case "/stats":
		s.handleStats(ctx)
	case "/recent":
		s.handleRecent(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	total, available := s.reg.Counts()
	writeJSON(ctx, Stats{
		PlayersOnline:     total,
		Available:         available,
		PendingChallenges: s.coord.PendingCount(),
		ActiveSessions:    s.sessions.ActiveCount(),
	})
}

func (s *Server) handleRecent(ctx *fasthttp.RequestCtx) {
	recs := []*archive.Record{}
	if s.store != nil {
		var err error
		recs, err = s.store.Recent(ctx, recentLimit)
		if err != nil {
			obslog.L().Error("status_recent_error", zap.Error(err))
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}
	}
	writeJSON(ctx, recs)
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}
