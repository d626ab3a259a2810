package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	goutils "go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/link"
	"github.com/bledrive/bledrive/logging"
	"github.com/bledrive/bledrive/services/remotecontrol"
	"github.com/bledrive/bledrive/spatialmath"
)

const shutdownTimeout = time.Second

// A LinkFactory returns a new, disconnected link for one page session.
type LinkFactory func(ctx context.Context) (*link.Link, error)

// NewLinkFactory returns a LinkFactory building links from the configured transport.
func NewLinkFactory(conf config.Link, logger logging.Logger) LinkFactory {
	return func(ctx context.Context) (*link.Link, error) {
		transport, err := link.NewTransport(ctx, conf, logger)
		if err != nil {
			return nil, err
		}
		return link.New(transport, link.Options{QueueSize: conf.QueueSize}, logger.Named("link")), nil
	}
}

// Server hosts the joystick page and its websocket sessions.
type Server struct {
	conf     *config.Config
	newLink  LinkFactory
	logger   logging.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	closed   bool
	sessions map[uuid.UUID]*pageSession
	workers  *goutils.StoppableWorkers
}

// NewServer returns a server for the given config. Every page that connects gets its own link
// from newLink.
func NewServer(conf *config.Config, newLink LinkFactory, logger logging.Logger) *Server {
	return &Server{
		conf:    conf,
		newLink: newLink,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the page may be opened from another host on the local network
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: map[uuid.UUID]*pageSession{},
		workers:  goutils.NewBackgroundStoppableWorkers(),
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := goji.NewMux()
	if s.conf.Web.Pprof {
		mux.HandleFunc(pat.New("/debug/pprof/"), pprof.Index)
		mux.HandleFunc(pat.New("/debug/pprof/cmdline"), pprof.Cmdline)
		mux.HandleFunc(pat.New("/debug/pprof/profile"), pprof.Profile)
		mux.HandleFunc(pat.New("/debug/pprof/symbol"), pprof.Symbol)
		mux.HandleFunc(pat.New("/debug/pprof/trace"), pprof.Trace)
		mux.HandleFunc(pat.New("/debug/pprof/:profile"), pprof.Index)
	}

	corsHandler := cors.AllowAll()
	mux.Handle(pat.Get("/api/geometry"), corsHandler.Handler(http.HandlerFunc(s.handleGeometry)))
	mux.HandleFunc(pat.Get("/ws"), s.handleWebsocket)

	static, err := fs.Sub(AppFS, "static")
	if err != nil {
		// the embedded tree is fixed at build time
		panic(err)
	}
	mux.Handle(pat.Get("/*"), http.FileServer(http.FS(static)))
	return mux
}

func (s *Server) handleGeometry(w http.ResponseWriter, r *http.Request) {
	j := s.conf.Joystick
	resp := geometryResponse{
		Radius:       j.Radius,
		Deadzone:     j.Deadzone,
		HandleRadius: j.HandleRadius,
		Octagon:      points(spatialmath.NewOctagon(j.Radius).Vertices(r2.Point{})),
		DeadzoneArea: points(spatialmath.NewOctagon(j.Deadzone).Vertices(r2.Point{})),
		Handle:       points(spatialmath.NewOctagon(j.HandleRadius).Vertices(r2.Point{})),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debugw("error writing geometry", "error", err)
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.Debugw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	l, err := s.newLink(r.Context())
	if err != nil {
		s.logger.Warnw("cannot create link for page", "remote", r.RemoteAddr, "error", err)
		ps := &pageSession{conn: conn, logger: s.logger}
		ps.writeJSON(newStatusMessage(remotecontrol.Status{
			State:    link.Disconnected,
			Message:  "Link unavailable: " + err.Error(),
			Blocking: true,
		}))
		goutils.UncheckedError(conn.Close())
		return
	}

	ps := newPageSession(conn, l, s.conf.Joystick, s.logger)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		ps.closeNow()
		return
	}
	s.sessions[ps.id()] = ps
	s.workers.Add(func(ctx context.Context) {
		defer s.forget(ps)
		ps.run(ctx)
	})
	s.logger.Infow("page connected", "session", ps.id().String(), "remote", r.RemoteAddr)
}

func (s *Server) forget(ps *pageSession) {
	s.mu.Lock()
	delete(s.sessions, ps.id())
	s.mu.Unlock()
	s.logger.Infow("page disconnected", "session", ps.id().String())
}

// Sessions returns the number of connected pages.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close ends every page session and closes their links. New pages are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.workers.Stop()
}

// Run serves on the configured listen address until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.conf.Web.Listen)
	if err != nil {
		return errors.Wrapf(err, "cannot listen on %q", s.conf.Web.Listen)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	goutils.PanicCapturingGo(func() {
		serveErr <- srv.Serve(ln)
	})
	s.logger.Infow("serving joystick page", "address", "http://"+ln.Addr().String())

	select {
	case err := <-serveErr:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "web server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not covered by Shutdown
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnw("web server shutdown timed out, forcing close", "error", err)
		if err := srv.Close(); err != nil {
			return errors.Wrap(err, "error closing web server")
		}
	}
	s.logger.Info("web server stopped")
	return nil
}
