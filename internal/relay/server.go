package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/omochice/wschat/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"
)

const (
	outgoingBuffer = 32
	writeTimeout   = 10 * time.Second
)

// Config describes the listening side of the relay.
type Config struct {
	Addr      string
	Resource  string
	Protocols []string
}

// Server accepts WebSocket connections and delegates them to a Hub.
type Server struct {
	cfg      Config
	hub      *Hub
	registry *prometheus.Registry
	log      *logger.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server for hub. registry may be nil, in which case /metrics
// is not served.
func New(cfg Config, hub *Hub, registry *prometheus.Registry) *Server {
	if cfg.Resource == "" {
		cfg.Resource = "/"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		hub:      hub,
		registry: registry,
		log:      logger.New("relay"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler returns the HTTP routes of the relay.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	r.Get(s.cfg.Resource, s.handleWebSocket)
	return r
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	s.log.WithFields(map[string]interface{}{
		"addr":     listener.Addr().String(),
		"resource": s.cfg.Resource,
	}).Info("Relay started")

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes every session and shuts the listener down.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
	s.hub.CloseAll()
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: s.cfg.Protocols,
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to accept WebSocket connection")
		return
	}

	client := &Client{
		Conn:     NewConn(wsConn, r.RemoteAddr),
		Outgoing: make(chan []byte, outgoingBuffer),
	}

	s.wg.Add(2)
	go s.writeLoop(client)
	defer s.wg.Done()
	defer close(client.Outgoing)

	if err := s.hub.HandleClient(s.ctx, client); err != nil {
		s.log.WithError(err).WithField("remote_addr", client.Conn.RemoteAddr()).Warn("Session ended")
	}
	client.Conn.Close()
}

func (s *Server) writeLoop(client *Client) {
	defer s.wg.Done()
	for data := range client.Outgoing {
		ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
		err := client.Conn.Write(ctx, data)
		cancel()
		if err != nil {
			s.log.WithError(err).Debug("Failed to write to client")
			client.Conn.Close()
			for range client.Outgoing {
			}
			return
		}
	}
}
