// Package telemetry streams frame statistics to websocket clients and
// exposes the prometheus registry over HTTP.
package telemetry

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"particlesim/timing"
)

const writeTimeout = 2 * time.Second

// Message is the JSON document sent to every websocket client
type Message struct {
	Type  string       `json:"type"`
	Stats timing.Stats `json:"stats"`
}

// Server serves /ws and /metrics. Publish never blocks the frame loop: only
// the most recent snapshot waits to be broadcast.
type Server struct {
	addr     string
	log      *zap.Logger
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
	latest  *timing.Stats

	updates chan timing.Stats
	done    chan struct{}
	once    sync.Once

	http     *http.Server
	listener net.Listener
}

// New creates a server listening on addr once started. A nil gatherer
// serves the default prometheus registry.
func New(addr string, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		addr:     addr,
		log:      log,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			// the stats page is served from anywhere during development
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
		updates: make(chan timing.Stats, 1),
		done:    make(chan struct{}),
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler routes /ws and /metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start listens and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "telemetry listen on %s", s.addr)
	}
	s.listener = ln

	go s.broadcastLoop()
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("telemetry server stopped", zap.Error(err))
		}
	}()
	s.log.Info("telemetry listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the address actually listened on, empty before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Publish hands a snapshot to the broadcaster. An older snapshot that has
// not been sent yet is replaced.
func (s *Server) Publish(stats timing.Stats) {
	s.mu.Lock()
	s.latest = &stats
	s.mu.Unlock()

	for {
		select {
		case s.updates <- stats:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// Clients counts the connected websocket clients
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connMutex := &sync.Mutex{}
	s.mu.Lock()
	s.clients[conn] = connMutex
	latest := s.latest
	s.mu.Unlock()
	defer s.remove(conn)

	s.log.Debug("telemetry client connected", zap.String("remote", r.RemoteAddr))
	if latest != nil {
		if err := s.send(conn, connMutex, *latest); err != nil {
			return
		}
	}

	// clients only listen; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.log.Debug("telemetry client gone", zap.Error(err))
			return
		}
	}
}

func (s *Server) remove(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
}

func (s *Server) send(conn *websocket.Conn, mu *sync.Mutex, stats timing.Stats) error {
	mu.Lock()
	defer mu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(Message{Type: "stats", Stats: stats})
}

func (s *Server) broadcastLoop() {
	for {
		select {
		case stats := <-s.updates:
			s.broadcast(stats)
		case <-s.done:
			return
		}
	}
}

func (s *Server) broadcast(stats timing.Stats) {
	s.mu.RLock()
	var failed []*websocket.Conn
	for conn, mu := range s.clients {
		if err := s.send(conn, mu, stats); err != nil {
			s.log.Debug("telemetry write failed", zap.Error(err))
			failed = append(failed, conn)
		}
	}
	s.mu.RUnlock()

	for _, conn := range failed {
		conn.Close()
		s.remove(conn)
	}
}

// Close disconnects every client and shuts the HTTP server down
func (s *Server) Close(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		close(s.done)

		s.mu.Lock()
		for conn := range s.clients {
			conn.Close()
			delete(s.clients, conn)
		}
		s.mu.Unlock()

		if s.listener != nil {
			err = s.http.Shutdown(ctx)
		}
	})
	return err
}
