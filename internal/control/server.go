package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/realsaraf/blooom/internal/logging"
	"github.com/realsaraf/blooom/internal/session"
)

var log = logging.L("control")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 256

	// Path is where shells connect.
	Path = "/ws"
)

var (
	// ErrNoClients is returned by Push when no shell is connected.
	ErrNoClients = errors.New("control: no shell connected")

	// ErrServerClosed is returned by operations on a closed server.
	ErrServerClosed = errors.New("control: server closed")
)

// Handler answers one command. It is called on its own goroutine.
type Handler interface {
	Handle(ctx context.Context, cmd Command) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd Command) Result

func (f HandlerFunc) Handle(ctx context.Context, cmd Command) Result { return f(ctx, cmd) }

// Server accepts websocket connections from UI shells on loopback.
type Server struct {
	handler  Handler
	limiter  *RateLimiter
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn      *websocket.Conn
	remote    string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewServer builds a server dispatching commands to h. A nil limiter
// disables connection rate limiting.
func NewServer(h Handler, limiter *RateLimiter) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		handler: h,
		limiter: limiter,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     allowedOrigin,
	}
	return s
}

// allowedOrigin accepts requests from local pages only: no Origin header,
// file:// pages, opaque "null" origins and loopback hosts.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme == "file" {
		return true
	}
	return isLoopback(u.Hostname())
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	remote := remoteHost(r)
	if !isLoopback(remote) {
		log.Warn("rejected non-loopback connection", "remote", remote)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if !s.limiter.Allow(remote) {
		log.Warn("connection rate limited", "remote", remote)
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", "remote", remote, "error", err)
		return
	}

	c := &client{
		conn:   conn,
		remote: remote,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	if !s.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	log.Info("shell connected", "remote", remote)

	go s.writePump(c)
	s.readPump(c)

	s.unregister(c)
	log.Info("shell disconnected", "remote", remote)
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

func (s *Server) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", "remote", c.remote, "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.Warn("failed to parse command", "remote", c.remote, "error", err)
			s.reply(c, Result{Type: TypeResult, Status: StatusError, Error: "malformed command"})
			continue
		}
		if cmd.ID == "" || cmd.Type == "" {
			s.reply(c, Result{Type: TypeResult, CommandID: cmd.ID, Status: StatusError, Error: "command requires id and type"})
			continue
		}

		go s.process(c, cmd)
	}
}

func (s *Server) process(c *client, cmd Command) {
	log.Debug("command received", "type", cmd.Type, "commandId", cmd.ID)
	result := s.handler.Handle(s.ctx, cmd)
	result.Type = TypeResult
	result.CommandID = cmd.ID
	if result.Status == "" {
		result.Status = StatusOK
	}
	s.reply(c, result)
}

func (s *Server) reply(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("failed to marshal message", "error", err)
		return
	}
	s.enqueue(c, data)
}

func (s *Server) enqueue(c *client, data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Warn("send buffer full, message dropped", "remote", c.remote)
		return false
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("write error", "remote", c.remote, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast sends v to every connected shell and returns how many
// accepted it.
func (s *Server) Broadcast(v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrServerClosed
	}
	sent := 0
	for c := range s.clients {
		if s.enqueue(c, data) {
			sent++
		}
	}
	return sent, nil
}

// Push asks connected shells to perform action.
func (s *Server) Push(action string, payload any) error {
	n, err := s.Broadcast(Push{Type: TypePush, Action: action, Payload: payload})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoClients
	}
	return nil
}

// Forward broadcasts recorder events until ctx is done or events closes.
func (s *Server) Forward(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := s.Broadcast(EventMessage{Type: TypeEvent, Event: ev}); errors.Is(err, ErrServerClosed) {
				return
			}
		}
	}
}

// Clients returns the number of connected shells.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every shell and cancels in-flight commands.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	s.cancel()
	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		c.close()
	}
}

// ListenAndServe serves shells on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves shells on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(Path, s)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
			return
		}
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("control server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
