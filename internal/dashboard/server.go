// Package dashboard serves a live view of sync activity: a websocket
// feed of per-document outcomes plus a trigger endpoint for whole
// passes.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	stdsync "sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType tags a dashboard broadcast.
type MessageType string

const (
	// MessageTypeHello greets a client with the project being served.
	MessageTypeHello MessageType = "hello"

	// MessageTypeDocSynced reports one document's outcome in a pass.
	MessageTypeDocSynced MessageType = "doc_synced"

	// MessageTypePassComplete reports a finished sync pass.
	MessageTypePassComplete MessageType = "pass_complete"

	// MessageTypePushComplete reports a finished push.
	MessageTypePushComplete MessageType = "push_complete"
)

// Message is one websocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// HelloData identifies the served project to a new client.
type HelloData struct {
	Project   string `json:"project"`
	Documents int    `json:"documents"`
}

// DocSyncedData mirrors one sync result.
type DocSyncedData struct {
	Root     string `json:"root"`
	RemoteID string `json:"remoteId"`
	Title    string `json:"title,omitempty"`
	Path     string `json:"path,omitempty"`
	Version  int    `json:"version,omitempty"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

// PassCompleteData summarizes a finished pass.
type PassCompleteData struct {
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
	Duration  string `json:"duration"`
	OK        bool   `json:"ok"`
}

// PushCompleteData reports a push and its refresh state.
type PushCompleteData struct {
	Root           string `json:"root"`
	RemoteID       string `json:"remoteId"`
	OldVersion     int    `json:"oldVersion"`
	NewVersion     int    `json:"newVersion"`
	RefreshWarning string `json:"refreshWarning,omitempty"`
}

// PullFunc runs one full sync pass on behalf of the dashboard.
type PullFunc func(ctx context.Context) error

// Config holds server settings.
type Config struct {
	// Addr to listen on, e.g. "127.0.0.1:8787". Port 0 picks a free one.
	Addr string

	// Project and Documents describe what is being served; they only
	// feed the hello message and health output.
	Project   string
	Documents int

	Logger *log.Logger
}

// DefaultConfig binds to localhost on the dashboard's usual port.
func DefaultConfig() *Config {
	return &Config{
		Addr:   "127.0.0.1:8787",
		Logger: log.New(os.Stderr, "[serve] ", log.LstdFlags),
	}
}

// Server fans sync events out to websocket clients. A slow or dead
// client is dropped rather than ever blocking the engine.
type Server struct {
	addr      string
	project   string
	documents int
	listener  net.Listener
	server    *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu stdsync.RWMutex

	broadcast chan Message

	pull    PullFunc
	pullSem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server. Call Start to begin listening.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[serve] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      cfg.Addr,
		project:   cfg.Project,
		documents: cfg.Documents,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		pullSem:   make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		logger:    cfg.Logger,
	}
}

// SetPullFunc wires the POST /api/pull trigger. Call before Start.
func (s *Server) SetPullFunc(fn PullFunc) {
	s.pull = fn
}

// Start begins serving. It returns once the listener is up.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/pull", s.handlePull)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("dashboard listening on http://%s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("server error: %v", err)
		}
	}()

	return nil
}

// Stop disconnects clients and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Broadcast queues a message for all clients. It never blocks: when the
// queue is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("broadcast queue full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	total := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("client connected (total: %d)", total)

	hello, _ := json.Marshal(HelloData{Project: s.project, Documents: s.documents})
	welcome, _ := json.Marshal(Message{Type: MessageTypeHello, Timestamp: time.Now(), Data: hello})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, welcome)
	cancel()

	go s.readLoop(conn)
}

// readLoop drains the client so pings are answered; inbound frames are
// otherwise ignored.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	total := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("client disconnected (total: %d)", total)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	total := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"project":   s.project,
		"documents": s.documents,
		"clients":   total,
	})
}

// handlePull starts one sync pass. Passes are single-flight: a second
// trigger while one runs answers 409.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.pull == nil {
		http.Error(w, "pull is not wired on this server", http.StatusNotFound)
		return
	}

	select {
	case s.pullSem <- struct{}{}:
	default:
		http.Error(w, "a sync pass is already running", http.StatusConflict)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.pullSem }()
		if err := s.pull(s.ctx); err != nil {
			s.logger.Printf("pull pass: %v", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "sync pass started")
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
  <title>confsync dashboard</title>
  <style>
    body { font-family: monospace; margin: 2em; background: #111; color: #ddd; }
    h1 { color: #6af; }
    #events li { margin: 2px 0; }
    .failed { color: #f66; }
    .created, .updated { color: #6f6; }
    .skipped { color: #888; }
    button { font-family: inherit; padding: 4px 12px; }
  </style>
</head>
<body>
  <h1>confsync</h1>
  <p id="project"></p>
  <button onclick="runPull()">Run sync pass</button>
  <ul id="events"></ul>
  <script>
    const events = document.getElementById("events");
    const add = (cls, text) => {
      const li = document.createElement("li");
      li.className = cls;
      li.textContent = new Date().toLocaleTimeString() + "  " + text;
      events.prepend(li);
    };
    const ws = new WebSocket("ws://%s/ws");
    ws.onmessage = (ev) => {
      const msg = JSON.parse(ev.data);
      const d = msg.data || {};
      switch (msg.type) {
      case "hello":
        document.getElementById("project").textContent =
          d.project + " (" + d.documents + " tracked documents)";
        break;
      case "doc_synced":
        add(d.outcome, d.outcome + "  " + (d.path || d.remoteId) +
          (d.error ? "  " + d.error : ""));
        break;
      case "pass_complete":
        add(d.ok ? "updated" : "failed",
          "pass: " + d.created + " created, " + d.updated + " updated, " +
          d.unchanged + " unchanged, " + d.failed + " failed in " + d.duration);
        break;
      case "push_complete":
        add("updated", "push: " + d.root + " v" + d.oldVersion + " -> v" + d.newVersion +
          (d.refreshWarning ? "  (refresh: " + d.refreshWarning + ")" : ""));
        break;
      }
    };
    ws.onclose = () => add("failed", "connection closed");
    const runPull = () => fetch("/api/pull", {method: "POST"})
      .then(r => r.text()).then(t => add("skipped", t.trim()))
      .catch(e => add("failed", e));
  </script>
</body>
</html>`, r.Host)
}

// GetAddr returns the bound address once Start has succeeded.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
