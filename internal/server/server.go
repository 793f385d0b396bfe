// Package server hosts the websocket table surface: per-table runtimes
// behind a registry, personalized snapshots, and the session layer.
package server

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/pokerhall/holdemd/internal/auth"
	"github.com/pokerhall/holdemd/internal/game"
	"github.com/pokerhall/holdemd/internal/randutil"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Registry owns every table runtime in the process.
type Registry struct {
	mu      sync.Mutex
	tables  map[int64]*Runtime
	nextID  int64
	store   Persister
	clock   quartz.Clock
	logger  *log.Logger
	seed    func() int64
}

// NewRegistry creates an empty table registry.
func NewRegistry(store Persister, clock quartz.Clock, logger *log.Logger) *Registry {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Registry{
		tables: make(map[int64]*Runtime),
		nextID: 1,
		store:  store,
		clock:  clock,
		logger: logger,
		seed:   func() int64 { return time.Now().UnixNano() },
	}
}

// CreateTable adds a new table and returns its runtime.
func (reg *Registry) CreateTable(name string, smallBlind, bigBlind int64, maxPlayers int) *Runtime {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := reg.nextID
	reg.nextID++
	table := game.NewTable(id, name, smallBlind, bigBlind, maxPlayers, randutil.New(reg.seed()))
	runtime := NewRuntime(table, reg.store, reg.clock, reg.logger, reg.removeIfEmpty)
	reg.tables[id] = runtime
	reg.logger.Info("table created", "table_id", id, "name", name, "small_blind", smallBlind, "big_blind", bigBlind)
	return runtime
}

// Runtime returns the runtime for a table id, or nil.
func (reg *Registry) Runtime(tableID int64) *Runtime {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.tables[tableID]
}

// TableInfo is one lobby listing entry.
type TableInfo struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	SmallBlind int64  `json:"small_blind"`
	BigBlind   int64  `json:"big_blind"`
	Seats      int    `json:"seats"`
	MaxSeats   int    `json:"max_seats"`
	HandActive bool   `json:"hand_active"`
}

// List returns the lobby listing, ordered by table id.
func (reg *Registry) List() []TableInfo {
	reg.mu.Lock()
	runtimes := make([]*Runtime, 0, len(reg.tables))
	for _, r := range reg.tables {
		runtimes = append(runtimes, r)
	}
	reg.mu.Unlock()

	infos := make([]TableInfo, 0, len(runtimes))
	for _, r := range runtimes {
		name, sb, bb, seats, maxSeats, active := r.Describe()
		infos = append(infos, TableInfo{
			ID:         r.TableID(),
			Name:       name,
			SmallBlind: sb,
			BigBlind:   bb,
			Seats:      seats,
			MaxSeats:   maxSeats,
			HandActive: active,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// removeIfEmpty drops a table once the last user has left.
func (reg *Registry) removeIfEmpty(tableID int64) {
	reg.mu.Lock()
	runtime, ok := reg.tables[tableID]
	if ok {
		delete(reg.tables, tableID)
	}
	reg.mu.Unlock()
	if ok {
		runtime.Close()
		reg.logger.Info("empty table removed", "table_id", tableID)
	}
}

// Close shuts down every runtime.
func (reg *Registry) Close() {
	reg.mu.Lock()
	runtimes := make([]*Runtime, 0, len(reg.tables))
	for _, r := range reg.tables {
		runtimes = append(runtimes, r)
	}
	reg.tables = make(map[int64]*Runtime)
	reg.mu.Unlock()
	for _, r := range runtimes {
		r.Close()
	}
}

// Server serves the websocket endpoint over a registry.
type Server struct {
	registry *Registry
	tokens   *auth.Tokens
	logger   *log.Logger
	http     *http.Server
}

// NewServer wires the websocket surface. Extra handlers (the REST API)
// are attached by registering them on mux before ListenAndServe.
func NewServer(addr string, registry *Registry, tokens *auth.Tokens, mux *http.ServeMux, logger *log.Logger) *Server {
	s := &Server{
		registry: registry,
		tokens:   tokens,
		logger:   logger.WithPrefix("ws"),
	}
	mux.HandleFunc("GET /ws/tables/{id}", s.handleTableSocket)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving HTTP and websocket traffic.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and all table runtimes.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.registry.Close()
	return err
}

// handleTableSocket upgrades the connection, authenticates the token
// from the query string and hands the socket to a session. Handshake
// failures are reported as wire error frames before closing, so clients
// always get a structured reason.
func (s *Server) handleTableSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "error", err)
		return
	}

	reject := func(code, message string) {
		_ = conn.WriteJSON(ErrorMessage{Type: MessageError, Code: code, Message: message})
		_ = conn.Close()
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		reject(CodeMissingToken, "auth token is required")
		return
	}
	userID, err := s.tokens.Verify(token)
	if err != nil {
		reject(CodeInvalidToken, "auth token is invalid or expired")
		return
	}

	tableID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		reject(CodeInvalidTableID, "table id must be an integer")
		return
	}
	runtime := s.registry.Runtime(tableID)
	if runtime == nil {
		reject(CodeTableNotFound, "no such table")
		return
	}

	s.logger.Info("session connected", "user_id", userID, "table_id", tableID)
	session := NewSession(conn, runtime, userID, s.logger)
	session.Start()
	s.logger.Info("session closed", "user_id", userID, "table_id", tableID)
}
