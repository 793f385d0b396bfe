// Package httpapi is the REST surface around the table server: account
// registration and login, table management, and per-user stats/history.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/pokerhall/holdemd/internal/auth"
	"github.com/pokerhall/holdemd/internal/game"
	"github.com/pokerhall/holdemd/internal/server"
	"github.com/pokerhall/holdemd/internal/store"
)

type contextKey string

const userIDKey contextKey = "user_id"

// API bundles the REST handler dependencies.
type API struct {
	store           *store.Store
	registry        *server.Registry
	tokens          *auth.Tokens
	logger          *log.Logger
	startingBalance int64
}

// New creates the REST API.
func New(st *store.Store, registry *server.Registry, tokens *auth.Tokens, startingBalance int64, logger *log.Logger) *API {
	return &API{
		store:           st,
		registry:        registry,
		tokens:          tokens,
		logger:          logger.WithPrefix("api"),
		startingBalance: startingBalance,
	}
}

// Register attaches all routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)

	mux.Handle("GET /api/tables", a.authed(a.handleListTables))
	mux.Handle("POST /api/tables", a.authed(a.handleCreateTable))
	mux.Handle("GET /api/tables/{id}", a.authed(a.handleTableDetail))
	mux.Handle("POST /api/tables/{id}/join", a.authed(a.handleJoinTable))
	mux.Handle("POST /api/tables/{id}/leave", a.authed(a.handleLeaveTable))
	mux.Handle("POST /api/tables/{id}/spectate", a.authed(a.handleSpectateTable))

	mux.Handle("GET /api/stats", a.authed(a.handleStats))
	mux.Handle("GET /api/history", a.authed(a.handleHistory))
}

// authed wraps a handler with bearer-token authentication.
func (a *API) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := a.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func requestUser(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 4 {
		writeError(w, http.StatusBadRequest, "username and a password of at least 4 characters are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	user, err := a.store.CreateUser(req.Username, string(hash), a.startingBalance)
	if errors.Is(err, store.ErrUsernameTaken) {
		writeError(w, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		a.logger.Error("register failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	a.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"balance":  user.Balance,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := a.store.UserByUsername(strings.TrimSpace(req.Username))
	if errors.Is(err, store.ErrUserNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusForbidden, "account is disabled")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		a.logger.Error("token issue failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user_id":      user.ID,
		"balance":      user.Balance,
	})
}

func (a *API) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tables": a.registry.List()})
}

type createTableRequest struct {
	Name       string `json:"name"`
	SmallBlind int64  `json:"small_blind"`
	BigBlind   int64  `json:"big_blind"`
	MaxPlayers int    `json:"max_players"`
}

func (a *API) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "table name is required")
		return
	}
	if req.SmallBlind <= 0 || req.BigBlind <= req.SmallBlind {
		writeError(w, http.StatusBadRequest, "blinds must satisfy 0 < small_blind < big_blind")
		return
	}
	if req.MaxPlayers < 2 || req.MaxPlayers > 9 {
		writeError(w, http.StatusBadRequest, "max_players must be between 2 and 9")
		return
	}

	runtime := a.registry.CreateTable(req.Name, req.SmallBlind, req.BigBlind, req.MaxPlayers)
	writeJSON(w, http.StatusCreated, map[string]any{"id": runtime.TableID()})
}

func (a *API) tableFromPath(w http.ResponseWriter, r *http.Request) *server.Runtime {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "table id must be an integer")
		return nil
	}
	runtime := a.registry.Runtime(id)
	if runtime == nil {
		writeError(w, http.StatusNotFound, "table not found")
		return nil
	}
	return runtime
}

func (a *API) handleTableDetail(w http.ResponseWriter, r *http.Request) {
	runtime := a.tableFromPath(w, r)
	if runtime == nil {
		return
	}
	name, sb, bb, seats, maxSeats, active := runtime.Describe()
	writeJSON(w, http.StatusOK, server.TableInfo{
		ID:         runtime.TableID(),
		Name:       name,
		SmallBlind: sb,
		BigBlind:   bb,
		Seats:      seats,
		MaxSeats:   maxSeats,
		HandActive: active,
	})
}

type joinTableRequest struct {
	BuyIn int64 `json:"buy_in"`
}

// handleJoinTable debits the buy-in, then seats the player. A failed
// seat rolls the debit back.
func (a *API) handleJoinTable(w http.ResponseWriter, r *http.Request) {
	runtime := a.tableFromPath(w, r)
	if runtime == nil {
		return
	}
	userID := requestUser(r)

	var req joinTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BuyIn <= 0 {
		writeError(w, http.StatusBadRequest, "buy_in must be positive")
		return
	}

	if err := a.store.DebitBalance(userID, req.BuyIn); err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			writeError(w, http.StatusBadRequest, "insufficient balance for buy-in")
		case errors.Is(err, store.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			a.logger.Error("buy-in debit failed", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to debit buy-in")
		}
		return
	}

	if err := runtime.Join(userID, req.BuyIn); err != nil {
		if creditErr := a.store.CreditBalance(userID, req.BuyIn); creditErr != nil {
			a.logger.Error("buy-in rollback failed", "user_id", userID, "amount", req.BuyIn, "error", creditErr)
		}
		switch {
		case errors.Is(err, game.ErrTableFull):
			writeError(w, http.StatusConflict, "table is full")
		case errors.Is(err, game.ErrAlreadySeated):
			writeError(w, http.StatusConflict, "already at this table")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	a.logger.Info("user joined table", "user_id", userID, "table_id", runtime.TableID(), "buy_in", req.BuyIn)
	writeJSON(w, http.StatusOK, map[string]any{"table_id": runtime.TableID()})
}

func (a *API) handleLeaveTable(w http.ResponseWriter, r *http.Request) {
	runtime := a.tableFromPath(w, r)
	if runtime == nil {
		return
	}
	userID := requestUser(r)

	cashout, err := runtime.Leave(userID)
	if errors.Is(err, game.ErrNotAtTable) {
		writeError(w, http.StatusNotFound, "not at this table")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cashout > 0 {
		if err := a.store.CreditBalance(userID, cashout); err != nil {
			a.logger.Error("cash-out credit failed", "user_id", userID, "amount", cashout, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to credit cash-out")
			return
		}
	}

	a.logger.Info("user left table", "user_id", userID, "cashout", cashout)
	writeJSON(w, http.StatusOK, map[string]any{"cashout": cashout})
}

func (a *API) handleSpectateTable(w http.ResponseWriter, r *http.Request) {
	runtime := a.tableFromPath(w, r)
	if runtime == nil {
		return
	}
	userID := requestUser(r)

	if err := runtime.Spectate(userID); err != nil {
		if errors.Is(err, game.ErrAlreadySeated) {
			writeError(w, http.StatusConflict, "already at this table")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table_id": runtime.TableID()})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	stats, err := a.store.StatsForUser(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     stats.UserID,
		"hands_won":   stats.HandsWon,
		"hands_lost":  stats.HandsLost,
		"max_balance": stats.MaxBal,
		"max_bet":     stats.MaxBet,
		"won_stack":   stats.WonStack,
		"lost_stack":  stats.LostStack,
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := a.store.HandHistory(userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	entries := make([]map[string]any, 0, len(history))
	for _, e := range history {
		entries = append(entries, map[string]any{
			"hand_id":     e.HandID,
			"table_id":    e.TableID,
			"pot":         e.Pot,
			"board":       e.Board,
			"hole_cards":  e.HoleCards,
			"bet":         e.Bet,
			"delta":       e.Delta,
			"won":         e.Won,
			"finished_at": e.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"hands": entries})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
