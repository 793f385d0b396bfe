package server

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/pokerhall/holdemd/internal/game"
)

const (
	// NextHandDelay is the pause between hands so clients can show the
	// result before the next deal.
	NextHandDelay = 5 * time.Second

	// LeaveGrace is how long a disconnected seated player keeps their
	// seat before being folded out and cashed out.
	LeaveGrace = 60 * time.Second
)

// TableClient is one connected session from the runtime's point of
// view. Sends are best-effort; a failing client is evicted.
type TableClient interface {
	UserID() int64
	ShowAll() bool
	SendState(*Snapshot) error
	SendError(code, message string) error
}

// Persister is the slice of the store the runtime needs. Writes happen
// outside the table lock.
type Persister interface {
	CreditBalance(userID, amount int64) error
	SaveFinishedHand(*game.HandResult) error
}

// Runtime serializes all access to one table. Every mutation and every
// broadcast happens under mu; timer callbacks re-enter through it.
type Runtime struct {
	mu      sync.Mutex
	table   *game.Table
	clients map[TableClient]struct{}

	clock   quartz.Clock
	logger  *log.Logger
	store   Persister
	onEmpty func(tableID int64)

	nextHandTimer *quartz.Timer
	leaveTimers   map[int64]*quartz.Timer
	closed        bool
}

// NewRuntime wraps a table. onEmpty is called (outside the lock) when
// the last user leaves, so the owning registry can drop the table.
func NewRuntime(table *game.Table, store Persister, clock quartz.Clock, logger *log.Logger, onEmpty func(int64)) *Runtime {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Runtime{
		table:       table,
		clients:     make(map[TableClient]struct{}),
		clock:       clock,
		logger:      logger.WithPrefix("table").With("table_id", table.ID),
		store:       store,
		onEmpty:     onEmpty,
		leaveTimers: make(map[int64]*quartz.Timer),
	}
}

// TableID returns the wrapped table's id.
func (r *Runtime) TableID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.ID
}

// Describe returns the lobby listing fields.
func (r *Runtime) Describe() (name string, smallBlind, bigBlind int64, seats, maxSeats int, handActive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.table
	return t.Name, t.SmallBlind, t.BigBlind, t.SeatCount(), t.MaxPlayers, t.HandActive()
}

// Attach registers a connected session and sends it the current state.
// Reconnecting cancels any pending delayed leave for that user.
func (r *Runtime) Attach(c TableClient) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	if timer, ok := r.leaveTimers[c.UserID()]; ok {
		timer.Stop()
		delete(r.leaveTimers, c.UserID())
	}
	snap := BuildSnapshot(r.table, c.UserID(), c.ShowAll())
	r.mu.Unlock()

	if err := c.SendState(snap); err != nil {
		r.logger.Debug("initial state send failed", "user_id", c.UserID(), "error", err)
		r.Detach(c)
	}
}

// Detach removes a session. When it was the user's last session and the
// user is seated, a delayed leave is scheduled.
func (r *Runtime) Detach(c TableClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)

	userID := c.UserID()
	for other := range r.clients {
		if other.UserID() == userID {
			return
		}
	}
	if r.table.Player(userID) == nil {
		return
	}
	if _, ok := r.leaveTimers[userID]; ok {
		return
	}
	r.logger.Info("user disconnected, scheduling delayed leave", "user_id", userID)
	r.leaveTimers[userID] = r.clock.AfterFunc(LeaveGrace, func() {
		r.delayedLeave(userID)
	})
}

// Join seats a user. A hand starts immediately when the table becomes
// playable and none is running.
func (r *Runtime) Join(userID, buyIn int64) error {
	r.mu.Lock()
	if _, err := r.table.Seat(userID, buyIn); err != nil {
		r.mu.Unlock()
		return err
	}
	r.maybeStartLocked()
	r.broadcastLocked()
	r.mu.Unlock()
	return nil
}

// Spectate adds a watching user.
func (r *Runtime) Spectate(userID int64) error {
	r.mu.Lock()
	_, err := r.table.Spectate(userID)
	if err == nil {
		r.broadcastLocked()
	}
	r.mu.Unlock()
	return err
}

// Leave removes a user and returns the chips to credit back. The
// balance credit is the caller's job; hand persistence is handled here
// when the departure finished the hand.
func (r *Runtime) Leave(userID int64) (int64, error) {
	r.mu.Lock()
	cashout, result, err := r.table.Leave(userID)
	if err != nil {
		r.mu.Unlock()
		return 0, err
	}
	if timer, ok := r.leaveTimers[userID]; ok {
		timer.Stop()
		delete(r.leaveTimers, userID)
	}
	if result != nil {
		r.scheduleNextHandLocked()
	}
	empty := r.table.IsEmpty()
	if empty {
		r.cancelTimersLocked()
	}
	r.broadcastLocked()
	r.mu.Unlock()

	if result != nil {
		r.persist(result)
	}
	if empty && r.onEmpty != nil {
		r.onEmpty(r.TableID())
	}
	return cashout, nil
}

// HandleAction applies one player action from a session. Starting the
// hand early (before the next-hand timer fires) is allowed.
func (r *Runtime) HandleAction(c TableClient, action game.Action, amount int64) {
	userID := c.UserID()

	r.mu.Lock()
	player := r.table.Player(userID)
	if player == nil {
		r.mu.Unlock()
		_ = c.SendError(CodePlayerNotSeated, "you are not seated at this table")
		return
	}
	if player.Status == game.StatusSpectator {
		r.mu.Unlock()
		_ = c.SendError(CodeSpectatorCannotAct, "spectators cannot act")
		return
	}

	if !r.table.HandActive() {
		r.cancelNextHandLocked()
		if err := r.table.StartHand(); err != nil {
			r.mu.Unlock()
			_ = c.SendError(CodeStartHandFailed, err.Error())
			return
		}
		r.logger.Info("hand started", "trigger_user", userID)
	}

	result, err := r.table.ApplyAction(userID, action, amount)
	if err != nil {
		r.mu.Unlock()
		_ = c.SendError(CodeActionFailed, err.Error())
		return
	}
	if result != nil {
		r.logger.Info("hand finished", "hand_id", result.HandID, "pot", result.Pot, "winners", result.Winners)
		r.scheduleNextHandLocked()
	}
	r.broadcastLocked()
	r.mu.Unlock()

	if result != nil {
		r.persist(result)
	}
}

// CanToggleShowAll reports whether a user may flip the show-all toggle.
// Only spectators may.
func (r *Runtime) CanToggleShowAll(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	player := r.table.Player(userID)
	return player == nil || player.Status == game.StatusSpectator
}

// RefreshClient resends a session its personalized state.
func (r *Runtime) RefreshClient(c TableClient) {
	r.mu.Lock()
	snap := BuildSnapshot(r.table, c.UserID(), c.ShowAll())
	r.mu.Unlock()

	if err := c.SendState(snap); err != nil {
		r.Detach(c)
	}
}

// Reveal flips a participant's cards face up in the last hand and
// re-broadcasts.
func (r *Runtime) Reveal(userID int64) {
	r.mu.Lock()
	if r.table.Reveal(userID) {
		r.broadcastLocked()
	}
	r.mu.Unlock()
}

// MaybeStart starts a hand when possible. The registry calls this after
// seeding config tables.
func (r *Runtime) MaybeStart() {
	r.mu.Lock()
	r.maybeStartLocked()
	r.broadcastLocked()
	r.mu.Unlock()
}

// Close cancels all timers. Pending hands are abandoned.
func (r *Runtime) Close() {
	r.mu.Lock()
	r.closed = true
	r.cancelTimersLocked()
	r.mu.Unlock()
}

func (r *Runtime) maybeStartLocked() {
	if !r.table.CanStart() {
		return
	}
	r.cancelNextHandLocked()
	if err := r.table.StartHand(); err != nil {
		r.logger.Error("failed to start hand", "error", err)
		return
	}
	r.logger.Info("hand started", "players", r.table.SeatCount())
}

func (r *Runtime) scheduleNextHandLocked() {
	if r.nextHandTimer != nil || r.closed {
		return
	}
	r.nextHandTimer = r.clock.AfterFunc(NextHandDelay, func() {
		r.mu.Lock()
		r.nextHandTimer = nil
		if r.closed {
			r.mu.Unlock()
			return
		}
		r.maybeStartLocked()
		r.broadcastLocked()
		r.mu.Unlock()
	})
}

func (r *Runtime) cancelNextHandLocked() {
	if r.nextHandTimer != nil {
		r.nextHandTimer.Stop()
		r.nextHandTimer = nil
	}
}

func (r *Runtime) cancelTimersLocked() {
	r.cancelNextHandLocked()
	for userID, timer := range r.leaveTimers {
		timer.Stop()
		delete(r.leaveTimers, userID)
	}
}

// delayedLeave runs when the grace period expires without a reconnect.
func (r *Runtime) delayedLeave(userID int64) {
	r.mu.Lock()
	delete(r.leaveTimers, userID)
	if r.closed {
		r.mu.Unlock()
		return
	}
	for c := range r.clients {
		if c.UserID() == userID {
			r.mu.Unlock()
			return
		}
	}
	if r.table.Player(userID) == nil {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.logger.Info("grace period expired, removing player", "user_id", userID)
	cashout, err := r.Leave(userID)
	if err != nil {
		r.logger.Error("delayed leave failed", "user_id", userID, "error", err)
		return
	}
	if cashout > 0 && r.store != nil {
		if err := r.store.CreditBalance(userID, cashout); err != nil {
			r.logger.Error("failed to credit cash-out", "user_id", userID, "amount", cashout, "error", err)
		}
	}
}

// broadcastLocked sends each connected session its personalized
// snapshot. Failing sessions are evicted; a send failure is never an
// action-level error.
func (r *Runtime) broadcastLocked() {
	for c := range r.clients {
		snap := BuildSnapshot(r.table, c.UserID(), c.ShowAll())
		if err := c.SendState(snap); err != nil {
			r.logger.Debug("broadcast failed, evicting session", "user_id", c.UserID(), "error", err)
			delete(r.clients, c)
		}
	}
}

// persist writes the finished hand outside the table lock.
func (r *Runtime) persist(result *game.HandResult) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveFinishedHand(result); err != nil {
		r.logger.Error("failed to persist finished hand", "hand_id", result.HandID, "error", err)
	}
}
