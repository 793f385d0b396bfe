// Package store is the sqlite persistence adapter: user accounts and
// balances, finished hands with per-participant rows, and the running
// per-user statistics aggregate.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pokerhall/holdemd/internal/deck"
	"github.com/pokerhall/holdemd/internal/game"
)

var (
	ErrUserNotFound      = errors.New("store: user not found")
	ErrUsernameTaken     = errors.New("store: username already taken")
	ErrInsufficientFunds = errors.New("store: insufficient balance")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT    NOT NULL UNIQUE,
	password_hash TEXT    NOT NULL,
	balance       INTEGER NOT NULL DEFAULT 0,
	is_active     INTEGER NOT NULL DEFAULT 1,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS finished_games (
	id          TEXT PRIMARY KEY,
	table_id    INTEGER NOT NULL,
	pot         INTEGER NOT NULL,
	board       TEXT    NOT NULL,
	winners     TEXT    NOT NULL,
	finished_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS player_games (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id    TEXT    NOT NULL REFERENCES finished_games(id) ON DELETE CASCADE,
	user_id    INTEGER NOT NULL REFERENCES users(id),
	position   INTEGER NOT NULL,
	hole_cards TEXT    NOT NULL,
	status     TEXT    NOT NULL,
	bet        INTEGER NOT NULL,
	delta      INTEGER NOT NULL,
	stack      INTEGER NOT NULL,
	won        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_player_games_user ON player_games(user_id);

CREATE TABLE IF NOT EXISTS player_stats (
	user_id     INTEGER PRIMARY KEY REFERENCES users(id),
	hands_won   INTEGER NOT NULL DEFAULT 0,
	hands_lost  INTEGER NOT NULL DEFAULT 0,
	max_balance INTEGER NOT NULL DEFAULT 0,
	max_bet     INTEGER NOT NULL DEFAULT 0,
	won_stack   INTEGER NOT NULL DEFAULT 0,
	lost_stack  INTEGER NOT NULL DEFAULT 0
);
`

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// User is an account row.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Balance      int64
	IsActive     bool
	CreatedAt    time.Time
}

// CreateUser inserts a new account with the given starting balance.
func (s *Store) CreateUser(username, passwordHash string, balance int64) (*User, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (username, password_hash, balance) VALUES (?, ?, ?)`,
		username, passwordHash, balance,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return s.UserByID(id)
}

// UserByID fetches an account by id.
func (s *Store) UserByID(id int64) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, username, password_hash, balance, is_active, created_at FROM users WHERE id = ?`, id))
}

// UserByUsername fetches an account by username.
func (s *Store) UserByUsername(username string) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, username, password_hash, balance, is_active, created_at FROM users WHERE username = ?`, username))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	var active int
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Balance, &active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.IsActive = active != 0
	return &u, nil
}

// DebitBalance subtracts amount from a user's balance inside a
// transaction, failing without change when the balance is short.
func (s *Store) DebitBalance(userID, amount int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRow(`SELECT balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if balance < amount {
		return ErrInsufficientFunds
	}
	if _, err := tx.Exec(`UPDATE users SET balance = balance - ? WHERE id = ?`, amount, userID); err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	return tx.Commit()
}

// CreditBalance adds amount to a user's balance.
func (s *Store) CreditBalance(userID, amount int64) error {
	res, err := s.db.Exec(`UPDATE users SET balance = balance + ? WHERE id = ?`, amount, userID)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SaveFinishedHand writes the finished-hand record, its participant
// rows and the per-user statistics upserts in one transaction.
func (s *Store) SaveFinishedHand(result *game.HandResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	winners := make([]string, len(result.Winners))
	for i, id := range result.Winners {
		winners[i] = fmt.Sprintf("%d", id)
	}
	_, err = tx.Exec(
		`INSERT INTO finished_games (id, table_id, pot, board, winners, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		result.HandID, result.TableID, result.Pot, deck.Join(result.Board), strings.Join(winners, ","), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert finished game: %w", err)
	}

	for _, p := range result.Players {
		won := 0
		if p.Won {
			won = 1
		}
		_, err = tx.Exec(
			`INSERT INTO player_games (game_id, user_id, position, hole_cards, status, bet, delta, stack, won)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.HandID, p.UserID, p.Position, deck.Join(p.HoleCards), p.Status.String(), p.Bet, p.Delta, p.Stack, won,
		)
		if err != nil {
			return fmt.Errorf("insert player game: %w", err)
		}
		if err := upsertStats(tx, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertStats(tx *sql.Tx, p game.PlayerResult) error {
	handsWon, handsLost := 0, 0
	wonStack, lostStack := int64(0), int64(0)
	if p.Won {
		handsWon = 1
	} else {
		handsLost = 1
	}
	if p.Delta > 0 {
		wonStack = p.Delta
	} else {
		lostStack = -p.Delta
	}
	_, err := tx.Exec(
		`INSERT INTO player_stats (user_id, hands_won, hands_lost, max_balance, max_bet, won_stack, lost_stack)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			hands_won   = hands_won + excluded.hands_won,
			hands_lost  = hands_lost + excluded.hands_lost,
			max_balance = MAX(max_balance, excluded.max_balance),
			max_bet     = MAX(max_bet, excluded.max_bet),
			won_stack   = won_stack + excluded.won_stack,
			lost_stack  = lost_stack + excluded.lost_stack`,
		p.UserID, handsWon, handsLost, p.Stack, p.Bet, wonStack, lostStack,
	)
	if err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

// Stats is the per-user aggregate.
type Stats struct {
	UserID    int64
	HandsWon  int64
	HandsLost int64
	MaxBal    int64
	MaxBet    int64
	WonStack  int64
	LostStack int64
}

// StatsForUser returns the aggregate, zero-valued when the user has not
// finished a hand yet.
func (s *Store) StatsForUser(userID int64) (*Stats, error) {
	st := &Stats{UserID: userID}
	err := s.db.QueryRow(
		`SELECT hands_won, hands_lost, max_balance, max_bet, won_stack, lost_stack
		 FROM player_stats WHERE user_id = ?`, userID,
	).Scan(&st.HandsWon, &st.HandsLost, &st.MaxBal, &st.MaxBet, &st.WonStack, &st.LostStack)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}
	return st, nil
}

// HandHistoryEntry is one finished hand from a user's point of view.
type HandHistoryEntry struct {
	HandID     string
	TableID    int64
	Pot        int64
	Board      string
	HoleCards  string
	Bet        int64
	Delta      int64
	Won        bool
	FinishedAt time.Time
}

// HandHistory lists a user's most recent finished hands, newest first.
func (s *Store) HandHistory(userID int64, limit int) ([]HandHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT g.id, g.table_id, g.pot, g.board, p.hole_cards, p.bet, p.delta, p.won, g.finished_at
		 FROM player_games p JOIN finished_games g ON g.id = p.game_id
		 WHERE p.user_id = ?
		 ORDER BY g.finished_at DESC, p.id DESC
		 LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []HandHistoryEntry
	for rows.Next() {
		var e HandHistoryEntry
		var won int
		if err := rows.Scan(&e.HandID, &e.TableID, &e.Pot, &e.Board, &e.HoleCards, &e.Bet, &e.Delta, &won, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Won = won != 0
		history = append(history, e)
	}
	return history, rows.Err()
}
