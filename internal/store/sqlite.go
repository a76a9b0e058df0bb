// Package store provides storage backends for AtendeBot.
//
// This file implements an SQLite-backed store for the menu tree, sessions
// and daily analytics.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/comunidadegraca/atendebot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time checks that SQLiteStore implements the store interfaces.
var (
	_ Store     = (*SQLiteStore)(nil)
	_ DedupRepo = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ListActiveMenuNodes() ([]models.MenuNode, error) {
	rows, err := s.db.Query(`
		SELECT id, parent_id, sort_order, title, description, content, url, kind, action_payload, is_active, created_at, updated_at
		FROM menu_nodes WHERE is_active = 1
		ORDER BY parent_id, sort_order`)
	if err != nil {
		slog.Error("SQLiteStore ListActiveMenuNodes query failed", "error", err)
		return nil, fmt.Errorf("failed to query menu nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.MenuNode
	for rows.Next() {
		n, err := scanMenuNode(rows)
		if err != nil {
			slog.Error("SQLiteStore ListActiveMenuNodes scan failed", "error", err)
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListActiveMenuNodes rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate menu node rows: %w", err)
	}
	slog.Debug("SQLiteStore ListActiveMenuNodes succeeded", "count", len(nodes))
	return nodes, nil
}

func (s *SQLiteStore) GetMenuNode(id string) (*models.MenuNode, error) {
	row := s.db.QueryRow(`
		SELECT id, parent_id, sort_order, title, description, content, url, kind, action_payload, is_active, created_at, updated_at
		FROM menu_nodes WHERE id = ?`, id)
	n, err := scanMenuNodeRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetMenuNode failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get menu node %s: %w", id, err)
	}
	return &n, nil
}

func (s *SQLiteStore) SaveMenuNode(n models.MenuNode) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO menu_nodes (id, parent_id, sort_order, title, description, content, url, kind, action_payload, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, nilIfEmpty(n.ParentID), n.Order, n.Title, nilIfEmpty(n.Description), nilIfEmpty(n.Content),
		nilIfEmpty(n.URL), string(n.Kind), nilIfEmpty(string(n.ActionPayload)), n.IsActive, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveMenuNode failed", "error", err, "id", n.ID)
		return fmt.Errorf("failed to save menu node %s: %w", n.ID, err)
	}
	slog.Debug("SQLiteStore SaveMenuNode succeeded", "id", n.ID)
	return nil
}

func (s *SQLiteStore) DeactivateMenuNode(id string) error {
	_, err := s.db.Exec(`UPDATE menu_nodes SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		slog.Error("SQLiteStore DeactivateMenuNode failed", "error", err, "id", id)
		return fmt.Errorf("failed to deactivate menu node %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	interactions, err := marshalInteractions(sess.Interactions)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "phone", sess.Phone)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, phone, started_at, last_active_at, interactions)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET last_active_at = excluded.last_active_at, interactions = excluded.interactions`,
		sess.ID, sess.Phone, sess.StartedAt, sess.LastActiveAt, interactions)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "phone", sess.Phone)
		return fmt.Errorf("failed to save session for %s: %w", sess.Phone, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "phone", sess.Phone)
	return nil
}

func (s *SQLiteStore) GetSessionByPhone(phone string) (*models.Session, error) {
	rows, err := s.db.Query(`SELECT id, phone, started_at, last_active_at, interactions FROM sessions WHERE phone = ?`, phone)
	if err != nil {
		slog.Error("SQLiteStore GetSessionByPhone query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query session for %s: %w", phone, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	sess, err := scanSession(rows)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) ListRecentSessions(limit int) ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT id, phone, started_at, last_active_at, interactions FROM sessions ORDER BY last_active_at DESC LIMIT ?`, limit)
	if err != nil {
		slog.Error("SQLiteStore ListRecentSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("SQLiteStore ListRecentSessions succeeded", "count", len(sessions))
	return sessions, nil
}

func (s *SQLiteStore) DeleteSessionsInactiveSince(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE last_active_at < ?`, cutoff)
	if err != nil {
		slog.Error("SQLiteStore DeleteSessionsInactiveSince failed", "error", err)
		return 0, fmt.Errorf("failed to delete inactive sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) GetDailyStats(date string) (*models.DailyStats, error) {
	var st models.DailyStats
	var nodeAccess, hourly, phones sql.NullString
	err := s.db.QueryRow(`
		SELECT date, message_count, session_count, node_access, hourly_counts, unique_phones
		FROM daily_stats WHERE date = ?`, date).
		Scan(&st.Date, &st.MessageCount, &st.SessionCount, &nodeAccess, &hourly, &phones)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetDailyStats failed", "error", err, "date", date)
		return nil, fmt.Errorf("failed to get daily stats for %s: %w", date, err)
	}
	if err := decodeDailyStats(&st, nodeAccess, hourly, phones); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLiteStore) SaveDailyStats(st models.DailyStats) error {
	nodeAccess, hourly, phones, err := dailyStatsColumns(st)
	if err != nil {
		slog.Error("SQLiteStore SaveDailyStats marshal failed", "error", err, "date", st.Date)
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO daily_stats (date, message_count, session_count, node_access, hourly_counts, unique_phones)
		VALUES (?, ?, ?, ?, ?, ?)`,
		st.Date, st.MessageCount, st.SessionCount, nodeAccess, hourly, phones)
	if err != nil {
		slog.Error("SQLiteStore SaveDailyStats failed", "error", err, "date", st.Date)
		return fmt.Errorf("failed to save daily stats for %s: %w", st.Date, err)
	}
	slog.Debug("SQLiteStore SaveDailyStats succeeded", "date", st.Date)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
