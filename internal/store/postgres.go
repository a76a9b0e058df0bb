// Package store provides storage backends for AtendeBot.
//
// This file implements a PostgreSQL-backed store for the menu tree,
// sessions and daily analytics.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/comunidadegraca/atendebot/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time checks that PostgresStore implements the store interfaces.
var (
	_ Store     = (*PostgresStore)(nil)
	_ DedupRepo = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ListActiveMenuNodes() ([]models.MenuNode, error) {
	rows, err := s.db.Query(`
		SELECT id, parent_id, sort_order, title, description, content, url, kind, action_payload, is_active, created_at, updated_at
		FROM menu_nodes WHERE is_active = TRUE
		ORDER BY parent_id, sort_order`)
	if err != nil {
		slog.Error("PostgresStore ListActiveMenuNodes query failed", "error", err)
		return nil, fmt.Errorf("failed to query menu nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.MenuNode
	for rows.Next() {
		n, err := scanMenuNode(rows)
		if err != nil {
			slog.Error("PostgresStore ListActiveMenuNodes scan failed", "error", err)
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate menu node rows: %w", err)
	}
	slog.Debug("PostgresStore ListActiveMenuNodes succeeded", "count", len(nodes))
	return nodes, nil
}

func (s *PostgresStore) GetMenuNode(id string) (*models.MenuNode, error) {
	row := s.db.QueryRow(`
		SELECT id, parent_id, sort_order, title, description, content, url, kind, action_payload, is_active, created_at, updated_at
		FROM menu_nodes WHERE id = $1`, id)
	n, err := scanMenuNodeRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetMenuNode failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get menu node %s: %w", id, err)
	}
	return &n, nil
}

func (s *PostgresStore) SaveMenuNode(n models.MenuNode) error {
	_, err := s.db.Exec(`
		INSERT INTO menu_nodes (id, parent_id, sort_order, title, description, content, url, kind, action_payload, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id, sort_order = EXCLUDED.sort_order, title = EXCLUDED.title,
			description = EXCLUDED.description, content = EXCLUDED.content, url = EXCLUDED.url,
			kind = EXCLUDED.kind, action_payload = EXCLUDED.action_payload, is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		n.ID, nilIfEmpty(n.ParentID), n.Order, n.Title, nilIfEmpty(n.Description), nilIfEmpty(n.Content),
		nilIfEmpty(n.URL), string(n.Kind), nilIfEmpty(string(n.ActionPayload)), n.IsActive, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveMenuNode failed", "error", err, "id", n.ID)
		return fmt.Errorf("failed to save menu node %s: %w", n.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeactivateMenuNode(id string) error {
	_, err := s.db.Exec(`UPDATE menu_nodes SET is_active = FALSE, updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		slog.Error("PostgresStore DeactivateMenuNode failed", "error", err, "id", id)
		return fmt.Errorf("failed to deactivate menu node %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	interactions, err := marshalInteractions(sess.Interactions)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "phone", sess.Phone)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, phone, started_at, last_active_at, interactions)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone) DO UPDATE SET last_active_at = EXCLUDED.last_active_at, interactions = EXCLUDED.interactions`,
		sess.ID, sess.Phone, sess.StartedAt, sess.LastActiveAt, interactions)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "phone", sess.Phone)
		return fmt.Errorf("failed to save session for %s: %w", sess.Phone, err)
	}
	return nil
}

func (s *PostgresStore) GetSessionByPhone(phone string) (*models.Session, error) {
	rows, err := s.db.Query(`SELECT id, phone, started_at, last_active_at, interactions FROM sessions WHERE phone = $1`, phone)
	if err != nil {
		slog.Error("PostgresStore GetSessionByPhone query failed", "error", err, "phone", phone)
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

func (s *PostgresStore) ListRecentSessions(limit int) ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT id, phone, started_at, last_active_at, interactions FROM sessions ORDER BY last_active_at DESC LIMIT $1`, limit)
	if err != nil {
		slog.Error("PostgresStore ListRecentSessions query failed", "error", err)
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
	return sessions, nil
}

func (s *PostgresStore) DeleteSessionsInactiveSince(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE last_active_at < $1`, cutoff)
	if err != nil {
		slog.Error("PostgresStore DeleteSessionsInactiveSince failed", "error", err)
		return 0, fmt.Errorf("failed to delete inactive sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) GetDailyStats(date string) (*models.DailyStats, error) {
	var st models.DailyStats
	var nodeAccess, hourly, phones sql.NullString
	err := s.db.QueryRow(`
		SELECT date, message_count, session_count, node_access, hourly_counts, unique_phones
		FROM daily_stats WHERE date = $1`, date).
		Scan(&st.Date, &st.MessageCount, &st.SessionCount, &nodeAccess, &hourly, &phones)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetDailyStats failed", "error", err, "date", date)
		return nil, fmt.Errorf("failed to get daily stats for %s: %w", date, err)
	}
	if err := decodeDailyStats(&st, nodeAccess, hourly, phones); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) SaveDailyStats(st models.DailyStats) error {
	nodeAccess, hourly, phones, err := dailyStatsColumns(st)
	if err != nil {
		slog.Error("PostgresStore SaveDailyStats marshal failed", "error", err, "date", st.Date)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO daily_stats (date, message_count, session_count, node_access, hourly_counts, unique_phones)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (date) DO UPDATE SET
			message_count = EXCLUDED.message_count, session_count = EXCLUDED.session_count,
			node_access = EXCLUDED.node_access, hourly_counts = EXCLUDED.hourly_counts,
			unique_phones = EXCLUDED.unique_phones`,
		st.Date, st.MessageCount, st.SessionCount, nodeAccess, hourly, phones)
	if err != nil {
		slog.Error("PostgresStore SaveDailyStats failed", "error", err, "date", st.Date)
		return fmt.Errorf("failed to save daily stats for %s: %w", st.Date, err)
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
