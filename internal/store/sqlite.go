package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// fallback when no PostgreSQL URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/a2a.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/a2a.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the protocol tables if they do not exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS peers (
			agent_id  TEXT PRIMARY KEY,
			last_seen INTEGER NOT NULL,
			status    TEXT NOT NULL DEFAULT 'active'
		)`,
		`CREATE TABLE IF NOT EXISTS peer_load (
			agent_id      TEXT PRIMARY KEY,
			message_count INTEGER NOT NULL DEFAULT 0,
			last_update   INTEGER NOT NULL,
			weight        REAL NOT NULL DEFAULT 1.0
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id            TEXT PRIMARY KEY,
			kind          TEXT NOT NULL,
			sender        TEXT NOT NULL,
			recipient     TEXT NOT NULL,
			created_at    INTEGER NOT NULL,
			envelope_json TEXT NOT NULL,
			metadata_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS security_metrics (
			agent_id              TEXT PRIMARY KEY,
			encryption_failures   INTEGER NOT NULL DEFAULT 0,
			decryption_failures   INTEGER NOT NULL DEFAULT 0,
			rate_limit_violations INTEGER NOT NULL DEFAULT 0,
			compression_failures  INTEGER NOT NULL DEFAULT 0,
			invalid_messages      INTEGER NOT NULL DEFAULT 0,
			last_update           INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS security_events (
			id            TEXT PRIMARY KEY,
			agent_id      TEXT NOT NULL,
			kind          TEXT NOT NULL,
			severity      TEXT NOT NULL,
			message       TEXT NOT NULL,
			ts            INTEGER NOT NULL,
			metadata_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_agent_ts
			ON security_events (agent_id, ts DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPeer records that an agent was seen at the given timestamp.
func (s *SQLiteStore) UpsertPeer(ctx context.Context, agentID string, lastSeen int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peers (agent_id, last_seen, status)
		VALUES (?, ?, 'active')
		ON CONFLICT (agent_id) DO UPDATE SET last_seen = excluded.last_seen, status = 'active'
	`, agentID, lastSeen)
	return err
}

// ListPeers retrieves all known peers.
func (s *SQLiteStore) ListPeers(ctx context.Context) ([]PeerRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent_id, last_seen FROM peers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []PeerRow
	for rows.Next() {
		var p PeerRow
		if err := rows.Scan(&p.AgentID, &p.LastSeen); err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// GetPeerLoad retrieves the load row for an agent, or nil if absent.
func (s *SQLiteStore) GetPeerLoad(ctx context.Context, agentID string) (*models.PeerLoad, error) {
	load := &models.PeerLoad{}
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, message_count, last_update, weight
		FROM peer_load WHERE agent_id = ?
	`, agentID).Scan(&load.AgentID, &load.MessageCount, &load.LastUpdate, &load.Weight)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return load, nil
}

// ListPeerLoads retrieves all load rows.
func (s *SQLiteStore) ListPeerLoads(ctx context.Context) ([]models.PeerLoad, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, message_count, last_update, weight FROM peer_load
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loads []models.PeerLoad
	for rows.Next() {
		var l models.PeerLoad
		if err := rows.Scan(&l.AgentID, &l.MessageCount, &l.LastUpdate, &l.Weight); err != nil {
			return nil, err
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

// IncrementPeerLoad bumps the message count for an agent as a single atomic
// statement, creating the row with the default weight when absent.
func (s *SQLiteStore) IncrementPeerLoad(ctx context.Context, agentID string, now int64, defaultWeight float64) (*models.PeerLoad, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peer_load (agent_id, message_count, last_update, weight)
		VALUES (?, 1, ?, ?)
		ON CONFLICT (agent_id) DO UPDATE
		SET message_count = message_count + 1, last_update = excluded.last_update
	`, agentID, now, defaultWeight)
	if err != nil {
		return nil, err
	}
	return s.GetPeerLoad(ctx, agentID)
}

// InsertMessage persists a message row.
func (s *SQLiteStore) InsertMessage(ctx context.Context, row *MessageRow) error {
	var metadata *string
	if row.Metadata != "" {
		metadata = &row.Metadata
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, kind, sender, recipient, created_at, envelope_json, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.Kind, row.Sender, row.Recipient, row.CreatedAt, row.Envelope, metadata)
	return err
}

// GetMessage retrieves a message row by id, or nil if absent.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*MessageRow, error) {
	row := &MessageRow{}
	var metadata *string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, sender, recipient, created_at, envelope_json, metadata_json
		FROM messages WHERE id = ?
	`, id).Scan(&row.ID, &row.Kind, &row.Sender, &row.Recipient, &row.CreatedAt, &row.Envelope, &metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if metadata != nil {
		row.Metadata = *metadata
	}
	return row, nil
}

// GetSecurityMetrics retrieves the counter row for an agent, or nil if absent.
func (s *SQLiteStore) GetSecurityMetrics(ctx context.Context, agentID string) (*models.SecurityMetrics, error) {
	m := &models.SecurityMetrics{}
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, encryption_failures, decryption_failures, rate_limit_violations,
		       compression_failures, invalid_messages, last_update
		FROM security_metrics WHERE agent_id = ?
	`, agentID).Scan(
		&m.AgentID,
		&m.EncryptionFailures,
		&m.DecryptionFailures,
		&m.RateLimitViolations,
		&m.CompressionFailures,
		&m.InvalidMessages,
		&m.LastUpdate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// IncrementSecurityCounter bumps one failure counter atomically.
func (s *SQLiteStore) IncrementSecurityCounter(ctx context.Context, agentID string, kind models.EventKind, now int64) error {
	col, ok := counterColumn(kind)
	if !ok {
		return fmt.Errorf("unknown security counter kind %q", kind)
	}
	stmt := fmt.Sprintf(`
		INSERT INTO security_metrics (agent_id, %[1]s, last_update)
		VALUES (?, 1, ?)
		ON CONFLICT (agent_id) DO UPDATE
		SET %[1]s = %[1]s + 1, last_update = excluded.last_update
	`, col)
	_, err := s.db.ExecContext(ctx, stmt, agentID, now)
	return err
}

// InsertSecurityEvent appends an audit event.
func (s *SQLiteStore) InsertSecurityEvent(ctx context.Context, ev *models.SecurityEvent) error {
	var metadata *string
	if len(ev.Metadata) > 0 {
		data, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		str := string(data)
		metadata = &str
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events (id, agent_id, kind, severity, message, ts, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.AgentID, string(ev.Kind), string(ev.Severity), ev.Message, ev.Timestamp, metadata)
	return err
}

// ListSecurityEvents retrieves events for an agent, newest first.
func (s *SQLiteStore) ListSecurityEvents(ctx context.Context, agentID string, f models.EventFilter) ([]models.SecurityEvent, error) {
	var (
		where = []string{"agent_id = ?"}
		args  = []any{agentID}
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if f.Since > 0 {
		where = append(where, "ts >= ?")
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		where = append(where, "ts <= ?")
		args = append(args, f.Until)
	}

	query := `
		SELECT id, agent_id, kind, severity, message, ts, metadata_json
		FROM security_events
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ts DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.SecurityEvent
	for rows.Next() {
		var (
			ev       models.SecurityEvent
			metadata *string
		)
		if err := rows.Scan(&ev.ID, &ev.AgentID, &ev.Kind, &ev.Severity, &ev.Message, &ev.Timestamp, &metadata); err != nil {
			return nil, err
		}
		if metadata != nil {
			_ = json.Unmarshal([]byte(*metadata), &ev.Metadata)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
