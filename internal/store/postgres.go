package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the protocol tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS peers (
			agent_id  TEXT PRIMARY KEY,
			last_seen BIGINT NOT NULL,
			status    TEXT NOT NULL DEFAULT 'active'
		)`,
		`CREATE TABLE IF NOT EXISTS peer_load (
			agent_id      TEXT PRIMARY KEY,
			message_count BIGINT NOT NULL DEFAULT 0,
			last_update   BIGINT NOT NULL,
			weight        DOUBLE PRECISION NOT NULL DEFAULT 1.0
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id            TEXT PRIMARY KEY,
			kind          TEXT NOT NULL,
			sender        TEXT NOT NULL,
			recipient     TEXT NOT NULL,
			created_at    BIGINT NOT NULL,
			envelope_json TEXT NOT NULL,
			metadata_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS security_metrics (
			agent_id              TEXT PRIMARY KEY,
			encryption_failures   BIGINT NOT NULL DEFAULT 0,
			decryption_failures   BIGINT NOT NULL DEFAULT 0,
			rate_limit_violations BIGINT NOT NULL DEFAULT 0,
			compression_failures  BIGINT NOT NULL DEFAULT 0,
			invalid_messages      BIGINT NOT NULL DEFAULT 0,
			last_update           BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS security_events (
			id            TEXT PRIMARY KEY,
			agent_id      TEXT NOT NULL,
			kind          TEXT NOT NULL,
			severity      TEXT NOT NULL,
			message       TEXT NOT NULL,
			ts            BIGINT NOT NULL,
			metadata_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_agent_ts
			ON security_events (agent_id, ts DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPeer records that an agent was seen at the given timestamp.
func (s *PostgresStore) UpsertPeer(ctx context.Context, agentID string, lastSeen int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO peers (agent_id, last_seen, status)
		VALUES ($1, $2, 'active')
		ON CONFLICT (agent_id) DO UPDATE SET last_seen = $2, status = 'active'
	`, agentID, lastSeen)
	return err
}

// ListPeers retrieves all known peers.
func (s *PostgresStore) ListPeers(ctx context.Context) ([]PeerRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT agent_id, last_seen FROM peers`)
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
func (s *PostgresStore) GetPeerLoad(ctx context.Context, agentID string) (*models.PeerLoad, error) {
	load := &models.PeerLoad{}
	err := s.pool.QueryRow(ctx, `
		SELECT agent_id, message_count, last_update, weight
		FROM peer_load WHERE agent_id = $1
	`, agentID).Scan(&load.AgentID, &load.MessageCount, &load.LastUpdate, &load.Weight)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return load, nil
}

// ListPeerLoads retrieves all load rows.
func (s *PostgresStore) ListPeerLoads(ctx context.Context) ([]models.PeerLoad, error) {
	rows, err := s.pool.Query(ctx, `
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
func (s *PostgresStore) IncrementPeerLoad(ctx context.Context, agentID string, now int64, defaultWeight float64) (*models.PeerLoad, error) {
	load := &models.PeerLoad{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO peer_load (agent_id, message_count, last_update, weight)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (agent_id) DO UPDATE
		SET message_count = peer_load.message_count + 1, last_update = $2
		RETURNING agent_id, message_count, last_update, weight
	`, agentID, now, defaultWeight).Scan(&load.AgentID, &load.MessageCount, &load.LastUpdate, &load.Weight)
	if err != nil {
		return nil, err
	}
	return load, nil
}

// InsertMessage persists a message row. Messages are immutable; a duplicate
// id is an error.
func (s *PostgresStore) InsertMessage(ctx context.Context, row *MessageRow) error {
	var metadata *string
	if row.Metadata != "" {
		metadata = &row.Metadata
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, kind, sender, recipient, created_at, envelope_json, metadata_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, row.ID, row.Kind, row.Sender, row.Recipient, row.CreatedAt, row.Envelope, metadata)
	return err
}

// GetMessage retrieves a message row by id, or nil if absent.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*MessageRow, error) {
	row := &MessageRow{}
	var metadata *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, sender, recipient, created_at, envelope_json, metadata_json
		FROM messages WHERE id = $1
	`, id).Scan(&row.ID, &row.Kind, &row.Sender, &row.Recipient, &row.CreatedAt, &row.Envelope, &metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) GetSecurityMetrics(ctx context.Context, agentID string) (*models.SecurityMetrics, error) {
	m := &models.SecurityMetrics{}
	err := s.pool.QueryRow(ctx, `
		SELECT agent_id, encryption_failures, decryption_failures, rate_limit_violations,
		       compression_failures, invalid_messages, last_update
		FROM security_metrics WHERE agent_id = $1
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// IncrementSecurityCounter bumps one failure counter as a single atomic
// statement. The column name comes from a whitelist, never from input.
func (s *PostgresStore) IncrementSecurityCounter(ctx context.Context, agentID string, kind models.EventKind, now int64) error {
	col, ok := counterColumn(kind)
	if !ok {
		return fmt.Errorf("unknown security counter kind %q", kind)
	}
	stmt := fmt.Sprintf(`
		INSERT INTO security_metrics (agent_id, %[1]s, last_update)
		VALUES ($1, 1, $2)
		ON CONFLICT (agent_id) DO UPDATE
		SET %[1]s = security_metrics.%[1]s + 1, last_update = $2
	`, col)
	_, err := s.pool.Exec(ctx, stmt, agentID, now)
	return err
}

// InsertSecurityEvent appends an audit event.
func (s *PostgresStore) InsertSecurityEvent(ctx context.Context, ev *models.SecurityEvent) error {
	var metadata *string
	if len(ev.Metadata) > 0 {
		data, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		str := string(data)
		metadata = &str
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO security_events (id, agent_id, kind, severity, message, ts, metadata_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.AgentID, string(ev.Kind), string(ev.Severity), ev.Message, ev.Timestamp, metadata)
	return err
}

// ListSecurityEvents retrieves events for an agent, newest first.
func (s *PostgresStore) ListSecurityEvents(ctx context.Context, agentID string, f models.EventFilter) ([]models.SecurityEvent, error) {
	var (
		where = []string{"agent_id = $1"}
		args  = []any{agentID}
	)
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.Severity != "" {
		args = append(args, string(f.Severity))
		where = append(where, fmt.Sprintf("severity = $%d", len(args)))
	}
	if f.Since > 0 {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if f.Until > 0 {
		args = append(args, f.Until)
		where = append(where, fmt.Sprintf("ts <= $%d", len(args)))
	}

	query := `
		SELECT id, agent_id, kind, severity, message, ts, metadata_json
		FROM security_events
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ts DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
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
