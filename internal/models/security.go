package models

// EventKind identifies which pipeline stage produced a security event.
type EventKind string

const (
	EventEncryption  EventKind = "encryption"
	EventDecryption  EventKind = "decryption"
	EventRateLimit   EventKind = "rate_limit"
	EventCompression EventKind = "compression"
	EventValidation  EventKind = "validation"
)

// Severity grades a security event.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SecurityEvent is an append-only audit record of a pipeline failure.
type SecurityEvent struct {
	ID        string         `json:"id"` // UUID
	AgentID   string         `json:"agent_id"`
	Kind      EventKind      `json:"kind"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Timestamp int64          `json:"ts"` // Unix ms
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SecurityMetrics holds the durable failure counters for one agent id.
// All five counters are monotonically non-decreasing; the store row is the
// authoritative copy.
type SecurityMetrics struct {
	AgentID             string `json:"agent_id"`
	EncryptionFailures  int64  `json:"encryption_failures"`
	DecryptionFailures  int64  `json:"decryption_failures"`
	RateLimitViolations int64  `json:"rate_limit_violations"`
	CompressionFailures int64  `json:"compression_failures"`
	InvalidMessages     int64  `json:"invalid_messages"`
	LastUpdate          int64  `json:"last_update"` // Unix ms
}

// Bump increments the counter matching the event kind.
func (m *SecurityMetrics) Bump(kind EventKind, now int64) {
	switch kind {
	case EventEncryption:
		m.EncryptionFailures++
	case EventDecryption:
		m.DecryptionFailures++
	case EventRateLimit:
		m.RateLimitViolations++
	case EventCompression:
		m.CompressionFailures++
	case EventValidation:
		m.InvalidMessages++
	}
	m.LastUpdate = now
}

// EventFilter narrows a security event query. Zero values mean "no filter".
type EventFilter struct {
	Kind     EventKind
	Severity Severity
	Since    int64 // Unix ms, inclusive
	Until    int64 // Unix ms, inclusive
	Limit    int
}
