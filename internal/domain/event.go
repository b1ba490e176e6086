package domain

import (
	"fmt"
	"time"
)

// EventType is the punch direction.
type EventType string

const (
	EventIn  EventType = "IN"
	EventOut EventType = "OUT"
)

// Next returns the type that follows t in the IN/OUT cycle.
func (t EventType) Next() EventType {
	if t == EventIn {
		return EventOut
	}
	return EventIn
}

// ParseEventType validates a wire value.
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventIn, EventOut:
		return EventType(s), nil
	default:
		return "", fmt.Errorf("invalid event type %q", s)
	}
}

// SyncState tracks an event's reconciliation with the authority.
type SyncState string

const (
	SyncPending         SyncState = "PENDING"
	SyncSynced          SyncState = "SYNCED"
	SyncFailedPermanent SyncState = "FAILED_PERMANENT"
)

// AttendanceEvent is one punch. Everything but SyncState, SyncedAt and
// LastError is fixed once the event is appended.
type AttendanceEvent struct {
	ID           int64      `json:"id"`
	IdentityCode string     `json:"identity_code"`
	DisplayName  string     `json:"display_name"`
	Type         EventType  `json:"type"`
	Timestamp    int64      `json:"timestamp"` // epoch millis
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	PhotoRef     *string    `json:"photo_ref,omitempty"`
	SyncState    SyncState  `json:"sync_state"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Time returns the punch timestamp as a time.Time in UTC.
func (e *AttendanceEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// Within reports whether e and other are the same identity and type with
// timestamps no more than window apart.
func (e *AttendanceEvent) Within(other *AttendanceEvent, window time.Duration) bool {
	if e.IdentityCode != other.IdentityCode || e.Type != other.Type {
		return false
	}
	diff := e.Timestamp - other.Timestamp
	if diff < 0 {
		diff = -diff
	}
	return diff <= window.Milliseconds()
}
