package domain

import "time"

// Wire types shared by the terminal sync client and the authority API.

// PunchedAtLayout is RFC 3339 with fixed millisecond precision.
const PunchedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// BatchRecord is one attendance event as uploaded to the authority.
// LocalID is the terminal's event id, echoed back in rejections.
// PunchedAt carries the same instant as Timestamp.
type BatchRecord struct {
	LocalID      int64     `json:"local_id"`
	IdentityCode string    `json:"identity_code"`
	DisplayName  string    `json:"display_name,omitempty"`
	Type         EventType `json:"type"`
	Timestamp    int64     `json:"timestamp"`
	PunchedAt    string    `json:"punched_at,omitempty"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	PhotoRef     *string   `json:"photo_ref,omitempty"`
}

// BatchRecordFrom converts a stored event to its upload form.
func BatchRecordFrom(e AttendanceEvent) BatchRecord {
	return BatchRecord{
		LocalID:      e.ID,
		IdentityCode: e.IdentityCode,
		DisplayName:  e.DisplayName,
		Type:         e.Type,
		Timestamp:    e.Timestamp,
		PunchedAt:    e.Time().Format(PunchedAtLayout),
		Latitude:     e.Latitude,
		Longitude:    e.Longitude,
		PhotoRef:     e.PhotoRef,
	}
}

type BatchRequest struct {
	BatchID  string        `json:"batch_id"`
	DeviceID string        `json:"device_id,omitempty"`
	Records  []BatchRecord `json:"records"`
}

// RejectedRecord reports a record the authority refused individually.
// Permanent rejections will never succeed on retry.
type RejectedRecord struct {
	LocalID   int64  `json:"local_id"`
	Reason    string `json:"reason"`
	Permanent bool   `json:"permanent"`
}

type BatchResponse struct {
	BatchID  string           `json:"batch_id"`
	Accepted int              `json:"accepted"`
	Rejected []RejectedRecord `json:"rejected,omitempty"`
}

// ConflictDetail identifies the record that already exists on the authority.
type ConflictDetail struct {
	IdentityCode string    `json:"identity_code"`
	Timestamp    int64     `json:"timestamp"`
	Type         EventType `json:"type,omitempty"`
}

// ErrorBody is the error envelope returned by both APIs.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Conflict *ConflictDetail `json:"conflict,omitempty"`
}

// RosterIdentity is one enrolled identity as served to terminals.
type RosterIdentity struct {
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	Embedding   []float32 `json:"embedding"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RosterResponse struct {
	Identities []RosterIdentity `json:"identities"`
}

// ToIdentities converts the wire roster to domain identities.
func (r RosterResponse) ToIdentities() []Identity {
	out := make([]Identity, 0, len(r.Identities))
	for _, ri := range r.Identities {
		out = append(out, Identity{
			Code:        ri.Code,
			DisplayName: ri.DisplayName,
			Active:      ri.Active,
			Embedding:   Embedding(ri.Embedding),
			UpdatedAt:   ri.UpdatedAt,
		})
	}
	return out
}
