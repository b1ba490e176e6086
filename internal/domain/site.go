package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const (
	syncCodePrefix = "ps_"
	syncCodeLength = 32
	base62Chars    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Site is a location whose terminals upload attendance to the authority.
// Terminals identify the site by Slug and authenticate with the sync code,
// of which only the hash is stored.
type Site struct {
	ID           uuid.UUID  `json:"id"`
	Slug         string     `json:"slug"`
	Name         string     `json:"name"`
	SyncCodeHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (s *Site) Validate() error {
	if s.Name == "" {
		return errors.New("name cannot be empty")
	}
	if !slugRegex.MatchString(s.Slug) {
		return errors.New("slug must be lowercase alphanumeric with hyphens")
	}
	if s.SyncCodeHash == "" {
		return errors.New("sync code hash cannot be empty")
	}
	return nil
}

// GenerateSyncCode returns a new plain sync code and its hash.
// Format: ps_<random32>
func GenerateSyncCode() (string, string, error) {
	randomPart, err := generateSecureRandomString(syncCodeLength)
	if err != nil {
		return "", "", err
	}
	code := syncCodePrefix + randomPart
	return code, HashSyncCode(code), nil
}

// HashSyncCode returns the hex SHA-256 of a sync code.
func HashSyncCode(code string) string {
	hash := sha256.Sum256([]byte(code))
	return hex.EncodeToString(hash[:])
}

func generateSecureRandomString(length int) (string, error) {
	out := make([]byte, length)
	limit := big.NewInt(int64(len(base62Chars)))
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = base62Chars[n.Int64()]
	}
	return string(out), nil
}

// AttendanceRecord is an event accepted by the authority. The tuple
// (SiteID, IdentityCode, Timestamp, Type) is unique.
type AttendanceRecord struct {
	ID           uuid.UUID `json:"id"`
	SiteID       uuid.UUID `json:"site_id"`
	IdentityCode string    `json:"identity_code"`
	DisplayName  string    `json:"display_name,omitempty"`
	Type         EventType `json:"type"`
	Timestamp    int64     `json:"timestamp"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	PhotoRef     *string   `json:"photo_ref,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
	BatchID      string    `json:"batch_id"`
	LocalID      int64     `json:"local_id"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Conflict describes the record in its conflict form.
func (r AttendanceRecord) Conflict() *ConflictDetail {
	return &ConflictDetail{
		IdentityCode: r.IdentityCode,
		Timestamp:    r.Timestamp,
		Type:         r.Type,
	}
}
