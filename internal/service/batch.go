package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

type RecordRepositoryInterface interface {
	InsertBatch(ctx context.Context, records []domain.AttendanceRecord) (int, error)
}

// DefaultMaxBatchSize bounds one upload when no limit is configured.
const DefaultMaxBatchSize = 500

// BatchService ingests attendance batches on the authority.
type BatchService struct {
	records      RecordRepositoryInterface
	logger       *slog.Logger
	maxBatchSize int
}

func NewBatchService(records RecordRepositoryInterface, logger *slog.Logger) *BatchService {
	return &BatchService{
		records:      records,
		logger:       logger,
		maxBatchSize: DefaultMaxBatchSize,
	}
}

func (s *BatchService) WithMaxBatchSize(n int) *BatchService {
	if n > 0 {
		s.maxBatchSize = n
	}
	return s
}

// Ingest validates and stores a batch for site. Malformed records are
// rejected individually and permanently; repeats of the same record inside
// the batch are stored once and accepted. A record that already exists
// fails the whole batch with domain.ErrDuplicateRecord.
func (s *BatchService) Ingest(ctx context.Context, site *domain.Site, req domain.BatchRequest) (*domain.BatchResponse, error) {
	if req.BatchID == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("batch_id is required"))
	}
	if len(req.Records) > s.maxBatchSize {
		return nil, domain.ErrBatchTooLarge.WithError(fmt.Errorf("%d records, limit %d", len(req.Records), s.maxBatchSize))
	}

	type naturalKey struct {
		code      string
		timestamp int64
		eventType domain.EventType
	}

	resp := &domain.BatchResponse{BatchID: req.BatchID}
	seen := make(map[naturalKey]struct{}, len(req.Records))
	records := make([]domain.AttendanceRecord, 0, len(req.Records))
	accepted := 0

	for _, r := range req.Records {
		if reason := validateRecord(r); reason != "" {
			resp.Rejected = append(resp.Rejected, domain.RejectedRecord{
				LocalID:   r.LocalID,
				Reason:    reason,
				Permanent: true,
			})
			continue
		}

		accepted++
		key := naturalKey{code: r.IdentityCode, timestamp: r.Timestamp, eventType: r.Type}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		records = append(records, domain.AttendanceRecord{
			ID:           uuid.New(),
			SiteID:       site.ID,
			IdentityCode: r.IdentityCode,
			DisplayName:  r.DisplayName,
			Type:         r.Type,
			Timestamp:    r.Timestamp,
			Latitude:     r.Latitude,
			Longitude:    r.Longitude,
			PhotoRef:     r.PhotoRef,
			DeviceID:     req.DeviceID,
			BatchID:      req.BatchID,
			LocalID:      r.LocalID,
		})
	}

	if _, err := s.records.InsertBatch(ctx, records); err != nil {
		if errors.Is(err, domain.ErrDuplicateRecord) {
			s.logger.Warn("batch conflicts with stored record",
				"site", site.Slug,
				"batch_id", req.BatchID,
				"error", err,
			)
			return nil, err
		}
		return nil, fmt.Errorf("site %s: ingest batch: %w", site.Slug, err)
	}

	resp.Accepted = accepted
	s.logger.Info("batch ingested",
		"site", site.Slug,
		"batch_id", req.BatchID,
		"device_id", req.DeviceID,
		"accepted", resp.Accepted,
		"rejected", len(resp.Rejected),
	)

	return resp, nil
}

func validateRecord(r domain.BatchRecord) string {
	switch {
	case r.IdentityCode == "":
		return "identity_code is required"
	case r.Timestamp <= 0:
		return "timestamp must be positive epoch millis"
	}
	if _, err := domain.ParseEventType(string(r.Type)); err != nil {
		return err.Error()
	}
	if r.PunchedAt != "" {
		at, err := time.Parse(time.RFC3339Nano, r.PunchedAt)
		if err != nil {
			return "punched_at must be RFC 3339"
		}
		if at.UnixMilli() != r.Timestamp {
			return "punched_at does not match timestamp"
		}
	}
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
		return "latitude out of range"
	}
	if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
		return "longitude out of range"
	}
	return ""
}
