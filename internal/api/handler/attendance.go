package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/ponto/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// BatchIngester stores uploaded batches for a site.
type BatchIngester interface {
	Ingest(ctx context.Context, site *domain.Site, req domain.BatchRequest) (*domain.BatchResponse, error)
}

type RecordCounter interface {
	CountBySite(ctx context.Context, siteID uuid.UUID) (int, error)
}

// AttendanceHandler receives terminal uploads.
type AttendanceHandler struct {
	batches BatchIngester
	records RecordCounter
	logger  *slog.Logger
}

func NewAttendanceHandler(batches BatchIngester, records RecordCounter, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		batches: batches,
		records: records,
		logger:  logger,
	}
}

// SiteStatusResponse summarizes what the authority holds for a site.
type SiteStatusResponse struct {
	Site    string `json:"site"`
	Name    string `json:"name"`
	Records int    `json:"records"`
}

// Batch POST /v1/attendance/batch
func (h *AttendanceHandler) Batch(c *fiber.Ctx) error {
	site, err := middleware.GetSite(c)
	if err != nil {
		return err
	}

	var req domain.BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if req.DeviceID == "" {
		req.DeviceID = middleware.GetDeviceID(c)
	}

	resp, err := h.batches.Ingest(c.UserContext(), site, req)
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

// Status GET /v1/site
func (h *AttendanceHandler) Status(c *fiber.Ctx) error {
	site, err := middleware.GetSite(c)
	if err != nil {
		return err
	}

	count, err := h.records.CountBySite(c.UserContext(), site.ID)
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}

	return c.JSON(SiteStatusResponse{
		Site:    site.Slug,
		Name:    site.Name,
		Records: count,
	})
}
