package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

type SyncTrigger interface {
	Trigger()
}

type SyncHandler struct {
	worker     SyncTrigger
	status     SyncStatus
	configured bool
}

// NewSyncHandler creates the manual sync endpoint. configured is false on
// terminals without authority credentials.
func NewSyncHandler(worker SyncTrigger, status SyncStatus, configured bool) *SyncHandler {
	return &SyncHandler{worker: worker, status: status, configured: configured}
}

// Trigger POST /v1/sync - queues a cycle and returns immediately.
func (h *SyncHandler) Trigger(c *fiber.Ctx) error {
	if !h.configured {
		return domain.ErrSiteNotConfigured
	}
	if h.status != nil && h.status.Running() {
		return domain.ErrSyncInFlight
	}

	h.worker.Trigger()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
}
