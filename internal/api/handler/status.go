package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/ponto/internal/breaker"
	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

type EventCounter interface {
	CountByState(ctx context.Context) (map[domain.SyncState]int, error)
}

type RosterInfo interface {
	Count() (int, error)
	RefreshedAt() (time.Time, error)
}

type BreakerState interface {
	Breaker() breaker.State
	Sessions() int
}

type SyncStatus interface {
	Running() bool
}

// StatusHandler reports the terminal's local state.
type StatusHandler struct {
	events  EventCounter
	roster  RosterInfo
	capture BreakerState
	sync    SyncStatus
	logger  *slog.Logger
}

func NewStatusHandler(events EventCounter, roster RosterInfo, capture BreakerState, sync SyncStatus, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		events:  events,
		roster:  roster,
		capture: capture,
		sync:    sync,
		logger:  logger,
	}
}

type StatusResponse struct {
	Events          map[domain.SyncState]int `json:"events"`
	Roster          int                      `json:"roster"`
	RosterRefreshed *time.Time               `json:"roster_refreshed_at,omitempty"`
	Embedder        string                   `json:"embedder"`
	ActiveSessions  int                      `json:"active_sessions"`
	SyncInProgress  bool                     `json:"sync_in_progress"`
}

// Status GET /v1/status
func (h *StatusHandler) Status(c *fiber.Ctx) error {
	counts, err := h.events.CountByState(c.UserContext())
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}
	for _, s := range []domain.SyncState{domain.SyncPending, domain.SyncSynced, domain.SyncFailedPermanent} {
		if _, ok := counts[s]; !ok {
			counts[s] = 0
		}
	}

	rosterCount, err := h.roster.Count()
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}

	resp := StatusResponse{
		Events:         counts,
		Roster:         rosterCount,
		Embedder:       h.capture.Breaker().String(),
		ActiveSessions: h.capture.Sessions(),
		SyncInProgress: h.sync.Running(),
	}

	refreshed, err := h.roster.RefreshedAt()
	if err != nil {
		h.logger.Warn("failed to read roster refresh time", "error", err)
	} else if !refreshed.IsZero() {
		resp.RosterRefreshed = &refreshed
	}

	return c.JSON(resp)
}
