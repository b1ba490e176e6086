package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/ponto/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

type RosterProvider interface {
	ForSite(ctx context.Context, site *domain.Site) (*domain.RosterResponse, error)
}

type RosterHandler struct {
	roster RosterProvider
}

func NewRosterHandler(roster RosterProvider) *RosterHandler {
	return &RosterHandler{roster: roster}
}

// Get GET /v1/roster - active identities of the authenticated site.
func (h *RosterHandler) Get(c *fiber.Ctx) error {
	site, err := middleware.GetSite(c)
	if err != nil {
		return err
	}

	resp, err := h.roster.ForSite(c.UserContext(), site)
	if err != nil {
		return err
	}

	return c.JSON(resp)
}
