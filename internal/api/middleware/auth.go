package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

const (
	// HeaderSiteID carries the slug of the uploading site.
	HeaderSiteID = "X-Site-ID"
	// HeaderDeviceID optionally identifies the terminal inside the site.
	HeaderDeviceID = "X-Device-ID"

	LocalSiteID   = "site_id"
	LocalSite     = "site"
	LocalDeviceID = "device_id"
)

// SiteRepository resolves a site from its slug and sync code hash.
type SiteRepository interface {
	GetByCredential(ctx context.Context, slug, syncCodeHash string) (*domain.Site, error)
}

// SiteSeenRecorder is told about every authenticated request.
type SiteSeenRecorder interface {
	Enqueue(siteID uuid.UUID)
}

// SiteAuth authenticates terminals by site slug and sync code.
// seen may be nil.
func SiteAuth(sites SiteRepository, seen SiteSeenRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		slug := strings.TrimSpace(c.Get(HeaderSiteID))
		code := extractBearerToken(c)
		if slug == "" || code == "" {
			return domain.ErrUnauthorized
		}

		site, err := sites.GetByCredential(c.Context(), slug, domain.HashSyncCode(code))
		if err != nil {
			// Not found and store failures look the same to the caller
			return domain.ErrUnauthorized
		}
		if !site.IsActive {
			return domain.ErrUnauthorized
		}

		c.Locals(LocalSiteID, site.ID)
		c.Locals(LocalSite, site)
		c.Locals(LocalDeviceID, strings.TrimSpace(c.Get(HeaderDeviceID)))

		if seen != nil {
			seen.Enqueue(site.ID)
		}

		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// GetSiteID retrieves the authenticated site id from the Fiber context
func GetSiteID(c *fiber.Ctx) (uuid.UUID, error) {
	siteID, ok := c.Locals(LocalSiteID).(uuid.UUID)
	if !ok {
		return uuid.Nil, domain.ErrUnauthorized
	}
	return siteID, nil
}

// GetSite retrieves the authenticated site from the Fiber context
func GetSite(c *fiber.Ctx) (*domain.Site, error) {
	site, ok := c.Locals(LocalSite).(*domain.Site)
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	return site, nil
}

// GetDeviceID returns the X-Device-ID sent with the request, possibly empty.
func GetDeviceID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalDeviceID).(string)
	return id
}
