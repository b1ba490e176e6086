package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

type IdentityRepositoryInterface interface {
	ListActive(ctx context.Context, siteID uuid.UUID) ([]domain.Identity, error)
}

// RosterService serves the enrolled roster of a site to its terminals.
type RosterService struct {
	identities IdentityRepositoryInterface
}

func NewRosterService(identities IdentityRepositoryInterface) *RosterService {
	return &RosterService{identities: identities}
}

func (s *RosterService) ForSite(ctx context.Context, site *domain.Site) (*domain.RosterResponse, error) {
	identities, err := s.identities.ListActive(ctx, site.ID)
	if err != nil {
		return nil, fmt.Errorf("site %s: roster: %w", site.Slug, err)
	}

	resp := &domain.RosterResponse{Identities: make([]domain.RosterIdentity, 0, len(identities))}
	for _, id := range identities {
		resp.Identities = append(resp.Identities, domain.RosterIdentity{
			Code:        id.Code,
			DisplayName: id.DisplayName,
			Active:      id.Active,
			Embedding:   []float32(id.Embedding),
			UpdatedAt:   id.UpdatedAt,
		})
	}

	return resp, nil
}
