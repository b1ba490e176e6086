package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

type IdentityRepository struct {
	pool PgxPool
}

func NewIdentityRepository(pool PgxPool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Upsert stores an identity for a site, replacing name, status and
// embedding of an existing code.
func (r *IdentityRepository) Upsert(ctx context.Context, siteID uuid.UUID, identity *domain.Identity) error {
	if identity.Code == "" {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("identity code is required"))
	}

	var embedding *pgvector.Vector
	if len(identity.Embedding) > 0 {
		if err := identity.Embedding.Validate(); err != nil {
			return fmt.Errorf("identity %s: %w", identity.Code, err)
		}
		vec := pgvector.NewVector([]float32(identity.Embedding))
		embedding = &vec
	}

	query := `
		INSERT INTO identities (site_id, code, display_name, active, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (site_id, code) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			active = EXCLUDED.active,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()
		RETURNING updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		siteID,
		identity.Code,
		identity.DisplayName,
		identity.Active,
		embedding,
	).Scan(&identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}

	return nil
}

// ListActive returns the roster served to a site's terminals: active
// identities that carry an embedding, ordered by code.
func (r *IdentityRepository) ListActive(ctx context.Context, siteID uuid.UUID) ([]domain.Identity, error) {
	query := `
		SELECT code, display_name, active, embedding, updated_at
		FROM identities
		WHERE site_id = $1 AND active = true AND embedding IS NOT NULL
		ORDER BY code
	`

	rows, err := r.pool.Query(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	identities := make([]domain.Identity, 0)
	for rows.Next() {
		var identity domain.Identity
		var embedding *pgvector.Vector

		if err := rows.Scan(
			&identity.Code,
			&identity.DisplayName,
			&identity.Active,
			&embedding,
			&identity.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}

		if embedding != nil && embedding.Slice() != nil {
			identity.Embedding = domain.Embedding(embedding.Slice())
		}
		identities = append(identities, identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	return identities, nil
}

// Deactivate removes an identity from future rosters without deleting its history.
func (r *IdentityRepository) Deactivate(ctx context.Context, siteID uuid.UUID, code string) error {
	query := `
		UPDATE identities
		SET active = false, updated_at = NOW()
		WHERE site_id = $1 AND code = $2
	`

	result, err := r.pool.Exec(ctx, query, siteID, code)
	if err != nil {
		return fmt.Errorf("deactivate identity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}

	return nil
}
