package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

type SiteRepository struct {
	pool PgxPool
}

func NewSiteRepository(pool PgxPool) *SiteRepository {
	return &SiteRepository{pool: pool}
}

func (r *SiteRepository) Create(ctx context.Context, site *domain.Site) error {
	if err := site.Validate(); err != nil {
		return domain.ErrValidationFailed.WithError(err)
	}

	query := `
		INSERT INTO sites (id, slug, name, sync_code_hash, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	if site.ID == uuid.Nil {
		site.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		site.ID,
		site.Slug,
		site.Name,
		site.SyncCodeHash,
		site.IsActive,
	).Scan(&site.CreatedAt, &site.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == constraintSyncCodeHash {
				return domain.ErrValidationFailed.WithError(errors.New("sync code already in use"))
			}
			return domain.ErrValidationFailed.WithError(fmt.Errorf("site %q already exists", site.Slug))
		}
		return fmt.Errorf("create site: %w", err)
	}

	return nil
}

func (r *SiteRepository) GetBySlug(ctx context.Context, slug string) (*domain.Site, error) {
	query := `
		SELECT id, slug, name, sync_code_hash, is_active, last_sync_at, created_at, updated_at
		FROM sites
		WHERE slug = $1
	`

	site, err := scanSite(r.pool.QueryRow(ctx, query, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get site by slug: %w", err)
	}

	return site, nil
}

// GetByCredential returns the active site matching both the slug and the
// sync code hash.
func (r *SiteRepository) GetByCredential(ctx context.Context, slug, syncCodeHash string) (*domain.Site, error) {
	query := `
		SELECT id, slug, name, sync_code_hash, is_active, last_sync_at, created_at, updated_at
		FROM sites
		WHERE slug = $1 AND sync_code_hash = $2 AND is_active = true
	`

	site, err := scanSite(r.pool.QueryRow(ctx, query, slug, syncCodeHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get site by credential: %w", err)
	}

	return site, nil
}

// TouchLastSync records that a terminal of the site authenticated.
func (r *SiteRepository) TouchLastSync(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sites
		SET last_sync_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("touch site last sync: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrSiteNotFound
	}

	return nil
}

// RotateSyncCode replaces the credential. Terminals holding the old code
// start failing with 401 until reconfigured.
func (r *SiteRepository) RotateSyncCode(ctx context.Context, id uuid.UUID, syncCodeHash string) error {
	query := `
		UPDATE sites
		SET sync_code_hash = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, syncCodeHash)
	if err != nil {
		return fmt.Errorf("rotate sync code: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrSiteNotFound
	}

	return nil
}

func scanSite(row pgx.Row) (*domain.Site, error) {
	var site domain.Site
	err := row.Scan(
		&site.ID,
		&site.Slug,
		&site.Name,
		&site.SyncCodeHash,
		&site.IsActive,
		&site.LastSyncAt,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &site, nil
}
