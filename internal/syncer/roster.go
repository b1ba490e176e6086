package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

type RosterFetcher interface {
	FetchRoster(ctx context.Context) (*domain.RosterResponse, error)
}

type RosterCache interface {
	Replace(identities []domain.Identity) (stored, skipped int, err error)
	RefreshedAt() (time.Time, error)
}

// RosterRefresher keeps the local roster cache in step with the authority.
type RosterRefresher struct {
	fetcher RosterFetcher
	cache   RosterCache
	maxAge  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewRosterRefresher(fetcher RosterFetcher, cache RosterCache, maxAge time.Duration, logger *slog.Logger) *RosterRefresher {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &RosterRefresher{
		fetcher: fetcher,
		cache:   cache,
		maxAge:  maxAge,
		logger:  logger,
		now:     time.Now,
	}
}

// Refresh downloads the roster and swaps it into the cache. A failed
// download leaves the cached roster in place.
func (r *RosterRefresher) Refresh(ctx context.Context) error {
	resp, err := r.fetcher.FetchRoster(ctx)
	if err != nil {
		return fmt.Errorf("fetch roster: %w", err)
	}

	stored, skipped, err := r.cache.Replace(resp.ToIdentities())
	if err != nil {
		return err
	}

	r.logger.Info("roster refreshed", "stored", stored, "skipped", skipped)
	return nil
}

// RefreshIfStale refreshes only when the cache is older than maxAge.
func (r *RosterRefresher) RefreshIfStale(ctx context.Context) error {
	at, err := r.cache.RefreshedAt()
	if err != nil {
		return fmt.Errorf("read roster age: %w", err)
	}
	if !at.IsZero() && r.now().Sub(at) < r.maxAge {
		return nil
	}
	return r.Refresh(ctx)
}
