package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/saturnino-fabrica-de-software/ponto/internal/config"
	"github.com/saturnino-fabrica-de-software/ponto/internal/database"
	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
)

const usage = `usage: sitectl <command> [flags]

commands:
  create      -slug <slug> -name <name>     create a site and print its sync code
  rotate      -slug <slug>                  issue a new sync code for a site
  import      -slug <slug> -file <roster>   upsert identities from a roster JSON file
  deactivate  -slug <slug> -code <code>     remove an identity from the site roster
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	slug := fs.String("slug", "", "Site slug")
	name := fs.String("name", "", "Site display name (create)")
	file := fs.String("file", "", "Roster JSON file (import)")
	code := fs.String("code", "", "Identity code (deactivate)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *slug == "" {
		return errors.New("slug flag is required")
	}

	cfg, err := config.LoadAuthority()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.NewLogger(os.Stderr, cfg.Environment, "sitectl")

	ctx := context.Background()
	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	sites := repository.NewSiteRepository(pool)
	identities := repository.NewIdentityRepository(pool)

	switch args[0] {
	case "create":
		plain, hash, err := domain.GenerateSyncCode()
		if err != nil {
			return err
		}
		site := &domain.Site{Slug: *slug, Name: *name, SyncCodeHash: hash, IsActive: true}
		if err := site.Validate(); err != nil {
			return err
		}
		if err := sites.Create(ctx, site); err != nil {
			return fmt.Errorf("create site: %w", err)
		}
		logger.Info("site created", slog.String("slug", site.Slug), slog.String("site_id", site.ID.String()))
		fmt.Fprintf(out, "SITE_ID=%s\nSYNC_CODE=%s\n", site.ID, plain)

	case "rotate":
		site, err := sites.GetBySlug(ctx, *slug)
		if err != nil {
			return err
		}
		plain, hash, err := domain.GenerateSyncCode()
		if err != nil {
			return err
		}
		if err := sites.RotateSyncCode(ctx, site.ID, hash); err != nil {
			return fmt.Errorf("rotate sync code: %w", err)
		}
		logger.Warn("sync code rotated, terminals must be reconfigured", slog.String("slug", site.Slug))
		fmt.Fprintf(out, "SYNC_CODE=%s\n", plain)

	case "import":
		if *file == "" {
			return errors.New("file flag is required for import")
		}
		site, err := sites.GetBySlug(ctx, *slug)
		if err != nil {
			return err
		}
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()

		roster, err := loadIdentities(f)
		if err != nil {
			return err
		}
		for i := range roster {
			if err := identities.Upsert(ctx, site.ID, &roster[i]); err != nil {
				return fmt.Errorf("upsert %s: %w", roster[i].Code, err)
			}
		}
		logger.Info("roster imported", slog.String("slug", site.Slug), slog.Int("identities", len(roster)))
		fmt.Fprintf(out, "IMPORTED=%d\n", len(roster))

	case "deactivate":
		if *code == "" {
			return errors.New("code flag is required for deactivate")
		}
		site, err := sites.GetBySlug(ctx, *slug)
		if err != nil {
			return err
		}
		if err := identities.Deactivate(ctx, site.ID, *code); err != nil {
			return fmt.Errorf("deactivate %s: %w", *code, err)
		}
		logger.Info("identity deactivated", slog.String("slug", site.Slug), slog.String("code", *code))

	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}

	return nil
}

// loadIdentities reads a roster file in the same shape GET /v1/roster serves.
// Every identity must carry a usable embedding and a code.
func loadIdentities(r io.Reader) ([]domain.Identity, error) {
	var roster domain.RosterResponse
	if err := json.NewDecoder(r).Decode(&roster); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}

	identities := roster.ToIdentities()
	seen := make(map[string]struct{}, len(identities))
	for i := range identities {
		id := &identities[i]
		if id.Code == "" {
			return nil, fmt.Errorf("identity %d: code cannot be empty", i)
		}
		if _, dup := seen[id.Code]; dup {
			return nil, fmt.Errorf("identity %s: duplicate code", id.Code)
		}
		seen[id.Code] = struct{}{}
		if err := id.Embedding.Validate(); err != nil {
			return nil, fmt.Errorf("identity %s: %w", id.Code, err)
		}
		id.Active = true
	}
	return identities, nil
}
