// Package bootstrap wires the cache core's collaborators into a single
// handle, per spec.md §4.6. The original pymager Bootstrapper is a
// package-level singleton mutated in place; per the REDESIGN FLAG, this is
// an explicit constructor returning a context-holding *Bootstrapper instead,
// so nothing in the process depends on import-order side effects and tests
// can construct as many independent instances as they like.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/samidalouche/imgserver/internal/cache"
	"github.com/samidalouche/imgserver/internal/codec"
	"github.com/samidalouche/imgserver/internal/config"
	"github.com/samidalouche/imgserver/internal/coordinator"
	"github.com/samidalouche/imgserver/internal/database"
	"github.com/samidalouche/imgserver/internal/repositories"
	"github.com/samidalouche/imgserver/internal/sizeguard"
)

// Bootstrapper holds the wired collaborators for the lifetime of the
// process: the database handle, the repository, and the (possibly
// size-guarded) coordinator that handlers call into.
type Bootstrapper struct {
	DB          *database.DB
	Repo        *repositories.ItemRepository
	Layout      cache.Layout
	Coordinator coordinator.Coordinator
}

// Bootstrap wires a Bootstrapper from cfg: when cfg.DropData is set, it
// deletes data_directory first; it then (re)creates the cache
// directories, opens the database, drops the schema (again only when
// cfg.DropData is set), runs migrations, and runs the startup
// reconciliation pass before returning.
func Bootstrap(ctx context.Context, cfg config.Config) (*Bootstrapper, error) {
	layout := cache.NewLayout(cfg.DataDirectory)

	if cfg.DropData {
		if err := os.RemoveAll(layout.DataDirectory); err != nil {
			return nil, fmt.Errorf("drop data directory: %w", err)
		}
	}
	if err := os.MkdirAll(layout.OriginalsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create originals directory: %w", err)
	}
	if err := os.MkdirAll(layout.CacheDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.DropData {
		if err := db.DropAllTables(); err != nil {
			return nil, fmt.Errorf("drop existing schema: %w", err)
		}
	}
	if err := db.CreateOrUpgradeSchema(); err != nil {
		return nil, fmt.Errorf("apply schema migrations: %w", err)
	}

	repo := repositories.NewItemRepository(db)
	base := coordinator.New(db, repo, layout, codec.New())

	if err := base.CleanupInconsistent(ctx); err != nil {
		return nil, fmt.Errorf("reconcile inconsistent items: %w", err)
	}

	guarded := sizeguard.New(base, toCacheSizes(cfg.AllowedSizes))

	return &Bootstrapper{
		DB:          db,
		Repo:        repo,
		Layout:      layout,
		Coordinator: guarded,
	}, nil
}

func toCacheSizes(sizes []config.Size) []cache.Size {
	if len(sizes) == 0 {
		return nil
	}
	out := make([]cache.Size, len(sizes))
	for i, s := range sizes {
		out[i] = cache.Size{Width: s.Width, Height: s.Height}
	}
	return out
}

// Close releases the resources the Bootstrapper holds.
func (b *Bootstrapper) Close() error {
	return b.DB.Close()
}
