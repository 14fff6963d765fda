// Package sizeguard implements the SizeGuard collaborator from spec.md §4.5:
// a decorator around the coordinator that rejects requested sizes outside a
// configured whitelist before the request ever reaches the cache core.
//
// The original pymager implementation patches this check onto the
// coordinator at runtime (dynamic method replacement). Per the REDESIGN
// FLAG, this is expressed here as plain composition instead: SizeGuard
// wraps a coordinator.Coordinator and satisfies the same interface, so
// callers (the bootstrapper, handlers) cannot tell whitelisting is even
// happening.
package sizeguard

import (
	"context"
	"io"

	"github.com/samidalouche/imgserver/internal/cache"
	"github.com/samidalouche/imgserver/internal/coordinator"
	"github.com/samidalouche/imgserver/internal/imgerrors"
)

// SizeGuard wraps a coordinator.Coordinator, rejecting any
// PrepareTransformation request whose size is not in the configured
// whitelist. A nil/empty whitelist disables the check entirely.
type SizeGuard struct {
	next      coordinator.Coordinator
	allowed   map[cache.Size]struct{}
	unguarded bool
}

// New wraps next with a SizeGuard restricted to allowedSizes. An empty
// allowedSizes disables whitelisting -- every size is permitted.
func New(next coordinator.Coordinator, allowedSizes []cache.Size) *SizeGuard {
	if len(allowedSizes) == 0 {
		return &SizeGuard{next: next, unguarded: true}
	}
	allowed := make(map[cache.Size]struct{}, len(allowedSizes))
	for _, s := range allowedSizes {
		allowed[s] = struct{}{}
	}
	return &SizeGuard{next: next, allowed: allowed}
}

// SaveOriginal delegates unconditionally: the whitelist only constrains
// requested renditions, never ingested originals.
func (g *SizeGuard) SaveOriginal(ctx context.Context, source io.ReadSeeker, imageID string) error {
	return g.next.SaveOriginal(ctx, source, imageID)
}

// PrepareTransformation rejects sizes outside the whitelist before
// delegating to the wrapped coordinator.
func (g *SizeGuard) PrepareTransformation(ctx context.Context, req coordinator.TransformationRequest) (string, error) {
	if !g.unguarded {
		if _, ok := g.allowed[req.Size]; !ok {
			return "", &imgerrors.ForbiddenSize{Width: req.Size.Width, Height: req.Size.Height}
		}
	}
	return g.next.PrepareTransformation(ctx, req)
}

// GetOriginalPath delegates unconditionally.
func (g *SizeGuard) GetOriginalPath(ctx context.Context, imageID string) (string, error) {
	return g.next.GetOriginalPath(ctx, imageID)
}
