// Package coordinator implements the TransformCoordinator, the crux of the
// cache core: it orchestrates ingest, transform, cache lookup,
// wait-for-consistency, and crash-recovery cleanup, exactly as spec.md §4.4
// describes. The uniqueness constraint enforced by the repository is the
// coordinator's only serialisation point -- no in-process locks guard
// concurrent renderings of the same key.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samidalouche/imgserver/internal/cache"
	"github.com/samidalouche/imgserver/internal/codec"
	"github.com/samidalouche/imgserver/internal/database"
	"github.com/samidalouche/imgserver/internal/imgerrors"
	"github.com/samidalouche/imgserver/internal/repositories"
)

const (
	// lockMaxRetries and lockWaitInterval bound the wait-for-consistency
	// poll at 10 seconds total, per spec.md §5.
	lockMaxRetries   = 10
	lockWaitInterval = 1 * time.Second

	// reconciliationPageSize is the default page size for the startup
	// cleanup pass, per spec.md §4.4.
	reconciliationPageSize = 100
)

// TransformationRequest describes a rendition to prepare.
type TransformationRequest struct {
	ImageID      string
	Size         cache.Size
	TargetFormat string
}

// Coordinator is the interface SizeGuard decorates and Bootstrapper returns.
type Coordinator interface {
	SaveOriginal(ctx context.Context, source io.ReadSeeker, imageID string) error
	PrepareTransformation(ctx context.Context, req TransformationRequest) (string, error)
	GetOriginalPath(ctx context.Context, imageID string) (string, error)
}

// TransformCoordinator is the concrete Coordinator described in spec.md §4.4.
type TransformCoordinator struct {
	db     *database.DB
	repo   *repositories.ItemRepository
	layout cache.Layout
	codec  codec.Codec
}

// New constructs a TransformCoordinator.
func New(db *database.DB, repo *repositories.ItemRepository, layout cache.Layout, c codec.Codec) *TransformCoordinator {
	return &TransformCoordinator{db: db, repo: repo, layout: layout, codec: c}
}

// SaveOriginal implements spec.md §4.4's save_original.
func (c *TransformCoordinator) SaveOriginal(ctx context.Context, source io.ReadSeeker, imageID string) error {
	if !cache.ValidIdentifier(imageID) {
		return &imgerrors.InvalidIdentifier{ID: imageID}
	}

	if _, err := source.Seek(0, io.SeekStart); err != nil {
		return &imgerrors.ImageProcessing{Cause: err}
	}
	width, height, format, err := c.codec.Verify(source)
	if err != nil {
		return &imgerrors.ImageFileNotRecognized{Cause: err}
	}

	item := cache.NewOriginalItem(imageID, cache.Size{Width: width, Height: height}, format)

	err = c.db.WithinTransaction(ctx, func(q database.Querier) error {
		return c.repo.CreateOriginal(ctx, q, item)
	})
	var dup *imgerrors.ErrDuplicateEntry
	if errors.As(err, &dup) {
		return &imgerrors.ImageIdAlreadyExists{ID: imageID}
	}
	if err != nil {
		return fmt.Errorf("save original %q: %w", imageID, err)
	}

	// The INCONSISTENT row now exists; any failure past this point leaves
	// it for the next boot's reconciliation pass rather than rolling back.
	if _, err := source.Seek(0, io.SeekStart); err != nil {
		return &imgerrors.ImageProcessing{Cause: err}
	}
	if err := c.writeFile(c.layout.OriginalAbs(item), source); err != nil {
		return &imgerrors.ImageProcessing{Cause: err}
	}

	item.Status = cache.StatusOK
	if err := c.db.WithinTransaction(ctx, func(q database.Querier) error {
		return c.repo.UpdateOriginal(ctx, q, item)
	}); err != nil {
		return fmt.Errorf("mark original %q ok: %w", imageID, err)
	}
	return nil
}

// PrepareTransformation implements spec.md §4.4's prepare_transformation.
func (c *TransformCoordinator) PrepareTransformation(ctx context.Context, req TransformationRequest) (string, error) {
	orig, err := c.repo.FindOriginal(ctx, c.db, req.ImageID)
	if err != nil {
		return "", fmt.Errorf("lookup original %q: %w", req.ImageID, err)
	}
	if orig == nil {
		return "", &imgerrors.ItemDoesNotExist{ID: req.ImageID}
	}

	orig, err = c.waitForOriginalOK(ctx, req.ImageID)
	if err != nil {
		return "", err
	}

	derived := cache.NewDerivedItem(orig.ID, req.Size, req.TargetFormat)
	cacheAbs := c.layout.DerivedAbs(derived)
	cacheRel := c.layout.DerivedRel(derived)

	// Fast path: already cached.
	if _, err := os.Stat(cacheAbs); err == nil {
		return cacheRel, nil
	} else if !os.IsNotExist(err) {
		return "", &imgerrors.ImageProcessing{Cause: err}
	}

	// Create-or-join: the uniqueness constraint on derived_item is the
	// single source of mutual exclusion across concurrent requesters.
	err = c.db.WithinTransaction(ctx, func(q database.Querier) error {
		return c.repo.CreateDerived(ctx, q, derived)
	})
	var dup *imgerrors.ErrDuplicateEntry
	if errors.As(err, &dup) {
		won, joinErr := c.waitForDerivedOK(ctx, orig.ID, req.Size, derived.Format)
		if joinErr != nil {
			return "", joinErr
		}
		return c.layout.DerivedRel(won), nil
	}
	if err != nil {
		return "", fmt.Errorf("create derived %q: %w", derived.ID, err)
	}

	if err := c.render(orig, derived, cacheAbs, req.TargetFormat); err != nil {
		return "", err
	}

	derived.Status = cache.StatusOK
	if err := c.db.WithinTransaction(ctx, func(q database.Querier) error {
		return c.repo.UpdateDerived(ctx, q, derived)
	}); err != nil {
		return "", fmt.Errorf("mark derived %q ok: %w", derived.ID, err)
	}
	return cacheRel, nil
}

// render materialises the derived item's file: a byte-exact copy when the
// request matches the original's size and format, otherwise a
// fit-and-crop resize through the codec.
func (c *TransformCoordinator) render(orig *cache.OriginalItem, derived *cache.DerivedItem, cacheAbs string, targetFormat string) error {
	originalAbs := c.layout.OriginalAbs(orig)

	if derived.Size == orig.Size && cache.SameFormat(targetFormat, orig.Format) {
		src, err := os.Open(originalAbs)
		if err != nil {
			return &imgerrors.ImageProcessing{Cause: err}
		}
		defer src.Close()
		if err := c.writeFile(cacheAbs, src); err != nil {
			return &imgerrors.ImageProcessing{Cause: err}
		}
		return nil
	}

	src, err := os.Open(originalAbs)
	if err != nil {
		return &imgerrors.ImageProcessing{Cause: err}
	}
	defer src.Close()

	img, err := c.codec.Decode(src)
	if err != nil {
		return &imgerrors.ImageProcessing{Cause: err}
	}
	resized := c.codec.FitAndCrop(img, derived.Size.Width, derived.Size.Height)

	out, err := os.Create(cacheAbs)
	if err != nil {
		return &imgerrors.ImageProcessing{Cause: err}
	}
	defer out.Close()

	if err := c.codec.Encode(out, resized, targetFormat); err != nil {
		return &imgerrors.ImageProcessing{Cause: err}
	}
	if err := out.Sync(); err != nil {
		return &imgerrors.ImageProcessing{Cause: err}
	}
	return nil
}

// GetOriginalPath implements spec.md §4.4's get_original_path.
func (c *TransformCoordinator) GetOriginalPath(ctx context.Context, imageID string) (string, error) {
	orig, err := c.repo.FindOriginal(ctx, c.db, imageID)
	if err != nil {
		return "", fmt.Errorf("lookup original %q: %w", imageID, err)
	}
	if orig == nil {
		return "", &imgerrors.ItemDoesNotExist{ID: imageID}
	}

	orig, err = c.waitForOriginalOK(ctx, imageID)
	if err != nil {
		return "", err
	}
	return c.layout.OriginalRel(orig), nil
}

// waitForOriginalOK polls FindOriginal until it observes status OK or the
// row disappears, honoring lockMaxRetries/lockWaitInterval. Per the
// resolution of the open question in spec.md §9, exhausting the retries
// while still INCONSISTENT surfaces ImageProcessing rather than returning
// a path to a possibly-incomplete file.
func (c *TransformCoordinator) waitForOriginalOK(ctx context.Context, imageID string) (*cache.OriginalItem, error) {
	item, err := c.repo.FindOriginal(ctx, c.db, imageID)
	if err != nil {
		return nil, fmt.Errorf("poll original %q: %w", imageID, err)
	}
	for attempt := 0; attempt < lockMaxRetries && item != nil && item.Status != cache.StatusOK; attempt++ {
		if err := sleep(ctx, lockWaitInterval); err != nil {
			return nil, err
		}
		item, err = c.repo.FindOriginal(ctx, c.db, imageID)
		if err != nil {
			return nil, fmt.Errorf("poll original %q: %w", imageID, err)
		}
	}
	if item == nil {
		return nil, &imgerrors.ItemDoesNotExist{ID: imageID}
	}
	if item.Status != cache.StatusOK {
		return nil, &imgerrors.ImageProcessing{Cause: fmt.Errorf("timed out waiting for %q to become consistent", imageID)}
	}
	return item, nil
}

// waitForDerivedOK is waitForOriginalOK's counterpart for the create-or-join
// path: the loser of the uniqueness race waits for the winner's render
// instead of retrying it.
func (c *TransformCoordinator) waitForDerivedOK(ctx context.Context, originalID string, size cache.Size, format string) (*cache.DerivedItem, error) {
	item, err := c.repo.FindDerived(ctx, c.db, originalID, size, format)
	if err != nil {
		return nil, fmt.Errorf("poll derived: %w", err)
	}
	for attempt := 0; attempt < lockMaxRetries && item != nil && item.Status != cache.StatusOK; attempt++ {
		if err := sleep(ctx, lockWaitInterval); err != nil {
			return nil, err
		}
		item, err = c.repo.FindDerived(ctx, c.db, originalID, size, format)
		if err != nil {
			return nil, fmt.Errorf("poll derived: %w", err)
		}
	}
	if item == nil || item.Status != cache.StatusOK {
		return nil, &imgerrors.ImageProcessing{Cause: fmt.Errorf("timed out waiting for concurrent render of %s %s %s", originalID, size, format)}
	}
	return item, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeFile copies src to a freshly created file at path, flushing before
// close -- binary mode throughout, per the resolution of the open question
// in spec.md §9.
func (c *TransformCoordinator) writeFile(path string, src io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	return out.Sync()
}

// CleanupInconsistent is the startup reconciliation pass described in
// spec.md §4.4: derived items before original items (original deletion
// would cascade, but each pass wants to delete the file for the item it is
// looking at), one transaction per page, looping until a pass finds
// nothing left.
func (c *TransformCoordinator) CleanupInconsistent(ctx context.Context) error {
	if err := c.cleanupDerived(ctx); err != nil {
		return fmt.Errorf("cleanup derived: %w", err)
	}
	if err := c.cleanupOriginal(ctx); err != nil {
		return fmt.Errorf("cleanup original: %w", err)
	}
	return nil
}

func (c *TransformCoordinator) cleanupDerived(ctx context.Context) error {
	for {
		more := false
		err := c.db.WithinTransaction(ctx, func(q database.Querier) error {
			items, err := c.repo.FindInconsistentDeriveds(ctx, q, reconciliationPageSize)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return nil
			}
			more = true

			g, _ := errgroup.WithContext(ctx)
			for i := range items {
				item := items[i]
				g.Go(func() error {
					return removeIgnoringMissing(c.layout.DerivedAbs(&item))
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for i := range items {
				if err := c.repo.DeleteDerived(ctx, q, &items[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (c *TransformCoordinator) cleanupOriginal(ctx context.Context) error {
	for {
		more := false
		err := c.db.WithinTransaction(ctx, func(q database.Querier) error {
			items, err := c.repo.FindInconsistentOriginals(ctx, q, reconciliationPageSize)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return nil
			}
			more = true

			g, _ := errgroup.WithContext(ctx)
			for i := range items {
				item := items[i]
				g.Go(func() error {
					return removeIgnoringMissing(c.layout.OriginalAbs(&item))
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for i := range items {
				if err := c.repo.DeleteOriginal(ctx, q, &items[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func removeIgnoringMissing(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
