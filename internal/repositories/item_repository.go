// Package repositories implements the ItemRepository described in the
// specification: domain queries and mutations against the MetadataStore,
// translating PostgreSQL uniqueness violations into the cache core's own
// ErrDuplicateEntry so callers never see a driver-specific error.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/samidalouche/imgserver/internal/cache"
	"github.com/samidalouche/imgserver/internal/database"
	"github.com/samidalouche/imgserver/internal/imgerrors"
)

// ItemRepository runs the domain queries and mutations of spec.md §4.2
// against a database.Querier, so every operation can run either standalone
// (its own implicit transaction) or nested inside a
// database.DB.WithinTransaction callback.
type ItemRepository struct{}

// NewItemRepository constructs an ItemRepository.
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{}
}

// FindOriginal looks up an OriginalItem by id. It returns (nil, nil) when absent.
func (r *ItemRepository) FindOriginal(ctx context.Context, q database.Querier, id string) (*cache.OriginalItem, error) {
	var row struct {
		ID     string `db:"id"`
		Status string `db:"status"`
		Width  int    `db:"width"`
		Height int    `db:"height"`
		Format string `db:"format"`
	}
	query := `
		SELECT a.id, a.status, a.width, a.height, a.format
		FROM original_item o JOIN abstract_item a ON a.id = o.id
		WHERE o.id = $1`

	err := q.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find original %q: %w", id, err)
	}

	return &cache.OriginalItem{AbstractItem: cache.AbstractItem{
		ID:     row.ID,
		Status: cache.Status(row.Status),
		Size:   cache.Size{Width: row.Width, Height: row.Height},
		Format: row.Format,
	}}, nil
}

// FindDerived looks up a DerivedItem by its composite key. It returns (nil, nil) when absent.
func (r *ItemRepository) FindDerived(ctx context.Context, q database.Querier, originalID string, size cache.Size, format string) (*cache.DerivedItem, error) {
	var row struct {
		ID         string `db:"id"`
		Status     string `db:"status"`
		Width      int    `db:"width"`
		Height     int    `db:"height"`
		Format     string `db:"format"`
		OriginalID string `db:"original_item_id"`
	}
	query := `
		SELECT a.id, a.status, a.width, a.height, a.format, d.original_item_id
		FROM derived_item d JOIN abstract_item a ON a.id = d.id
		WHERE d.original_item_id = $1 AND d.width = $2 AND d.height = $3 AND d.format = $4`

	err := q.GetContext(ctx, &row, query, originalID, size.Width, size.Height, format)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find derived %q %s %s: %w", originalID, size, format, err)
	}

	return &cache.DerivedItem{
		AbstractItem: cache.AbstractItem{
			ID:     row.ID,
			Status: cache.Status(row.Status),
			Size:   cache.Size{Width: row.Width, Height: row.Height},
			Format: row.Format,
		},
		OriginalID: row.OriginalID,
	}, nil
}

// FindInconsistentOriginals returns up to limit OriginalItems in the
// INCONSISTENT state, for reconciliation.
func (r *ItemRepository) FindInconsistentOriginals(ctx context.Context, q database.Querier, limit int) ([]cache.OriginalItem, error) {
	var rows []struct {
		ID     string `db:"id"`
		Status string `db:"status"`
		Width  int    `db:"width"`
		Height int    `db:"height"`
		Format string `db:"format"`
	}
	query := `
		SELECT a.id, a.status, a.width, a.height, a.format
		FROM original_item o JOIN abstract_item a ON a.id = o.id
		WHERE a.status = $1
		LIMIT $2`

	if err := q.SelectContext(ctx, &rows, query, cache.StatusInconsistent, limit); err != nil {
		return nil, fmt.Errorf("find inconsistent originals: %w", err)
	}

	items := make([]cache.OriginalItem, len(rows))
	for i, row := range rows {
		items[i] = cache.OriginalItem{AbstractItem: cache.AbstractItem{
			ID:     row.ID,
			Status: cache.Status(row.Status),
			Size:   cache.Size{Width: row.Width, Height: row.Height},
			Format: row.Format,
		}}
	}
	return items, nil
}

// FindInconsistentDeriveds returns up to limit DerivedItems in the
// INCONSISTENT state, for reconciliation.
func (r *ItemRepository) FindInconsistentDeriveds(ctx context.Context, q database.Querier, limit int) ([]cache.DerivedItem, error) {
	var rows []struct {
		ID         string `db:"id"`
		Status     string `db:"status"`
		Width      int    `db:"width"`
		Height     int    `db:"height"`
		Format     string `db:"format"`
		OriginalID string `db:"original_item_id"`
	}
	query := `
		SELECT a.id, a.status, a.width, a.height, a.format, d.original_item_id
		FROM derived_item d JOIN abstract_item a ON a.id = d.id
		WHERE a.status = $1
		LIMIT $2`

	if err := q.SelectContext(ctx, &rows, query, cache.StatusInconsistent, limit); err != nil {
		return nil, fmt.Errorf("find inconsistent deriveds: %w", err)
	}

	items := make([]cache.DerivedItem, len(rows))
	for i, row := range rows {
		items[i] = cache.DerivedItem{
			AbstractItem: cache.AbstractItem{
				ID:     row.ID,
				Status: cache.Status(row.Status),
				Size:   cache.Size{Width: row.Width, Height: row.Height},
				Format: row.Format,
			},
			OriginalID: row.OriginalID,
		}
	}
	return items, nil
}

// CreateOriginal inserts the abstract row then the concrete row atomically,
// translating a uniqueness violation into imgerrors.ErrDuplicateEntry.
func (r *ItemRepository) CreateOriginal(ctx context.Context, q database.Querier, item *cache.OriginalItem) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO abstract_item (id, status, width, height, format) VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.Status, item.Size.Width, item.Size.Height, item.Format)
	if err != nil {
		if database.IsUniquenessViolation(err) {
			return &imgerrors.ErrDuplicateEntry{ID: item.ID}
		}
		return fmt.Errorf("create original %q: %w", item.ID, err)
	}

	if _, err := q.ExecContext(ctx, `INSERT INTO original_item (id) VALUES ($1)`, item.ID); err != nil {
		if database.IsUniquenessViolation(err) {
			return &imgerrors.ErrDuplicateEntry{ID: item.ID}
		}
		return fmt.Errorf("create original %q: %w", item.ID, err)
	}
	return nil
}

// CreateDerived inserts the abstract row then the concrete row atomically,
// translating a uniqueness violation (on either the id or the
// (original_id,width,height,format) composite) into
// imgerrors.ErrDuplicateEntry.
func (r *ItemRepository) CreateDerived(ctx context.Context, q database.Querier, item *cache.DerivedItem) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO abstract_item (id, status, width, height, format) VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.Status, item.Size.Width, item.Size.Height, item.Format)
	if err != nil {
		if database.IsUniquenessViolation(err) {
			return &imgerrors.ErrDuplicateEntry{ID: item.ID}
		}
		return fmt.Errorf("create derived %q: %w", item.ID, err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO derived_item (id, original_item_id, width, height, format) VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.OriginalID, item.Size.Width, item.Size.Height, item.Format)
	if err != nil {
		if database.IsUniquenessViolation(err) {
			return &imgerrors.ErrDuplicateEntry{ID: item.ID}
		}
		return fmt.Errorf("create derived %q: %w", item.ID, err)
	}
	return nil
}

// UpdateOriginal writes back an OriginalItem's mutable fields.
func (r *ItemRepository) UpdateOriginal(ctx context.Context, q database.Querier, item *cache.OriginalItem) error {
	_, err := q.ExecContext(ctx,
		`UPDATE abstract_item SET status = $1, width = $2, height = $3, format = $4 WHERE id = $5`,
		item.Status, item.Size.Width, item.Size.Height, item.Format, item.ID)
	if err != nil {
		return fmt.Errorf("update original %q: %w", item.ID, err)
	}
	return nil
}

// UpdateDerived writes back a DerivedItem's mutable fields.
func (r *ItemRepository) UpdateDerived(ctx context.Context, q database.Querier, item *cache.DerivedItem) error {
	_, err := q.ExecContext(ctx,
		`UPDATE abstract_item SET status = $1, width = $2, height = $3, format = $4 WHERE id = $5`,
		item.Status, item.Size.Width, item.Size.Height, item.Format, item.ID)
	if err != nil {
		return fmt.Errorf("update derived %q: %w", item.ID, err)
	}
	return nil
}

// DeleteOriginal removes the concrete row and the abstract row; the
// ON DELETE CASCADE on derived_item.original_item_id removes its
// derivatives, matching the cascade invariant in spec.md §4.2.
func (r *ItemRepository) DeleteOriginal(ctx context.Context, q database.Querier, item *cache.OriginalItem) error {
	_, err := q.ExecContext(ctx, `DELETE FROM abstract_item WHERE id = $1`, item.ID)
	if err != nil {
		return fmt.Errorf("delete original %q: %w", item.ID, err)
	}
	return nil
}

// DeleteDerived removes the concrete row and the abstract row.
func (r *ItemRepository) DeleteDerived(ctx context.Context, q database.Querier, item *cache.DerivedItem) error {
	_, err := q.ExecContext(ctx, `DELETE FROM abstract_item WHERE id = $1`, item.ID)
	if err != nil {
		return fmt.Errorf("delete derived %q: %w", item.ID, err)
	}
	return nil
}
