package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/samidalouche/imgserver/internal/cache"
	"github.com/samidalouche/imgserver/internal/imgerrors"
)

// newMockDB wires a sqlmock-backed *sqlx.DB so repository queries can be
// exercised without a real PostgreSQL instance. Repository methods take a
// database.Querier, and *sqlx.DB satisfies that interface directly, so the
// mock can stand in for either a bare connection or a transaction.
func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func quoted(s string) string { return regexp.QuoteMeta(s) }

func TestFindOriginalFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(nil)

	rows := sqlmock.NewRows([]string{"id", "status", "width", "height", "format"}).
		AddRow("sami", "OK", 100, 200, "JPEG")
	mock.ExpectQuery(quoted("SELECT a.id, a.status, a.width, a.height, a.format")).
		WithArgs("sami").
		WillReturnRows(rows)

	item, err := repo.FindOriginal(context.Background(), db, "sami")
	if err != nil {
		t.Fatalf("FindOriginal: %v", err)
	}
	if item == nil {
		t.Fatal("item = nil, want a row")
	}
	if item.ID != "sami" || item.Status != cache.StatusOK || item.Size != (cache.Size{Width: 100, Height: 200}) || item.Format != "JPEG" {
		t.Errorf("item = %+v, unexpected", item)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFindOriginalAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(nil)

	mock.ExpectQuery(quoted("SELECT a.id, a.status, a.width, a.height, a.format")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "width", "height", "format"}))

	item, err := repo.FindOriginal(context.Background(), db, "ghost")
	if err != nil {
		t.Fatalf("FindOriginal: %v", err)
	}
	if item != nil {
		t.Errorf("item = %+v, want nil", item)
	}
}

func TestFindDerivedFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(nil)

	rows := sqlmock.NewRows([]string{"id", "status", "width", "height", "format", "original_item_id"}).
		AddRow("sami-100x100.jpg", "OK", 100, 100, "JPEG", "sami")
	mock.ExpectQuery(quoted("SELECT a.id, a.status, a.width, a.height, a.format, d.original_item_id")).
		WithArgs("sami", 100, 100, "JPEG").
		WillReturnRows(rows)

	item, err := repo.FindDerived(context.Background(), db, "sami", cache.Size{Width: 100, Height: 100}, "JPEG")
	if err != nil {
		t.Fatalf("FindDerived: %v", err)
	}
	if item == nil || item.OriginalID != "sami" {
		t.Errorf("item = %+v, unexpected", item)
	}
}

func TestCreateOriginalTranslatesDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(nil)

	mock.ExpectExec(quoted("INSERT INTO abstract_item")).
		WithArgs("sami", cache.StatusInconsistent, 100, 100, "JPEG").
		WillReturnError(&pq.Error{Code: "23505"})

	item := cache.NewOriginalItem("sami", cache.Size{Width: 100, Height: 100}, "jpeg")
	err := repo.CreateOriginal(context.Background(), db, item)

	var dup *imgerrors.ErrDuplicateEntry
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want *imgerrors.ErrDuplicateEntry", err)
	}
	if dup.ID != "sami" {
		t.Errorf("dup.ID = %q, want sami", dup.ID)
	}
}

func TestCreateOriginalSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(nil)

	mock.ExpectExec(quoted("INSERT INTO abstract_item")).
		WithArgs("sami", cache.StatusInconsistent, 100, 100, "JPEG").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quoted("INSERT INTO original_item")).
		WithArgs("sami").
		WillReturnResult(sqlmock.NewResult(0, 1))

	item := cache.NewOriginalItem("sami", cache.Size{Width: 100, Height: 100}, "jpeg")
	if err := repo.CreateOriginal(context.Background(), db, item); err != nil {
		t.Fatalf("CreateOriginal: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateDerivedTranslatesCompositeDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(nil)

	derived := cache.NewDerivedItem("sami", cache.Size{Width: 100, Height: 100}, "jpeg")

	mock.ExpectExec(quoted("INSERT INTO abstract_item")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quoted("INSERT INTO derived_item")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateDerived(context.Background(), db, derived)

	var dup *imgerrors.ErrDuplicateEntry
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want *imgerrors.ErrDuplicateEntry", err)
	}
}

func TestUpdateOriginal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(nil)

	item := cache.NewOriginalItem("sami", cache.Size{Width: 100, Height: 100}, "jpeg")
	item.Status = cache.StatusOK

	mock.ExpectExec(quoted("UPDATE abstract_item SET status")).
		WithArgs(cache.StatusOK, 100, 100, "JPEG", "sami").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateOriginal(context.Background(), db, item); err != nil {
		t.Fatalf("UpdateOriginal: %v", err)
	}
}

func TestDeleteOriginalCascades(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(nil)

	item := cache.NewOriginalItem("sami", cache.Size{Width: 100, Height: 100}, "jpeg")

	mock.ExpectExec(quoted("DELETE FROM abstract_item WHERE id = ")).
		WithArgs("sami").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteOriginal(context.Background(), db, item); err != nil {
		t.Fatalf("DeleteOriginal: %v", err)
	}
}

func TestFindInconsistentOriginals(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(nil)

	rows := sqlmock.NewRows([]string{"id", "status", "width", "height", "format"}).
		AddRow("a", "INCONSISTENT", 1, 1, "JPEG").
		AddRow("b", "INCONSISTENT", 2, 2, "PNG")
	mock.ExpectQuery(quoted("WHERE a.status = ")).
		WithArgs(cache.StatusInconsistent, 100).
		WillReturnRows(rows)

	items, err := repo.FindInconsistentOriginals(context.Background(), db, 100)
	if err != nil {
		t.Fatalf("FindInconsistentOriginals: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
}
