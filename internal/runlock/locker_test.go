package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupMockLocker(t *testing.T) (sqlmock.Sqlmock, *DBLocker) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	locker, err := NewDBLocker(db, Config{
		OwnerID:        "owner-1",
		AcquireTimeout: 200 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewDBLocker: %v", err)
	}
	t.Cleanup(func() { locker.Close() })
	return mock, locker
}

func TestNewDBLockerRequiresDBAndOwner(t *testing.T) {
	if _, err := NewDBLocker(nil, Config{OwnerID: "owner-1"}); err == nil {
		t.Fatal("expected error for nil db")
	}
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()
	if _, err := NewDBLocker(db, Config{}); err == nil {
		t.Fatal("expected error for missing owner id")
	}
}

func TestDBLockerLockAcquiresOnFirstTry(t *testing.T) {
	mock, locker := setupMockLocker(t)
	mock.ExpectQuery("INSERT INTO run_locks").
		WithArgs("run-1", "owner-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("owner-1"))

	if err := locker.Lock(context.Background(), "run-1"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDBLockerLockRetriesUntilOwned(t *testing.T) {
	mock, locker := setupMockLocker(t)
	// First poll: another owner holds the lease (no row returned, since the
	// WHERE clause excludes an unexpired lock owned by someone else).
	mock.ExpectQuery("INSERT INTO run_locks").
		WithArgs("run-1", "owner-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(nil))
	// Second poll: the lease has expired and this owner claims it.
	mock.ExpectQuery("INSERT INTO run_locks").
		WithArgs("run-1", "owner-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("owner-1"))

	if err := locker.Lock(context.Background(), "run-1"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
}

func TestDBLockerLockTimesOut(t *testing.T) {
	mock, locker := setupMockLocker(t)
	mock.ExpectQuery("INSERT INTO run_locks").
		WillReturnRows(sqlmock.NewRows(nil))

	err := locker.Lock(context.Background(), "run-1")
	if err != ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestDBLockerUnlockDeletesRow(t *testing.T) {
	mock, locker := setupMockLocker(t)
	mock.ExpectExec("DELETE FROM run_locks").
		WithArgs("run-1", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	locker.Unlock("run-1")
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDBLockerPurgeExpired(t *testing.T) {
	mock, locker := setupMockLocker(t)
	mock.ExpectExec("DELETE FROM run_locks WHERE expires_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := locker.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 purged rows, got %d", n)
	}
}
