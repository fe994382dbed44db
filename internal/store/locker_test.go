package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestDBLockerTryAcquireSucceedsWhenFree(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO conversation_locks`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	l := NewDBLocker(db, DefaultDBLockerConfig())
	ok, err := l.tryAcquire(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("tryAcquire: %v", err)
	}
	if !ok {
		t.Fatal("expected tryAcquire to succeed on an unheld lease")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDBLockerTryAcquireFailsWhenHeldByOther(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO conversation_locks`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	l := NewDBLocker(db, DefaultDBLockerConfig())
	ok, err := l.tryAcquire(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("tryAcquire: %v", err)
	}
	if ok {
		t.Fatal("expected tryAcquire to fail when another owner holds an unexpired lease")
	}
}

func TestDBLockerUnlockDeletesOwnedRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM conversation_locks`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	l := NewDBLocker(db, DefaultDBLockerConfig())
	l.Unlock("conv-1")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNewDBLockerAppliesDefaults(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	l := NewDBLocker(db, DBLockerConfig{})
	if l.config.OwnerID == "" || l.config.TTL != 2*time.Minute {
		t.Fatalf("config = %+v", l.config)
	}
}
