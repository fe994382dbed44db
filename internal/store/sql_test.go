package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/modelcouncil/council/pkg/council"
)

func TestSQLStoreLoadNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT created_at, updated_at FROM conversations WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	s := NewSQLStore(db, nil)
	if _, err := s.Load(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("Load() err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO conversations`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := NewSQLStore(db, nil)
	conv, err := s.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("expected a non-empty conversation id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreAppendTurnCommitsTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM conversation_messages`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM conversation_turns`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO conversation_messages`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO conversation_messages`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO conversation_turns`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE conversations SET updated_at`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s := NewSQLStore(db, nil)
	err = s.AppendTurn(context.Background(), "conv-1",
		council.ChatMessage{Role: council.RoleUser, Content: "hi"},
		council.CouncilTurn{TurnID: "t1"},
		council.ChatMessage{Role: council.RoleAssistant, Content: "hello"},
	)
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDefaultDBLockerConfig(t *testing.T) {
	cfg := DefaultDBLockerConfig()
	if cfg.OwnerID == "" {
		t.Fatal("expected a generated OwnerID")
	}
	if cfg.TTL != 2*time.Minute || cfg.RefreshInterval != 30*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
}
