package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sweetpotato0/ai-groupchat/config"
	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/session"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(db, "session_transcripts"), mock
}

func TestSave(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "session_transcripts" (id, state, outcome, record, created_at, updated_at)`)).
		WithArgs("s1", "closed", "terminated", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Save(context.Background(), &session.Record{ID: "s1", State: session.StateClosed, Outcome: "terminated"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoad(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"record"}).
		AddRow([]byte(`{"id":"s1","state":"closed","outcome":"exited","max_round":50,"messages":[{"id":"m1","role":"user","name":"Query_Agent","content":"hi","created_at":"2024-01-01T00:00:00Z"}],"created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT record FROM "session_transcripts" WHERE id = $1`)).
		WithArgs("s1").
		WillReturnRows(rows)

	rec, err := s.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.Outcome != "exited" || rec.MaxRound != 50 || len(rec.Messages) != 1 || rec.Messages[0].Name != "Query_Agent" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestLoadNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT record FROM "session_transcripts"`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	if _, err := s.Load(context.Background(), "missing"); !errors.Is(err, errorskg.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestListCountExistsDelete(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM "session_transcripts" ORDER BY updated_at DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("b").AddRow("a"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "session_transcripts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM "session_transcripts" WHERE id = $1)`)).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "session_transcripts" WHERE id = $1`)).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ids, err := s.List(ctx)
	if err != nil || len(ids) != 2 || ids[0] != "b" {
		t.Errorf("List() = %v, %v", ids, err)
	}
	if n, err := s.Count(ctx); err != nil || n != 2 {
		t.Errorf("Count() = %d, %v", n, err)
	}
	if ok, err := s.Exists(ctx, "a"); err != nil || !ok {
		t.Errorf("Exists() = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateTable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS "idx_session_transcripts_updated_at"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.CreateTable(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestNewStoreValidates(t *testing.T) {
	_, err := NewStore(context.Background(), &config.PostgresConfig{Host: "localhost"})
	if !errors.Is(err, errorskg.ErrInvalidConfig) {
		t.Errorf("NewStore() error = %v", err)
	}
}
