package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/session"
)

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	rec := &session.Record{
		ID:       "b",
		State:    session.StateActive,
		Messages: []*message.Message{message.From("Query_Agent", message.RoleUser, "hi")},
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	_ = s.Save(ctx, &session.Record{ID: "a"})

	rec.Messages[0].Content = "mutated"
	got, err := s.Load(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if got.Messages[0].Content != "hi" {
		t.Error("Save must store a copy")
	}

	ids, _ := s.List(ctx)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("List() = %v", ids)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("Count() = %d", n)
	}

	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "b"); ok {
		t.Error("deleted record still exists")
	}
	if _, err := s.Load(ctx, "b"); !errors.Is(err, errorskg.ErrNotFound) {
		t.Errorf("Load() error = %v", err)
	}
	if err := s.Delete(ctx, "b"); !errors.Is(err, errorskg.ErrNotFound) {
		t.Errorf("Delete() error = %v", err)
	}

	_ = s.Clear()
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count() after Clear = %d", n)
	}
	if err := s.Save(ctx, nil); err == nil {
		t.Error("nil record should fail")
	}
}

func TestInMemoryStoreEviction(t *testing.T) {
	s := NewInMemoryStore(WithMaxRecords(2))
	ctx := context.Background()
	base := time.Now()

	_ = s.Save(ctx, &session.Record{ID: "a", UpdatedAt: base})
	_ = s.Save(ctx, &session.Record{ID: "b", UpdatedAt: base.Add(time.Minute)})
	_ = s.Save(ctx, &session.Record{ID: "c", UpdatedAt: base.Add(-time.Minute)})

	ids, _ := s.List(ctx)
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Errorf("List() = %v, want [b c]", ids)
	}
}
