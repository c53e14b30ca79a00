package notify

import (
	"context"
	"sync"
	"testing"

	"esign-backend/testutil"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Notify(_ context.Context, userID, title, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userID+"|"+title)
}

type panicky struct{}

func (panicky) Notify(context.Context, string, string, string, string) { panic("boom") }

func TestStoreNotifyAndList(t *testing.T) {
	db := testutil.OpenDB(t)
	s := NewStore(db, zap.NewNop())
	ctx := context.Background()

	s.Notify(ctx, "u1", "Document signed", "Ada signed NDA.", "/signature-requests/r1")
	s.Notify(ctx, "u1", "Document declined", "Bob declined NDA.", "/signature-requests/r2")
	s.Notify(ctx, "u2", "Other", "", "")

	rows, err := s.List(ctx, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d notifications", len(rows))
	}
	if rows[0].Title != "Document declined" {
		t.Errorf("newest first: got %q", rows[0].Title)
	}

	ok, err := s.MarkRead(ctx, "u2", rows[0].ID)
	if err != nil || ok {
		t.Fatalf("MarkRead by other user = %v, %v", ok, err)
	}
	ok, err = s.MarkRead(ctx, "u1", rows[0].ID)
	if err != nil || !ok {
		t.Fatalf("MarkRead = %v, %v", ok, err)
	}
}

func TestStoreSwallowsErrors(t *testing.T) {
	db := testutil.OpenDB(t)
	core, logs := observer.New(zap.WarnLevel)
	s := NewStore(db, zap.New(core))

	sqlDB, _ := db.DB()
	sqlDB.Close()

	s.Notify(context.Background(), "u1", "t", "m", "l")
	if logs.Len() != 1 {
		t.Fatalf("expected one warning, got %d", logs.Len())
	}
}

func TestAsyncDeliversAndRecovers(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a.Notify(ctx, "u1", "one", "", "")
	a.Notify(ctx, "u1", "two", "", "")
	a.Wait()

	if len(rec.calls) != 2 {
		t.Fatalf("got %d calls", len(rec.calls))
	}

	core, logs := observer.New(zap.ErrorLevel)
	p := NewAsync(panicky{}, zap.New(core))
	p.Notify(context.Background(), "u1", "boom", "", "")
	p.Wait()
	if logs.Len() != 1 {
		t.Fatalf("panic not logged")
	}
}
