package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"skylink/internal/infra/persistence/postgres/pgstub"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

func sampleSnapshot(name string) domain.SessionSnapshot {
	return domain.SessionSnapshot{
		Name: name,
		Datasets: []domain.Dataset{
			{ID: "img", Components: []domain.Component{{Name: "x", Values: []float64{0, 1}}}},
			{ID: "spec", Components: []domain.Component{{Name: "wave", Values: []float64{5, 6}}}},
		},
		Links: []domain.Link{{
			ID:        "link-1",
			From:      domain.Ref("img", "x"),
			To:        domain.Ref("spec", "wave"),
			Transform: domain.Affine(1, 5),
			Seq:       1,
		}},
	}
}

func openStub(t *testing.T) (*Store, *pgstub.Conn) {
	t.Helper()
	db, conn := pgstub.Open()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreCreatesTableAndHydrates(t *testing.T) {
	db, conn := pgstub.Open()
	payload, err := json.Marshal(sampleSnapshot("seeded"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	conn.Rows["seeded"] = payload
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore(context.Background(), "postgres://ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var sawDDL bool
	for _, stmt := range conn.Statements {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected snapshot table DDL, got %v", conn.Statements)
	}
	snap, err := store.Load(context.Background(), "seeded")
	if err != nil {
		t.Fatalf("load seeded: %v", err)
	}
	if len(snap.Links) != 1 || snap.Links[0].Transform.B != 5 {
		t.Fatalf("unexpected hydrated links: %+v", snap.Links)
	}
}

func TestSaveAndDeleteWriteThrough(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	if err := store.Save(ctx, sampleSnapshot("demo")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, sampleSnapshot("demo")); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if got := len(conn.Rows); got != 1 {
		t.Fatalf("expected one persisted row, got %d", got)
	}
	infos, err := store.List(ctx)
	if err != nil || len(infos) != 1 || infos[0].Links != 1 {
		t.Fatalf("unexpected list: %+v %v", infos, err)
	}
	if err := store.Delete(ctx, "demo"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := len(conn.Rows); got != 0 {
		t.Fatalf("expected persisted row removed, got %d", got)
	}
	if err := store.Delete(ctx, "demo"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveFailuresLeaveCacheUntouched(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)

	conn.FailBegin = true
	if err := store.Save(ctx, sampleSnapshot("a")); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailBegin = false
	conn.FailCommit = true
	if err := store.Save(ctx, sampleSnapshot("b")); err == nil {
		t.Fatalf("expected commit failure")
	}
	conn.FailCommit = false
	conn.FailWrites = true
	if err := store.Save(ctx, sampleSnapshot("c")); err == nil {
		t.Fatalf("expected write failure")
	}
	infos, _ := store.List(ctx)
	if len(infos) != 0 {
		t.Fatalf("expected failed saves to leave cache empty, got %+v", infos)
	}
}

func TestNewStoreErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("boom") })
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected open failure")
	}
	restore()

	db, conn := pgstub.Open()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected ping failure")
	}

	conn.FailPing = false
	conn.Rows["bad"] = []byte("{not json")
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected decode failure")
	}
}
