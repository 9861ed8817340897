package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	r := testRecord("METAR", "KJFK", time.Date(2024, 6, 11, 6, 54, 0, 0, time.UTC))
	r.Contents = "METAR KJFK 110454Z ..."
	if err := s.Upsert(ctx, CollectionMSG, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	r2 := testRecord("METAR", "KJFK", time.Date(2024, 6, 11, 7, 54, 0, 0, time.UTC))
	r2.Contents = "METAR KJFK 110554Z ..."
	if err := s.Upsert(ctx, CollectionMSG, r2); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.FindOne(ctx, CollectionMSG, "METAR-KJFK")
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if got == nil {
		t.Fatal("expected a document")
	}
	if got.Contents != r2.Contents {
		t.Errorf("contents = %q, want %q", got.Contents, r2.Contents)
	}
}

func TestMemoryFindOneMissing(t *testing.T) {
	s := NewMemory()

	got, err := s.FindOne(context.Background(), CollectionMSG, "METAR-KLAX")
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing key, got %+v", got)
	}
}

func TestMemoryFindManyByType(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	now := time.Date(2024, 6, 11, 5, 0, 0, 0, time.UTC)
	seed := []struct{ typ, name string }{
		{"METAR", "KJFK"},
		{"METAR", "KBOS"},
		{"TAF", "KJFK"},
	}
	for _, d := range seed {
		if err := s.Upsert(ctx, CollectionMSG, testRecord(d.typ, d.name, now)); err != nil {
			t.Fatalf("upsert %s-%s: %v", d.typ, d.name, err)
		}
	}

	got, err := s.FindMany(ctx, CollectionMSG, Filter{Type: "METAR"})
	if err != nil {
		t.Fatalf("find many: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	// Sorted by key.
	if got[0].UniqueName != "KBOS" || got[1].UniqueName != "KJFK" {
		t.Errorf("order = %s, %s", got[0].UniqueName, got[1].UniqueName)
	}
}

func TestMemoryFindManyByKeyPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	now := time.Date(2024, 6, 11, 5, 0, 0, 0, time.UTC)
	for _, d := range []struct{ typ, name string }{
		{"CRL", "CRL-8-ABQ"},
		{"CRL", "CRL-14-ABQ"},
		{"NOTAM", "4-1982"},
	} {
		if err := s.Upsert(ctx, CollectionMSG, testRecord(d.typ, d.name, now)); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	got, err := s.FindMany(ctx, CollectionMSG, Filter{KeyPrefix: "CRL-"})
	if err != nil {
		t.Fatalf("find many: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
}

func TestMemoryDeleteManyExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	now := time.Date(2024, 6, 11, 5, 0, 0, 0, time.UTC)
	if err := s.Upsert(ctx, CollectionMSG, testRecord("METAR", "KJFK", now.Add(-time.Minute))); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(ctx, CollectionMSG, testRecord("METAR", "KBOS", now.Add(time.Hour))); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := s.DeleteMany(ctx, CollectionMSG, Filter{ExpiredBefore: now})
	if err != nil {
		t.Fatalf("delete many: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}

	got, err := s.FindOne(ctx, CollectionMSG, "METAR-KBOS")
	if err != nil || got == nil {
		t.Fatalf("unexpired record gone: %v %v", got, err)
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	now := time.Date(2024, 6, 11, 5, 0, 0, 0, time.UTC)
	if err := s.Upsert(ctx, CollectionMSG, testRecord("METAR", "KJFK", now)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Delete(ctx, CollectionMSG, "METAR-KJFK"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Deleting a missing key is not an error.
	if err := s.Delete(ctx, CollectionMSG, "METAR-KJFK"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	got, err := s.FindOne(ctx, CollectionMSG, "METAR-KJFK")
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if got != nil {
		t.Error("record still present after delete")
	}
}
