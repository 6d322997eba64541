package calls

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRepo_UpsertFillsOnlyMissingFields(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	created, err := repo.Upsert(ctx, Record{ID: "c1", LeadID: 7, StatusCode: 4, Outcome: "success"})
	if err != nil || !created {
		t.Fatalf("expected insert, got created=%v err=%v", created, err)
	}

	created, err = repo.Upsert(ctx, Record{ID: "c1", LeadID: 7, StatusCode: 7, Outcome: "no_answer", Summary: "late summary", DurationSeconds: 42})
	if err != nil || created {
		t.Fatalf("expected update, got created=%v err=%v", created, err)
	}
	got, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Outcome != "success" || got.StatusCode != 4 {
		t.Fatalf("outcome must not change, got %+v", got)
	}
	if got.Summary != "late summary" || got.DurationSeconds != 42 {
		t.Fatalf("expected late fields filled, got %+v", got)
	}

	if _, err := repo.Upsert(ctx, Record{ID: "c1", LeadID: 7, Summary: "other"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, _ = repo.Get(ctx, "c1")
	if got.Summary != "late summary" {
		t.Fatalf("summary must not be overwritten")
	}
}

func TestMemoryRepo_CountAndRecent(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2025, 10, 6, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if _, err := repo.Upsert(ctx, Record{ID: id, LeadID: 1, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if _, err := repo.Upsert(ctx, Record{ID: "d", LeadID: 2, CreatedAt: base}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	n, _ := repo.CountForLead(ctx, 1)
	if n != 3 {
		t.Fatalf("expected 3 records for lead 1, got %d", n)
	}

	recent, _ := repo.ListRecent(ctx, 2)
	if len(recent) != 2 || recent[0].ID != "c" {
		t.Fatalf("expected newest first, got %+v", recent)
	}

	inRange, _ := repo.ListRange(ctx, base, base.Add(2*time.Minute))
	if len(inRange) != 3 {
		t.Fatalf("expected 3 records in range, got %d", len(inRange))
	}

	if _, err := repo.Upsert(ctx, Record{LeadID: 1}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestMemoryRepo_UnresolvedRecordTakesFinalResult(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, Record{ID: "c2", LeadID: 7, StatusCode: 3, Outcome: "error"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, _ := repo.Get(ctx, "c2")
	if !got.Unresolved() {
		t.Fatalf("expected unresolved record, got %+v", got)
	}

	created, err := repo.Upsert(ctx, Record{ID: "c2", LeadID: 7, StatusCode: 4, Outcome: "success", DurationSeconds: 95})
	if err != nil || created {
		t.Fatalf("expected update, got created=%v err=%v", created, err)
	}
	got, _ = repo.Get(ctx, "c2")
	if got.Outcome != "success" || got.StatusCode != 4 || got.Unresolved() {
		t.Fatalf("expected final result stored, got %+v", got)
	}

	if _, err := repo.Upsert(ctx, Record{ID: "c2", LeadID: 7, StatusCode: 7, Outcome: "no_answer"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, _ = repo.Get(ctx, "c2")
	if got.Outcome != "success" {
		t.Fatalf("final result must not change, got %+v", got)
	}

	dispatch := Record{ID: DispatchIDPrefix + "x", LeadID: 7, Outcome: "error"}
	if dispatch.Unresolved() {
		t.Fatalf("dispatch failures are final")
	}
}
