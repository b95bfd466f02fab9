package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTransfer(id string) Transfer {
	return Transfer{
		ID:            id,
		Sender:        "0x0000000000000000000000000000000000000001",
		Recipient:     "0x0000000000000000000000000000000000000001",
		Amount:        "100",
		BridgedAmount: "99",
		Status:        StatusPending,
		SourceBlock:   42,
		EventTime:     time.Unix(1700000000, 0),
	}
}

func TestInsertAndExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "0xaa")
	if err != nil || ok {
		t.Fatalf("expected absent, ok=%v err=%v", ok, err)
	}

	if err := s.Insert(ctx, sampleTransfer("0xaa")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ok, err = s.Exists(ctx, "0xaa")
	if err != nil || !ok {
		t.Fatalf("expected present, ok=%v err=%v", ok, err)
	}
}

func TestInsertConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, sampleTransfer("0xbb")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := s.Insert(ctx, sampleTransfer("0xbb"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateStatusWithExtraFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, sampleTransfer("0xcc")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	destBlock := uint64(777)
	err := s.UpdateStatus(ctx, "0xcc", StatusCompleted, StatusUpdate{
		DestBlock: &destBlock,
		Signature: "0xsig",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	tr, err := s.Get(ctx, "0xcc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tr.Status != StatusCompleted {
		t.Fatalf("status not updated: %s", tr.Status)
	}
	if tr.DestBlock == nil || *tr.DestBlock != 777 {
		t.Fatalf("dest block not set: %v", tr.DestBlock)
	}
	if tr.Signature != "0xsig" {
		t.Fatalf("signature not set: %s", tr.Signature)
	}

	// Re-issuing the same terminal update is not an error.
	if err := s.UpdateStatus(ctx, "0xcc", StatusCompleted, StatusUpdate{}); err != nil {
		t.Fatalf("idempotent update: %v", err)
	}
	tr, _ = s.Get(ctx, "0xcc")
	if tr.DestBlock == nil || *tr.DestBlock != 777 {
		t.Fatalf("extra fields clobbered by repeat update: %v", tr.DestBlock)
	}
}

func TestUpdateStatusUnknownID(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateStatus(context.Background(), "0xmissing", StatusRefunded, StatusUpdate{}); err != nil {
		t.Fatalf("update of unknown id should be a no-op, got %v", err)
	}
}

func TestRefundOverwritesTerminalStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := sampleTransfer("0xdd")
	tr.Status = StatusCompleted
	if err := s.Insert(ctx, tr); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateStatus(ctx, "0xdd", StatusRefunded, StatusUpdate{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Get(ctx, "0xdd")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusRefunded {
		t.Fatalf("refund did not overwrite terminal status: %s", got.Status)
	}
}

func TestSelectAndDeleteOldest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	for i, id := range []string{"0x01", "0x02", "0x03"} {
		tr := sampleTransfer(id)
		tr.EventTime = base.Add(time.Duration(i) * time.Hour)
		if err := s.Insert(ctx, tr); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	oldest, err := s.SelectOldest(ctx, 2)
	if err != nil {
		t.Fatalf("select oldest: %v", err)
	}
	if len(oldest) != 2 || oldest[0].ID != "0x01" || oldest[1].ID != "0x02" {
		t.Fatalf("unexpected oldest set: %+v", oldest)
	}

	n, err := s.DeleteOldest(ctx, 2)
	if err != nil || n != 2 {
		t.Fatalf("delete oldest: n=%d err=%v", n, err)
	}
	ok, _ := s.Exists(ctx, "0x03")
	if !ok {
		t.Fatalf("newest record should survive prune")
	}
}

func TestCountByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleTransfer("0x0a")
	b := sampleTransfer("0x0b")
	b.Status = StatusRefunded
	for _, tr := range []Transfer{a, b} {
		if err := s.Insert(ctx, tr); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[StatusPending] != 1 || counts[StatusRefunded] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
