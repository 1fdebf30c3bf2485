package memory

import (
	"context"
	"testing"

	"ledgerdash/internal/table"
)

func TestMemoryStoreWriteAndLast(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.WriteSheet(ctx, table.Sheet{Resource: "orders", Name: "Orders"})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected write: ref=%q err=%v", ref, err)
	}
	ref, err = s.WriteSheet(ctx, table.Sheet{Resource: "orders", Name: "Orders v2"})
	if err != nil || ref != "mem:2" {
		t.Fatalf("unexpected write: ref=%q err=%v", ref, err)
	}

	last, ok := s.Last("orders")
	if !ok || last.Name != "Orders v2" {
		t.Fatalf("unexpected last sheet: %+v %v", last, ok)
	}
	if _, ok := s.Last("products"); ok {
		t.Fatal("expected no sheet for products")
	}
	if got := len(s.Sheets()); got != 2 {
		t.Fatalf("expected 2 sheets, got %d", got)
	}
}

func TestMemoryStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().WriteSheet(ctx, table.Sheet{}); err == nil {
		t.Fatal("expected context error")
	}
}
