package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestMemoryStoreContract(t *testing.T) {
	runContractTests(t, func(t *testing.T) Storage {
		return NewMemoryStore()
	})
}

func TestMemoryStoreSharesReadersAcrossGets(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Set(ctx, "cas/ab", strings.NewReader("hello")); err != nil {
		t.Fatalf("set error: %v", err)
	}

	first, err := store.Get(ctx, "cas/ab")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	second, err := store.Get(ctx, "cas/ab")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer first.Close()
	defer second.Close()

	buf := make([]byte, 2)
	if _, err := io.ReadFull(first, buf); err != nil {
		t.Fatalf("partial read error: %v", err)
	}
	rest, _ := io.ReadAll(second)
	if string(rest) != "hello" {
		t.Fatalf("independent readers expected, got %q", string(rest))
	}
	if store.Len() != 1 {
		t.Fatalf("expected one entry, got %d", store.Len())
	}
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Set(context.Background(), "", strings.NewReader("x")); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
