package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
)

// runContractTests 对任意支持完整操作集的后端执行相同的行为校验。
func runContractTests(t *testing.T, newStore func(t *testing.T) Storage) {
	t.Run("round trip", func(t *testing.T) {
		store := newStore(t)
		payload := bytes.Repeat([]byte("0123456789abcdef"), 10*1024)
		if err := store.Set(context.Background(), "cas/abcdef", bytes.NewReader(payload)); err != nil {
			t.Fatalf("set error: %v", err)
		}
		if got := readKey(t, store, "cas/abcdef"); !bytes.Equal(got, payload) {
			t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
		}
	})

	t.Run("missing key", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(context.Background(), "ac/missing-key"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		ok, err := store.Has(context.Background(), "ac/missing-key")
		if err != nil || ok {
			t.Fatalf("expected has=false, got %v (err=%v)", ok, err)
		}
	})

	t.Run("first writer wins", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if err := store.Set(ctx, "ac/x", strings.NewReader("r1")); err != nil {
			t.Fatalf("first set error: %v", err)
		}
		if ok, _ := store.Has(ctx, "ac/x"); !ok {
			t.Fatalf("expected key to exist after first set")
		}
		if err := store.Set(ctx, "ac/x", strings.NewReader("r2")); err != nil {
			t.Fatalf("duplicate set should be a no-op, got %v", err)
		}
		if got := string(readKey(t, store, "ac/x")); got != "r1" {
			t.Fatalf("expected r1 to survive, got %q", got)
		}
	})

	t.Run("remove clears existence", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if err := store.Set(ctx, "cas/gone", strings.NewReader("data")); err != nil {
			t.Fatalf("set error: %v", err)
		}
		if err := store.Remove(ctx, "cas/gone"); err != nil {
			t.Fatalf("remove error: %v", err)
		}
		if ok, _ := store.Has(ctx, "cas/gone"); ok {
			t.Fatalf("expected has=false after remove")
		}
		if err := store.Remove(ctx, "cas/gone"); err != nil {
			t.Fatalf("removing a missing key should succeed, got %v", err)
		}
		if err := store.Set(ctx, "cas/gone", strings.NewReader("again")); err != nil {
			t.Fatalf("set after remove error: %v", err)
		}
		if got := string(readKey(t, store, "cas/gone")); got != "again" {
			t.Fatalf("expected rewritten value, got %q", got)
		}
	})

	t.Run("list by prefix", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, key := range []string{"ac/one", "ac/two", "cas/aa11", "cas/aa22"} {
			if err := store.Set(ctx, key, strings.NewReader(key)); err != nil {
				t.Fatalf("set %s error: %v", key, err)
			}
		}
		keys, err := store.List(ctx, "ac/")
		if err != nil {
			t.Fatalf("list error: %v", err)
		}
		sort.Strings(keys)
		if strings.Join(keys, ",") != "ac/one,ac/two" {
			t.Fatalf("unexpected keys: %v", keys)
		}
		all, _ := store.List(ctx, "")
		if len(all) != 4 {
			t.Fatalf("expected 4 keys with empty prefix, got %v", all)
		}
	})

	t.Run("clear", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_ = store.Set(ctx, "ac/a", strings.NewReader("a"))
		_ = store.Set(ctx, "cas/b", strings.NewReader("b"))
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("clear error: %v", err)
		}
		keys, _ := store.List(ctx, "")
		if len(keys) != 0 {
			t.Fatalf("expected empty store, got %v", keys)
		}
	})

	t.Run("interrupted write leaves no trace", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		reader := &flakyReader{payload: []byte("partial_data"), failAfter: 5}
		if err := store.Set(ctx, "cas/partial", reader); err == nil {
			t.Fatalf("expected error from interrupted reader")
		}
		if ok, _ := store.Has(ctx, "cas/partial"); ok {
			t.Fatalf("partial write must not be visible")
		}
		keys, _ := store.List(ctx, "")
		if len(keys) != 0 {
			t.Fatalf("expected no keys after interrupted write, got %v", keys)
		}
	})

	t.Run("cancelled write leaves no trace", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := store.Set(ctx, "ac/cancelled", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if ok, _ := store.Has(context.Background(), "ac/cancelled"); ok {
			t.Fatalf("cancelled write must not be visible")
		}
	})

	t.Run("has via get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_ = store.Set(ctx, "ac/present", strings.NewReader("v"))
		if ok, err := HasViaGet(ctx, store, "ac/present"); err != nil || !ok {
			t.Fatalf("expected derived has=true, got %v (err=%v)", ok, err)
		}
		if ok, err := HasViaGet(ctx, store, "ac/absent"); err != nil || ok {
			t.Fatalf("expected derived has=false, got %v (err=%v)", ok, err)
		}
	})
}

func readKey(t *testing.T, store Storage, key string) []byte {
	t.Helper()
	rc, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s error: %v", key, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s error: %v", key, err)
	}
	return body
}

// flakyReader 在读取 failAfter 字节后返回错误，模拟客户端中途断开。
type flakyReader struct {
	payload   []byte
	failAfter int
	readBytes int
}

func (f *flakyReader) Read(p []byte) (int, error) {
	if f.readBytes >= f.failAfter {
		return 0, io.ErrUnexpectedEOF
	}
	remaining := f.failAfter - f.readBytes
	if remaining > len(p) {
		remaining = len(p)
	}
	copy(p[:remaining], f.payload[f.readBytes:f.readBytes+remaining])
	f.readBytes += remaining
	return remaining, nil
}
