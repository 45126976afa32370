package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestRemoteStoreRoundTripUsesBalancedKeys(t *testing.T) {
	client := newFakeObjectClient()
	store := NewRemoteStore(client)
	ctx := context.Background()

	if err := store.Set(ctx, "cas/ab12ef", strings.NewReader("hello")); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if _, ok := client.object("cas/ab/ab12ef"); !ok {
		t.Fatalf("expected physical key cas/ab/ab12ef, have %v", client.keys())
	}
	if got := string(readKey(t, store, "cas/ab12ef")); got != "hello" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestRemoteStoreWriteOnce(t *testing.T) {
	client := newFakeObjectClient()
	store := NewRemoteStore(client)
	ctx := context.Background()

	_ = store.Set(ctx, "ac/x1", strings.NewReader("r1"))
	if err := store.Set(ctx, "ac/x1", strings.NewReader("r2")); err != nil {
		t.Fatalf("duplicate set should succeed, got %v", err)
	}
	if got := string(readKey(t, store, "ac/x1")); got != "r1" {
		t.Fatalf("expected r1, got %q", got)
	}
	if client.puts != 1 {
		t.Fatalf("expected a single upload, got %d", client.puts)
	}
}

func TestRemoteStoreHasUsesObjectMetadata(t *testing.T) {
	client := newFakeObjectClient()
	store := NewRemoteStore(client)
	ctx := context.Background()
	_ = store.Set(ctx, "cas/cafe", strings.NewReader("blob"))
	client.gets = 0

	ok, err := store.Has(ctx, "cas/cafe")
	if err != nil || !ok {
		t.Fatalf("expected has=true, got %v (err=%v)", ok, err)
	}
	ok, err = store.Has(ctx, "cas/beef")
	if err != nil || ok {
		t.Fatalf("expected has=false, got %v (err=%v)", ok, err)
	}
	if client.gets != 0 {
		t.Fatalf("has must not transfer payloads, saw %d gets", client.gets)
	}
}

func TestRemoteStoreGetMissing(t *testing.T) {
	store := NewRemoteStore(newFakeObjectClient())
	if _, err := store.Get(context.Background(), "ac/missing-key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoteStoreSharedShardDistinctEntries(t *testing.T) {
	client := newFakeObjectClient()
	store := NewRemoteStore(client)
	ctx := context.Background()

	_ = store.Set(ctx, "cas/ab0001", strings.NewReader("one"))
	_ = store.Set(ctx, "cas/ab0002", strings.NewReader("two"))

	if got := string(readKey(t, store, "cas/ab0001")); got != "one" {
		t.Fatalf("unexpected payload %q", got)
	}
	if got := string(readKey(t, store, "cas/ab0002")); got != "two" {
		t.Fatalf("unexpected payload %q", got)
	}
	for _, key := range client.keys() {
		if !strings.HasPrefix(key, "cas/ab/") {
			t.Fatalf("expected both objects under cas/ab/, found %s", key)
		}
	}
}

func TestRemoteStoreReadFailureIsTransferError(t *testing.T) {
	client := newFakeObjectClient()
	store := NewRemoteStore(client)
	ctx := context.Background()
	_ = store.Set(ctx, "cas/feed", bytes.NewReader(bytes.Repeat([]byte("x"), 1024)))
	client.failReadAfter = 100

	rc, err := store.Get(ctx, "cas/feed")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if !errors.Is(err, ErrTransfer) {
		t.Fatalf("expected ErrTransfer, got %v", err)
	}
	if len(body) >= 1024 {
		t.Fatalf("stream should have been aborted")
	}
}

func TestRemoteStoreUploadFailureIsTransferError(t *testing.T) {
	client := newFakeObjectClient()
	client.putErr = errors.New("connection reset by peer")
	store := NewRemoteStore(client)

	err := store.Set(context.Background(), "cas/dead", strings.NewReader("payload"))
	if !errors.Is(err, ErrTransfer) {
		t.Fatalf("expected ErrTransfer, got %v", err)
	}
}

func TestRemoteStoreInterruptedUploadNeverVisible(t *testing.T) {
	client := newFakeObjectClient()
	store := NewRemoteStore(client)
	ctx := context.Background()

	reader := &flakyReader{payload: []byte("partial_data"), failAfter: 5}
	err := store.Set(ctx, "cas/partial", reader)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected the client-side error, got %v", err)
	}
	if errors.Is(err, ErrTransfer) {
		t.Fatalf("client-side failure must not be reported as a transfer error")
	}
	if ok, _ := store.Has(ctx, "cas/partial"); ok {
		t.Fatalf("partial upload must not be visible")
	}
}

func TestRemoteStoreUnsupportedOperations(t *testing.T) {
	store := NewRemoteStore(newFakeObjectClient())
	ctx := context.Background()

	if err := store.Remove(ctx, "cas/ab"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("remove: expected ErrUnsupported, got %v", err)
	}
	if keys, err := store.List(ctx, "cas/"); !errors.Is(err, ErrUnsupported) || keys != nil {
		t.Fatalf("list: expected ErrUnsupported, got %v (%v)", err, keys)
	}
	if err := store.Clear(ctx); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("clear: expected ErrUnsupported, got %v", err)
	}
}

func TestRemoteStoreRejectsKeysWithoutIdentifier(t *testing.T) {
	store := NewRemoteStore(newFakeObjectClient())
	if err := store.Set(context.Background(), "cas/", strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

// fakeObjectClient 模拟先暂存、上传完成后再提交的对象存储。
type fakeObjectClient struct {
	mu      sync.Mutex
	objects map[string][]byte

	gets          int
	puts          int
	putErr        error
	failReadAfter int
}

func newFakeObjectClient() *fakeObjectClient {
	return &fakeObjectClient{objects: make(map[string][]byte)}
}

func (f *fakeObjectClient) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	data, ok := f.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	var r io.Reader = bytes.NewReader(data)
	if f.failReadAfter > 0 {
		r = io.MultiReader(io.LimitReader(r, int64(f.failReadAfter)), errReader{errors.New("unexpected EOF from remote")})
	}
	return io.NopCloser(r), nil
}

func (f *fakeObjectClient) StatObject(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeObjectClient) PutObject(ctx context.Context, key string, body io.Reader) error {
	if f.putErr != nil {
		return f.putErr
	}
	staged, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.objects[key] = staged
	return nil
}

func (f *fakeObjectClient) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

func (f *fakeObjectClient) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	return keys
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
