package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// MemoryStore 是进程内易失存储，重启即丢失，适合测试或可接受丢数据的部署。
// 自身的 mu 只保护 map；跨请求的读写串行化由 Guarded 负责。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore 创建空的易失存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	value, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	// value 写入后不再修改，可以直接共享底层切片。
	return io.NopCloser(bytes.NewReader(value)), nil
}

// Set 先完整读入缓冲区再提交，中途失败或取消不会留下任何痕迹。
func (s *MemoryStore) Set(ctx context.Context, key string, body io.Reader) error {
	if err := checkKey(key); err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := copyWithContext(ctx, &buf, body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return nil
	}
	s.data[key] = buf.Bytes()
	return nil
}

func (s *MemoryStore) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.data[key]
	s.mu.RUnlock()
	return ok, nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(lo.Keys(s.data), func(key string, _ int) bool {
		return strings.HasPrefix(key, prefix)
	}), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	clear(s.data)
	s.mu.Unlock()
	return nil
}

// Len 返回当前条目数，供指标与测试使用。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
