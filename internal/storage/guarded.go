package storage

import (
	"context"
	"io"
	"sync"
	"time"
)

// Guarded 用一把整库级别的读写锁包装 Storage：读操作共享，写操作独占。
// 网关只通过它访问后端，因此任意 PUT 都会与所有读写串行化（不区分 key）。
type Guarded struct {
	mu           sync.RWMutex
	inner        Storage
	writeTimeout time.Duration
}

// GuardOption 调整 Guarded 的行为。
type GuardOption func(*Guarded)

// WithWriteTimeout 限制一次写操作持有独占锁的最长时间；0 表示不限制。
// 超时后写入以 context.DeadlineExceeded 失败，已读取的部分被丢弃。
func WithWriteTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		g.writeTimeout = d
	}
}

// NewGuarded 包装 inner，inner 此后不应再被直接访问。
func NewGuarded(inner Storage, opts ...GuardOption) *Guarded {
	g := &Guarded{inner: inner}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Get 持有读锁直到返回的 Reader 被 Close，确保流式读取期间不会有写入插入。
func (g *Guarded) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	g.mu.RLock()
	rc, err := g.inner.Get(ctx, key)
	if err != nil {
		g.mu.RUnlock()
		return nil, err
	}
	return &unlockOnClose{ReadCloser: rc, unlock: g.mu.RUnlock}, nil
}

// Set 独占整个存储。配置了写超时时，body 经由管道转发给后端：即使 body 的 Read
// 阻塞且不理会 ctx（例如客户端停止发送），超时一到管道即被关闭，后端写入失败并
// 释放独占锁。Set 会等待转发协程退出后才返回，返回后不再读取 body。
func (g *Guarded) Set(ctx context.Context, key string, body io.Reader) error {
	g.mu.Lock()
	if g.writeTimeout <= 0 {
		defer g.mu.Unlock()
		return g.inner.Set(ctx, key, body)
	}

	ctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		_, err := io.Copy(pw, body)
		pw.CloseWithError(err)
	}()
	stop := context.AfterFunc(ctx, func() {
		pr.CloseWithError(ctx.Err())
	})

	err := g.inner.Set(ctx, key, pr)
	g.mu.Unlock()

	stop()
	// 后端提前返回（已存在、出错）时，转发协程在下一次写管道时退出。
	pr.Close()
	<-forwarded
	return err
}

func (g *Guarded) Has(ctx context.Context, key string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inner.Has(ctx, key)
}

func (g *Guarded) Remove(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Remove(ctx, key)
}

func (g *Guarded) List(ctx context.Context, prefix string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inner.List(ctx, prefix)
}

func (g *Guarded) Clear(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Clear(ctx)
}

// Unwrap 返回被包装的后端，仅用于诊断与测试。
func (g *Guarded) Unwrap() Storage {
	return g.inner
}

type unlockOnClose struct {
	io.ReadCloser
	once   sync.Once
	unlock func()
}

func (u *unlockOnClose) Close() error {
	err := u.ReadCloser.Close()
	u.once.Do(u.unlock)
	return err
}
