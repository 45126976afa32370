package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ObjectClient 是 RemoteStore 依赖的最小对象存储能力，key 已经是物理 key。
// 生产环境由 MinioClient 实现，测试中可以替换为内存实现。
type ObjectClient interface {
	// GetObject 打开对象读流；对象不存在时返回 ErrNotFound。
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	// StatObject 只读取元数据判断对象是否存在，不传输正文。
	StatObject(ctx context.Context, key string) (bool, error)
	// PutObject 以未知长度流式上传 body，上传未完成时对象不可见。
	PutObject(ctx context.Context, key string, body io.Reader) error
}

// RemoteStore 把逻辑 key 经 BalanceKey 改写后委托给远端对象存储，读写两个方向
// 都按块转发，不会把整个对象缓存在内存里。
type RemoteStore struct {
	client ObjectClient
}

// NewRemoteStore 基于已构建好的 ObjectClient 创建远端存储。
func NewRemoteStore(client ObjectClient) *RemoteStore {
	return &RemoteStore{client: client}
}

func (s *RemoteStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	physical, err := physicalKey(key)
	if err != nil {
		return nil, err
	}
	rc, err := s.client.GetObject(ctx, physical)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapErr(ErrTransfer, err)
	}
	return &transferReadCloser{rc: rc, key: physical}, nil
}

// Set 先探测对象是否存在以保持先写者胜出，再把 body 流式写入同一个物理 key。
func (s *RemoteStore) Set(ctx context.Context, key string, body io.Reader) error {
	physical, err := physicalKey(key)
	if err != nil {
		return err
	}
	exists, err := s.client.StatObject(ctx, physical)
	if err != nil {
		return wrapErr(ErrTransfer, err)
	}
	if exists {
		return nil
	}

	src := &sourceReader{r: &contextReader{ctx: ctx, r: body}}
	if err := s.client.PutObject(ctx, physical, src); err != nil {
		// 上游 body 自身出错（客户端断开、超出大小）时返回原始错误，而不是传输错误。
		if src.err != nil {
			return src.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return wrapErr(ErrTransfer, err)
	}
	return nil
}

func (s *RemoteStore) Has(ctx context.Context, key string) (bool, error) {
	physical, err := physicalKey(key)
	if err != nil {
		return false, err
	}
	exists, err := s.client.StatObject(ctx, physical)
	if err != nil {
		return false, wrapErr(ErrTransfer, err)
	}
	return exists, nil
}

func (s *RemoteStore) Remove(_ context.Context, key string) error {
	return wrapf(ErrUnsupported, "remote store: remove %q", key)
}

func (s *RemoteStore) List(_ context.Context, prefix string) ([]string, error) {
	return nil, wrapf(ErrUnsupported, "remote store: list %q", prefix)
}

func (s *RemoteStore) Clear(_ context.Context) error {
	return wrapf(ErrUnsupported, "remote store: clear")
}

func physicalKey(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	if strings.HasSuffix(key, "/") {
		return "", wrapf(ErrInvalidKey, "key %q has no trailing identifier", key)
	}
	return BalanceKey(key), nil
}

// sourceReader 记录源 Reader 返回的第一个非 EOF 错误，用于区分是客户端
// 还是远端导致上传失败。
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && s.err == nil {
		s.err = err
	}
	return n, err
}
