package storage

import (
	"context"
	"errors"
	"io"
)

// Storage 是所有后端共同遵守的契约。key 采用 "<namespace>/<identifier>" 形式，
// 对存储层而言是不透明字符串。
type Storage interface {
	// Get 返回可流式读取的条目，调用方必须 Close。条目不存在时返回 ErrNotFound。
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Set 完整消费 body 后才返回，返回后的 Get/Has 必须可见。key 已存在时
	// 直接成功返回且不修改原值（先写者胜出）。
	Set(ctx context.Context, key string, body io.Reader) error

	// Has 仅检查存在性，后端应使用比 Get 更廉价的探测方式。
	Has(ctx context.Context, key string) (bool, error)

	// Remove 删除条目；不存在时不报错。
	Remove(ctx context.Context, key string) error

	// List 返回所有以 prefix 开头的 key，顺序不保证。
	List(ctx context.Context, prefix string) ([]string, error)

	// Clear 清空全部条目。
	Clear(ctx context.Context) error
}

// HasViaGet 是 Has 的默认实现：打开一次 Get 并立即关闭。
// 没有原生存在性探测的后端可以直接复用。
func HasViaGet(ctx context.Context, s Storage, key string) (bool, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	rc.Close()
	return true, nil
}

func checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
