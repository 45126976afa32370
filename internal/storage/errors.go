package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示条目不存在。
	ErrNotFound = errors.New("cache entry not found")

	// ErrUnsupported 表示后端未实现该操作（例如远端存储的 Remove/List/Clear）。
	ErrUnsupported = errors.New("operation not supported by backend")

	// ErrTransfer 表示与远端存储之间的分块传输失败，流被中止而不是被截断。
	ErrTransfer = errors.New("transfer failed")

	// ErrTooLarge 表示请求体超过配置的上限。
	ErrTooLarge = errors.New("payload exceeds size limit")

	// ErrInvalidKey 表示 key 为空或无法映射到后端路径。
	ErrInvalidKey = errors.New("invalid cache key")
)

// wrapf 将哨兵错误与具体原因合并，调用方可通过 errors.Is 判断类别。
func wrapf(base error, format string, args ...any) error {
	return errors.Join(base, fmt.Errorf(format, args...))
}

// wrapErr 与 wrapf 类似，但 err 已属于 base 类别时原样返回。
func wrapErr(base, err error) error {
	if err == nil || errors.Is(err, base) {
		return err
	}
	return errors.Join(base, err)
}
