package storage

import (
	"context"
	"errors"
	"io"
)

// copyWithContext 按 32KiB 分块拷贝，每块之间检查 ctx，客户端断开时尽早停止。
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}

// contextReader 让不感知 ctx 的 Reader 在 ctx 结束后返回错误。
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// LimitReader 返回一个最多读取 max 字节的 Reader；源数据超过 max 时返回
// ErrTooLarge 而不是静默截断。max <= 0 表示不限制。
func LimitReader(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return &limitedReader{r: r, remaining: max}
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	// 多读 1 字节用于判断是否越界。
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n + int(l.remaining), ErrTooLarge
	}
	return n, err
}

// transferReadCloser 将远端读流中的非 EOF 错误标记为 ErrTransfer。
type transferReadCloser struct {
	rc  io.ReadCloser
	key string
}

func (t *transferReadCloser) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, wrapf(ErrTransfer, "read %s: %w", t.key, err)
	}
	return n, err
}

func (t *transferReadCloser) Close() error {
	return t.rc.Close()
}
