package storage

import (
	"context"
	"fmt"
	"strings"
)

// 支持的后端类型。
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendS3     = "s3"
)

// Backends 列出可在配置中选择的后端名称。
func Backends() []string {
	return []string{BackendMemory, BackendDisk, BackendS3}
}

// Options 描述如何构建存储后端。
type Options struct {
	Backend string
	Path    string
	S3      MinioOptions
}

// Open 根据 Options 构建后端；失败属于启动期配置错误，调用方应直接退出。
func Open(ctx context.Context, opts Options) (Storage, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendDisk:
		return NewDiskStore(nil, opts.Path)
	case BackendS3:
		client, err := NewMinioClient(ctx, opts.S3)
		if err != nil {
			return nil, err
		}
		return NewRemoteStore(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
