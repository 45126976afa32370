package config

import (
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/any-hub/any-cache/internal/storage"
)

// minPartSize 是 S3 multipart 上传允许的最小分块。
const minPartSize = 5 * 1024 * 1024

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if err := validateListenAddr(g.ListenAddr); err != nil {
		return newFieldError("Global.ListenAddr", err.Error())
	}
	if g.MaxBodySize <= 0 {
		return newFieldError("Global.MaxBodySize", "必须大于 0")
	}
	if g.ShutdownTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ShutdownTimeout", "必须大于 0")
	}
	if g.WriteTimeout.DurationValue() < 0 {
		return newFieldError("Global.WriteTimeout", "不能为负数")
	}
	if g.ReadTimeout.DurationValue() < 0 {
		return newFieldError("Global.ReadTimeout", "不能为负数")
	}
	if !lo.Contains(storage.Backends(), g.Storage) {
		return newFieldError("Global.Storage", "仅支持 "+strings.Join(storage.Backends(), "|"))
	}

	switch g.Storage {
	case storage.BackendDisk:
		if strings.TrimSpace(g.StoragePath) == "" {
			return newFieldError("Global.StoragePath", "disk 存储必须指定目录")
		}
	case storage.BackendS3:
		if err := c.S3.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (s S3Config) validate() error {
	if strings.TrimSpace(s.Endpoint) == "" {
		return newFieldError("S3.Endpoint", "不能为空")
	}
	if strings.Contains(s.Endpoint, "://") {
		return newFieldError("S3.Endpoint", "不应包含协议头，请使用 UseSSL 控制")
	}
	if strings.TrimSpace(s.Bucket) == "" {
		return newFieldError("S3.Bucket", "不能为空")
	}
	if (s.AccessKey == "") != (s.SecretKey == "") {
		return newFieldError("S3.AccessKey/SecretKey", "必须同时提供或同时留空")
	}
	if s.PartSize != 0 && s.PartSize < minPartSize {
		return newFieldError("S3.PartSize", "不能小于 5MiB")
	}
	return nil
}

func validateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	value, err := strconv.Atoi(port)
	if err != nil || value < 0 || value > 65535 {
		return errors.New("端口必须在 0-65535")
	}
	return nil
}
