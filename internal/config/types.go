package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"

	"github.com/any-hub/any-cache/internal/storage"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// ByteSize 表示字节数，支持 "1GiB"、"512MB" 或纯整数写法。
type ByteSize int64

// UnmarshalText 使用 go-units 解析二进制单位（KiB/MiB/GiB，K/M/G 同样按 1024 计）。
func (b *ByteSize) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*b = 0
		return nil
	}
	if intVal, err := parseInt(raw); err == nil {
		*b = ByteSize(intVal)
		return nil
	}
	parsed, err := units.RAMInBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid byte size value: %s", raw)
	}
	*b = ByteSize(parsed)
	return nil
}

// Int64 返回字节数。
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// String 以人类可读的二进制单位输出，便于日志。
func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数。
type GlobalConfig struct {
	ListenAddr      string   `mapstructure:"ListenAddr"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	MaxBodySize     ByteSize `mapstructure:"MaxBodySize"`
	ShutdownTimeout Duration `mapstructure:"ShutdownTimeout"`
	WriteTimeout    Duration `mapstructure:"WriteTimeout"`
	ReadTimeout     Duration `mapstructure:"ReadTimeout"`
	Storage         string   `mapstructure:"Storage"`
	StoragePath     string   `mapstructure:"StoragePath"`
}

// S3Config 描述远端对象存储的连接方式，凭证通常来自 .env 或环境变量。
type S3Config struct {
	Endpoint     string   `mapstructure:"Endpoint"`
	Region       string   `mapstructure:"Region"`
	Bucket       string   `mapstructure:"Bucket"`
	AccessKey    string   `mapstructure:"AccessKey"`
	SecretKey    string   `mapstructure:"SecretKey"`
	UseSSL       bool     `mapstructure:"UseSSL"`
	PathStyle    bool     `mapstructure:"PathStyle"`
	PartSize     ByteSize `mapstructure:"PartSize"`
	CreateBucket bool     `mapstructure:"CreateBucket"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	S3     S3Config     `mapstructure:"S3"`
}

// HasCredentials 表示是否配置了完整的静态凭证。
func (s S3Config) HasCredentials() bool {
	return s.AccessKey != "" && s.SecretKey != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (s S3Config) AuthMode() string {
	if s.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// StorageOptions 将配置转换为 storage.Open 所需的参数。
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend: c.Global.Storage,
		Path:    c.Global.StoragePath,
		S3: storage.MinioOptions{
			Endpoint:     c.S3.Endpoint,
			Region:       c.S3.Region,
			Bucket:       c.S3.Bucket,
			AccessKey:    c.S3.AccessKey,
			SecretKey:    c.S3.SecretKey,
			UseSSL:       c.S3.UseSSL,
			PathStyle:    c.S3.PathStyle,
			PartSize:     uint64(c.S3.PartSize.Int64()),
			CreateBucket: c.S3.CreateBucket,
		},
	}
}
