package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/metrics"
	"github.com/any-hub/any-cache/internal/storage"
)

// Cache namespaces exposed over HTTP.
const (
	NamespaceAC  = "ac"
	NamespaceCAS = "cas"
)

// Namespaces lists the routed namespaces in registration order.
func Namespaces() []string {
	return []string{NamespaceAC, NamespaceCAS}
}

// CacheRequest is the routed form of `/{namespace}/{key}`.
type CacheRequest struct {
	Namespace string
	Key       string
}

// LogicalKey returns the storage key "namespace/key".
func (r CacheRequest) LogicalKey() string {
	return r.Namespace + "/" + r.Key
}

// CacheHandler translates a routed request into storage operations. It allows
// injecting fake handlers during tests.
type CacheHandler interface {
	Get(fiber.Ctx, *CacheRequest) error
	Put(fiber.Ctx, *CacheRequest) error
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger  *logrus.Logger
	Store   storage.Storage
	Handler CacheHandler
	Metrics *metrics.Recorder
	// MaxBodySize caps request bodies; the handler rejects anything larger.
	MaxBodySize int64
	// ReadTimeout bounds reading one whole request, streamed body included.
	// Zero disables it.
	ReadTimeout time.Duration
}

const (
	contextKeyStore     = "_anycache_store"
	contextKeyRequestID = "_anycache_request_id"
)

// NewApp builds a Fiber application with the ac/ and cas/ routes, request
// context middleware and panic recovery.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("cache handler is required")
	}
	if opts.MaxBodySize <= 0 {
		return nil, errors.New("max body size must be positive")
	}
	if opts.ReadTimeout < 0 {
		return nil, errors.New("read timeout must not be negative")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive:     true,
		StreamRequestBody: true,
		BodyLimit:         bodyLimit(opts.MaxBodySize),
		ReadTimeout:       opts.ReadTimeout,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	if opts.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}

	for _, ns := range Namespaces() {
		ns := ns
		get := func(c fiber.Ctx) error {
			return opts.Handler.Get(c, routeRequest(c, ns))
		}
		// fiber v3 的 Get 不会隐式注册 HEAD，存在性探测需要单独挂载。
		app.Get("/"+ns+"/*", get)
		app.Head("/"+ns+"/*", get)
		app.Put("/"+ns+"/*", func(c fiber.Ctx) error {
			return opts.Handler.Put(c, routeRequest(c, ns))
		})
	}

	return app, nil
}

// requestContextMiddleware 生成请求 ID，并把共享存储实例放入请求上下文，
// 处理器只能通过 StoreFromContext 取得存储，而不是依赖全局变量。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		if !isDiagnosticsPath(c.Path()) {
			c.Locals(contextKeyStore, opts.Store)
		}
		return c.Next()
	}
}

func routeRequest(c fiber.Ctx, ns string) *CacheRequest {
	return &CacheRequest{
		Namespace: ns,
		Key:       strings.TrimPrefix(c.Params("*"), "/"),
	}
}

// StoreFromContext returns the store injected by the request middleware.
func StoreFromContext(c fiber.Ctx) (storage.Storage, bool) {
	if value := c.Locals(contextKeyStore); value != nil {
		if store, ok := value.(storage.Storage); ok {
			return store, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}

// bodyLimit 在流式模式下只决定预读阈值，超过后 fasthttp 改为流式读取；
// 真正的上限由处理器根据 Content-Length 与 LimitReader 执行。
func bodyLimit(max int64) int {
	const maxInt = int(^uint(0) >> 1)
	if max > int64(maxInt) {
		return maxInt
	}
	return int(max)
}
