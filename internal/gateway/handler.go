package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/logging"
	"github.com/any-hub/any-cache/internal/metrics"
	"github.com/any-hub/any-cache/internal/server"
	"github.com/any-hub/any-cache/internal/storage"
)

// Outcome labels used in logs and metrics.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeCreated  = "created"
	OutcomeExists   = "exists"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// existingStatus 决定 PUT 命中已有条目时返回的状态码：ac 返回 202（已接受、
// 未修改），cas 返回 201（内容寻址，重复写入视同创建成功）。
var existingStatus = map[string]int{
	server.NamespaceAC:  fiber.StatusAccepted,
	server.NamespaceCAS: fiber.StatusCreated,
}

// Handler 把 {ac,cas} × {GET,PUT} 请求翻译成对共享存储的 get/has/set 调用，
// 请求体与响应体都以流的方式传递。
type Handler struct {
	logger  *logrus.Logger
	metrics *metrics.Recorder
	maxBody int64
}

// NewHandler constructs a gateway handler. maxBody <= 0 disables the size cap.
func NewHandler(logger *logrus.Logger, recorder *metrics.Recorder, maxBody int64) *Handler {
	return &Handler{
		logger:  logger,
		metrics: recorder,
		maxBody: maxBody,
	}
}

// Get 流式返回条目；不存在时返回 404 且响应体为空。
func (h *Handler) Get(c fiber.Ctx, req *server.CacheRequest) error {
	started := time.Now()
	store, err := h.prepare(c, req)
	if err != nil {
		return h.fail(c, req, started, err)
	}

	rc, err := store.Get(requestContext(c), req.LogicalKey())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.finish(c, req, started, fiber.StatusNotFound, OutcomeMiss, 0, nil)
			c.Status(fiber.StatusNotFound)
			return nil
		}
		return h.fail(c, req, started, err)
	}

	// HEAD 与 GET 共用处理器；HEAD 不写正文，必须立即关闭以释放读锁。
	if c.Method() == fiber.MethodHead {
		rc.Close()
		c.Status(fiber.StatusOK)
		h.finish(c, req, started, fiber.StatusOK, OutcomeHit, 0, nil)
		return nil
	}

	// 读锁随 rc 一起释放：fasthttp 写完响应后会关闭实现了 io.Closer 的 body 流。
	body := &countingReadCloser{ReadCloser: rc, onClose: func(n int64) {
		h.metrics.AddBytes(req.Namespace, metrics.DirectionOut, n)
	}}
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	c.Status(fiber.StatusOK)
	h.finish(c, req, started, fiber.StatusOK, OutcomeHit, -1, nil)
	return c.SendStream(body)
}

// drainLimit 是响应前为复用连接而丢弃的剩余请求体上限，超出时改为关闭连接。
const drainLimit = 256 << 10

// Put 先以 has 探测是否已存在；已存在时不写入并返回命名空间约定的状态码，
// 否则把请求体直接流入 set，完成后返回 201。
func (h *Handler) Put(c fiber.Ctx, req *server.CacheRequest) error {
	started := time.Now()
	defer discardBody(c)
	store, err := h.prepare(c, req)
	if err != nil {
		return h.fail(c, req, started, err)
	}

	if h.maxBody > 0 && int64(c.Request().Header.ContentLength()) > h.maxBody {
		return h.fail(c, req, started, storage.ErrTooLarge)
	}

	ctx := requestContext(c)
	exists, err := store.Has(ctx, req.LogicalKey())
	if err != nil {
		return h.fail(c, req, started, err)
	}
	if exists {
		status := existingStatus[req.Namespace]
		h.finish(c, req, started, status, OutcomeExists, 0, nil)
		c.Status(status)
		return nil
	}

	body := &countingReader{r: storage.LimitReader(clientBody{r: requestBody(c)}, h.maxBody)}
	if err := store.Set(ctx, req.LogicalKey(), body); err != nil {
		return h.fail(c, req, started, err)
	}
	h.metrics.AddBytes(req.Namespace, metrics.DirectionIn, body.n)
	h.finish(c, req, started, fiber.StatusCreated, OutcomeCreated, body.n, nil)
	c.Status(fiber.StatusCreated)
	return nil
}

func (h *Handler) prepare(c fiber.Ctx, req *server.CacheRequest) (storage.Storage, error) {
	if req == nil || req.Key == "" {
		return nil, errEmptyKey
	}
	store, ok := server.StoreFromContext(c)
	if !ok {
		return nil, errStoreMissing
	}
	return store, nil
}

// fail 把存储层错误映射为 HTTP 状态，绝不让后端错误终止进程。
func (h *Handler) fail(c fiber.Ctx, req *server.CacheRequest, started time.Time, err error) error {
	status, outcome := statusForError(err)
	h.finish(c, req, started, status, outcome, 0, err)
	return c.Status(status).JSON(fiber.Map{"error": errorCode(status)})
}

func (h *Handler) finish(c fiber.Ctx, req *server.CacheRequest, started time.Time, status int, outcome string, size int64, err error) {
	elapsed := time.Since(started)
	ns, key := "", ""
	if req != nil {
		ns, key = req.Namespace, req.Key
	}
	h.metrics.Observe(ns, c.Method(), outcome, elapsed)

	fields := logging.RequestFields(server.RequestID(c), ns, key, c.Method())
	fields["status"] = status
	fields["outcome"] = outcome
	fields["elapsed_ms"] = elapsed.Milliseconds()
	if size >= 0 {
		fields["bytes"] = size
	}
	if err != nil {
		fields["error"] = err.Error()
		if status >= fiber.StatusInternalServerError {
			h.logger.WithFields(fields).Error("cache_request_failed")
			return
		}
		h.logger.WithFields(fields).Warn("cache_request_rejected")
		return
	}
	h.logger.WithFields(fields).Info("cache_request_complete")
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// requestBody 优先使用 fasthttp 的流式请求体，未启用流式时退回已读入的 body。
func requestBody(c fiber.Ctx) io.Reader {
	if stream := c.Request().BodyStream(); stream != nil {
		return stream
	}
	return bytes.NewReader(c.Body())
}

// discardBody 读掉未消费的请求体，避免残余字节在长连接上被当作下一个请求解析；
// 剩余过多或读取出错时标记 Connection: close。
func discardBody(c fiber.Ctx) {
	stream := c.Request().BodyStream()
	if stream == nil {
		return
	}
	n, err := io.CopyN(io.Discard, stream, drainLimit+1)
	if errors.Is(err, io.EOF) && n <= drainLimit {
		return
	}
	c.Response().Header.SetConnectionClose()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type countingReadCloser struct {
	io.ReadCloser
	n       int64
	onClose func(int64)
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReadCloser) Close() error {
	err := c.ReadCloser.Close()
	if c.onClose != nil {
		c.onClose(c.n)
		c.onClose = nil
	}
	return err
}
