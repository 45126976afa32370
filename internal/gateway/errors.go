package gateway

import (
	"context"
	"errors"
	"io"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cache/internal/storage"
)

var (
	errEmptyKey     = errors.New("cache key required")
	errStoreMissing = errors.New("store missing from request context")
	// errClientAborted 标记读取请求体时出现的错误：客户端中途断开或超过 ReadTimeout。
	errClientAborted = errors.New("client aborted request body")
)

// statusClientClosed 是请求体未能读完时记录的非标准状态码。
const statusClientClosed = 499

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, errEmptyKey), errors.Is(err, storage.ErrInvalidKey):
		return fiber.StatusBadRequest, OutcomeRejected
	case errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound, OutcomeMiss
	case errors.Is(err, storage.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge, OutcomeRejected
	case errors.Is(err, errClientAborted):
		return statusClientClosed, OutcomeRejected
	case errors.Is(err, storage.ErrUnsupported):
		return fiber.StatusNotImplemented, OutcomeError
	case errors.Is(err, storage.ErrTransfer):
		return fiber.StatusBadGateway, OutcomeError
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, OutcomeError
	default:
		return fiber.StatusInternalServerError, OutcomeError
	}
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "invalid_key"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case fiber.StatusNotImplemented:
		return "unsupported"
	case fiber.StatusBadGateway:
		return "storage_transfer_failed"
	case fiber.StatusGatewayTimeout:
		return "storage_timeout"
	case statusClientClosed:
		return "client_closed"
	default:
		return "storage_failed"
	}
}

// clientBody 给请求体的读取错误打上 errClientAborted 标记，使其与后端故障区分开。
type clientBody struct {
	r io.Reader
}

func (b clientBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = errors.Join(errClientAborted, err)
	}
	return n, err
}
