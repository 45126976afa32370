package server

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ShutdownSignals are the OS signals that trigger a graceful shutdown.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Serve 在 ln 上运行 app，直到收到 SIGINT/SIGTERM 或 ctx 被取消；随后停止接收
// 新连接，并等待进行中的请求（包括正在写入存储的 PUT）完成，最长等待 timeout。
func Serve(ctx context.Context, app *fiber.App, ln net.Listener, logger *logrus.Logger, timeout time.Duration) error {
	sigCtx, stop := signal.NotifyContext(ctx, ShutdownSignals...)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	})
	g.Go(func() error {
		<-gctx.Done()
		fields := logrus.Fields{
			"action": "shutdown",
			"addr":   ln.Addr().String(),
		}
		if ctx.Err() == nil && sigCtx.Err() != nil {
			fields["reason"] = "signal"
		} else {
			fields["reason"] = "context"
		}
		logger.WithFields(fields).Info("shutting down, draining in-flight requests")

		drainCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := app.ShutdownWithContext(drainCtx)
		// Listener 可能尚未被 Serve 接管，这里直接关闭，保证 Accept 循环退出。
		_ = ln.Close()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	return g.Wait()
}
