package graceful

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cryptogate/gateway_service/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// CloseFunc releases one component
type CloseFunc func(ctx context.Context) error

type component struct {
	name  string
	close CloseFunc
}

// ShutdownManager stops the HTTP server and then every registered
// component in reverse registration order
type ShutdownManager struct {
	server     *http.Server
	components []component
	timeout    time.Duration
	logger     *logger.Logger
}

func NewShutdownManager(server *http.Server, timeout time.Duration, logger *logger.Logger) *ShutdownManager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ShutdownManager{server: server, timeout: timeout, logger: logger}
}

// Register adds a component. Register dependencies before their users so
// they are closed after them.
func (sm *ShutdownManager) Register(name string, fn CloseFunc) {
	sm.components = append(sm.components, component{name: name, close: fn})
}

// WaitForShutdown blocks until SIGINT or SIGTERM and then shuts down
func (sm *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	sm.logger.Info("Shutting down gracefully...", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()
	sm.Shutdown(ctx)
}

// Shutdown runs the shutdown sequence within ctx
func (sm *ShutdownManager) Shutdown(ctx context.Context) {
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.Error("Server forced shutdown", "error", err)
		}
	}

	for i := len(sm.components) - 1; i >= 0; i-- {
		c := sm.components[i]
		if err := c.close(ctx); err != nil {
			sm.logger.Warn("Component shutdown error", "component", c.name, "error", err)
		}
	}

	sm.logger.Info("Shutdown complete")
}
