package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServer runs an *http.Server as a supervised service.
type HTTPServer struct {
	server          httpServer
	shutdownTimeout time.Duration
}

func NewHTTPServer(server httpServer, shutdownTimeout time.Duration) *HTTPServer {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServer{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServer) String() string {
	return "http-server"
}
