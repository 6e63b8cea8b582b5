// Package health serves /live and /ready probes on a local HTTP port.
package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/heptiolabs/healthcheck"

	logx "mailpost/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8086"

type Server struct {
	log   logx.Logger
	addr  string
	ready atomic.Bool
	srv   *http.Server
}

func NewServer(addr string, log logx.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{log: log, addr: addr}
}

// SetReady flips the readiness gate, telling probes the bot is polling.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

// Run serves the probe endpoints until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))
	h.AddReadinessCheck("transport", func() error {
		if !s.ready.Load() {
			return errors.New("transport not started")
		}
		return nil
	})

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	s.log.Info("health endpoint listening", logx.String("addr", s.addr))

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
