package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go-realtime-events/internal/infrastructure/logger"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration // keep 0 for event streams
	IdleTimeout  time.Duration
}

type HTTPServer struct {
	handler http.Handler
	cfg     Config
	logger  logger.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(handler http.Handler, cfg Config, log logger.Logger) *HTTPServer {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	srv := &HTTPServer{
		handler: handler,
		cfg:     cfg,
		logger:  log.WithField("component", "http"),
	}
	return srv
}

// Listen binds the address. Start calls it when it has not been called yet.
func (h *HTTPServer) Listen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return err
	}
	h.ln = ln
	return nil
}

// Addr is the bound address, or the configured one before Listen.
func (h *HTTPServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln != nil {
		return h.ln.Addr().String()
	}
	return h.cfg.Addr
}

func (h *HTTPServer) Start(ctx context.Context) error {
	if err := h.Listen(); err != nil {
		return err
	}

	h.mu.Lock()
	h.srv = &http.Server{
		Handler:      h.handler,
		ReadTimeout:  h.cfg.ReadTimeout,
		WriteTimeout: h.cfg.WriteTimeout,
		IdleTimeout:  h.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	srv, ln := h.srv, h.ln
	h.mu.Unlock()

	h.logger.Infof("listening on %s", ln.Addr())

	var eg errgroup.Group
	eg.Go(func() error {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	srv := h.srv
	h.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
