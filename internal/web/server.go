package web

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/stateintent/internal/config"
	"github.com/hpungsan/stateintent/internal/convert"
)

// shutdownTimeout bounds how long in-flight requests get after a signal.
const shutdownTimeout = 5 * time.Second

// NewServer creates and configures the HTTP server for the conversion API.
func NewServer(conv *convert.Controller, cfg *config.Config, logger *zap.Logger) *http.Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	h := &Handlers{
		conv:   conv,
		logger: logger,
	}
	h.routes(mux)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port),
		Handler:           securityHeaders(requestLogger(logger, mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// routes registers every endpoint using Go 1.22+ pattern syntax.
func (h *Handlers) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("POST /convert", h.HandleConvert)
	mux.HandleFunc("GET /presets", h.HandlePresets)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// Run starts the HTTP server and shuts it down gracefully when ctx is done
// or the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("stateintent API listening", zap.String("addr", "http://"+srv.Addr))
		if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
			logger.Warn("server is binding to all interfaces and may be accessible from the network")
		}
		if err := srv.ListenAndServe(); !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
