// Package api exposes the job registry over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lmevald/lmevald/internal/model"
	"github.com/lmevald/lmevald/internal/service"
)

const (
	maxBodyBytes      = 1 << 20
	readHeaderTimeout = 10 * time.Second
)

// Jobs is implemented by service.Registry.
type Jobs interface {
	Launch(ctx context.Context, cmd service.Command) (int, error)
	Get(id int) (model.JobDetail, error)
	List(ctx context.Context, includeFinished bool) ([]model.JobSummary, error)
	Stop(ctx context.Context, id int) (bool, error)
	Delete(ctx context.Context, id int) error
}

type Config struct {
	// Arguments the job requests are validated against.
	Arguments model.Arguments
	// ToolPath is used when a request does not set lm_eval_path.
	ToolPath string
	// Env is the base environment of every job, request env_vars are
	// merged into it. Defaults to os.Environ().
	Env []string
}

type Server struct {
	jobs Jobs
	cfg  Config
}

func New(jobs Jobs, cfg Config) *Server {
	if cfg.Env == nil {
		cfg.Env = os.Environ()
	}
	return &Server{
		jobs: jobs,
		cfg:  cfg,
	}
}

// Handler returns the routes of the service.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging)
	r.Use(middleware.Recoverer)

	r.Post("/job", s.createJob)
	r.Get("/jobs", s.listJobs)
	r.Get("/job/{id}", s.getJob)
	r.Delete("/job/{id}", s.deleteJob)
	r.Get("/job/{id}/stop", s.stopJob)
	r.Get("/schema", s.schema)
	r.Get("/healthz", healthz)
	return r
}

// ListenAndServe serves until ctx is done, then shuts the server down
// giving in-flight requests shutdownTimeout to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errc := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
