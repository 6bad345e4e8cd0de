package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lmevald/lmevald/internal/api"
	"github.com/lmevald/lmevald/internal/log"
	"github.com/lmevald/lmevald/internal/model"
	"github.com/lmevald/lmevald/internal/monitor"
	"github.com/lmevald/lmevald/internal/service"
)

// shutdownTimeout bounds both the http shutdown and job termination.
const shutdownTimeout = 10 * time.Second

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attrs := slog.Group("lmevald",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)
	return serve(ctx, config)
}

func serve(ctx context.Context, cfg model.Config) error {
	marker, err := cfg.Tool.Progress()
	if err != nil {
		return err
	}
	env, err := jobEnviron(ctx, cfg.Service)
	if err != nil {
		return err
	}

	registry := service.NewRegistry(service.NewExecLauncher(), marker)
	srv := api.New(registry, api.Config{
		Arguments: cfg.Tool.Args(),
		ToolPath:  cfg.Tool.Path,
		Env:       env,
	})

	var mon *monitor.Monitor
	if cfg.Service.Monitor != nil {
		mon, err = monitor.New(ctx, *cfg.Service.Monitor, registry)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Service.Listen, shutdownTimeout)
	})
	if mon != nil {
		g.Go(func() error {
			return mon.Run(gctx)
		})
	}
	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	closeErr := registry.Close(closeCtx, model.Get(cfg.Service.TerminateOnExit))
	return errors.Join(err, closeErr)
}

// jobEnviron is the environment every job starts with.
func jobEnviron(ctx context.Context, cfg model.Service) ([]string, error) {
	env := os.Environ()
	path := model.Get(cfg.EnvFile)
	if path == "" {
		return env, nil
	}
	fileEnv, err := service.LoadEnvFile(path)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "loaded env file", "path", path, "keys", service.EnvKeys(fileEnv))
	return service.Environ(env, fileEnv), nil
}
