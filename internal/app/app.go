// Package app wires the storage backend, the URL service and the HTTP server
// together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"golang.org/x/sync/errgroup"

	api "github.com/vadimbarashkov/keyurl/internal/api/http"
	"github.com/vadimbarashkov/keyurl/internal/config"
	"github.com/vadimbarashkov/keyurl/internal/service"
	"github.com/vadimbarashkov/keyurl/internal/storage"
	"github.com/vadimbarashkov/keyurl/internal/storage/memory"
	"github.com/vadimbarashkov/keyurl/internal/storage/redis"
	"github.com/vadimbarashkov/keyurl/internal/sweeper"
)

// Run starts the application and blocks until ctx is cancelled or a fatal
// error occurs.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := httplog.NewLogger("keyurl", httplog.Options{
		JSON:    cfg.Env == config.EnvProd,
		Concise: true,
		Tags: map[string]string{
			"env": cfg.Env,
		},
	})

	var kv storage.KV

	switch cfg.Storage.Backend {
	case config.BackendRedis:
		st, err := redis.New(ctx, cfg.Redis.Addr(),
			redis.WithPassword(cfg.Redis.Password),
			redis.WithDB(cfg.Redis.DB),
			redis.WithPoolSize(cfg.Redis.PoolSize),
			redis.WithMinIdleConns(cfg.Redis.MinIdleConns),
		)
		if err != nil {
			return fmt.Errorf("%s: failed to connect to storage: %w", op, err)
		}
		defer st.Close()

		kv = st
	case config.BackendMemory:
		kv = memory.New()
	default:
		return fmt.Errorf("%s: unknown storage backend: %q", op, cfg.Storage.Backend)
	}

	urlSvc := service.NewURLService(kv, logger.Logger, cfg.SlugLength)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        api.NewRouter(logger, urlSvc, cfg.SlugLength),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(urlSvc, logger.Logger, cfg.Sweeper.IdleTTL, cfg.Sweeper.Interval)

		g.Go(func() error {
			return sw.Run(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
