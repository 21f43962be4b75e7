package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/1Yie/infinite-brain-sub001/internal/config"
	"github.com/1Yie/infinite-brain-sub001/internal/httpapi"
	"github.com/1Yie/infinite-brain-sub001/internal/hub"
	"github.com/1Yie/infinite-brain-sub001/internal/logging"
	"github.com/1Yie/infinite-brain-sub001/internal/store"
	"github.com/1Yie/infinite-brain-sub001/internal/ws"
)

func main() {
	os.Exit(start())
}

// start returns the exit code so deferred cleanup runs before os.Exit.
func start() int {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("devserver stopped", zap.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Server, logger *zap.Logger) error {
	rooms, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer rooms.Close()

	h := hub.NewHub(ctx, logger.Named("hub"))
	defer h.Shutdown()

	handler := httpapi.SetupRoutes(h, rooms, ws.Options{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ClientBuffer: cfg.ClientBuffer,
	}, logger)
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		h.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(cfg config.Server, logger *zap.Logger) (store.RoomStore, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory room store")
		return store.NewMemory(), nil
	}
	logger.Info("using postgres room store")
	pg, err := store.OpenPostgres(cfg.DatabaseURL, logger.Named("gorm"))
	if err != nil {
		return nil, err
	}
	return pg, nil
}
