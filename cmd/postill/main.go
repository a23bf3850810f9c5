// Package main запускает HTTP-сервер кассы.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/pos-till/internal/balance"
	"github.com/mmeshcher/pos-till/internal/config"
	"github.com/mmeshcher/pos-till/internal/handler"
	"github.com/mmeshcher/pos-till/internal/ledger"
	"github.com/mmeshcher/pos-till/internal/repository"
	"github.com/mmeshcher/pos-till/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.Open(cfg.StoreDriver, cfg.DatabaseURI, cfg.SQLitePath)
	if err != nil {
		sugar.Fatalw("store initialization error", "driver", cfg.StoreDriver, "error", err.Error())
	}

	shift := ledger.New(repo, logger.Named("ledger"),
		ledger.WithLocation(cfg.Location()),
		ledger.WithCountCeiling(cfg.DrawerCountCeiling),
	)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	notice := shift.Recover(startupCtx)
	cancelStartup()
	if notice.Restored {
		sugar.Infow("open shift restored after restart",
			"openedAt", notice.OpenedAt,
			"accumulatedSales", notice.AccumulatedSales,
		)
	}

	svc := service.NewService(repo, shift, logger.Named("service"))
	defer svc.Close()

	agg := balance.NewAggregator(repo, logger.Named("balance"), cfg.Location())

	h := handler.NewHandler(shift, svc, agg, logger, cfg.HistoryLimit, cfg.Location())

	r := h.SetupRouter(cfg.CORSOrigins)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting till server", "addr", cfg.RunAddress, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		if state := shift.State(); state.Active {
			sugar.Infow("server stopped with open shift", "openedAt", state.OpenedAt, "accumulatedSales", state.AccumulatedSales)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
