package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payrail/internal/api"
	"github.com/punchamoorthee/payrail/internal/config"
	"github.com/punchamoorthee/payrail/internal/logging"
	"github.com/punchamoorthee/payrail/internal/metrics"
	"github.com/punchamoorthee/payrail/internal/notify"
	"github.com/punchamoorthee/payrail/internal/scheme"
	"github.com/punchamoorthee/payrail/internal/service"
	"github.com/punchamoorthee/payrail/internal/store"
)

type stores struct {
	accounts store.AccountStore
	ledger   store.LedgerStore
	idem     store.IdempotencyStore
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("unable to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()

	resolver, err := scheme.NewResolver(scheme.DefaultStrategies()...)
	if err != nil {
		logger.Fatal("invalid scheme configuration", zap.Error(err))
	}

	// Ledger first: a failing subscriber after it would leave a record
	// behind a compensated transfer.
	notifier := notify.New(logger,
		notify.NewLedgerWriter(st.ledger),
		notify.NewAuditLog(logger),
	)

	svc := service.NewTransferService(
		st.accounts,
		st.ledger,
		resolver,
		notifier,
		metrics.NewPrometheus(prometheus.DefaultRegisterer),
		logger,
	)
	handler := api.NewHandler(svc, st.idem, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("driver", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store, state is lost on exit")
		return &stores{
			accounts: store.NewMemoryAccounts(),
			ledger:   store.NewMemoryLedger(),
			idem:     store.NewMemoryIdempotency(),
			close:    func() {},
		}, nil
	}

	if cfg.Migrate {
		if err := store.Migrate(cfg.DBSource); err != nil {
			return nil, err
		}
		logger.Info("migrations applied")
	}

	pg, err := store.NewStore(ctx, cfg.DBSource)
	if err != nil {
		return nil, err
	}
	return &stores{
		accounts: pg.Accounts(),
		ledger:   pg.Payments(),
		idem:     pg.Idempotency(),
		close:    pg.Close,
	}, nil
}
