package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	goredislib "github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/sharedledger/internal/auth"
	"github.com/mmynk/sharedledger/internal/balance"
	"github.com/mmynk/sharedledger/internal/config"
	"github.com/mmynk/sharedledger/internal/events"
	"github.com/mmynk/sharedledger/internal/events/kafka"
	"github.com/mmynk/sharedledger/internal/lock"
	"github.com/mmynk/sharedledger/internal/metrics"
	"github.com/mmynk/sharedledger/internal/middleware"
	"github.com/mmynk/sharedledger/internal/service"
	"github.com/mmynk/sharedledger/internal/settlement"
	"github.com/mmynk/sharedledger/internal/storage"
	"github.com/mmynk/sharedledger/internal/storage/memory"
	"github.com/mmynk/sharedledger/internal/storage/mongostore"
	"github.com/mmynk/sharedledger/internal/storage/sqlite"
	"github.com/mmynk/sharedledger/pkg/api/apiconnect"
	"github.com/mmynk/sharedledger/pkg/logging"
)

const tokenDuration = 24 * time.Hour

func main() {
	logging.Setup()

	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	calculator, err := balance.New(cfg.Currency)
	if err != nil {
		return err
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		client := goredislib.NewClient(&goredislib.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		locker = lock.NewRedis(client, lock.RedisOptionsFor(cfg.SettlementTimeout))
		slog.Info("Using redis settlement lock", "address", cfg.RedisAddr)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer p.Close()
		publisher = p
		slog.Info("Publishing settlement events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	m := metrics.New()
	coordinator := settlement.New(store,
		settlement.WithCalculator(calculator),
		settlement.WithLocker(locker),
		settlement.WithPublisher(publisher),
		settlement.WithMetrics(m),
		settlement.WithMethods(cfg.Methods),
		settlement.WithWindow(cfg.SettlementWindow),
		settlement.WithTimeout(cfg.SettlementTimeout),
	)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, tokenDuration)
	interceptors := connect.WithInterceptors(
		middleware.LoggingInterceptor(),
		middleware.RequireAuth(jwtManager),
	)

	mux := http.NewServeMux()
	membershipPath, membershipHandler := apiconnect.NewMembershipServiceHandler(service.NewMembershipService(store), interceptors)
	mux.Handle(membershipPath, membershipHandler)

	ledgerPath, ledgerHandler := apiconnect.NewLedgerServiceHandler(service.NewLedgerService(store, coordinator, calculator, m), interceptors)
	mux.Handle(ledgerPath, ledgerHandler)

	mux.Handle(cfg.MetricsPath, m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	handler := h2c.NewHandler(middleware.HTTPLogging(middleware.CORS(mux)), &http2.Server{})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.DBDriver {
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		store, err := mongostore.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.DBDriver, "database", cfg.MongoDatabase)
		return store, nil
	case config.DriverMemory:
		slog.Warn("Using in-memory storage; data is lost on exit")
		return memory.New(), nil
	default:
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.DBDriver, "database", cfg.DBPath)
		return store, nil
	}
}
