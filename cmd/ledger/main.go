package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	grpc_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	rest_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/rest"
	event_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/event"
	memory_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/internal/config"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
	"github.com/JoeShih716/go-bank-ledger/pkg/postgres"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

func main() {
	cfgPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 儲存層
	store, check, closeStore, err := openStore(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open store", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			zlog.Warn("failed to close store", zap.Error(err))
		}
	}()
	zlog.Info("store ready", zap.String("driver", cfg.Storage.Driver))

	// 4. 事件發布 (commit 後非同步送出)
	opts := []usecase.Option{usecase.WithLogger(zlog)}
	publisher, closePublisher := openPublisher(cfg, zlog)
	var dispatcher *event_adapter.Dispatcher
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	if publisher != nil {
		dispatcher = event_adapter.NewDispatcher(publisher, cfg.Events.QueueSize, cfg.Events.PublishTimeout, zlog)
		dispatcher.Start(dispatchCtx)
		opts = append(opts, usecase.WithPublisher(dispatcher))
		zlog.Info("event publishing enabled", zap.String("driver", cfg.Events.Driver))
	}

	// 5. 初始化 UseCase
	coreUseCase := usecase.NewCoreUseCase(store, usecase.SystemClock{}, opts...)

	// 6. HTTP (Driving Adapter)
	router := rest_adapter.NewRouter(coreUseCase, rest_adapter.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.HTTP.WriteTimeout,
	}, zlog)
	httpServer := rest_adapter.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, zlog)

	errCh := make(chan error, 2)
	go func() {
		errCh <- httpServer.Start()
	}()

	// 7. gRPC health
	var grpcServer *grpc_adapter.Server
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			zlog.Fatal("failed to listen", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
		}
		grpcServer = grpc_adapter.NewServer(check, 0, zlog)
		go func() {
			errCh <- grpcServer.Serve(ctx, lis)
		}()
	}

	// Graceful Shutdown
	select {
	case <-ctx.Done():
		zlog.Info("shutting down server...")
	case err := <-errCh:
		if err != nil {
			zlog.Error("server stopped unexpectedly", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http shutdown", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	// HTTP 停止後不會再有新事件，送完剩下的再關閉 publisher
	stopDispatch()
	if dispatcher != nil {
		dispatcher.Wait()
	}
	closePublisher()

	zlog.Info("server exited")
}

// openStore 依 storage.driver 建立儲存層
//
// 回傳:
//
//	usecase.Store: 儲存層
//	grpc_adapter.Checker: health check 使用
//	func() error: 關閉連線
//	error: 建立失敗
func openStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (usecase.Store, grpc_adapter.Checker, func() error, error) {
	switch cfg.Storage.Driver {
	case config.StorageMySQL:
		client, err := mysql.NewClient(cfg.MySQL, zlog)
		if err != nil {
			return nil, nil, nil, err
		}
		store := mysql_adapter.NewStore(client.DB())
		if cfg.Storage.Migrate {
			if err := store.Migrate(ctx); err != nil {
				_ = client.Close()
				return nil, nil, nil, err
			}
		}
		check := func(ctx context.Context) error {
			sqlDB, err := client.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
		return store, check, client.Close, nil

	case config.StoragePostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres, zlog)
		if err != nil {
			return nil, nil, nil, err
		}
		store := postgres_adapter.NewStore(pool)
		if cfg.Storage.Migrate {
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, nil, err
			}
		}
		closeFn := func() error {
			pool.Close()
			return nil
		}
		return store, pool.Ping, closeFn, nil

	default:
		var w *wal.WAL
		if cfg.Storage.WALPath != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Storage.WALPath), wal.FileModeExecutable); err != nil {
				return nil, nil, nil, err
			}
			var err error
			if w, err = wal.NewWAL(cfg.Storage.WALPath); err != nil {
				return nil, nil, nil, err
			}
		}
		store, err := memory_adapter.NewStore(w)
		if err != nil {
			if w != nil {
				_ = w.Close()
			}
			return nil, nil, nil, err
		}
		return store, nil, store.Close, nil
	}
}

// openPublisher 依 events.driver 建立 publisher，none 時回傳 nil
func openPublisher(cfg *config.Config, zlog *zap.Logger) (usecase.EventPublisher, func()) {
	var publishers event_adapter.MultiPublisher
	var closers []func() error

	if cfg.Events.Driver == config.EventsRedis || cfg.Events.Driver == config.EventsBoth {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Events.Redis.Addr,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
		})
		p := event_adapter.NewRedisPublisher(rdb, cfg.Events.Redis.Channel)
		publishers = append(publishers, p)
		closers = append(closers, p.Close)
	}
	if cfg.Events.Driver == config.EventsKafka || cfg.Events.Driver == config.EventsBoth {
		p := event_adapter.NewKafkaPublisher(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
		publishers = append(publishers, p)
		closers = append(closers, p.Close)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				zlog.Warn("failed to close publisher", zap.Error(err))
			}
		}
	}

	switch len(publishers) {
	case 0:
		return nil, closeAll
	case 1:
		return publishers[0], closeAll
	default:
		return publishers, closeAll
	}
}
