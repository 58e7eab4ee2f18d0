package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName health check 回報的服務名稱
const ServiceName = "bank.ledger.v1.Ledger"

// Checker 檢查儲存層是否可用
type Checker func(ctx context.Context) error

// Server gRPC health server
//
// 定期執行 Checker，依結果切換 SERVING / NOT_SERVING，
// 讓 orchestrator 可以用 gRPC health check 判斷帳本是否可用。
type Server struct {
	srv      *gogrpc.Server
	health   *health.Server
	check    Checker
	interval time.Duration
	logger   *zap.Logger
}

// NewServer 建立 gRPC Server 並註冊 health 與 reflection
//
// 參數:
//
//	check: 儲存層檢查，nil 表示永遠 SERVING
//	interval: 檢查間隔
//	logger: 狀態變化時記錄
func NewServer(check Checker, interval time.Duration, logger *zap.Logger) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &Server{
		srv:      gogrpc.NewServer(),
		health:   health.NewServer(),
		check:    check,
		interval: interval,
		logger:   logger,
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	reflection.Register(s.srv) // 方便 grpcurl 等工具測試
	return s
}

// Serve 阻塞直到 server 停止，ctx 結束時停止健康檢查迴圈
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.refresh(ctx)
	go s.watch(ctx)

	s.logger.Info("starting grpc server", zap.String("addr", lis.Addr().String()))
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, gogrpc.ErrServerStopped) {
		return err
	}
	return nil
}

// GracefulStop 先回報 NOT_SERVING 再停止
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh 執行一次檢查並更新狀態
func (s *Server) refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		checkCtx, cancel := context.WithTimeout(ctx, s.interval)
		err := s.check(checkCtx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.logger.Warn("storage health check failed", zap.Error(err))
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}
