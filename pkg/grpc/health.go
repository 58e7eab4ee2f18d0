package grpc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// WaitServing 輪詢 health service 直到回報 SERVING 或 ctx 結束
//
// 參數:
//
//	ctx: 上下文 (決定最長等待時間)
//	conn: gRPC 連線
//	service: 服務名稱，空字串代表整個 server
//	interval: 輪詢間隔
func WaitServing(ctx context.Context, conn *grpc.ClientConn, service string, interval time.Duration) error {
	client := healthpb.NewHealthClient(conn)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		switch {
		case err != nil:
			lastErr = err
		case resp.GetStatus() == healthpb.HealthCheckResponse_SERVING:
			return nil
		default:
			lastErr = fmt.Errorf("service %q is %s", service, resp.GetStatus())
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %q serving: %w (last: %v)", service, ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}

// LoggingInterceptor 以 zap 記錄每次 unary 呼叫
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		logger.Debug("grpc call",
			zap.String("method", method),
			zap.String("target", cc.Target()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
}
