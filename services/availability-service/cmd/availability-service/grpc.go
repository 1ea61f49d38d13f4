package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/servicehomie/platform/libs/grpcx"
	"github.com/servicehomie/platform/libs/runtime"
)

const healthRefreshEvery = 5 * time.Second

// startGrpcServer serves grpc.health.v1, reporting NOT_SERVING while any
// readiness check fails.
func startGrpcServer(ctx context.Context, logger *slog.Logger, port string, checks []runtime.ReadyCheck) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv, hs := grpcx.NewServer(logger)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(healthRefreshEvery)
		defer ticker.Stop()
		for {
			status := healthpb.HealthCheckResponse_SERVING
			if failures := runtime.CheckAll(ctx, checks); len(failures) > 0 {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				logger.Warn("dependency check failed", "failures", failures)
			}
			hs.SetServingStatus("", status)

			select {
			case <-ctx.Done():
				hs.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
			}
		}
	}()

	return nil
}
