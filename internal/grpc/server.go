package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/weiawesome/realm-live/pkg/log"
)

// HubServiceName is the health service name that tracks the connection hub.
const HubServiceName = "realm.Hub"

// Server is the ops gRPC endpoint. It serves the standard health protocol for
// the process ("") and for the hub.
type Server struct {
	addr   string
	srv    *grpc.Server
	health *health.Server
}

func NewServer(addr string, logger zerolog.Logger) *Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(log.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(log.StreamServerInterceptor(logger)),
	)
	hs := health.NewServer()
	hs.SetServingStatus(HubServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	return &Server{addr: addr, srv: s, health: hs}
}

// TrackHub reports the hub as serving until hubDone is closed.
func (s *Server) TrackHub(hubDone <-chan struct{}) {
	s.health.SetServingStatus(HubServiceName, healthpb.HealthCheckResponse_SERVING)
	go func() {
		<-hubDone
		s.health.SetServingStatus(HubServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}()
}

// Serve listens on the configured address and serves until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, lis)
}

func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()

	l := log.L()
	l.Info().Str("address", lis.Addr().String()).Msg("ops grpc server listening")
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
