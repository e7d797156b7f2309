package api

import (
	"context"
	"fmt"
	"net"

	"cuebook/internal/config"
	"cuebook/internal/domain"
	"cuebook/internal/logging"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer serves read-only availability queries to machine clients.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      *zerolog.Logger
}

func NewGRPCServer(cfg *config.APIConfig, bookings domain.BookingService, tables TableLister, logger *zerolog.Logger) (*GRPCServer, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return nil, fmt.Errorf("grpc listen on port %d: %w", cfg.GRPC.Port, err)
	}
	srv, err := newGRPCServer(cfg, lis, bookings, tables, logger)
	if err != nil {
		_ = lis.Close()
		return nil, err
	}
	return srv, nil
}

func newGRPCServer(
	cfg *config.APIConfig,
	lis net.Listener,
	bookings domain.BookingService,
	tables TableLister,
	logger *zerolog.Logger,
) (*GRPCServer, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	opts, err := serverOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	grpcServer := grpc.NewServer(opts...)
	RegisterAvailabilityServer(grpcServer, NewAvailabilityService(bookings, tables))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(availabilityServiceName, healthpb.HealthCheckResponse_SERVING)

	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	return &GRPCServer{
		server:   grpcServer,
		health:   healthServer,
		listener: lis,
		log:      logging.Component(logger, "grpc"),
	}, nil
}

func serverOptions(cfg *config.APIConfig, logger *zerolog.Logger) ([]grpc.ServerOption, error) {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryUnaryInterceptor(logger),
			LoggingUnaryInterceptor(logger),
			NewAuthInterceptor(cfg).Unary(),
		)),
	}
	if !cfg.GRPC.TLS.Enabled {
		return opts, nil
	}
	creds, err := transportCredentials(cfg.GRPC.TLS)
	if err != nil {
		return nil, err
	}
	return append(opts, grpc.Creds(creds)), nil
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

// Shutdown reports NOT_SERVING, then drains in-flight calls until ctx ends
// and stops hard after that.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	s.health.SetServingStatus(availabilityServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC drain interrupted, stopping")
		s.server.Stop()
	}
}
