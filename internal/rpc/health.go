package rpc

import (
	"net"

	"cognify/backend/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes the standard gRPC health protocol so orchestration
// platforms can probe the process without speaking HTTP.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	log    *logger.Logger
}

// NewHealthServer creates the gRPC server with health service registered
func NewHealthServer(log *logger.Logger) *HealthServer {
	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	return &HealthServer{server: s, health: h, log: log}
}

// SetServing flips the reported status for the named service. An empty name
// sets the overall server status.
func (s *HealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// Serve listens on the given port and blocks until the server stops
func (s *HealthServer) Serve(port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	s.log.Info("gRPC health server listening", "port", port)
	return s.server.Serve(lis)
}

// Stop gracefully stops the server
func (s *HealthServer) Stop() {
	s.server.GracefulStop()
}
