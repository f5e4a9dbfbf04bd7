package observability

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestGRPCHealthServer(t *testing.T) {
	srv, err := NewGRPCHealthServer("127.0.0.1:0", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGRPCHealthServer() failed: %v", err)
	}
	go srv.Serve()
	defer srv.Stop()

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil {
			t.Fatalf("Check() failed: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING before readiness, got %s", got)
	}

	ok := func(context.Context) (bool, error) { return true, nil }
	if !srv.SyncWithChecks(context.Background(), map[string]HealthCheckFunc{"gemini": ok}) {
		t.Fatal("Expected checks to pass")
	}
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %s", got)
	}

	srv.SetServing(false)
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING after SetServing(false), got %s", got)
	}
}
