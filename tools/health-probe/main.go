package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/dockslots/libs/grpcx"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// health-probe exits 0 only when the gRPC health service reports SERVING
// and, if -http is set, /readyz answers 200.
func main() {
	var (
		grpcAddr = flag.String("grpc", getenv("GRPC_ADDR", "localhost:9095"), "gRPC address")
		service  = flag.String("service", getenv("HEALTH_SERVICE", ""), "health service name; empty checks the whole server")
		httpURL  = flag.String("http", getenv("READY_URL", ""), "optional readiness URL, e.g. http://localhost:8085/readyz")
		timeout  = flag.Duration("timeout", 3*time.Second, "overall timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := probeGRPC(ctx, *grpcAddr, *service); err != nil {
		fatal(err.Error())
	}
	if strings.TrimSpace(*httpURL) != "" {
		if err := probeHTTP(ctx, *httpURL); err != nil {
			fatal(err.Error())
		}
	}
	fmt.Println("ok")
}

func probeGRPC(ctx context.Context, addr, service string) error {
	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{})
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	status, err := grpcx.CheckHealth(ctx, conn, service)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("grpc status %s", status)
	}
	return nil
}

func probeHTTP(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("readyz returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
