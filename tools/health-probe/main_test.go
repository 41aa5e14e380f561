package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/dockslots/libs/grpcx"
)

func TestProbeHTTP(t *testing.T) {
	ready := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !ready {
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if err := probeHTTP(context.Background(), srv.URL); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
	ready = false
	err := probeHTTP(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected 503 error, got %v", err)
	}
}

func TestProbeGRPC(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := grpcx.NewServer()
	srv.Serve(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), lis, "dockslots.availability")

	if err := probeGRPC(ctx, lis.Addr().String(), "dockslots.availability"); err != nil {
		t.Fatalf("expected SERVING, got %v", err)
	}
	srv.SetServing(false, "dockslots.availability")
	if err := probeGRPC(ctx, lis.Addr().String(), "dockslots.availability"); err == nil {
		t.Fatal("expected failure when not serving")
	}
}
