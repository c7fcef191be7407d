package httpx

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	logx "alertbot/pkg/logx"
)

func TestServeAndShutdown(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("pong")) })
	srv := NewServer(Options{Name: "test", Addr: ln.Addr().String()}, h, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(b) != "pong" {
		t.Fatalf("body = %q", b)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestListenAndServeBadAddr(t *testing.T) {
	t.Parallel()
	srv := NewServer(Options{Addr: "256.0.0.1:bad"}, http.NotFoundHandler(), logx.Nop())
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}
