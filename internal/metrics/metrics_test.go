package metrics_test

import (
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"sima/internal/metrics"
	"sima/internal/service"
)

func TestGatherReflectsPublishedSnapshot(t *testing.T) {
	r := metrics.NewRegistry()
	r.Publish([]service.Info{
		{Name: "web", PID: 123, Running: true},
		{Name: "worker", Running: false},
	})
	r.IncSpawns()
	r.IncSpawns()
	r.IncRestarts()

	out := r.Gather()
	for _, want := range []string{
		`sima_service_up{name="web"} 1`,
		`sima_service_up{name="worker"} 0`,
		`sima_service_pid{name="web"} 123`,
		"sima_services_running 1",
		"sima_spawns_total 2",
		"sima_restarts_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q; got:\n%s", want, out)
		}
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("cannot find a free port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestServerServesMetricsOverHTTP(t *testing.T) {
	r := metrics.NewRegistry()
	r.Publish([]service.Info{{Name: "web", PID: 1, Running: true}})

	addr := freeAddr(t)
	srv := metrics.NewServer(addr, r)
	go srv.ListenAndServe()
	defer srv.Close()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `sima_service_up{name="web"} 1`) {
		t.Errorf("got %s", body)
	}
}
