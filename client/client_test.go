package client_test

import (
	"io"
	"net"
	"path/filepath"
	"testing"

	"sima/client"
	"sima/internal/wire"
)

// serveOnce accepts a single connection on path, decodes one request,
// and writes back resp.
func serveOnce(t *testing.T, path string, resp wire.Response) {
	t.Helper()
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer l.Close()
		data, _ := io.ReadAll(conn)
		if _, err := wire.DecodeRequest(data); err != nil {
			t.Errorf("server: cannot decode request: %v", err)
		}
		conn.Write(wire.EncodeResponse(resp))
	}()
}

func TestStartReturnsOk(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "sima.sock")
	serveOnce(t, sock, wire.OkResponse())

	c := client.New(sock)
	resp, err := c.Start("web")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if resp.Kind != wire.RespOk {
		t.Errorf("got response kind %v, want RespOk", resp.Kind)
	}
}

func TestStatusReturnsReport(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "sima.sock")
	want := wire.StatusReportResponse([]wire.ServiceInfo{
		{Name: "web", PID: 123, Running: true},
		{Name: "worker", Running: false},
	})
	serveOnce(t, sock, want)

	c := client.New(sock)
	resp, err := c.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(resp.Services) != 2 || resp.Services[0].Name != "web" {
		t.Errorf("got %+v", resp.Services)
	}
}

func TestDoFailsWhenSocketMissing(t *testing.T) {
	c := client.New(filepath.Join(t.TempDir(), "does-not-exist.sock"))
	if _, err := c.Status(); err == nil {
		t.Fatal("Status succeeded, want dial error")
	}
}
