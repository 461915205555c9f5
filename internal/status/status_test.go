package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tiercache/replica"
)

type fakeSource struct{ pingErr error }

func (fakeSource) ReaderAddr() replica.Addr { return replica.Addr{Host: "127.0.0.1", Port: 6379} }
func (fakeSource) WriterAddr() replica.Addr { return replica.Addr{Host: "10.0.0.1", Port: 6379} }

func (f fakeSource) PingWriter(context.Context) error { return f.pingErr }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLive(t *testing.T) {
	rec := get(t, NewRouter(fakeSource{}, prometheus.NewRegistry()), "/health/live")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestReady(t *testing.T) {
	rec := get(t, NewRouter(fakeSource{}, prometheus.NewRegistry()), "/health/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp readyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Writer != "10.0.0.1:6379" || resp.Reader != "127.0.0.1:6379" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestReadyWriterDown(t *testing.T) {
	rec := get(t, NewRouter(fakeSource{pingErr: errors.New("connection refused")}, prometheus.NewRegistry()), "/health/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("body %s", rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "tiercache_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec := get(t, NewRouter(fakeSource{}, reg), "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "tiercache_test_total 1") {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}
