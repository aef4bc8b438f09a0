package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func TestHealthz(t *testing.T) {
	s := NewServer(zerolog.Nop(), prometheus.NewRegistry())
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
}

func TestReadyzReportsFailingCheck(t *testing.T) {
	s := NewServer(zerolog.Nop(), prometheus.NewRegistry())
	s.AddReadyCheck("postgres", func(context.Context) error { return nil })
	s.AddReadyCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ожидали 503, получили %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("ожидали текст ошибки в ответе: %s", rec.Body.String())
	}
}

func TestMetricsServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer(zerolog.Nop(), reg)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "test_total 1") {
		t.Fatalf("ожидали метрику в выводе: %s", rec.Body.String())
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	s := NewServer(zerolog.Nop(), prometheus.NewRegistry())
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}
