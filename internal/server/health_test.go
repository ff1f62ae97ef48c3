package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeJSON[map[string]string](t, w.Body)
	if resp["status"] != "ok" {
		t.Errorf("body = %v", resp)
	}
}

func TestReadyAllProbesPass(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &Config{Pingers: []Pinger{
		NamedPinger("qdrant", func(context.Context) error { return nil }),
		NamedPinger("redis", func(context.Context) error { return nil }),
	}})

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON[readyResponse](t, w.Body)
	if !resp.Ready || len(resp.Checks) != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestReadyFailingProbe(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &Config{Pingers: []Pinger{
		NamedPinger("qdrant", func(context.Context) error { return nil }),
		NamedPinger("redis", func(context.Context) error { return errors.New("connection refused") }),
	}})

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	resp := decodeJSON[readyResponse](t, w.Body)
	if resp.Ready {
		t.Error("Ready = true, want false")
	}
	var failed *readyCheck
	for i := range resp.Checks {
		if resp.Checks[i].Name == "redis" {
			failed = &resp.Checks[i]
		}
	}
	if failed == nil || failed.OK || failed.Error != "connection refused" {
		t.Errorf("redis check = %+v", failed)
	}
}

func TestReadyNoPingers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 in liveness-only mode", w.Code)
	}
}
