package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ssd-technologies/nocturne-fleet/internal/mesh"
)

type fakeSnapshotter struct {
	status mesh.ClusterStatus
}

func (f fakeSnapshotter) Snapshot() mesh.ClusterStatus { return f.status }

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := New(fakeSnapshotter{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleStatus_ReturnsSnapshot(t *testing.T) {
	want := mesh.ClusterStatus{Total: 3, Healthy: 2, ClusterHealth: "degraded"}
	s := New(fakeSnapshotter{status: want}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got mesh.ClusterStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.Total != want.Total || got.ClusterHealth != want.ClusterHealth {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRoutes_NoStreamRouteWithoutHub(t *testing.T) {
	s := New(fakeSnapshotter{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/status/stream", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a hub registered, got %d", rec.Code)
	}
}
