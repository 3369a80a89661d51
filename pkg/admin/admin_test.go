package admin

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestServeReadyReflectsCallback(t *testing.T) {
	ready := false
	srv := NewServer("127.0.0.1:0", false, func() bool { return ready }, nil)

	req := httptest.NewRequest("GET", "/ready", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != 503 {
		t.Fatalf("expected 503 before ready, got %d", rec.Code)
	}

	ready = true
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200 once ready, got %d", rec.Code)
	}
}

func TestServeWorkersReportsStatus(t *testing.T) {
	srv := NewServer("127.0.0.1:0", false, nil, func() []WorkerStatus {
		return []WorkerStatus{{Index: 0, Peers: 2, Dataflows: 1}}
	})

	req := httptest.NewRequest("GET", "/workers", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got []WorkerStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 || got[0].Index != 0 || got[0].Peers != 2 || got[0].Dataflows != 1 {
		t.Fatalf("unexpected status payload: %+v", got)
	}
}

func TestServeWorkersUnregisteredWhenStatusNil(t *testing.T) {
	srv := NewServer("127.0.0.1:0", false, nil, nil)

	req := httptest.NewRequest("GET", "/workers", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != 404 {
		t.Fatalf("expected 404 when status is nil, got %d", rec.Code)
	}
}
