package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AidanWarner97/server-watcher/internal/domain"
	apimw "github.com/AidanWarner97/server-watcher/internal/httpapi/middleware"
	"github.com/AidanWarner97/server-watcher/internal/notify"
	"github.com/AidanWarner97/server-watcher/internal/repo/memory"
)

// ---- test helpers ----

type fixture struct {
	store *memory.Store
	hub   *notify.Hub
	ts    *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	store := memory.New(0, 0)
	hub := notify.NewHub(log)

	srv := NewServer(log, store, hub, map[string]string{"serverIdentifier": "203.0.113.7"})
	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, nil, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return &fixture{store: store, hub: hub, ts: ts}
}

func (f *fixture) get(t *testing.T, path, key string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func offlineSample(at time.Time) domain.Sample {
	return domain.Sample{At: at, Checks: map[domain.CheckName]domain.CheckResult{
		domain.CheckSSH:  {Name: domain.CheckSSH},
		domain.CheckPing: {Name: domain.CheckPing},
	}}
}

// ---- tests ----

func TestHealthz_NoAuth(t *testing.T) {
	f := setup(t)
	resp := f.get(t, "/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestStatus_BeforeAndAfterFirstTick(t *testing.T) {
	f := setup(t)

	if resp := f.get(t, "/api/status", "pub_test"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("want 503 before first tick, got %d", resp.StatusCode)
	}

	since := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	_ = f.store.PutSnapshot(context.Background(), domain.Snapshot{
		Target:              "203.0.113.7",
		Phase:               domain.PhaseDegraded,
		Status:              domain.Offline,
		ConsecutiveFailures: 1,
		OfflineSince:        &since,
		UpdatedAt:           since,
	})

	resp := f.get(t, "/api/status", "pub_test")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var got domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Phase != domain.PhaseDegraded || got.ConsecutiveFailures != 1 || got.Status != domain.Offline {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestReadRoutes_RequireKey(t *testing.T) {
	f := setup(t)
	for _, p := range []string{"/api/status", "/api/samples", "/api/events"} {
		if resp := f.get(t, p, ""); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without key: want 401, got %d", p, resp.StatusCode)
		}
	}
}

func TestSamples_LimitAndOrder(t *testing.T) {
	f := setup(t)
	base := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = f.store.AppendSample(context.Background(), offlineSample(base.Add(time.Duration(i)*time.Minute)))
	}

	resp := f.get(t, "/api/samples?limit=2", "pub_test")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var got []domain.Sample
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || !got[0].At.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("want newest two samples, got %+v", got)
	}
	if got[0].Status() != domain.Offline {
		t.Fatalf("checks lost in encoding: %+v", got[0])
	}

	if resp := f.get(t, "/api/samples?limit=zero", "pub_test"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestEvents(t *testing.T) {
	f := setup(t)
	_ = f.store.AppendEvent(context.Background(), domain.Event{ID: "e1", Kind: domain.EventOffline, Target: "203.0.113.7"})
	_ = f.store.AppendEvent(context.Background(), domain.Event{ID: "e2", Kind: domain.EventRecovered, Target: "203.0.113.7"})

	resp := f.get(t, "/api/events", "adm_test")
	var got []domain.Event
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Kind != domain.EventRecovered {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestConfig_AdminOnly(t *testing.T) {
	f := setup(t)
	if resp := f.get(t, "/api/config", "pub_test"); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("public key: want 403, got %d", resp.StatusCode)
	}
	resp := f.get(t, "/api/config", "adm_test")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin key: want 200, got %d", resp.StatusCode)
	}
	var got map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&got)
	if got["serverIdentifier"] != "203.0.113.7" {
		t.Fatalf("unexpected settings: %v", got)
	}
}

func TestEventsWebsocket(t *testing.T) {
	f := setup(t)
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/events/ws?key=pub_test"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = f.hub.Send(context.Background(), notify.Message{Title: "ALERT: Server Offline Detected", Severity: notify.SeverityOffline})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m notify.Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.Title != "ALERT: Server Offline Detected" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestEventsWebsocket_RequiresKey(t *testing.T) {
	f := setup(t)
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/events/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("want handshake failure without key")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %+v", resp)
	}
}

func TestRateLimit_ForwardedHeaderIgnoredWithoutTrustedProxy(t *testing.T) {
	srv := NewServer(zap.NewNop(), memory.New(0, 0), nil, nil)
	h := srv.Router(apimw.Keys{}, nil, 60, 1)

	codes := make([]int, 0, 2)
	for _, xff := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Fatalf("rotating X-Forwarded-For must not reset the bucket, got %v", codes)
	}
}

func TestRateLimit_TrustedProxyKeysOnForwardedAddress(t *testing.T) {
	srv := NewServer(zap.NewNop(), memory.New(0, 0), nil, nil)
	srv.TrustProxy = true
	h := srv.Router(apimw.Keys{}, nil, 60, 1)

	for _, xff := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			t.Fatalf("distinct forwarded clients share a bucket (%s)", xff)
		}
	}
}
