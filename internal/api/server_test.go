package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talgya/wastesim/internal/engine"
	"github.com/talgya/wastesim/internal/persistence"
)

func newTestModel(t *testing.T) *engine.Model {
	t.Helper()
	p := engine.Params{Width: 6, Height: 6, Collectors: 3, Sorters: 2, Recyclers: 1, MaxSteps: 20}
	m, err := engine.NewModel(p, engine.WithSeed(17))
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestSnapshot_MatchesSchema(t *testing.T) {
	schema, err := jsonschema.CompileString("snapshot.schema.json", SnapshotSchema)
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}

	m := newTestModel(t)
	srv := httptest.NewServer((&Server{Model: m}).Handler())
	defer srv.Close()

	for i := 0; i < 5; i++ {
		var doc any
		getJSON(t, srv.URL+"/api/v1/snapshot", &doc)
		if err := schema.Validate(doc); err != nil {
			t.Fatalf("step %d snapshot violates schema: %v", i, err)
		}
		m.Step()
	}

	var snap engine.Snapshot
	getJSON(t, srv.URL+"/api/v1/snapshot", &snap)
	if snap.Step != m.CurrentStep() || len(snap.Agents) != 6 {
		t.Fatalf("snapshot step=%d agents=%d", snap.Step, len(snap.Agents))
	}
}

func TestStatus(t *testing.T) {
	m := newTestModel(t)
	m.Step()
	srv := httptest.NewServer((&Server{Model: m}).Handler())
	defer srv.Close()

	var status map[string]any
	getJSON(t, srv.URL+"/api/v1/status", &status)
	if status["run_id"] != m.RunID || status["running"] != true || status["state"] != "running" {
		t.Fatalf("unexpected status: %v", status)
	}
	if step, _ := status["step"].(float64); int(step) != 1 {
		t.Fatalf("status step: %v", status["step"])
	}
}

func TestLog_SummaryAndLimit(t *testing.T) {
	m := newTestModel(t)
	for i := 0; i < 4; i++ {
		m.Step()
	}
	srv := httptest.NewServer((&Server{Model: m}).Handler())
	defer srv.Close()

	var all []engine.Event
	getJSON(t, srv.URL+"/api/v1/log", &all)
	if len(all) != m.Journal().Len() {
		t.Fatalf("log: got %d records want %d", len(all), m.Journal().Len())
	}

	var sums []engine.Event
	getJSON(t, srv.URL+"/api/v1/log?summary=1", &sums)
	if len(sums) != 4 {
		t.Fatalf("summaries: got %d want 4", len(sums))
	}
	for _, e := range sums {
		if !strings.HasPrefix(e.Description, "Summary: Total Waste Remaining") {
			t.Fatalf("unexpected summary record %+v", e)
		}
	}

	var last []engine.Event
	getJSON(t, srv.URL+"/api/v1/log?limit=2", &last)
	if len(last) != 2 || last[1].Description != "------------------------" {
		t.Fatalf("limited log: %+v", last)
	}

	resp, err := http.Get(srv.URL + "/api/v1/log?limit=abc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: status %d", resp.StatusCode)
	}
}

func TestHistory_FromModelAndDB(t *testing.T) {
	m := newTestModel(t)
	db, err := persistence.Open(filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := db.BeginRun(m); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	rec := &persistence.Recorder{DB: db, Journal: m.Journal()}
	for i := 0; i < 6; i++ {
		m.Step()
		rec.OnStep(m.Snapshot())
	}

	memSrv := httptest.NewServer((&Server{Model: m}).Handler())
	defer memSrv.Close()
	dbSrv := httptest.NewServer((&Server{Model: m, DB: db}).Handler())
	defer dbSrv.Close()

	var fromMem, fromDB []engine.Metrics
	getJSON(t, memSrv.URL+"/api/v1/history", &fromMem)
	getJSON(t, dbSrv.URL+"/api/v1/history", &fromDB)
	if len(fromMem) != 6 || len(fromDB) != 6 {
		t.Fatalf("history lengths: mem=%d db=%d", len(fromMem), len(fromDB))
	}
	for i := range fromMem {
		if fromMem[i] != fromDB[i] {
			t.Fatalf("row %d differs: %+v vs %+v", i, fromMem[i], fromDB[i])
		}
	}

	var tail []engine.Metrics
	getJSON(t, dbSrv.URL+"/api/v1/history?limit=2", &tail)
	if len(tail) != 2 || tail[1].Step != 6 {
		t.Fatalf("history tail: %+v", tail)
	}
}

func TestReadOnly_RejectsMutatingMethods(t *testing.T) {
	m := newTestModel(t)
	srv := httptest.NewServer((&Server{Model: m}).Handler())
	defer srv.Close()

	for _, path := range []string{"/api/v1/status", "/api/v1/snapshot", "/api/v1/log", "/api/v1/history"} {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("POST %s: status %d want 405", path, resp.StatusCode)
		}
	}
	if m.CurrentStep() != 0 {
		t.Fatalf("API must not advance the model")
	}
}

func TestStream_SendsCurrentThenEachStep(t *testing.T) {
	m := newTestModel(t)
	hub := NewHub()
	srv := httptest.NewServer((&Server{Model: m, Hub: hub}).Handler())
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() engine.Snapshot {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var snap engine.Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return snap
	}

	if first := read(); first.Step != 0 || first.RunID != m.RunID {
		t.Fatalf("first frame should be the current snapshot, got step %d", first.Step)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Clients() != 1 {
		t.Fatalf("observer not registered")
	}

	for want := 1; want <= 3; want++ {
		m.Step()
		hub.Broadcast(m.Snapshot())
		if got := read(); got.Step != want {
			t.Fatalf("frame step: got %d want %d", got.Step, want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatalf("first two requests should pass")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatalf("third request should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatalf("other clients have their own bucket")
	}
	if ra := rl.RetryAfter("1.2.3.4"); ra != 61 {
		t.Fatalf("retry after: got %d want 61", ra)
	}

	now = now.Add(time.Minute)
	if !rl.Allow("1.2.3.4") {
		t.Fatalf("window reset should allow again")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(r); got != "10.0.0.1" {
		t.Fatalf("remote addr: got %q", got)
	}
	r.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	if got := clientIP(r); got != "9.9.9.9" {
		t.Fatalf("forwarded: got %q", got)
	}
}
