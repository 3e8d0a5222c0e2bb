package net

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"sensorbridge/server"
	"sensorbridge/server/internal/journal"
	"sensorbridge/server/internal/proto"
	"sensorbridge/server/internal/targets"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := server.DefaultSessionConfig()
	session := server.NewSession(cfg, server.SessionDeps{})
	srv := httptest.NewServer(NewHTTPHandler(session, HTTPHandlerConfig{}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestTargetsCRUD(t *testing.T) {
	srv := newTestServer(t)

	region := targets.Region{Name: "panel", X: 10, Y: 20, Width: 300, Height: 200}
	body, _ := json.Marshal(region)
	resp, err := http.Post(srv.URL+"/targets", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post target: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/targets")
	if err != nil {
		t.Fatalf("get targets: %v", err)
	}
	var listed struct {
		Targets []targets.Region `json:"targets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(listed.Targets) != 1 || listed.Targets[0].Name != "panel" {
		t.Fatalf("unexpected list: %+v", listed.Targets)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/targets?name=panel", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete target: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/targets?name=panel", nil)
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
}

func TestTargetsRejectsInvalidRegion(t *testing.T) {
	srv := newTestServer(t)

	body := []byte(`{"name":"","width":0,"height":0}`)
	resp, err := http.Post(srv.URL+"/targets", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post target: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestJournalServesRecentEvents(t *testing.T) {
	cfg := server.DefaultSessionConfig()
	cfg.Stabilize.DoBuffering = false
	cfg.Point.TriggerMouseClick = false
	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	session := server.NewSession(cfg, server.SessionDeps{Journal: j})
	srv := httptest.NewServer(NewHTTPHandler(session, HTTPHandlerConfig{}))
	t.Cleanup(srv.Close)

	input, err := proto.Decode([]byte(`{"type":"point","category":"touch","id":"1","state":"start","x":0.5,"y":0.5}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := session.Process(input); err != nil {
		t.Fatalf("process: %v", err)
	}

	resp, err := http.Get(srv.URL + "/journal?limit=10")
	if err != nil {
		t.Fatalf("get journal: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var listed struct {
		Events []journal.Entry `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode journal: %v", err)
	}
	if len(listed.Events) != 1 || listed.Events[0].Kind != "touchstart" {
		t.Fatalf("unexpected journal view: %+v", listed.Events)
	}
	if listed.Events[0].Seq != 1 {
		t.Fatalf("seq = %d, want 1", listed.Events[0].Seq)
	}
}

func TestJournalRejectsBadLimit(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/journal?limit=zero")
	if err != nil {
		t.Fatalf("get journal: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/diagnostics")
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	defer resp.Body.Close()
	var d server.Diagnostics
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if d.Received != 0 || d.Subscribers != 0 {
		t.Fatalf("fresh session must report zero traffic: %+v", d)
	}
}
