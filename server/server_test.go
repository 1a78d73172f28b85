package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/metastore/memstore"
	"github.com/bbc/tams-core/refengine"
	"github.com/bbc/tams-core/repos"
	"github.com/bbc/tams-core/server"
)

func newTestServer() *httptest.Server {
	ms := memstore.New()
	sources := repos.NewSourceRepo(ms)
	flows := repos.NewFlowRepo(ms)
	objects := repos.NewObjectRepo(ms)
	segs := repos.NewSegmentRepo(ms)
	cols := repos.NewCollectionRepo(ms)
	backends := repos.NewStorageBackendRepo(ms)
	reqs := repos.NewFlowDeleteRequestRepo(ms)
	engine := refengine.New(sources, flows, objects, segs, cols)

	deps := &server.Deps{
		Sources: sources, Flows: flows, Objects: objects, Segments: segs,
		Collections: cols, Backends: backends, Requests: reqs, Engine: engine,
	}
	return httptest.NewServer(server.NewRouter(deps))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestCreateSourceAndFlowHappyPath(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/sources", map[string]any{
		"format": "urn:x-nmos:format:data",
		"label":  "test-source",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create source: expected 201, got %d", resp.StatusCode)
	}
	var src map[string]any
	decode(t, resp, &src)
	sourceID, _ := src["id"].(string)
	if sourceID == "" {
		t.Fatal("expected a minted source id")
	}

	resp = postJSON(t, srv.URL+"/flows", map[string]any{
		"source_id": sourceID,
		"format":    "urn:x-nmos:format:data",
		"codec":     "application/json",
	})
	if resp.StatusCode != http.StatusCreated {
		body := new(bytes.Buffer)
		body.ReadFrom(resp.Body)
		t.Fatalf("create flow: expected 201, got %d: %s", resp.StatusCode, body.String())
	}
	var flow map[string]any
	decode(t, resp, &flow)
	if flow["source_id"] != sourceID {
		t.Fatalf("flow.source_id = %v, want %v", flow["source_id"], sourceID)
	}
}

func TestCreateFlowRejectsUnknownSource(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/flows", map[string]any{
		"source_id": "11111111-1111-4111-8111-111111111111",
		"format":    "urn:x-nmos:format:data",
		"codec":     "application/json",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown source_id, got %d", resp.StatusCode)
	}
}

func TestCreateFlowRejectsIncompleteVideoVariant(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/sources", map[string]any{"format": "urn:x-nmos:format:video"})
	var src map[string]any
	decode(t, resp, &src)

	resp = postJSON(t, srv.URL+"/flows", map[string]any{
		"source_id": src["id"],
		"format":    "urn:x-nmos:format:video",
		"codec":     "video/h264",
		// frame_width/frame_height/frame_rate all omitted
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an incomplete video flow, got %d", resp.StatusCode)
	}
}

// TestDeleteSourceWithFlowsRequiresCascade exercises P1 (source cascade) at
// the HTTP layer: deleting a source with dependent flows without
// cascade=true is blocked with 409, and succeeds with 204 once
// cascade=true is passed.
func TestDeleteSourceWithFlowsRequiresCascade(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/sources", map[string]any{"format": "urn:x-nmos:format:data"})
	var src map[string]any
	decode(t, resp, &src)
	sourceID := src["id"].(string)

	resp = postJSON(t, srv.URL+"/flows", map[string]any{
		"source_id": sourceID, "format": "urn:x-nmos:format:data", "codec": "application/json",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create flow: %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/sources/"+sourceID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete source: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 deleting a source with dependent flows, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/sources/"+sourceID+"?cascade=true", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("cascade delete source: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 cascading delete of source, got %d", resp.StatusCode)
	}
}

// TestDeleteSegmentsPromotesAboveThreshold exercises the async-promotion
// rule: once matching segments exceed AsyncDeleteThreshold, DELETE
// /flows/{id}/segments returns 202 with a pending delete-request instead of
// deleting inline.
func TestDeleteSegmentsPromotesAboveThreshold(t *testing.T) {
	ms := memstore.New()
	sources := repos.NewSourceRepo(ms)
	flows := repos.NewFlowRepo(ms)
	objects := repos.NewObjectRepo(ms)
	segs := repos.NewSegmentRepo(ms)
	cols := repos.NewCollectionRepo(ms)
	backends := repos.NewStorageBackendRepo(ms)
	reqs := repos.NewFlowDeleteRequestRepo(ms)
	engine := refengine.New(sources, flows, objects, segs, cols)

	deps := &server.Deps{
		Sources: sources, Flows: flows, Objects: objects, Segments: segs,
		Collections: cols, Backends: backends, Requests: reqs, Engine: engine,
		AsyncDeleteThreshold: 2,
	}
	srv := httptest.NewServer(server.NewRouter(deps))
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/sources", map[string]any{"format": "urn:x-nmos:format:data"})
	var src map[string]any
	decode(t, resp, &src)

	resp = postJSON(t, srv.URL+"/flows", map[string]any{
		"source_id": src["id"], "format": "urn:x-nmos:format:data", "codec": "application/json",
	})
	var flow map[string]any
	decode(t, resp, &flow)
	flowID := flow["id"].(string)

	ctx := context.Background()
	ranges := []string{"[0:0_1:0)", "[1:0_2:0)", "[2:0_3:0)"}
	for i, tr := range ranges {
		objID := fmt.Sprintf("obj-%d", i)
		if terr := objects.Create(ctx, &core.Object{ID: objID}); terr != nil {
			t.Fatalf("create object: %v", terr)
		}
		if terr := objects.AddReference(ctx, core.FlowObjectReference{ObjectID: objID, FlowID: flowID, Timerange: tr}); terr != nil {
			t.Fatalf("add reference: %v", terr)
		}
		if terr := segs.Create(ctx, &core.Segment{FlowID: flowID, ObjectID: objID, Timerange: tr}); terr != nil {
			t.Fatalf("create segment: %v", terr)
		}
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/flows/"+flowID+"/segments?timerange=-_-", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete segments: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 promoting an over-threshold delete to async, got %d", resp.StatusCode)
	}
	var deleteReq map[string]any
	decode(t, resp, &deleteReq)
	if deleteReq["status"] != "pending" {
		t.Fatalf("expected a pending delete-request, got %+v", deleteReq)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
