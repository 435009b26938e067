package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lorecore/internal/core"
	"lorecore/internal/logging"
	"lorecore/internal/media"
	"lorecore/pkg/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *core.Service) {
	t.Helper()
	logger := logging.New(io.Discard, slog.LevelError, true)
	svc := core.NewInMemoryService(nil)
	srv := NewServer(svc, media.NewMemoryStore(), logger, prometheus.NewRegistry())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, svc
}

func doJSON(t *testing.T, method, url string, body any, wantStatus int, out any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", method, url, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func TestProjectAndElementLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	var project domain.Project
	doJSON(t, "POST", ts.URL+"/api/projects", projectRequest{Name: "World"}, http.StatusCreated, &project)
	if project.ID == "" {
		t.Fatalf("expected generated project id")
	}

	var projects []domain.Project
	doJSON(t, "GET", ts.URL+"/api/projects", nil, http.StatusOK, &projects)
	if len(projects) != 1 {
		t.Fatalf("expected one project, got %d", len(projects))
	}

	var hero domain.Element
	doJSON(t, "POST", ts.URL+"/api/projects/"+project.ID+"/elements", elementRequest{Name: "Hero", Category: "character"}, http.StatusCreated, &hero)

	var fetched domain.Element
	doJSON(t, "GET", ts.URL+"/api/elements/"+hero.ID, nil, http.StatusOK, &fetched)
	if fetched.Name != "Hero" {
		t.Fatalf("unexpected element %+v", fetched)
	}

	doJSON(t, "PUT", ts.URL+"/api/elements/"+hero.ID, elementRequest{Name: "Anti-Hero"}, http.StatusOK, &fetched)
	if fetched.Name != "Anti-Hero" {
		t.Fatalf("expected rename, got %+v", fetched)
	}

	doJSON(t, "GET", ts.URL+"/api/elements/ghost", nil, http.StatusNotFound, nil)
	doJSON(t, "DELETE", ts.URL+"/api/elements/"+hero.ID, nil, http.StatusNoContent, nil)
	doJSON(t, "DELETE", ts.URL+"/api/projects/"+project.ID, nil, http.StatusNoContent, nil)
}

func TestRelationshipEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	var project domain.Project
	doJSON(t, "POST", ts.URL+"/api/projects", projectRequest{Name: "World"}, http.StatusCreated, &project)
	var hero, city domain.Element
	doJSON(t, "POST", ts.URL+"/api/projects/"+project.ID+"/elements", elementRequest{Name: "Hero", Category: "character"}, http.StatusCreated, &hero)
	doJSON(t, "POST", ts.URL+"/api/projects/"+project.ID+"/elements", elementRequest{Name: "City", Category: "location"}, http.StatusCreated, &city)

	doJSON(t, "PUT", ts.URL+"/api/projects/"+project.ID+"/activate", nil, http.StatusOK, nil)
	doJSON(t, "PUT", ts.URL+"/api/projects/ghost/activate", nil, http.StatusNotFound, nil)

	var rel domain.Relationship
	doJSON(t, "POST", ts.URL+"/api/projects/"+project.ID+"/relationships",
		relationshipRequest{FromID: hero.ID, ToID: city.ID, Type: "lives_in"}, http.StatusCreated, &rel)
	if rel.ID == "" || rel.FromID != hero.ID {
		t.Fatalf("unexpected relationship %+v", rel)
	}

	var rels []domain.Relationship
	doJSON(t, "GET", ts.URL+"/api/projects/"+project.ID+"/elements/"+city.ID+"/relationships", nil, http.StatusOK, &rels)
	if len(rels) != 1 || rels[0].ID != rel.ID {
		t.Fatalf("unexpected element relationships %+v", rels)
	}

	var related []string
	doJSON(t, "GET", ts.URL+"/api/projects/"+project.ID+"/elements/"+hero.ID+"/related", nil, http.StatusOK, &related)
	if len(related) != 1 || related[0] != city.ID {
		t.Fatalf("unexpected related ids %v", related)
	}

	doJSON(t, "GET", ts.URL+"/api/projects/"+project.ID+"/relationships?type=lives_in", nil, http.StatusOK, &rels)
	if len(rels) != 1 {
		t.Fatalf("unexpected by-type answer %+v", rels)
	}
	doJSON(t, "GET", ts.URL+"/api/projects/"+project.ID+"/relationships", nil, http.StatusBadRequest, nil)

	var pair relatedResponse
	doJSON(t, "GET", fmt.Sprintf("%s/api/projects/%s/related?a=%s&b=%s", ts.URL, project.ID, city.ID, hero.ID), nil, http.StatusOK, &pair)
	if !pair.Related {
		t.Fatalf("expected elements to be related")
	}

	doJSON(t, "DELETE", ts.URL+"/api/projects/"+project.ID+"/relationships/"+rel.ID, nil, http.StatusNoContent, nil)
	doJSON(t, "DELETE", ts.URL+"/api/projects/"+project.ID+"/relationships/"+rel.ID, nil, http.StatusNotFound, nil)

	doJSON(t, "GET", ts.URL+"/api/projects/"+project.ID+"/elements/"+hero.ID+"/relationships", nil, http.StatusOK, &rels)
	if len(rels) != 0 {
		t.Fatalf("expected no relationships after removal, got %+v", rels)
	}

	// Queries against an unknown project answer empty rather than failing.
	doJSON(t, "GET", ts.URL+"/api/projects/ghost/elements/x/related", nil, http.StatusOK, &related)
	if len(related) != 0 {
		t.Fatalf("expected empty answer for unknown project, got %v", related)
	}
}

func TestMediaEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	var project domain.Project
	doJSON(t, "POST", ts.URL+"/api/projects", projectRequest{Name: "World"}, http.StatusCreated, &project)
	var hero domain.Element
	doJSON(t, "POST", ts.URL+"/api/projects/"+project.ID+"/elements", elementRequest{Name: "Hero", Category: "character"}, http.StatusCreated, &hero)

	base := ts.URL + "/api/projects/" + project.ID + "/elements/" + hero.ID + "/media"

	req, err := http.NewRequest("POST", base+"/portrait.png", strings.NewReader("fake png bytes"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "image/png")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}

	var infos []media.Info
	doJSON(t, "GET", base, nil, http.StatusOK, &infos)
	if len(infos) != 1 {
		t.Fatalf("expected one attachment, got %+v", infos)
	}

	resp, err = http.Get(base + "/portrait.png")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != "fake png bytes" {
		t.Fatalf("download status=%d body=%q", resp.StatusCode, data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}

	var signed presignResponse
	doJSON(t, "GET", base+"/portrait.png/presign", nil, http.StatusOK, &signed)
	if !strings.Contains(signed.URL, "portrait.png") {
		t.Fatalf("presigned URL does not reference attachment: %q", signed.URL)
	}
	if signed.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("default expiry = %d seconds", signed.ExpiresIn)
	}
	doJSON(t, "GET", base+"/portrait.png/presign?expiry=1m", nil, http.StatusOK, &signed)
	if signed.ExpiresIn != 60 {
		t.Fatalf("expiry override = %d seconds", signed.ExpiresIn)
	}
	doJSON(t, "GET", base+"/portrait.png/presign?expiry=nope", nil, http.StatusBadRequest, nil)
	doJSON(t, "GET", base+"/missing.png/presign", nil, http.StatusNotFound, nil)

	doJSON(t, "DELETE", base+"/portrait.png", nil, http.StatusNoContent, nil)
	doJSON(t, "DELETE", base+"/portrait.png", nil, http.StatusNotFound, nil)

	// Uploads against a missing element are rejected.
	req, err = http.NewRequest("POST", ts.URL+"/api/projects/"+project.ID+"/elements/ghost/media/a.png", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown element, got %d", resp.StatusCode)
	}
}

func TestMetricsAndHealthEndpoints(t *testing.T) {
	logger := logging.New(io.Discard, slog.LevelError, true)
	registry := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		t.Fatalf("metrics recorder: %v", err)
	}
	svc := core.NewInMemoryService(nil, core.WithMetricsRecorder(recorder))
	srv := NewServer(svc, nil, logger, registry)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var project domain.Project
	doJSON(t, "POST", ts.URL+"/api/projects", projectRequest{Name: "World"}, http.StatusCreated, &project)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "lorecore_service_operation_results_total") {
		t.Fatalf("expected service metrics in output: %s", body)
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}
