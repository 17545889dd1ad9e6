package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	deployer "github.com/kattsoftware/phassets-amazon-s3-deployer"
)

type fakeDeployer struct {
	deployed map[string]string
	url      string

	deployErr   error
	deployCalls int
	lookupCalls int
}

func (f *fakeDeployer) Lookup(_ context.Context, a deployer.Asset) (string, bool) {
	f.lookupCalls++
	url, ok := f.deployed[a.Filename()]
	if ok {
		a.SetOutputURL(url)
	}
	return url, ok
}

func (f *fakeDeployer) Deploy(_ context.Context, a deployer.Asset) (string, error) {
	f.deployCalls++
	if f.deployErr != nil {
		return "", f.deployErr
	}
	a.SetOutputURL(f.url)
	return f.url, nil
}

func newTestAPI(t *testing.T, d Deployer) (*API, string) {
	t.Helper()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "logo.png"), []byte("png bytes"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	a, err := New(d, nil, log.New(os.Stderr, "", 0), Config{AssetRoot: root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, root
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleDeployNewAsset(t *testing.T) {
	fake := &fakeDeployer{url: "https://mybucket.s3.amazonaws.com/logo_1.png"}
	a, _ := newTestAPI(t, fake)
	routes, err := a.Routes()
	if err != nil {
		t.Fatalf("Routes: %v", err)
	}

	rec := doJSON(t, routes, http.MethodPost, "/v1/deployments", `{"path":"logo.png"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		URL             string `json:"url"`
		AlreadyDeployed bool   `json:"already_deployed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.URL != fake.url || resp.AlreadyDeployed {
		t.Fatalf("unexpected response %+v", resp)
	}
	if fake.deployCalls != 1 {
		t.Fatalf("deploy called %d times", fake.deployCalls)
	}
}

func TestHandleDeploySkipsAlreadyDeployed(t *testing.T) {
	fake := &fakeDeployer{
		deployed: map[string]string{"logo": "https://mybucket.s3.amazonaws.com/logo_1.png"},
	}
	a, _ := newTestAPI(t, fake)
	routes, _ := a.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/v1/deployments", `{"path":"logo.png"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if fake.deployCalls != 0 {
		t.Fatalf("deploy called %d times for an already-deployed asset", fake.deployCalls)
	}
	if !strings.Contains(rec.Body.String(), `"already_deployed":true`) {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestHandleDeployForceBypassesLookup(t *testing.T) {
	fake := &fakeDeployer{
		deployed: map[string]string{"logo": "https://mybucket.s3.amazonaws.com/logo_1.png"},
		url:      "https://mybucket.s3.amazonaws.com/logo_1.png",
	}
	a, _ := newTestAPI(t, fake)
	routes, _ := a.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/v1/deployments", `{"path":"logo.png","force":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if fake.lookupCalls != 0 || fake.deployCalls != 1 {
		t.Fatalf("lookup/deploy calls = %d/%d", fake.lookupCalls, fake.deployCalls)
	}
}

func TestHandleDeployFailure(t *testing.T) {
	fake := &fakeDeployer{
		deployErr: &deployer.DeployError{ObjectKey: "logo_1.png", Err: errors.New("AccessDenied")},
	}
	a, _ := newTestAPI(t, fake)
	routes, _ := a.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/v1/deployments", `{"path":"logo.png"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "AccessDenied") {
		t.Fatalf("provider error missing from body: %s", rec.Body)
	}
}

func TestHandleDeployRejectsEscapingPaths(t *testing.T) {
	a, _ := newTestAPI(t, &fakeDeployer{})
	routes, _ := a.Routes()

	for _, path := range []string{"../etc/passwd", "/etc/passwd", " "} {
		rec := doJSON(t, routes, http.MethodPost, "/v1/deployments", `{"path":"`+path+`"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("path %q: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestHandleLookup(t *testing.T) {
	fake := &fakeDeployer{
		deployed: map[string]string{"logo": "https://mybucket.s3.amazonaws.com/logo_1.png"},
	}
	a, root := newTestAPI(t, fake)
	routes, _ := a.Routes()

	rec := doJSON(t, routes, http.MethodGet, "/v1/deployments/lookup?path=logo.png", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	// An existing but never-deployed asset is a miss, not an error.
	if err := os.WriteFile(filepath.Join(root, "style.css"), []byte("body {}"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	rec = doJSON(t, routes, http.MethodGet, "/v1/deployments/lookup?path=style.css", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	// A path that does not resolve under the asset root is a client error.
	rec = doJSON(t, routes, http.MethodGet, "/v1/deployments/lookup?path=missing.css", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestHandleRecentWithoutLedger(t *testing.T) {
	a, _ := newTestAPI(t, &fakeDeployer{})
	routes, _ := a.Routes()

	rec := doJSON(t, routes, http.MethodGet, "/v1/deployments", "")
	if rec.Code != http.StatusFailedDependency {
		t.Fatalf("status = %d, want 424", rec.Code)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil, nil, Config{AssetRoot: t.TempDir()}); err == nil {
		t.Fatal("New accepted a nil deployer")
	}
	if _, err := New(&fakeDeployer{}, nil, nil, Config{}); err == nil {
		t.Fatal("New accepted an empty asset root")
	}
}
