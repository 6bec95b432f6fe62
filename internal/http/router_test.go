package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/geocoder89/centinel/internal/artifacts"
	"github.com/geocoder89/centinel/internal/auth"
	"github.com/geocoder89/centinel/internal/config"
	httpx "github.com/geocoder89/centinel/internal/http"
	"github.com/geocoder89/centinel/internal/observability"
	"github.com/geocoder89/centinel/internal/repo/memory"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	handler     http.Handler
	resultsDir  string
	experiments string
	repo        *memory.ClientsRepo
}

func newServer(t *testing.T) server {
	t.Helper()

	base := t.TempDir()
	cfg := config.Config{
		Env:                "dev",
		ResultsDir:         filepath.Join(base, "results"),
		ExperimentsDir:     filepath.Join(base, "experiments"),
		MaxResultBytes:     64 << 10,
		RecommendedVersion: "1.2.3",
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	store, err := artifacts.New(artifacts.Options{
		ResultsDir:     cfg.ResultsDir,
		ExperimentsDir: cfg.ExperimentsDir,
		Logger:         log,
		Prom:           prom,
	})
	if err != nil {
		t.Fatalf("artifacts.New: %v", err)
	}

	repo := memory.NewClientsRepo()

	router := httpx.NewRouter(httpx.Deps{
		Config:   cfg,
		Log:      log,
		Gateway:  auth.NewGateway(repo, store, nil, log, prom),
		Store:    store,
		Prom:     prom,
		Gatherer: reg,
	})

	return server{
		handler:     router,
		resultsDir:  cfg.ResultsDir,
		experiments: cfg.ExperimentsDir,
		repo:        repo,
	}
}

func (s server) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s server) register(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func uploadRequest(t *testing.T, field, fileName, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile(field, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = io.WriteString(fw, content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/results", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestRegister(t *testing.T) {
	s := newServer(t)

	w := s.register(t, "probe-1", "pw")
	if w.Code != http.StatusCreated || w.Body.String() != `{"status":"success"}` {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}

	w = s.register(t, "probe-1", "other")
	if w.Code != http.StatusConflict || w.Body.String() != `{"error":"Conflict"}` {
		t.Fatalf("duplicate: %d %s", w.Code, w.Body.String())
	}

	w = s.register(t, "../escape", "pw")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unsafe username: %d %s", w.Code, w.Body.String())
	}

	w = s.register(t, "", "pw")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing username: %d %s", w.Code, w.Body.String())
	}
}

func TestRegister_RejectsNonJSONBodyAsBadRequest(t *testing.T) {
	s := newServer(t)

	for _, ct := range []string{"", "text/plain"} {
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"username":"u1","password":"pw"}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}

		w := s.do(req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("Content-Type %q: got %d %s", ct, w.Code, w.Body.String())
		}

		var resp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Error != "Bad request" {
			t.Fatalf("Content-Type %q: body = %s", ct, w.Body.String())
		}
	}

	if _, err := s.repo.FindByUsername(context.Background(), "u1"); err == nil {
		t.Fatalf("client must not be created from a non-JSON body")
	}
}

func TestRegister_ControlCharacterUsernameIsBadRequest(t *testing.T) {
	s := newServer(t)

	w := s.register(t, "a\x00b", "pw")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}

	entries, _ := os.ReadDir(s.resultsDir)
	if len(entries) != 0 {
		t.Fatalf("no directory should be provisioned, found %d", len(entries))
	}
}

func TestResults_RoundTrip(t *testing.T) {
	s := newServer(t)
	s.register(t, "probe-1", "pw")

	req := uploadRequest(t, "result", "ping.json", `{"rtt":12}`)
	req.SetBasicAuth("probe-1", "pw")
	w := s.do(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/results", nil)
	req.SetBasicAuth("probe-1", "pw")
	w = s.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	if w.Body.String() != `{"results":{"ping":{"rtt":12}}}` {
		t.Fatalf("list body = %s", w.Body.String())
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag")
	}

	req = httptest.NewRequest(http.MethodGet, "/results", nil)
	req.SetBasicAuth("probe-1", "pw")
	req.Header.Set("If-None-Match", etag)
	if w = s.do(req); w.Code != http.StatusNotModified {
		t.Fatalf("conditional list: %d", w.Code)
	}
}

func TestResults_RequireCredentials(t *testing.T) {
	s := newServer(t)
	s.register(t, "probe-1", "pw")

	req := httptest.NewRequest(http.MethodGet, "/results", nil)
	req.SetBasicAuth("probe-1", "wrong")
	w := s.do(req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", w.Code)
	}
	if w.Body.String() != `{"error":"Unauthorized access"}` {
		t.Fatalf("body = %s", w.Body.String())
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("missing WWW-Authenticate")
	}

	w = s.do(uploadRequest(t, "result", "a.json", `{}`))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous submit: %d", w.Code)
	}
}

func TestResults_SubmitValidation(t *testing.T) {
	s := newServer(t)
	s.register(t, "probe-1", "pw")

	req := uploadRequest(t, "other", "a.json", `{}`)
	req.SetBasicAuth("probe-1", "pw")
	if w := s.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf("missing result field: %d %s", w.Code, w.Body.String())
	}

	req = uploadRequest(t, "result", "...", `{}`)
	req.SetBasicAuth("probe-1", "pw")
	if w := s.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf("empty sanitized name: %d %s", w.Code, w.Body.String())
	}

	req = uploadRequest(t, "result", "big.json", strings.Repeat("x", 128<<10))
	req.SetBasicAuth("probe-1", "pw")
	if w := s.do(req); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upload: %d %s", w.Code, w.Body.String())
	}
}

func TestResults_TraversalNameStaysInsideClientDir(t *testing.T) {
	s := newServer(t)
	s.register(t, "probe-1", "pw")

	req := uploadRequest(t, "result", "../../../pwned.json", `{"x":1}`)
	req.SetBasicAuth("probe-1", "pw")
	if w := s.do(req); w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}

	if _, err := os.Stat(filepath.Join(s.resultsDir, "probe-1", "pwned.json")); err != nil {
		t.Fatalf("expected sanitized file in client dir: %v", err)
	}
}

func TestExperiments(t *testing.T) {
	s := newServer(t)
	s.register(t, "probe-1", "pw")

	dir := filepath.Join(s.experiments, "probe-1")
	_ = os.WriteFile(filepath.Join(dir, "ping.py"), []byte("print('ping')\n"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "_private.py"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(s.experiments, "secret.py"), []byte("TOP SECRET"), 0o644)

	req := httptest.NewRequest(http.MethodGet, "/experiments", nil)
	req.SetBasicAuth("probe-1", "not-checked")
	w := s.do(req)
	if w.Code != http.StatusOK || w.Body.String() != `{"experiments":["ping"]}` {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/experiments/ping", nil)
	req.SetBasicAuth("probe-1", "not-checked")
	w = s.do(req)
	if w.Code != http.StatusOK || w.Body.String() != "print('ping')\n" {
		t.Fatalf("fetch: %d %q", w.Code, w.Body.String())
	}

	// encoded parent reference
	req = httptest.NewRequest(http.MethodGet, "/experiments/%2e%2e%2fsecret", nil)
	req.SetBasicAuth("probe-1", "not-checked")
	w = s.do(req)
	if w.Code != http.StatusNotFound || strings.Contains(w.Body.String(), "SECRET") {
		t.Fatalf("traversal: %d %s", w.Code, w.Body.String())
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/experiments", nil))
	if w.Code != http.StatusOK || w.Body.String() != `{"experiments":[]}` {
		t.Fatalf("anonymous list: %d %s", w.Code, w.Body.String())
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/experiments/ping", nil))
	if w.Code != http.StatusNotFound || w.Body.String() != `{"error":"Not found"}` {
		t.Fatalf("anonymous fetch: %d %s", w.Code, w.Body.String())
	}
}

func TestClients(t *testing.T) {
	s := newServer(t)
	s.register(t, "probe-1", "pw")
	s.register(t, "probe-2", "pw")

	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	req.SetBasicAuth("probe-2", "pw")
	w := s.do(req)

	if w.Code != http.StatusOK || w.Body.String() != `{"clients":["probe-1","probe-2"]}` {
		t.Fatalf("clients: %d %s", w.Code, w.Body.String())
	}
}

func TestGeolocation_DisabledResolver(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/geolocation", nil)
	req.RemoteAddr = "203.0.113.77:40000"
	w := s.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if w.Body.String() != `{"country":"--","ip":"203.0.113.0/24"}` {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestAuthenticatedRequestRecordsActivity(t *testing.T) {
	s := newServer(t)
	s.register(t, "probe-1", "pw")

	req := httptest.NewRequest(http.MethodGet, "/results", nil)
	req.RemoteAddr = "198.51.100.23:1234"
	req.SetBasicAuth("probe-1", "pw")
	s.do(req)

	c, err := s.repo.FindByUsername(req.Context(), "probe-1")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if c.LastIP != "198.51.100.0/24" || c.LastSeen == nil {
		t.Fatalf("activity not recorded: %+v", c)
	}
}

func TestVersionHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	if w.Body.String() != `{"version":"1.2.3"}` {
		t.Fatalf("version = %s", w.Body.String())
	}

	if w := s.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)); w.Code != http.StatusOK {
		t.Fatalf("readyz = %d", w.Code)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "centinel_http_requests_total") {
		t.Fatalf("metrics missing request counter: %d", w.Code)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound || w.Body.String() != `{"error":"Not found"}` {
		t.Fatalf("unknown route: %d %s", w.Code, w.Body.String())
	}
}
