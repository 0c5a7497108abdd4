package bootstrap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/amodule/adapters/hasher"
	"github.com/artpar/amodule/adapters/imageio"
	"github.com/artpar/amodule/bootstrap"
	"github.com/artpar/amodule/config"
	"github.com/artpar/amodule/core/ndarray"
	"github.com/artpar/amodule/domain/run"
	"github.com/rs/zerolog"
)

func loadConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(content))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func newApp(t *testing.T, content string) *bootstrap.App {
	t.Helper()
	a, err := bootstrap.NewWithConfig(loadConfig(t, content), bootstrap.Options{LogOutput: io.Discard, Version: "test"})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func processBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	img := ndarray.New[uint8](3, 3, 3)
	for i := range img.Data() {
		img.Data()[i] = 220
	}
	encoded, err := imageio.PNG{}.EncodeBase64(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(map[string]any{"image": encoded, "threshold": 130})
	return &buf
}

func TestBootstrap_MemoryStore(t *testing.T) {
	a := newApp(t, `
runs:
  store: memory
  capacity: 10
`)

	if a.DB != nil {
		t.Error("DB should be nil for the memory store")
	}
	if a.Runs == nil || a.Detector == nil || a.HTTPServer == nil {
		t.Fatal("components not initialized")
	}
	if a.HTTPServer.Addr != "0.0.0.0:5000" {
		t.Errorf("Addr = %s, want 0.0.0.0:5000", a.HTTPServer.Addr)
	}

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/methods/process", processBody(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d, body: %s", rec.Code, rec.Body)
	}

	runs, err := a.Runs.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != run.StatusOK || !strings.HasPrefix(runs[0].ID, "run_") {
		t.Errorf("runs = %+v", runs)
	}
}

func TestBootstrap_SQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "runs.db")
	a := newApp(t, `
database:
  dsn: "`+dsn+`"
`)

	if a.DB == nil {
		t.Fatal("DB should be open for the sqlite store")
	}

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/methods/process", processBody(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d", rec.Code)
	}

	runs, err := a.Runs.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if n, _ := runs[0].Outputs["#bright_pixels"].(int64); n != 9 {
		t.Errorf("#bright_pixels = %v, want 9", runs[0].Outputs["#bright_pixels"])
	}
}

func TestBootstrap_NoStore(t *testing.T) {
	a := newApp(t, "runs:\n  store: none\n")
	if a.Runs != nil {
		t.Error("Runs should be nil")
	}

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/methods/process", processBody(t)))
	if rec.Code != http.StatusOK {
		t.Errorf("process status = %d, want 200 without history", rec.Code)
	}
}

func TestBootstrap_PruneRuns(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "prune.db")
	a := newApp(t, `
database:
  dsn: "`+dsn+`"
runs:
  retention: 1h
`)

	ctx := context.Background()
	now := time.Now()
	for i, age := range []time.Duration{3 * time.Hour, 2 * time.Hour, time.Minute} {
		r := run.Run{
			ID:        "run_" + string(rune('a'+i)),
			Method:    "process",
			Status:    run.StatusOK,
			StartedAt: now.Add(-age),
		}
		if err := a.Runs.Save(ctx, r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	n, err := a.PruneRuns(ctx)
	if err != nil {
		t.Fatalf("PruneRuns: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	left, _ := a.Runs.Recent(ctx, 10)
	if len(left) != 1 || left[0].ID != "run_c" {
		t.Errorf("remaining runs = %+v", left)
	}
}

func TestBootstrap_PruneDisabled(t *testing.T) {
	a := newApp(t, "runs:\n  store: memory\n  retention: 1h\n")
	n, err := a.PruneRuns(context.Background())
	if err != nil || n != 0 {
		t.Errorf("PruneRuns = %d, %v; want 0, nil for the memory store", n, err)
	}
}

func TestBootstrap_APIKey(t *testing.T) {
	key, err := hasher.NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	hash, err := hasher.NewBcrypt(4).Hash(key)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	cfg := loadConfig(t, "runs:\n  store: memory\n")
	cfg.Auth.APIKeyHash = string(hash)
	a, err := bootstrap.NewWithConfig(cfg, bootstrap.Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/module", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/module", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	rec = httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key: status = %d, want 200", rec.Code)
	}

	// The generated document advertises the key requirement.
	rec = httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/.well-known/openapi.json", nil))
	if !strings.Contains(rec.Body.String(), "bearerAuth") {
		t.Error("openapi document missing security schemes")
	}
}

func TestBootstrap_MetricsAndDocs(t *testing.T) {
	a := newApp(t, "runs:\n  store: memory\n")

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/methods/process", processBody(t)))

	rec = httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`amodule_module_info{name="Bright Pixel Segmenter",version="1.0.0"} 1`,
		`amodule_invocations_total{method="process",status="ok"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	rec = httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/swagger/doc.json", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/methods/process") {
		t.Errorf("doc.json status = %d, body starts %.80s", rec.Code, rec.Body.String())
	}
}

func TestBootstrap_DisabledSurfaces(t *testing.T) {
	a := newApp(t, `
runs:
  store: memory
metrics:
  enabled: false
openapi:
  enabled: false
`)
	if a.Metrics != nil || a.OpenAPI != nil {
		t.Error("metrics and openapi should be nil")
	}
	for _, path := range []string{"/metrics", "/.well-known/openapi.json"} {
		rec := httptest.NewRecorder()
		a.Router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func TestBootstrap_SpecFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.yaml")
	content := `
module:
  name: Dim Pixel Segmenter
  version: 2.0.0
methods:
  process:
    input:
      - name: image
        type: ndarray/uint8///3
      - name: threshold
        type: numeric/int
    output:
      - name: mask
        type: ndarray/uint8//
      - name: count
        type: numeric/int
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	a := newApp(t, "runs:\n  store: memory\nmodule:\n  spec_path: \""+path+"\"\n")
	if a.Spec.Module.Name != "Dim Pixel Segmenter" {
		t.Errorf("module = %s", a.Spec.Module.Name)
	}
}

func TestBootstrap_InvalidSpecFile(t *testing.T) {
	cfg := loadConfig(t, "runs:\n  store: memory\nmodule:\n  spec_path: /nonexistent/spec.yaml\n")
	if _, err := bootstrap.NewWithConfig(cfg, bootstrap.Options{LogOutput: io.Discard}); err == nil {
		t.Error("expected error for missing spec file")
	}
}

func TestBootstrap_ConfigReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amodule.yaml")
	dsn := filepath.Join(dir, "runs.db")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("database:\n  dsn: \"" + dsn + "\"\nlogging:\n  level: info\n")

	a, err := bootstrap.New(bootstrap.Options{ConfigPath: path, Watch: true, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	defer a.Close()
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx := context.Background()
	old := run.Run{ID: "run_old", Method: "process", Status: run.StatusOK, StartedAt: time.Now().Add(-48 * time.Hour)}
	if err := a.Runs.Save(ctx, old); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n, _ := a.PruneRuns(ctx); n != 0 {
		t.Fatalf("pruned %d runs before retention was set", n)
	}

	write("database:\n  dsn: \"" + dsn + "\"\nlogging:\n  level: debug\nruns:\n  retention: 24h\n")

	deadline := time.Now().Add(2 * time.Second)
	for zerolog.GlobalLevel() != zerolog.DebugLevel {
		if time.Now().After(deadline) {
			t.Fatalf("log level = %s after reload, want debug", zerolog.GlobalLevel())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Retention is applied in the same reload as the level.
	if n, err := a.PruneRuns(ctx); err != nil || n != 1 {
		t.Errorf("PruneRuns = %d, %v; want 1 after retention reload", n, err)
	}
}

func TestSetupLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	logger := bootstrap.SetupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Str("k", "v").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &line); err != nil {
		t.Fatalf("log line is not JSON: %v: %q", err, out)
	}
	if line["message"] != "shown" || line["k"] != "v" {
		t.Errorf("log line = %v", line)
	}
}
