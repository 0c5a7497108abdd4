package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/amodule/adapters/clock"
	apihttp "github.com/artpar/amodule/adapters/http"
	"github.com/artpar/amodule/adapters/idgen"
	"github.com/artpar/amodule/adapters/imageio"
	"github.com/artpar/amodule/adapters/memory"
	"github.com/artpar/amodule/app"
	"github.com/artpar/amodule/core/ndarray"
	"github.com/artpar/amodule/domain/run"
	"github.com/artpar/amodule/resources"
	"github.com/rs/zerolog"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router   http.Handler
	detector *app.Detector
	runs     *memory.RunStore
}

func setupTestServer(t *testing.T, cfg apihttp.RouterConfig) testServer {
	t.Helper()

	s, err := resources.Load()
	if err != nil {
		t.Fatalf("load spec: %v", err)
	}
	clk := clock.NewStepping(baseTime, time.Millisecond)
	runs := memory.NewRunStore(100)
	d, err := app.NewDetector(app.DetectorDeps{
		Spec:   s,
		Runs:   runs,
		Clock:  clk,
		IDGen:  idgen.NewSequential("run_"),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	h := apihttp.NewModuleHandler(apihttp.HandlerDeps{
		Module: d,
		Codec:  imageio.PNG{},
		Runs:   runs,
		Clock:  clk,
		Logger: zerolog.Nop(),
	})
	router := apihttp.NewRouter(h, apihttp.NewHealthHandler(nil), zerolog.Nop(), cfg)
	return testServer{router: router, detector: d, runs: runs}
}

func (ts testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func encodedImage(t *testing.T, h, w int, v uint8) string {
	t.Helper()
	img := ndarray.New[uint8](h, w, 3)
	for i := range img.Data() {
		img.Data()[i] = v
	}
	s, err := imageio.PNG{}.EncodeBase64(img)
	if err != nil {
		t.Fatalf("encode image: %v", err)
	}
	return s
}

type errorDoc struct {
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Detail string `json:"detail"`
		Source *struct {
			Pointer   string `json:"pointer"`
			Parameter string `json:"parameter"`
		} `json:"source"`
	} `json:"errors"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDoc {
	t.Helper()
	var doc errorDoc
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("decode error document: %v", err)
	}
	if len(doc.Errors) == 0 {
		t.Fatal("error document has no errors")
	}
	return doc
}

func TestInvoke_Process(t *testing.T) {
	ts := setupTestServer(t, apihttp.RouterConfig{})

	rec := ts.do(t, "POST", "/api/methods/process", map[string]any{
		"image":     encodedImage(t, 4, 5, 200),
		"threshold": 130,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if n, _ := resp["#bright_pixels"].(float64); n != 20 {
		t.Errorf("#bright_pixels = %v, want 20", resp["#bright_pixels"])
	}

	encoded, ok := resp["mask"].(string)
	if !ok {
		t.Fatalf("mask = %T, want base64 string", resp["mask"])
	}
	mask, err := imageio.PNG{}.DecodeBase64(encoded)
	if err != nil {
		t.Fatalf("decode mask: %v", err)
	}
	if got := ndarray.FormatShape(mask.Shape()); got != "(4, 5)" {
		t.Errorf("mask shape = %s, want (4, 5)", got)
	}

	runs, _ := ts.runs.Recent(context.Background(), 1)
	if len(runs) != 1 || runs[0].Status != run.StatusOK || runs[0].Source != "http" {
		t.Errorf("recorded run = %+v", runs)
	}
}

func TestInvoke_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    func(t *testing.T) any
		status  int
		code    string
		pointer string
	}{
		{
			name:   "unknown method",
			path:   "/api/methods/frobnicate",
			body:   func(*testing.T) any { return map[string]any{} },
			status: 404,
			code:   "unknown_method",
		},
		{
			name: "missing input",
			path: "/api/methods/process",
			body: func(t *testing.T) any {
				return map[string]any{"image": encodedImage(t, 2, 2, 0)}
			},
			status: 422,
			code:   "arity_mismatch",
		},
		{
			name: "float threshold",
			path: "/api/methods/process",
			body: func(t *testing.T) any {
				return map[string]any{"image": encodedImage(t, 2, 2, 0), "threshold": 130.5}
			},
			status:  422,
			code:    "type_mismatch",
			pointer: "/threshold",
		},
		{
			name: "image not a string",
			path: "/api/methods/process",
			body: func(*testing.T) any {
				return map[string]any{"image": 7, "threshold": 1}
			},
			status:  422,
			code:    "type_mismatch",
			pointer: "/image",
		},
		{
			name: "unknown field",
			path: "/api/methods/process",
			body: func(t *testing.T) any {
				return map[string]any{"image": encodedImage(t, 2, 2, 0), "threshold": 1, "gain": 2}
			},
			status: 400,
			code:   "bad_request",
		},
		{
			name:   "not json",
			path:   "/api/methods/process",
			body:   func(*testing.T) any { return "{image:" },
			status: 400,
			code:   "bad_request",
		},
		{
			name: "bad base64",
			path: "/api/methods/process",
			body: func(*testing.T) any {
				return map[string]any{"image": "!!!", "threshold": 1}
			},
			status: 400,
			code:   "bad_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t, apihttp.RouterConfig{})
			rec := ts.do(t, "POST", tt.path, tt.body(t))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d, body: %s", rec.Code, tt.status, rec.Body)
			}
			doc := decodeError(t, rec)
			if doc.Errors[0].Code != tt.code {
				t.Errorf("code = %s, want %s", doc.Errors[0].Code, tt.code)
			}
			if tt.pointer != "" {
				if doc.Errors[0].Source == nil || doc.Errors[0].Source.Pointer != tt.pointer {
					t.Errorf("source = %+v, want pointer %s", doc.Errors[0].Source, tt.pointer)
				}
			}
		})
	}
}

func TestInvoke_GrayImageRejected(t *testing.T) {
	ts := setupTestServer(t, apihttp.RouterConfig{})

	gray := ndarray.New[uint8](3, 3)
	encoded, err := imageio.PNG{}.EncodeBase64(gray)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	rec := ts.do(t, "POST", "/api/methods/process", map[string]any{"image": encoded, "threshold": 1})
	if rec.Code != 422 {
		t.Fatalf("status = %d, want 422, body: %s", rec.Code, rec.Body)
	}
	if doc := decodeError(t, rec); doc.Errors[0].Code != "type_mismatch" {
		t.Errorf("code = %s, want type_mismatch", doc.Errors[0].Code)
	}
}

// A gray image three pixels wide decodes to (h, 3) and satisfies the
// trailing dimension, but cannot be segmented.
func TestInvoke_NarrowGrayImage(t *testing.T) {
	ts := setupTestServer(t, apihttp.RouterConfig{})

	encoded, err := imageio.PNG{}.EncodeBase64(ndarray.New[uint8](4, 3))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	rec := ts.do(t, "POST", "/api/methods/process", map[string]any{"image": encoded, "threshold": 1})
	if rec.Code != 422 {
		t.Fatalf("status = %d, want 422, body: %s", rec.Code, rec.Body)
	}
	doc := decodeError(t, rec)
	if doc.Errors[0].Code != "type_mismatch" {
		t.Errorf("code = %s, want type_mismatch", doc.Errors[0].Code)
	}

	r, err := ts.runs.Get(context.Background(), "run_1")
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if r.Status != run.StatusInputError {
		t.Errorf("run status = %s, want input_error", r.Status)
	}
}

func TestInvoke_OutputViolation(t *testing.T) {
	ts := setupTestServer(t, apihttp.RouterConfig{})

	err := ts.detector.Register("process", func(ctx context.Context, values []any) ([]any, error) {
		return []any{ndarray.New[uint8](2, 2), 1.5}, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec := ts.do(t, "POST", "/api/methods/process", map[string]any{
		"image":     encodedImage(t, 2, 2, 0),
		"threshold": 1,
	})
	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500, body: %s", rec.Code, rec.Body)
	}
	if doc := decodeError(t, rec); doc.Errors[0].Code != "contract_violation" {
		t.Errorf("code = %s, want contract_violation", doc.Errors[0].Code)
	}

	runs, _ := ts.runs.Recent(context.Background(), 1)
	if len(runs) != 1 || runs[0].Status != run.StatusOutputError {
		t.Errorf("recorded run = %+v, want output_error", runs)
	}
}

func TestInvoke_ImplementationError(t *testing.T) {
	ts := setupTestServer(t, apihttp.RouterConfig{})
	ts.detector.Register("process", func(ctx context.Context, values []any) ([]any, error) {
		return nil, errors.New("gpu on fire")
	})

	rec := ts.do(t, "POST", "/api/methods/process", map[string]any{
		"image":     encodedImage(t, 2, 2, 0),
		"threshold": 1,
	})
	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	doc := decodeError(t, rec)
	if doc.Errors[0].Code != "internal_error" {
		t.Errorf("code = %s, want internal_error", doc.Errors[0].Code)
	}
	if strings.Contains(doc.Errors[0].Detail, "gpu") {
		t.Error("internal error detail leaks implementation error")
	}
}

func TestInvoke_BodyTooLarge(t *testing.T) {
	s, _ := resources.Load()
	d, err := app.NewDetector(app.DetectorDeps{
		Spec:   s,
		Clock:  clock.NewFake(baseTime),
		IDGen:  idgen.NewSequential("run_"),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	h := apihttp.NewModuleHandler(apihttp.HandlerDeps{
		Module:       d,
		Codec:        imageio.PNG{},
		Clock:        clock.NewFake(baseTime),
		Logger:       zerolog.Nop(),
		MaxBodyBytes: 16,
	})
	router := apihttp.NewRouter(h, apihttp.NewHealthHandler(nil), zerolog.Nop(), apihttp.RouterConfig{})

	body := `{"image": "` + strings.Repeat("A", 64) + `", "threshold": 1}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/methods/process", strings.NewReader(body)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestInvoke_ImageTooLarge(t *testing.T) {
	s, _ := resources.Load()
	runs := memory.NewRunStore(10)
	d, err := app.NewDetector(app.DetectorDeps{
		Spec:   s,
		Runs:   runs,
		Clock:  clock.NewFake(baseTime),
		IDGen:  idgen.NewSequential("run_"),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	h := apihttp.NewModuleHandler(apihttp.HandlerDeps{
		Module: d,
		Codec:  imageio.PNG{MaxPixels: 16},
		Clock:  clock.NewFake(baseTime),
		Logger: zerolog.Nop(),
	})
	router := apihttp.NewRouter(h, apihttp.NewHealthHandler(nil), zerolog.Nop(), apihttp.RouterConfig{})

	body := `{"image": "` + encodedImage(t, 4, 5, 200) + `", "threshold": 1}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/methods/process", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "image too large") {
		t.Errorf("body = %s, want image too large", rec.Body.String())
	}
	if runs.Len() != 0 {
		t.Errorf("rejected upload recorded %d runs", runs.Len())
	}
}

func TestGetSpecAndModule(t *testing.T) {
	ts := setupTestServer(t, apihttp.RouterConfig{})

	rec := ts.do(t, "GET", "/api/spec", nil)
	if rec.Code != 200 {
		t.Fatalf("spec status = %d", rec.Code)
	}
	var s struct {
		Methods map[string]struct {
			Input []struct {
				Name string `json:"name"`
				Type string `json:"type"`
			} `json:"input"`
		} `json:"methods"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decode spec: %v", err)
	}
	in := s.Methods["process"].Input
	if len(in) != 2 || in[0].Name != "image" || in[0].Type != "ndarray/uint8///3" {
		t.Errorf("process inputs = %+v", in)
	}

	rec = ts.do(t, "GET", "/api/module", nil)
	if rec.Code != 200 {
		t.Fatalf("module status = %d", rec.Code)
	}
	var m apihttp.ModuleResponse
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode module: %v", err)
	}
	if m.Name != "Bright Pixel Segmenter" || m.Version != "1.0.0" {
		t.Errorf("module = %+v", m)
	}
	if len(m.Methods) != 1 || m.Methods[0] != "process" {
		t.Errorf("methods = %v, want [process]", m.Methods)
	}
}

func TestRuns(t *testing.T) {
	ts := setupTestServer(t, apihttp.RouterConfig{})

	for i := 0; i < 3; i++ {
		ts.do(t, "POST", "/api/methods/process", map[string]any{
			"image":     encodedImage(t, 2, 2, 200),
			"threshold": 130,
		})
	}
	ts.do(t, "POST", "/api/methods/process", map[string]any{"threshold": 130})

	t.Run("list", func(t *testing.T) {
		rec := ts.do(t, "GET", "/api/runs?limit=2", nil)
		if rec.Code != 200 {
			t.Fatalf("status = %d, body: %s", rec.Code, rec.Body)
		}
		var doc struct {
			Data []struct {
				ID         string         `json:"id"`
				Type       string         `json:"type"`
				Attributes map[string]any `json:"attributes"`
			} `json:"data"`
			Meta map[string]any `json:"meta"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(doc.Data) != 2 {
			t.Fatalf("len(data) = %d, want 2", len(doc.Data))
		}
		if doc.Data[0].ID != "run_4" || doc.Data[0].Attributes["status"] != "input_error" {
			t.Errorf("newest run = %+v", doc.Data[0])
		}
		if doc.Data[1].Type != "runs" || doc.Data[1].Attributes["status"] != "ok" {
			t.Errorf("second run = %+v", doc.Data[1])
		}
		outputs, _ := doc.Data[1].Attributes["outputs"].(map[string]any)
		if outputs["#bright_pixels"] != float64(4) {
			t.Errorf("outputs = %v, want #bright_pixels 4", outputs)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, q := range []string{"0", "1001", "ten"} {
			rec := ts.do(t, "GET", "/api/runs?limit="+q, nil)
			if rec.Code != 400 {
				t.Errorf("limit=%s: status = %d, want 400", q, rec.Code)
			}
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := ts.do(t, "GET", "/api/runs/run_1", nil)
		if rec.Code != 200 {
			t.Fatalf("status = %d", rec.Code)
		}
		rec = ts.do(t, "GET", "/api/runs/run_99", nil)
		if rec.Code != 404 {
			t.Errorf("missing run status = %d, want 404", rec.Code)
		}
	})

	t.Run("summary", func(t *testing.T) {
		rec := ts.do(t, "GET", "/api/runs/summary", nil)
		if rec.Code != 200 {
			t.Fatalf("status = %d", rec.Code)
		}
		var s run.Summary
		if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if s.Total != 4 || s.ByStatus[run.StatusOK] != 3 || s.ByStatus[run.StatusInputError] != 1 {
			t.Errorf("summary = %+v", s)
		}

		rec = ts.do(t, "GET", "/api/runs/summary?window=later", nil)
		if rec.Code != 400 {
			t.Errorf("bad window status = %d, want 400", rec.Code)
		}
	})
}

func TestRuns_Disabled(t *testing.T) {
	s, _ := resources.Load()
	d, _ := app.NewDetector(app.DetectorDeps{
		Spec:   s,
		Clock:  clock.NewFake(baseTime),
		IDGen:  idgen.NewSequential("run_"),
		Logger: zerolog.Nop(),
	})
	h := apihttp.NewModuleHandler(apihttp.HandlerDeps{Module: d, Codec: imageio.PNG{}, Logger: zerolog.Nop()})
	router := apihttp.NewRouter(h, apihttp.NewHealthHandler(nil), zerolog.Nop(), apihttp.RouterConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

type readiness struct{ err error }

func (r readiness) Ready(context.Context) error { return r.err }

func TestHealth(t *testing.T) {
	s, _ := resources.Load()
	d, _ := app.NewDetector(app.DetectorDeps{
		Spec: s, Clock: clock.NewFake(baseTime), IDGen: idgen.NewSequential(""), Logger: zerolog.Nop(),
	})
	h := apihttp.NewModuleHandler(apihttp.HandlerDeps{Module: d, Codec: imageio.PNG{}, Logger: zerolog.Nop()})

	tests := []struct {
		name   string
		ready  error
		path   string
		status int
	}{
		{"liveness", nil, "/health", 200},
		{"ready", nil, "/health/ready", 200},
		{"not ready", errors.New("database is locked"), "/health/ready", 503},
		{"liveness ignores readiness", errors.New("database is locked"), "/health/live", 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := apihttp.NewRouter(h, apihttp.NewHealthHandler(readiness{tt.ready}), zerolog.Nop(), apihttp.RouterConfig{})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	ts := setupTestServer(t, apihttp.RouterConfig{Version: "1.2.3"})

	rec := ts.do(t, "GET", "/version", nil)
	var v apihttp.VersionResponse
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := apihttp.VersionResponse{
		Version:       "1.2.3",
		Service:       "amodule",
		Module:        "Bright Pixel Segmenter",
		ModuleVersion: "1.0.0",
	}
	if v != want {
		t.Errorf("version = %+v, want %+v", v, want)
	}
}
