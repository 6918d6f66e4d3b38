package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"kartd/internal/predictor"
	"kartd/pkg/types"
)

type mockService struct {
	pred     types.Prediction
	err      error
	status   types.StatusResponse
	ready    bool
	mu       sync.Mutex
	gotImage string
	gotBytes []byte
}

func (m *mockService) Classify(ctx context.Context, image string) (types.Prediction, error) {
	m.mu.Lock()
	m.gotImage = image
	m.mu.Unlock()
	return m.pred, m.err
}

func (m *mockService) ClassifyBytes(ctx context.Context, raw []byte) (types.Prediction, error) {
	m.mu.Lock()
	m.gotBytes = append([]byte(nil), raw...)
	m.mu.Unlock()
	return m.pred, m.err
}

func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

// invalidImage returns an error the predictor would classify as bad input.
func invalidImage(t *testing.T) error {
	t.Helper()
	p := predictor.New(predictor.Config{})
	_, err := p.Classify(context.Background(), "###")
	if !predictor.IsInvalidImage(err) {
		t.Fatalf("expected invalid image error, got %v", err)
	}
	return err
}

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var e types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	if e.Code != w.Code {
		t.Fatalf("error code %d does not match status %d", e.Code, w.Code)
	}
	return e
}

func TestPredictSuccess(t *testing.T) {
	svc := &mockService{pred: types.Prediction{KartType: "Flame_Flyer", Confidence: 0.91}}
	w := postJSON(NewMux(svc), "/predict", `{"image":"data:image/png;base64,AAAA"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.PredictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !body.Success || body.Predictions == nil || body.Predictions.KartType != "Flame_Flyer" || body.Predictions.Confidence != 0.91 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"kartType":"Flame_Flyer"`) {
		t.Fatalf("expected camelCase kartType in %s", w.Body.String())
	}
	if svc.gotImage != "data:image/png;base64,AAAA" {
		t.Fatalf("service got %q", svc.gotImage)
	}
}

func TestPredictWithoutContentType(t *testing.T) {
	svc := &mockService{pred: types.Prediction{KartType: "B_Dasher", Confidence: 0.5}}
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(`{"image":"x"}`))
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestPredictInvalidImageMaps400(t *testing.T) {
	svc := &mockService{err: invalidImage(t)}
	w := postJSON(NewMux(svc), "/predict", `{"image":"###"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if e := decodeError(t, w); e.Error != predictor.InvalidImageMessage {
		t.Fatalf("error=%q", e.Error)
	}
}

func TestPredictMissingImage(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/predict", `{"picture":"abc"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if e := decodeError(t, w); e.Error != "No image provided" {
		t.Fatalf("error=%q", e.Error)
	}
}

func TestPredictEmptyImageReachesService(t *testing.T) {
	svc := &mockService{err: invalidImage(t)}
	w := postJSON(NewMux(svc), "/predict", `{"image":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestPredictBadJSON(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/predict", "not-json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	decodeError(t, w)
}

func TestPredictUnsupportedMediaType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(`{"image":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestContentTypeCaseInsensitive(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(`{"image":"x"}`))
	req.Header.Set("Content-Type", "Application/JSON; charset=utf-8")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with mixed-case content-type, got %d", w.Code)
	}
}

func TestPredictBodyTooLarge(t *testing.T) {
	defer SetMaxBodyBytes(0)
	SetMaxBodyBytes(64)
	w := postJSON(NewMux(&mockService{}), "/predict", `{"image":"`+strings.Repeat("A", 200)+`"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestPredictErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"generic", errors.New("boom"), http.StatusInternalServerError},
		{"http error", mockHTTPError{msg: "gone", code: http.StatusServiceUnavailable}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(NewMux(&mockService{err: tc.err}), "/predict", `{"image":"x"}`)
			if w.Code != tc.want {
				t.Fatalf("status=%d want %d", w.Code, tc.want)
			}
			if e := decodeError(t, w); e.Error != tc.err.Error() {
				t.Fatalf("error=%q", e.Error)
			}
		})
	}
}

func multipartRequest(t *testing.T, field string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "kart.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(content)
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/predict/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPredictImageUpload(t *testing.T) {
	svc := &mockService{pred: types.Prediction{KartType: "Cheep_Charge", Confidence: 0.88}}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, multipartRequest(t, "image", []byte("raw-bytes")))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if string(svc.gotBytes) != "raw-bytes" {
		t.Fatalf("service got %q", svc.gotBytes)
	}
}

func TestPredictImageMissingField(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, multipartRequest(t, "file", []byte("x")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestPredictImageNotMultipart(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/predict/image", `{"image":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRootAndHealth(t *testing.T) {
	h := NewMux(&mockService{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), WelcomeMessage) {
		t.Fatalf("root: %d %s", w.Code, w.Body.String())
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var hr types.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hr); err != nil || hr.Status != "healthy" {
		t.Fatalf("health: %v %s", err, w.Body.String())
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", FallbacksTotal: 2}}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.State != "ready" || body.FallbacksTotal != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{ready: true}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	w = httptest.NewRecorder()
	NewMux(&mockService{ready: false}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	SetCORSOptions(true, []string{"http://localhost:3000"}, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)

	h := NewMux(&mockService{ready: true})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected CORS header for foreign origin: %q", got)
	}
}
