package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-fatigue/fatigue"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/config"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/fatiguetest"
	"github.com/RyanBlaney/sonido-fatigue/fault"
	"github.com/RyanBlaney/sonido-fatigue/logging"
	"github.com/RyanBlaney/sonido-fatigue/metrics"
)

type stubPredictor struct {
	predictions []fatigue.Prediction
	err         error
	gotData     []byte
	gotFields   logging.Fields
}

func (s *stubPredictor) Predict(ctx context.Context, data []byte) ([]fatigue.Prediction, error) {
	s.gotData = data
	s.gotFields, _ = logging.FieldsFromContext(ctx)
	return s.predictions, s.err
}

func newTestServer(p Predictor) *Server {
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultConfig().Server
	cfg.MaxUploadBytes = 1 << 20
	return New(cfg, p, prometheus.NewRegistry())
}

// upload builds a multipart request with one part named field
func upload(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename == "" {
		// an empty file input submits the part without a filename
		require.NoError(t, w.WriteField(field, ""))
	} else {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPredictSuccess(t *testing.T) {
	stub := &stubPredictor{predictions: []fatigue.Prediction{
		{StartTime: "0s", EndTime: "4s", Label: "Fatigue"},
	}}
	s := newTestServer(stub)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, upload(t, FileField, "voice.wav", []byte("RIFF....")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"predictions":[{"start_time":"0s","end_time":"4s","label":"Fatigue"}]}`, rec.Body.String())
	assert.Equal(t, []byte("RIFF...."), stub.gotData)

	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, stub.gotFields["request_id"])
}

func TestPredictKeepsCallerRequestID(t *testing.T) {
	stub := &stubPredictor{predictions: []fatigue.Prediction{}}
	s := newTestServer(stub)

	id := uuid.NewString()
	req := upload(t, FileField, "voice.wav", []byte{1})
	req.Header.Set(RequestIDHeader, id)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, id, stub.gotFields["request_id"])
}

func TestPredictMissingPart(t *testing.T) {
	s := newTestServer(&stubPredictor{})

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"wrong field", upload(t, "audio", "voice.wav", []byte{1})},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader([]byte("raw")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, tt.req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, MsgNoFilePart, decodeError(t, rec).Error)
		})
	}
}

func TestPredictNoFileSelected(t *testing.T) {
	s := newTestServer(&stubPredictor{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, upload(t, FileField, "", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No file selected."}`, rec.Body.String())
}

func TestPredictErrorStatus(t *testing.T) {
	tests := []struct {
		kind   fault.Kind
		status int
	}{
		{fault.KindInput, http.StatusBadRequest},
		{fault.KindDecode, http.StatusBadRequest},
		{fault.KindInsufficientAudio, http.StatusBadRequest},
		{fault.KindExtraction, http.StatusBadRequest},
		{fault.KindScaling, http.StatusInternalServerError},
		{fault.KindInference, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fault.New(tt.kind, "something broke")
			s := newTestServer(&stubPredictor{err: err})

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, upload(t, FileField, "voice.wav", []byte{1}))

			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, kindMessages[tt.kind], body.Error)
			assert.Equal(t, err.Error(), body.Details)
		})
	}
}

func TestPredictTooLarge(t *testing.T) {
	s := newTestServer(&stubPredictor{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, upload(t, FileField, "voice.wav", make([]byte, 2<<20)))

	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)
}

func TestPredictRemovesSpooledUpload(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	gin.SetMode(gin.TestMode)
	stub := &stubPredictor{predictions: []fatigue.Prediction{}}
	srv := httptest.NewServer(New(config.DefaultConfig().Server, stub, prometheus.NewRegistry()).Handler())
	defer srv.Close()

	// larger than the in-memory limit, so the part is written to disk
	req := upload(t, FileField, "long.wav", make([]byte, 40<<20))
	out, err := http.NewRequest(http.MethodPost, srv.URL+"/predict", req.Body)
	require.NoError(t, err)
	out.Header.Set("Content-Type", req.Header.Get("Content-Type"))

	resp, err := srv.Client().Do(out)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(&stubPredictor{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictEndToEnd(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Decoder.EnableFFmpeg = false

	reg := prometheus.NewRegistry()
	p, err := fatigue.NewPipeline(cfg, fatiguetest.Artifacts(t, cfg.Audio.WindowFrames), metrics.New(reg))
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	s := New(cfg.Server, p, reg)

	const sr = 22050
	path := fatiguetest.WriteWAV(t, fatiguetest.Voiced(6*sr, sr, 150), sr)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, upload(t, FileField, "speech.wav", data))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Predictions, 1)
	assert.Equal(t, "0s", out.Predictions[0].StartTime)
	assert.Equal(t, "4s", out.Predictions[0].EndTime)
	assert.Contains(t, fatiguetest.Labels, out.Predictions[0].Label)

	// too short for a window
	short := fatiguetest.WriteWAV(t, fatiguetest.Voiced(sr, sr, 150), sr)
	data, err = os.ReadFile(short)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, upload(t, FileField, "short.wav", data))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, kindMessages[fault.KindInsufficientAudio], decodeError(t, rec).Error)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "fatigue_requests_total")
}
