package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/wound-api/internal/catalog"
	"github.com/Brownie44l1/wound-api/internal/handlers"
	"github.com/Brownie44l1/wound-api/internal/imaging"
	"github.com/Brownie44l1/wound-api/internal/model"
	"github.com/Brownie44l1/wound-api/internal/predict"
)

const origin = "http://localhost:3000"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// mockPredictor is a Predictor whose behaviour is set per test.
type mockPredictor struct {
	available   bool
	PredictFunc func(ctx context.Context, data []byte) (predict.Result, error)
}

func (m *mockPredictor) Ping() string { return predict.PingMessage }

func (m *mockPredictor) Available() bool { return m.available }

func (m *mockPredictor) Predict(ctx context.Context, data []byte) (predict.Result, error) {
	return m.PredictFunc(ctx, data)
}

type stubClassifier struct{ probs []float32 }

func (s stubClassifier) Predict(context.Context, imaging.PixelTensor) ([]float32, error) {
	return append([]float32(nil), s.probs...), nil
}

func newRouter(svc handlers.Predictor, limit int64) *gin.Engine {
	return handlers.NewRouter(svc, handlers.RouterConfig{
		AllowedOrigin:  origin,
		MaxUploadBytes: limit,
	}, zap.NewNop())
}

func newServiceRouter(t *testing.T, state model.State) *gin.Engine {
	t.Helper()

	cat, err := catalog.Default()
	require.NoError(t, err)
	return newRouter(predict.NewService(state, cat, zap.NewNop()), 10<<20)
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.Copy(part, bytes.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 150, G: 60, B: 70, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	t.Parallel()

	for _, available := range []bool{true, false} {
		available := available
		t.Run(fmt.Sprintf("available=%v", available), func(t *testing.T) {
			t.Parallel()

			router := newRouter(&mockPredictor{available: available}, 1<<20)
			w := serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"message":"Wound classification service is running!"}`, w.Body.String())
		})
	}
}

func TestPredict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		available      bool
		mockFunc       func(ctx context.Context, data []byte) (predict.Result, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:      "success",
			available: true,
			mockFunc: func(ctx context.Context, data []byte) (predict.Result, error) {
				return predict.Result{Class: "Cut", Confidence: 91.5, Suggestions: []string{"a", "b"}}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"Class":"Cut","Confidence":91.5,"Suggestions":["a","b"]}`,
		},
		{
			name:           "model unavailable",
			available:      false,
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"detail":"Model failed to load."}`,
		},
		{
			name:      "invalid image",
			available: true,
			mockFunc: func(ctx context.Context, data []byte) (predict.Result, error) {
				return predict.Result{}, fmt.Errorf("%w: png: invalid format", predict.ErrInvalidImage)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"detail":"Invalid image file."}`,
		},
		{
			name:      "prediction failed hides cause",
			available: true,
			mockFunc: func(ctx context.Context, data []byte) (predict.Result, error) {
				return predict.Result{}, fmt.Errorf("%w: onnxruntime exploded at 0xdeadbeef", predict.ErrPredictionFailed)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"detail":"Error processing the image."}`,
		},
		{
			name:      "unclassified error",
			available: true,
			mockFunc: func(ctx context.Context, data []byte) (predict.Result, error) {
				return predict.Result{}, errors.New("boom")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"detail":"Error processing the image."}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newRouter(&mockPredictor{available: tt.available, PredictFunc: tt.mockFunc}, 1<<20)
			w := serve(router, multipartRequest(t, handlers.FormField, "wound.png", []byte("bytes")))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestPredict_PassesUploadBytes(t *testing.T) {
	t.Parallel()

	var got []byte
	mock := &mockPredictor{available: true, PredictFunc: func(_ context.Context, data []byte) (predict.Result, error) {
		got = data
		return predict.Result{Class: "Normal", Suggestions: []string{}}, nil
	}}

	w := serve(newRouter(mock, 1<<20), multipartRequest(t, handlers.FormField, "x.jpg", []byte("raw-upload")))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("raw-upload"), got)
}

func TestPredict_MissingFile(t *testing.T) {
	t.Parallel()

	router := newRouter(&mockPredictor{available: true}, 1<<20)

	w := serve(router, multipartRequest(t, "image", "wound.png", []byte("bytes")))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"detail":"No file uploaded."}`, w.Body.String())

	w = serve(router, httptest.NewRequest(http.MethodPost, "/predict", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPredict_TooLarge(t *testing.T) {
	t.Parallel()

	router := newRouter(&mockPredictor{available: true}, 1024)

	w := serve(router, multipartRequest(t, handlers.FormField, "big.png", bytes.Repeat([]byte{0xff}, 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"detail":"Uploaded file is too large."}`, w.Body.String())

	w = serve(router, multipartRequest(t, handlers.FormField, "huge.png", bytes.Repeat([]byte{0xff}, 256<<10)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPredict_PanicIsRecovered(t *testing.T) {
	t.Parallel()

	mock := &mockPredictor{available: true, PredictFunc: func(context.Context, []byte) (predict.Result, error) {
		panic("nil map")
	}}

	w := serve(newRouter(mock, 1<<20), multipartRequest(t, handlers.FormField, "x.png", []byte("x")))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"Error processing the image."}`, w.Body.String())
}

func TestPredict_EndToEnd(t *testing.T) {
	t.Parallel()

	router := newServiceRouter(t, model.Loaded{Classifier: stubClassifier{
		probs: []float32{0.01, 0.01, 0.01, 0.01, 0.01, 0.9123, 0.01, 0.01, 0.01, 0.0177},
	}})

	var first predictBody
	for i := 0; i < 2; i++ {
		w := serve(router, multipartRequest(t, handlers.FormField, "wound.png", solidPNG(t, 100, 100)))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var body predictBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Laceration", body.Class)
		assert.Equal(t, 91.23, body.Confidence)
		assert.NotEmpty(t, body.Suggestions)

		if i == 0 {
			first = body
		} else {
			assert.Equal(t, first, body)
		}
	}

	w := serve(router, multipartRequest(t, handlers.FormField, "notes.txt", []byte("just some text")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":"Invalid image file."}`, w.Body.String())
}

func TestPredict_EndToEndModelUnavailable(t *testing.T) {
	t.Parallel()

	router := newServiceRouter(t, model.Unavailable{Reason: errors.New("open model/1.onnx: no such file or directory")})

	w := serve(router, multipartRequest(t, handlers.FormField, "wound.png", solidPNG(t, 10, 10)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"Model failed to load."}`, w.Body.String())

	w = serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

type predictBody struct {
	Class       string   `json:"Class"`
	Confidence  float64  `json:"Confidence"`
	Suggestions []string `json:"Suggestions"`
}

func TestCORS(t *testing.T) {
	t.Parallel()

	router := newRouter(&mockPredictor{available: true}, 1<<20)

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := serve(router, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = serve(router, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	router := newRouter(&mockPredictor{available: true}, 1<<20)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, w.Header().Get(handlers.RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(handlers.RequestIDHeader, "trace-123")
	w = serve(router, req)
	assert.Equal(t, "trace-123", w.Header().Get(handlers.RequestIDHeader))
}
