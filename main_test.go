package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-scanner/pkg/analysis"
	"product-scanner/pkg/camera"
	"product-scanner/pkg/camera/camerafake"
	"product-scanner/pkg/capture"
	"product-scanner/pkg/config"
	"product-scanner/pkg/detect"
	"product-scanner/pkg/resolve"
	"product-scanner/pkg/scanner"
	"product-scanner/pkg/storage"
	"product-scanner/pkg/types"
	"product-scanner/pkg/upload"
	imageutil "product-scanner/pkg/utils/image"
	"product-scanner/pkg/webdav"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type fixture struct {
	srv *server
	h   http.Handler
	dev *camerafake.Device
}

func newFixture(t *testing.T, analysisURL string) *fixture {
	cfg := config.Default()
	cfg.Server.Dir = filepath.Join(t.TempDir(), "store")
	cfg.Server.NTPServer = ""
	cfg.Server.MaxUpload = 1 << 20
	cfg.Device.StartTimeout = 200 * time.Millisecond
	cfg.Record.TempDir = t.TempDir()
	cfg.Analysis.Endpoint = analysisURL
	cfg.Analysis.APIKey = "key"

	stg, err := storage.New(cfg.Server.Dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := newServer(cfg, stg, webdav.New(ctx, 0, stg.Dir()))

	scfg := scanner.FromConfig(cfg)
	scfg.ShutterCue = 10 * time.Millisecond
	dev := camerafake.NewDevice(camera.Capabilities{})
	nothing := detect.DetectorFunc(func(_ image.Image) ([]detect.Detection, error) { return nil, nil })
	srv.scanner = scanner.New(scfg, dev, nothing, resolve.New(resolve.Config{Timeout: time.Second}, nil), srv.hooks())
	srv.analyzer = analysis.New(analysisConfig(cfg.Analysis), nil)
	t.Cleanup(func() {
		srv.close()
		cancel()
	})

	return &fixture{srv: srv, h: srv.router(), dev: dev}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return f.serve(t, req)
}

func (f *fixture) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}

	return w, env
}

func (f *fixture) state(t *testing.T) scanner.Snapshot {
	w, env := f.do(t, http.MethodGet, "/api/scanner", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap scanner.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))

	return snap
}

func TestScanSession(t *testing.T) {
	f := newFixture(t, "")

	assert.Equal(t, scanner.StateIdle, f.state(t).State)

	w, env := f.do(t, http.MethodPost, "/api/scanner/capture", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "error", env.Status)

	w, _ = f.do(t, http.MethodPost, "/api/scanner/start", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, scanner.StateLive, f.state(t).State)

	w, env = f.do(t, http.MethodPost, "/api/scanner/capture", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", env.Status)
	var a types.Artifact
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, capture.StillName, a.Name)
	assert.Equal(t, types.SourceFrame, a.Source)
	assert.Equal(t, scanner.StateReviewing, f.state(t).State)

	w, _ = f.do(t, http.MethodGet, "/api/scanner/artifact", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, capture.StillMIME, w.Header().Get("Content-Type"))
	assert.Equal(t, a.Size, w.Body.Len())

	// the captured still is archived in the background
	require.Eventually(t, func() bool {
		list, err := f.srv.stg.List()
		return err == nil && len(list) == 1
	}, 3*time.Second, 10*time.Millisecond)

	w, env = f.do(t, http.MethodGet, "/api/artifacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var records []storage.Record
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)

	w, _ = f.do(t, http.MethodGet, "/api/artifacts/"+records[0].Name, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, a.Size, w.Body.Len())

	w, _ = f.do(t, http.MethodGet, "/api/artifacts/missing.jpg", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/scanner/retake", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, scanner.StateLive, f.state(t).State)
	assert.Equal(t, 2, f.dev.Opened())

	w, _ = f.do(t, http.MethodGet, "/api/scanner/artifact", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodDelete, "/api/scanner", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, scanner.StateIdle, f.state(t).State)
	assert.True(t, f.dev.Last().Closed())
}

func TestStartFailure(t *testing.T) {
	f := newFixture(t, "")
	f.dev.OpenErr = fmt.Errorf("open /dev/video0: %w", camera.ErrPermissionDenied)

	w, env := f.do(t, http.MethodPost, "/api/scanner/start", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "error", env.Status)
	assert.Contains(t, w.Body.String(), camera.ErrPermissionDenied.Error())
	assert.Equal(t, scanner.StateIdle, f.state(t).State)
}

func TestCaptureEmptyFrame(t *testing.T) {
	f := newFixture(t, "")
	w, _ := f.do(t, http.MethodPost, "/api/scanner/start", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.dev.Last().SetFrame(&camera.Frame{Format: camera.FormatJPEG})

	w, env := f.do(t, http.MethodPost, "/api/scanner/capture", "")
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, scanner.StateLive, f.state(t).State)
}

func TestControlRequests(t *testing.T) {
	f := newFixture(t, "")
	w, _ := f.do(t, http.MethodPost, "/api/scanner/start", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = f.do(t, http.MethodPost, "/api/scanner/focus", `{"x":120,"y":50}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = f.do(t, http.MethodPost, "/api/scanner/focus", `{"x":50}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = f.do(t, http.MethodPost, "/api/scanner/focus", `{"x":50,"y":50}`)
	assert.Equal(t, http.StatusOK, w.Code)

	// the fake camera reports no zoom range and no torch
	w, _ = f.do(t, http.MethodPut, "/api/scanner/zoom", `{"value":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w, _ = f.do(t, http.MethodPut, "/api/scanner/zoom", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = f.do(t, http.MethodPut, "/api/scanner/flash", `{"on":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = f.do(t, http.MethodPut, "/api/scanner/mode", `{"mode":"slow-motion"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = f.do(t, http.MethodPut, "/api/scanner/mode", `{"mode":"video"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, scanner.ModeVideo, f.state(t).Mode)

	w, _ = f.do(t, http.MethodDelete, "/api/scanner/record", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRecordRoutes(t *testing.T) {
	f := newFixture(t, "")
	w, _ := f.do(t, http.MethodPost, "/api/scanner/start", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = f.do(t, http.MethodPut, "/api/scanner/mode", `{"mode":"video"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/scanner/record", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, scanner.StateRecording, f.state(t).State)

	stream := f.dev.Last()
	for i := 0; i < 5; i++ {
		stream.SetImage(camerafake.Gray(64, 48, uint8(40*i)))
		time.Sleep(120 * time.Millisecond)
	}

	w, env := f.do(t, http.MethodDelete, "/api/scanner/record", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var a types.Artifact
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, types.KindVideo, a.Kind)
	assert.Equal(t, types.SourceRecording, a.Source)
	assert.Equal(t, scanner.StateReviewing, f.state(t).State)
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, camerafake.Gray(8, 8, 200)))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, name string, data []byte) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/scanner/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	f := newFixture(t, "")

	w, env := f.serve(t, uploadRequest(t, "label.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec storage.Record
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "image/png", rec.MIME)
	assert.Equal(t, types.SourceUpload, rec.Source)

	w, _ = f.serve(t, uploadRequest(t, "notes.png", []byte("just some text")))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w, _ = f.serve(t, uploadRequest(t, "big.png", make([]byte, 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/artifacts/latest", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodDelete, "/api/artifacts/"+rec.Name, "")
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodDelete, "/api/artifacts/"+rec.Name, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyze(t *testing.T) {
	var got string
	ai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"a bottle of water"}]}}]}`))
	}))
	defer ai.Close()
	f := newFixture(t, ai.URL)

	w, _ := f.do(t, http.MethodPost, "/api/scanner/analyze", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "nothing under review")

	w, env := f.serve(t, uploadRequest(t, "label.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, w.Code)
	var rec storage.Record
	require.NoError(t, json.Unmarshal(env.Data, &rec))

	w, env = f.do(t, http.MethodPost, "/api/scanner/analyze", fmt.Sprintf(`{"name":%q,"code":"5000112637922"}`, rec.Name))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res analysis.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "a bottle of water", res.Text)
	assert.Contains(t, got, "5000112637922")
	assert.Contains(t, got, "image/png")

	w, _ = f.do(t, http.MethodPost, "/api/scanner/analyze", `{"name":"missing.png"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebdavToggle(t *testing.T) {
	f := newFixture(t, "")

	w, env := f.do(t, http.MethodPut, "/api/device/webdav?op=start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", env.Status)
	assert.True(t, f.srv.dav.Running())

	w, _ = f.do(t, http.MethodPut, "/api/device/webdav?op=shutdown", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.srv.dav.Running())

	w, _ = f.do(t, http.MethodPut, "/api/device/webdav?op=restart", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeviceRoutes(t *testing.T) {
	f := newFixture(t, "")

	w, _ := f.do(t, http.MethodGet, "/api/device/status", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/device/controls", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/device/realtime/video", "")
	assert.Equal(t, http.StatusConflict, w.Code, "no session")

	w, _ = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scanner_state")
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("capture: %w", scanner.ErrInvalidState), http.StatusConflict},
		{scanner.ErrNoSession, http.StatusConflict},
		{scanner.ErrInvalidPoint, http.StatusBadRequest},
		{camera.ErrCameraUnavailable, http.StatusServiceUnavailable},
		{camera.ErrPlaybackFailed, http.StatusServiceUnavailable},
		{camera.ErrNotSupported, http.StatusUnprocessableEntity},
		{capture.ErrRecordingUnsupported, http.StatusUnprocessableEntity},
		{capture.ErrNoFrame, http.StatusConflict},
		{fmt.Errorf("frame 3: %w", imageutil.ErrEmptyFrame), http.StatusConflict},
		{fmt.Errorf("%w: mjpeg: short write", capture.ErrEncoderFault), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: bad geometry", capture.ErrEncoderInit), http.StatusUnprocessableEntity},
		{storage.ErrNotFound, http.StatusNotFound},
		{upload.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{analysis.ErrFailed, http.StatusBadGateway},
		{analysis.ErrNoAPIKey, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusOf(c.err), c.err.Error())
	}
}
