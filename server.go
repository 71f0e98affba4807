package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"
	"github.com/vladimirvivien/go4vl/v4l2"

	"product-scanner/pkg/analysis"
	"product-scanner/pkg/camera"
	"product-scanner/pkg/capture"
	"product-scanner/pkg/config"
	"product-scanner/pkg/focus"
	"product-scanner/pkg/metrics"
	"product-scanner/pkg/ov"
	"product-scanner/pkg/scanner"
	"product-scanner/pkg/storage"
	"product-scanner/pkg/types"
	"product-scanner/pkg/upload"
	imageutil "product-scanner/pkg/utils/image"
	"product-scanner/pkg/utils/ps"
	"product-scanner/pkg/webdav"
)

const (
	webDavStart    = "start"
	webDavShutdown = "shutdown"

	archiveQueue = 8
)

type controlReader func() (types.CameraSettings, []v4l2.Control, error)

type server struct {
	cfg      config.Config
	stg      *storage.Storage
	dav      *webdav.Webdav
	scanner  *scanner.Scanner
	analyzer *analysis.Client
	controls controlReader

	archive  chan types.Artifact
	archived sync.WaitGroup

	lock     sync.Mutex
	lastCode string
}

func newServer(cfg config.Config, stg *storage.Storage, dav *webdav.Webdav) *server {
	s := &server{
		cfg:     cfg,
		stg:     stg,
		dav:     dav,
		archive: make(chan types.Artifact, archiveQueue),
	}
	s.archived.Add(1)
	go s.archiveLoop()

	return s
}

// hooks hand scanner results to the server without blocking the scanner loop.
func (s *server) hooks() scanner.Hooks {
	return scanner.Hooks{
		OnArtifact: func(a types.Artifact) {
			select {
			case s.archive <- a:
			default:
				logger.Warnf("archive queue is full, %s is not stored", a.Name)
			}
		},
		OnCode: func(code string) {
			s.lock.Lock()
			s.lastCode = code
			s.lock.Unlock()
			logger.Infof("code confirmed: %s", code)
		},
		OnNotice: func(err error) {
			logger.Warnf("scanner: %s", err)
		},
	}
}

func (s *server) archiveLoop() {
	defer s.archived.Done()
	for a := range s.archive {
		rec, err := s.stg.Save(a)
		if err != nil {
			logger.Errorf("store %s: %s", a.Name, err)
			continue
		}
		logger.Infof("stored %s (%s, %s)", rec.Name, rec.Source, rec.Size)
	}
}

// close stops the scanner first so no artifact arrives after the archive is closed.
func (s *server) close() {
	s.dav.Stop()
	if s.scanner != nil {
		_ = s.scanner.Close()
	}
	close(s.archive)
	s.archived.Wait()
}

func (s *server) code() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastCode
}

func (s *server) getState(c *gin.Context) {
	snap, err := s.scanner.State(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(snap))
}

func (s *server) startScanner(c *gin.Context) {
	if err := s.scanner.Start(c.Request.Context()); err != nil {
		respondErr(c, err)
		return
	}
	s.getState(c)
}

func (s *server) stopScanner(c *gin.Context) {
	if err := s.scanner.Stop(c.Request.Context()); err != nil {
		respondErr(c, err)
		return
	}
	s.getState(c)
}

func (s *server) retake(c *gin.Context) {
	if err := s.scanner.Retake(c.Request.Context()); err != nil {
		respondErr(c, err)
		return
	}
	s.getState(c)
}

func (s *server) setMode(c *gin.Context) {
	var req ov.Mode
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := scanner.ParseMode(req.Mode)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err = s.scanner.SetMode(c.Request.Context(), m); err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(req))
}

func (s *server) capture(c *gin.Context) {
	a, err := s.scanner.Capture(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(a))
}

func (s *server) startRecording(c *gin.Context) {
	if err := s.scanner.StartRecording(c.Request.Context()); err != nil {
		respondErr(c, err)
		return
	}
	s.getState(c)
}

func (s *server) stopRecording(c *gin.Context) {
	a, ok, err := s.scanner.StopRecording(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, jsend.Success(nil))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(a))
}

func (s *server) focus(c *gin.Context) {
	var req ov.Point
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	accepted, err := s.scanner.Focus(c.Request.Context(), focus.Point{X: *req.X, Y: *req.Y})
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(ov.Focus{Accepted: accepted}))
}

func (s *server) setZoom(c *gin.Context) {
	s.setValue(c, s.scanner.SetZoom)
}

func (s *server) setExposure(c *gin.Context) {
	s.setValue(c, s.scanner.SetExposure)
}

func (s *server) setValue(c *gin.Context, set func(context.Context, float64) (float64, error)) {
	var req ov.Value
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, err := set(c.Request.Context(), *req.Value)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(ov.Applied{Value: v}))
}

func (s *server) setFlash(c *gin.Context) {
	s.setSwitch(c, s.scanner.SetFlash)
}

func (s *server) setAutoFlash(c *gin.Context) {
	s.setSwitch(c, s.scanner.SetAutoFlash)
}

func (s *server) setSwitch(c *gin.Context, set func(context.Context, bool) error) {
	var req ov.Switch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := set(c.Request.Context(), *req.On); err != nil {
		respondErr(c, err)
		return
	}
	s.getState(c)
}

// getArtifact sends the artifact under review as a file.
func (s *server) getArtifact(c *gin.Context) {
	a, ok, err := s.scanner.Artifact(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("no artifact under review"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", a.Name))
	c.Data(http.StatusOK, a.MIME, a.Data)
}

// upload accepts a file picked by the user when the camera can not serve.
func (s *server) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		internalErr(c, err)
		return
	}
	defer f.Close()

	a, err := upload.Accept(f, fh.Filename, fh.Header.Get("Content-Type"), s.cfg.Server.MaxUpload)
	if err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		respondErr(c, err)
		return
	}
	rec, err := s.stg.Save(a)
	if err != nil {
		internalErr(c, err)
		return
	}
	metrics.Uploads.WithLabelValues("accepted").Inc()

	c.JSON(http.StatusOK, jsend.Success(rec))
}

func (s *server) analyze(c *gin.Context) {
	var req ov.Analyze
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	var (
		a   types.Artifact
		err error
	)
	if req.Name != "" {
		a, err = s.loadArtifact(req.Name)
	} else {
		var ok bool
		a, ok, err = s.scanner.Artifact(c.Request.Context())
		if err == nil && !ok {
			err = analysis.ErrNoArtifact
		}
	}
	if err != nil {
		respondErr(c, err)
		return
	}

	text := req.Context
	if text == "" {
		code := req.Code
		if code == "" {
			code = a.Code
		}
		if code == "" {
			code = s.code()
		}
		if code != "" {
			text = analysis.ScanContext(code)
		}
	}

	res, err := s.analyzer.Analyze(c.Request.Context(), a, text)
	if err != nil {
		metrics.Analyses.WithLabelValues("failed").Inc()
		respondErr(c, err)
		return
	}
	metrics.Analyses.WithLabelValues("ok").Inc()

	c.JSON(http.StatusOK, jsend.Success(res))
}

func (s *server) loadArtifact(name string) (types.Artifact, error) {
	rec, p, err := s.stg.Open(name)
	if err != nil {
		return types.Artifact{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("read %s: %w", rec.Name, err)
	}
	a := types.NewArtifact(rec.Name, rec.MIME, rec.Source, data)
	a.Code = rec.Code

	return a, nil
}

// realtimeVideo streams the live view as multipart JPEG until the client
// goes away or the session ends.
func (s *server) realtimeVideo(c *gin.Context) {
	if _, ok := s.scanner.Frame(); !ok {
		respondErr(c, scanner.ErrStreamNotReady)
		return
	}
	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", capture.StillMIME)

	fps := s.cfg.Device.FPS
	if fps <= 0 {
		fps = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
		frame, ok := s.scanner.Frame()
		if !ok {
			return
		}
		if frame.Seq == last {
			continue
		}
		last = frame.Seq
		data, err := capture.EncodeFrame(frame, imageutil.DefaultQuality)
		if err != nil {
			logger.Debugf("preview frame %d: %s", frame.Seq, err)
			continue
		}
		partWriter, err := mimeWriter.CreatePart(partHeader)
		if err != nil {
			logger.Warnf("failed to create multi-part writer: %s", err)
			return
		}
		if _, err := partWriter.Write(data); err != nil {
			logger.Warnf("failed to write image: %s", err)
			return
		}
		c.Writer.Flush()
	}
}

func (s *server) deviceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(ps.Collect(s.stg.Dir(), s.cfg.Server.NTPServer)))
}

func (s *server) deviceControls(c *gin.Context) {
	if s.controls == nil {
		respondErr(c, camera.ErrCameraUnavailable)
		return
	}
	_, ctrls, err := s.controls()
	if err != nil {
		respondErr(c, err)
		return
	}
	res := make([]ov.Control, 0, len(ctrls))
	for _, ctrl := range ctrls {
		res = append(res, ov.ControlOf(ctrl))
	}

	c.JSON(http.StatusOK, jsend.Success(res))
}

func (s *server) ctlWebdav(c *gin.Context) {
	switch c.Query("op") {
	case webDavStart:
		if !s.dav.Start() {
			c.JSON(http.StatusOK, jsend.Success("the webdav service is already enabled"))
			return
		}
		c.JSON(http.StatusOK, jsend.Success(fmt.Sprintf("webdav listening on port %d", s.dav.Port())))
	case webDavShutdown:
		if !s.dav.Stop() {
			c.JSON(http.StatusOK, jsend.SimpleErr("the webdav service has been shut down"))
			return
		}
		c.JSON(http.StatusOK, jsend.Success(nil))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func (s *server) listArtifacts(c *gin.Context) {
	records, err := s.stg.List()
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(records))
}

func (s *server) latestArtifact(c *gin.Context) {
	rec, err := s.stg.Latest()
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(rec))
}

func (s *server) getArtifactFile(c *gin.Context) {
	rec, p, err := s.stg.Open(c.Param("name"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Header("Content-Type", rec.MIME)
	c.File(p)
}

func (s *server) deleteArtifact(c *gin.Context) {
	name := c.Param("name")
	if err := s.stg.Delete(name); err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(fmt.Sprintf("delete artifact %s success", name)))
}

// statusOf maps the errors surfaced by the packages to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, scanner.ErrInvalidPoint),
		errors.Is(err, upload.ErrEmpty),
		errors.Is(err, analysis.ErrNoArtifact):
		return http.StatusBadRequest
	case errors.Is(err, camera.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scanner.ErrInvalidState),
		errors.Is(err, scanner.ErrNoSession),
		errors.Is(err, scanner.ErrStreamNotReady),
		errors.Is(err, scanner.ErrSessionClosed),
		errors.Is(err, capture.ErrRecordingState),
		errors.Is(err, capture.ErrNoFrame),
		errors.Is(err, imageutil.ErrEmptyFrame):
		return http.StatusConflict
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, camera.ErrNotSupported),
		errors.Is(err, capture.ErrRecordingUnsupported),
		errors.Is(err, capture.ErrEncoderInit),
		errors.Is(err, capture.ErrEncoderFault):
		return http.StatusUnprocessableEntity
	case errors.Is(err, analysis.ErrFailed):
		return http.StatusBadGateway
	case errors.Is(err, camera.ErrCameraUnavailable),
		errors.Is(err, camera.ErrPlaybackFailed),
		errors.Is(err, analysis.ErrNoAPIKey),
		errors.Is(err, scanner.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	return http.StatusInternalServerError
}

func respondErr(c *gin.Context, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		logger.Errorf("%s %s: %s", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(code, jsend.SimpleErr(err.Error()))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}
