package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"product-scanner/pkg/analysis"
	"product-scanner/pkg/camera"
	"product-scanner/pkg/config"
	"product-scanner/pkg/detect"
	"product-scanner/pkg/resolve"
	"product-scanner/pkg/scanner"
	"product-scanner/pkg/storage"
	"product-scanner/pkg/utils"
	"product-scanner/pkg/webdav"
)

var (
	configFile = flag.String("config", "", "yaml config file")
	webdavPort = flag.Int("webdav-port", 0, "webdav port")
	port       = flag.Int("port", 0, "ui port")
	storageDir = flag.String("dir", "", "artifact directory")
	staticsDir = flag.String("statics", "", "web ui directory")
	devName    = flag.String("device", "", "v4l2 device")
	logLevel   = flag.String("log-level", "", "debug, info, warn or error")

	logger *zap.SugaredLogger
)

func init() {
	logger = utils.GetLogger()
}

func main() {
	flag.Parse()
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal(err)
	}
	if err = utils.SetLevel(cfg.Server.LogLevel); err != nil {
		logger.Fatalf("log level %q: %s", cfg.Server.LogLevel, err)
	}

	stg, err := storage.New(cfg.Server.Dir)
	if err != nil {
		logger.Fatal(err)
	}

	det, err := detect.NewZXing(cfg.Detect.Formats...)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := newServer(cfg, stg, webdav.New(ctx, cfg.Server.WebdavPort, stg.Dir()))
	srv.scanner = scanner.New(
		scanner.FromConfig(cfg),
		camera.NewV4L2(cfg.Device.Path),
		det,
		resolve.New(resolveConfig(cfg.Resolve), nil),
		srv.hooks(),
	)
	srv.analyzer = analysis.New(analysisConfig(cfg.Analysis), nil)
	srv.controls = camera.NewV4L2(cfg.Device.Path).Settings

	r := srv.router()
	if err := registerStaticsDir(r, cfg.Server.Statics, "/"); err != nil {
		logger.Warnf("web ui disabled: %s", err)
	}

	utils.ListenAndServe(r, cfg.Server.Port, srv.close)
}

// loadConfig reads the config file and lets explicitly set flags override it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return cfg, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "webdav-port":
			cfg.Server.WebdavPort = *webdavPort
		case "port":
			cfg.Server.Port = *port
		case "dir":
			cfg.Server.Dir = *storageDir
		case "statics":
			cfg.Server.Statics = *staticsDir
		case "device":
			cfg.Device.Path = *devName
		case "log-level":
			cfg.Server.LogLevel = *logLevel
		}
	})

	return cfg, cfg.Validate()
}

func resolveConfig(c config.Resolve) resolve.Config {
	return resolve.Config{
		Timeout:       c.Timeout,
		MaxImageBytes: c.MaxImageBytes,
		Endpoints:     c.Endpoints,
		UserAgent:     c.UserAgent,
	}
}

func analysisConfig(c config.Analysis) analysis.Config {
	return analysis.Config{
		Endpoint: c.Endpoint,
		Model:    c.Model,
		APIKey:   c.APIKey,
		Timeout:  c.Timeout,
	}
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiRouter := r.Group("/api")

	scannerRouter := apiRouter.Group("/scanner")
	scannerRouter.GET("", s.getState)
	scannerRouter.DELETE("", s.stopScanner)
	scannerRouter.POST("/start", s.startScanner)
	scannerRouter.PUT("/mode", s.setMode)
	scannerRouter.POST("/capture", s.capture)
	scannerRouter.POST("/record", s.startRecording)
	scannerRouter.DELETE("/record", s.stopRecording)
	scannerRouter.POST("/focus", s.focus)
	scannerRouter.PUT("/zoom", s.setZoom)
	scannerRouter.PUT("/exposure", s.setExposure)
	scannerRouter.PUT("/flash", s.setFlash)
	scannerRouter.PUT("/auto-flash", s.setAutoFlash)
	scannerRouter.POST("/retake", s.retake)
	scannerRouter.GET("/artifact", s.getArtifact)
	scannerRouter.POST("/upload", s.upload)
	scannerRouter.POST("/analyze", s.analyze)

	deviceRouter := apiRouter.Group("/device")
	deviceRouter.GET("/realtime/video", s.realtimeVideo)
	deviceRouter.GET("/status", s.deviceStatus)
	deviceRouter.GET("/controls", s.deviceControls)
	deviceRouter.PUT("/webdav", s.ctlWebdav)

	artifactRouter := apiRouter.Group("/artifacts")
	artifactRouter.GET("", s.listArtifacts)
	artifactRouter.GET("/latest", s.latestArtifact)
	artifactRouter.GET("/:name", s.getArtifactFile)
	artifactRouter.DELETE("/:name", s.deleteArtifact)

	return r
}

func registerStaticsDir(group gin.IRoutes, dir, relativeGroup string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("the specified directory %s does not exist", dir)
	}
	dir = filepath.ToSlash(filepath.Clean(dir))
	group.StaticFile(relativeGroup, filepath.Join(dir, "index.html"))
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relativePath := path.Join(relativeGroup, strings.Replace(filepath.ToSlash(p), dir, "", 1))
			group.StaticFile(relativePath, p)
		}
		return nil
	})
}
