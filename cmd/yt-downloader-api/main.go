package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ytget/yt-downloader-api/internal/api"
	"github.com/ytget/yt-downloader-api/internal/config"
	"github.com/ytget/yt-downloader-api/internal/download"
	"github.com/ytget/yt-downloader-api/internal/ledger"
	"github.com/ytget/yt-downloader-api/internal/logging"
	"github.com/ytget/yt-downloader-api/internal/platform"
	"github.com/ytget/yt-downloader-api/internal/reconcile"
	"github.com/ytget/yt-downloader-api/internal/transcode"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logging.New(settings.Log.Level, settings.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(settings, log); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

func run(settings *config.Settings, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := settings.Download.Dir
	if err := platform.CreateDirectoryIfNotExists(dir); err != nil {
		return errors.Wrapf(err, "create download directory %s", dir)
	}

	store := ledger.NewMemoryStore()
	hub := api.NewHub(log.WithField("component", "stream"))
	store.SetUpdateCallback(hub.Publish)

	extractor := platform.NewYTDLP(dir, settings.Download.FilenameTemplate, log.WithField("component", "ytdlp"))
	prober := platform.NewProber(settings.Transcoder.FFmpegPath, settings.Transcoder.FFprobePath, settings.Transcoder.ProbeTimeout, log.WithField("component", "probe"))
	transcoder := transcode.NewService(settings.Transcoder.FFmpegPath, settings.Transcoder.FFprobePath, settings.Transcoder.Timeout, settings.Transcoder.ProbeTimeout, log.WithField("component", "transcode"))

	svc := download.NewService(ctx, store, extractor, prober, reconcile.New(transcoder, log.WithField("component", "reconcile")), download.Config{
		OutputDir: dir,
		Retention: settings.Download.Retention,
		Driver: download.DriverConfig{
			MaxAttempts:     settings.Download.MaxAttempts,
			MetadataTimeout: settings.Download.MetadataTimeout,
			FetchTimeout:    settings.Download.FetchTimeout,
		},
	}, log.WithField("component", "download"))

	if removed, err := svc.Sweep(); err != nil {
		log.WithError(err).Warn("Initial sweep failed")
	} else {
		log.WithField("count", len(removed)).Debug("Initial sweep done")
	}

	startup := log.WithFields(logrus.Fields{"version": Version, "addr": settings.Server.Addr, "dir": dir})
	if prober.Available(ctx) {
		v, _ := prober.Version(ctx)
		startup = startup.WithField("ffmpeg", v)
	} else {
		startup.Warn("FFmpeg not found, audio will be delivered in native formats")
	}

	if settings.Log.Level != "debug" && settings.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(svc, hub, Version, log.WithField("component", "api"))
	server := &http.Server{
		Addr:              settings.Server.Addr,
		Handler:           api.NewRouter(handler, log.WithField("component", "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		startup.Info("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}

	// Workers observe the cancelled root context and stop at their next wait.
	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("Workers still running at shutdown deadline")
	}
	return nil
}
