package download

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ytget/yt-downloader-api/internal/failure"
	"github.com/ytget/yt-downloader-api/internal/ledger"
	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/platform"
	"github.com/ytget/yt-downloader-api/internal/strategy"
)

// Task messages
const (
	MsgTaskCreated  = "Task created, starting download..."
	MsgStarting     = "Starting download..."
	MsgCompleted    = "Download completed successfully"
	errorMsgPrefix  = "Error: "
	unknownVersion  = "unknown"
	healthyStatus   = "healthy"
	defaultSweepAge = time.Hour
)

// Health recommendations
const (
	RecommendUpdateYtDlp   = "POST /update-ytdlp or run: yt-dlp -U"
	RecommendInstallFFmpeg = "https://ffmpeg.org/download.html"
)

// Conversion lists reported by Health
var (
	ConversionsWithTranscoder = []string{"mp3", "wav", "m4a"}
	ConversionsNative         = []string{"m4a (native)"}
)

// Health is the service health snapshot
type Health struct {
	Status               string            `json:"status"`
	Timestamp            time.Time         `json:"timestamp"`
	FFmpegAvailable      bool              `json:"ffmpegAvailable"`
	FFmpegVersion        string            `json:"ffmpegVersion,omitempty"`
	YtDlpVersion         string            `json:"ytDlpVersion"`
	SupportedConversions []string          `json:"supportedConversions"`
	Recommendations      map[string]string `json:"recommendations"`
}

// Config holds service settings
type Config struct {
	OutputDir string
	Retention time.Duration
	Driver    DriverConfig
}

// Service handles download operations
type Service struct {
	store      ledger.Store
	extractor  Extractor
	prober     Prober
	reconciler Reconciler
	driver     *Driver
	cfg        Config
	log        logrus.FieldLogger

	ctx            context.Context
	wg             sync.WaitGroup
	sweeping       atomic.Bool
	now            func() time.Time
	versionTimeout time.Duration
}

// NewService creates a new download service. Workers run under ctx and stop
// waiting between attempts once it is cancelled.
func NewService(ctx context.Context, store ledger.Store, extractor Extractor, prober Prober, reconciler Reconciler, cfg Config, log logrus.FieldLogger) *Service {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultSweepAge
	}
	cfg.Driver.OutputDir = cfg.OutputDir
	return &Service{
		store:      store,
		extractor:  extractor,
		prober:     prober,
		reconciler: reconciler,
		driver:     NewDriver(extractor, cfg.Driver, log),
		cfg:        cfg,
		log:        log,
		ctx:        ctx,
		now:        time.Now,

		versionTimeout: platform.MaxProbeTimeout,
	}
}

// Submit registers a task for req and starts its worker
func (s *Service) Submit(req model.Request) (model.Task, error) {
	if req.Format == "" {
		req.Format = model.DefaultFormat
	}
	if req.Quality == "" {
		req.Quality = model.DefaultQuality
	}

	task := model.NewTask(ledger.NewTaskID(), req, MsgTaskCreated)
	if err := s.store.Create(task); err != nil {
		return model.Task{}, errors.Wrap(err, "create task")
	}

	s.log.WithFields(logrus.Fields{"task": task.ID, "url": req.URL, "format": req.Format}).Info("Task created")

	s.wg.Add(2)
	go s.run(task.ID, req)
	go s.sweepInBackground()

	return task.Clone(), nil
}

// run is the task boundary: whatever escapes the driver or the reconciler
// ends the task in error.
func (s *Service) run(id string, req model.Request) {
	defer s.wg.Done()

	log := s.log.WithField("task", id)
	update := ledger.Sink(s.store, id)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Worker panicked")
			update(model.ErrorPatch(fmt.Sprintf("%s%v", errorMsgPrefix, r), nil))
		}
	}()

	update(model.StatusPatch(model.TaskStatusProcessing, MsgStarting))

	capable := s.prober.Available(s.ctx)
	log.WithField("ffmpeg", capable).Debug("Transcoder probed")

	file, err := s.driver.Run(s.ctx, req, capable, update)
	if err != nil {
		log.WithError(err).WithField("kind", Classify(err).String()).Error("Download failed")
		update(model.ErrorPatch(errorMsgPrefix+err.Error(), nil))
		return
	}

	final, note := s.reconciler.Reconcile(s.ctx, file, req, capable, update)

	msg := MsgCompleted
	if note != "" {
		msg += " " + note
	}
	if !s.store.Update(id, model.CompletedPatch(msg, final)) {
		log.Warn("Task removed before completion")
		return
	}
	done, _ := s.store.Get(id)
	log.WithFields(logrus.Fields{"title": done.DisplayTitle(), "file": final.Path, "size": final.Size}).Info("Task completed")
}

// Info resolves metadata without downloading
func (s *Service) Info(ctx context.Context, url string) (*model.VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.driver.cfg.MetadataTimeout)
	defer cancel()

	info, err := s.extractor.ResolveMetadata(ctx, url, strategy.MetadataPlan())
	if err != nil {
		if kind := Classify(err); kind.Terminal() {
			return nil, terminalError(err, kind)
		}
		return nil, err
	}
	if info == nil {
		return nil, errors.New("could not extract video information")
	}
	return info, nil
}

// Get returns a task snapshot
func (s *Service) Get(id string) (model.Task, bool) {
	return s.store.Get(id)
}

// List returns all tasks ordered by creation time
func (s *Service) List() []model.Task {
	return s.store.List()
}

// Remove deletes the task and, best effort, its file. A worker still running
// for it keeps going and its updates are dropped.
func (s *Service) Remove(id string) (model.Task, bool) {
	task, ok := s.store.Delete(id)
	if !ok {
		return model.Task{}, false
	}
	if task.Result != nil && task.Result.Path != "" {
		if err := platform.RemoveIfExists(task.Result.Path); err != nil {
			s.log.WithError(err).WithField("task", id).Warn("Could not remove task file")
		}
	}
	log := s.log.WithFields(logrus.Fields{"task": id, "title": task.DisplayTitle()})
	if task.Status.IsActive() {
		log.Warn("Task removed while its worker is running")
	} else {
		log.Info("Task removed")
	}
	return task, true
}

// Health reports transcoder and extractor availability
func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		Status:       healthyStatus,
		Timestamp:    s.now(),
		YtDlpVersion: unknownVersion,
		Recommendations: map[string]string{
			"update_ytdlp":   RecommendUpdateYtDlp,
			"install_ffmpeg": RecommendInstallFFmpeg,
		},
	}

	h.FFmpegAvailable = s.prober.Available(ctx)
	if h.FFmpegAvailable {
		h.SupportedConversions = ConversionsWithTranscoder
		if v, err := s.prober.Version(ctx); err == nil {
			h.FFmpegVersion = v
		}
	} else {
		h.SupportedConversions = ConversionsNative
	}

	vctx, cancel := context.WithTimeout(ctx, s.versionTimeout)
	defer cancel()
	if v, err := s.extractor.Version(vctx); err == nil && v != "" {
		h.YtDlpVersion = v
	} else if err != nil {
		s.log.WithError(err).Warn("Could not read yt-dlp version")
	}
	return h
}

// UpdateExtractor upgrades yt-dlp when the extractor supports it
func (s *Service) UpdateExtractor(ctx context.Context) (string, error) {
	u, ok := s.extractor.(Updater)
	if !ok {
		return "", failure.New(failure.Unclassified, "extractor does not support updates")
	}
	return u.Update(ctx)
}

// Sweep removes files older than the retention window from the output directory
func (s *Service) Sweep() ([]string, error) {
	removed, err := platform.SweepOlderThan(s.cfg.OutputDir, s.cfg.Retention, s.now())
	if len(removed) > 0 {
		s.log.WithField("count", len(removed)).Info("Removed old files")
	}
	return removed, err
}

// sweepInBackground runs at most one sweep at a time
func (s *Service) sweepInBackground() {
	defer s.wg.Done()
	if !s.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer s.sweeping.Store(false)
	if _, err := s.Sweep(); err != nil {
		s.log.WithError(err).Warn("Sweep failed")
	}
}

// Wait blocks until every worker started so far has returned
func (s *Service) Wait() {
	s.wg.Wait()
}
