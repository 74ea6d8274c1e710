package download

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/strategy"
)

// fakeExtractor resolves a fixed video and writes <title>_<id>.<ext> into dir.
// Errors are indexed by attempt.
type fakeExtractor struct {
	mu sync.Mutex

	dir  string
	info model.VideoInfo
	ext  string

	metaErrs  []error
	fetchErrs []error
	skipWrite bool
	gate      chan struct{}

	plans   []strategy.Plan
	fetches int
	version string
}

func newFakeExtractor(dir, ext string) *fakeExtractor {
	return &fakeExtractor{
		dir:     dir,
		ext:     ext,
		info:    model.VideoInfo{ID: "abc123", Title: "Test Song", Duration: 180, Uploader: "Tester"},
		version: "2024.08.06",
	}
}

func (f *fakeExtractor) ResolveMetadata(ctx context.Context, url string, plan strategy.Plan) (*model.VideoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.plans)
	f.plans = append(f.plans, plan)
	if idx < len(f.metaErrs) && f.metaErrs[idx] != nil {
		return nil, f.metaErrs[idx]
	}
	info := f.info
	return &info, nil
}

func (f *fakeExtractor) Fetch(ctx context.Context, url string, plan strategy.Plan, onProgress func(model.FetchProgress)) (string, error) {
	f.mu.Lock()
	idx := len(f.plans) - 1
	f.fetches++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if idx < len(f.fetchErrs) && f.fetchErrs[idx] != nil {
		return "", f.fetchErrs[idx]
	}

	onProgress(model.FetchProgress{Status: model.FetchDownloading, DownloadedBytes: 25, TotalBytes: 100, ETASec: 75})
	onProgress(model.FetchProgress{Status: model.FetchDownloading, DownloadedBytes: 50, TotalBytes: 100, ETASec: 30})
	onProgress(model.FetchProgress{Status: model.FetchFinished, DownloadedBytes: 100, TotalBytes: 100})

	if f.skipWrite {
		return "", nil
	}
	path := filepath.Join(f.dir, f.info.Title+"_"+f.info.ID+"."+f.ext)
	if err := os.WriteFile(path, []byte("media"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeExtractor) Version(ctx context.Context) (string, error) {
	return f.version, nil
}

func (f *fakeExtractor) attempts() []strategy.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]strategy.Plan(nil), f.plans...)
}

type updatingExtractor struct {
	*fakeExtractor
}

func (u updatingExtractor) Update(ctx context.Context) (string, error) {
	return "Updated yt-dlp to stable@2024.08.06", nil
}

type fakeProber struct {
	available bool
}

func (p fakeProber) Available(ctx context.Context) bool { return p.available }

func (p fakeProber) Version(ctx context.Context) (string, error) {
	return "ffmpeg version 6.1.1", nil
}

// messageLog collects patches in issue order
type messageLog struct {
	mu       sync.Mutex
	messages []string
	progress []int
}

func (m *messageLog) update(p model.TaskPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Message != nil {
		m.messages = append(m.messages, *p.Message)
	}
	if p.Progress != nil {
		m.progress = append(m.progress, *p.Progress)
	}
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newTestDriver(t *testing.T, ext *fakeExtractor) (*Driver, *sleepRecorder) {
	t.Helper()
	d := NewDriver(ext, DriverConfig{OutputDir: ext.dir}, nullLogger())
	rec := &sleepRecorder{}
	d.sleep = rec.sleep
	return d, rec
}
