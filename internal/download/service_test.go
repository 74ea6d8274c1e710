package download

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-downloader-api/internal/failure"
	"github.com/ytget/yt-downloader-api/internal/ledger"
	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/reconcile"
	"github.com/ytget/yt-downloader-api/internal/transcode"
)

// copyTranscoder writes the input bytes to the job output
type copyTranscoder struct{}

func (copyTranscoder) Transcode(ctx context.Context, job transcode.Job, onProgress func(int)) error {
	data, err := os.ReadFile(job.InputPath)
	if err != nil {
		return err
	}
	onProgress(100)
	return os.WriteFile(job.OutputPath, data, 0644)
}

type panickingReconciler struct{}

func (panickingReconciler) Reconcile(context.Context, model.ResultFile, model.Request, bool, model.UpdateFunc) (model.ResultFile, string) {
	panic("reconcile exploded")
}

type snapshotLog struct {
	mu    sync.Mutex
	tasks []model.Task
}

func (s *snapshotLog) record(t model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
}

func (s *snapshotLog) all() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Task(nil), s.tasks...)
}

type serviceFixture struct {
	svc   *Service
	store *ledger.MemoryStore
	ext   *fakeExtractor
	snaps *snapshotLog
}

func newFixture(t *testing.T, ext string, capable bool) *serviceFixture {
	t.Helper()
	dir := t.TempDir()
	store := ledger.NewMemoryStore()
	snaps := &snapshotLog{}
	store.SetUpdateCallback(snaps.record)

	fx := newFakeExtractor(dir, ext)
	rec := reconcile.New(copyTranscoder{}, nullLogger())
	svc := NewService(context.Background(), store, fx, fakeProber{available: capable}, rec, Config{OutputDir: dir}, nullLogger())
	svc.driver.sleep = func(context.Context, time.Duration) error { return nil }

	return &serviceFixture{svc: svc, store: store, ext: fx, snaps: snaps}
}

func TestService_SubmitCompletes(t *testing.T) {
	f := newFixture(t, "mp3", true)

	task, err := f.svc.Submit(model.Request{URL: "https://youtu.be/abc123"})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.Equal(t, MsgTaskCreated, task.Message)
	assert.Equal(t, model.DefaultFormat, task.Format)
	assert.Equal(t, model.DefaultQuality, task.Quality)

	f.svc.Wait()

	got, ok := f.svc.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, MsgCompleted, got.Message)
	require.NotNil(t, got.Result)
	assert.FileExists(t, got.Result.Path)
	assert.Equal(t, "mp3", got.Result.Format)
	require.NotNil(t, got.Info)
	assert.Equal(t, "Test Song", got.Info.Title)
}

func TestService_ConvertsAfterDownload(t *testing.T) {
	f := newFixture(t, "webm", true)

	task, err := f.svc.Submit(model.Request{URL: "https://youtu.be/abc123", Format: model.FormatMP3, Quality: "192"})
	require.NoError(t, err)
	f.svc.Wait()

	got, _ := f.svc.Get(task.ID)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, "Download completed successfully (converted to MP3 after download)", got.Message)
	require.NotNil(t, got.Result)
	assert.Equal(t, "mp3", got.Result.Format)
	assert.Equal(t, filepath.Join(f.ext.dir, "Test Song_abc123.mp3"), got.Result.Path)
	assert.NoFileExists(t, filepath.Join(f.ext.dir, "Test Song_abc123.webm"))
}

func TestService_NoTranscoderDeliversNativeFormat(t *testing.T) {
	f := newFixture(t, "m4a", false)

	task, err := f.svc.Submit(model.Request{URL: "https://youtu.be/abc123", Format: model.FormatMP3})
	require.NoError(t, err)
	f.svc.Wait()

	got, _ := f.svc.Get(task.ID)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Contains(t, got.Message, "M4A")
	assert.Equal(t, "m4a", got.Result.Format)
	assert.False(t, f.ext.attempts()[0].ExtractAudio)
}

func TestService_RestrictedEndsInError(t *testing.T) {
	f := newFixture(t, "mp3", true)
	f.ext.metaErrs = []error{errors.New("ERROR: Private video")}

	task, err := f.svc.Submit(model.Request{URL: "https://youtu.be/abc123"})
	require.NoError(t, err)
	f.svc.Wait()

	got, _ := f.svc.Get(task.ID)
	assert.Equal(t, model.TaskStatusError, got.Status)
	assert.Equal(t, "Error: "+MsgRestricted, got.Message)
	assert.Nil(t, got.Result)
	assert.Len(t, f.ext.attempts(), 1)
}

func TestService_ProgressNeverDecreasesAndOneTerminalState(t *testing.T) {
	f := newFixture(t, "webm", true)
	forbidden := errors.New("HTTP Error 403: Forbidden")
	f.ext.fetchErrs = []error{forbidden, forbidden}

	task, err := f.svc.Submit(model.Request{URL: "https://youtu.be/abc123", Format: model.FormatMP3})
	require.NoError(t, err)
	f.svc.Wait()

	last := -1
	terminal := 0
	for _, snap := range f.snaps.all() {
		if snap.ID != task.ID {
			continue
		}
		assert.GreaterOrEqual(t, snap.Progress, last)
		last = snap.Progress
		if snap.Status.IsFinished() {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
	assert.Equal(t, 100, last)
}

func TestService_DeletedTaskIsTolerated(t *testing.T) {
	f := newFixture(t, "mp3", true)
	f.ext.gate = make(chan struct{})
	logger, hook := test.NewNullLogger()
	f.svc.log = logger

	task, err := f.svc.Submit(model.Request{URL: "https://youtu.be/abc123"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := f.svc.Get(task.ID)
		return ok && got.Status == model.TaskStatusProcessing && got.Info != nil
	}, time.Second, 5*time.Millisecond)

	_, ok := f.svc.Remove(task.ID)
	require.True(t, ok)

	removed := findEntry(hook, "Task removed while its worker is running")
	require.NotNil(t, removed)
	assert.Equal(t, logrus.WarnLevel, removed.Level)
	assert.Equal(t, "Test Song", removed.Data["title"])

	close(f.ext.gate)
	f.svc.Wait()

	_, ok = f.svc.Get(task.ID)
	assert.False(t, ok)
	assert.Empty(t, f.svc.List())
	assert.NotNil(t, findEntry(hook, "Task removed before completion"))
}

func findEntry(hook *test.Hook, msg string) *logrus.Entry {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return e
		}
	}
	return nil
}

func TestService_PanicBecomesError(t *testing.T) {
	f := newFixture(t, "mp3", true)
	f.svc.reconciler = panickingReconciler{}

	task, err := f.svc.Submit(model.Request{URL: "https://youtu.be/abc123"})
	require.NoError(t, err)
	f.svc.Wait()

	got, _ := f.svc.Get(task.ID)
	assert.Equal(t, model.TaskStatusError, got.Status)
	assert.Equal(t, "Error: reconcile exploded", got.Message)
}

func TestService_UnknownTask(t *testing.T) {
	f := newFixture(t, "mp3", true)

	_, ok := f.svc.Get("missing")
	assert.False(t, ok)
	_, ok = f.svc.Remove("missing")
	assert.False(t, ok)
}

func TestService_RemoveDeletesFile(t *testing.T) {
	f := newFixture(t, "mp3", true)

	task, err := f.svc.Submit(model.Request{URL: "https://youtu.be/abc123"})
	require.NoError(t, err)
	f.svc.Wait()

	got, _ := f.svc.Get(task.ID)
	require.NotNil(t, got.Result)
	require.FileExists(t, got.Result.Path)

	logger, hook := test.NewNullLogger()
	f.svc.log = logger

	removed, ok := f.svc.Remove(task.ID)
	require.True(t, ok)
	assert.Equal(t, task.ID, removed.ID)
	assert.NoFileExists(t, got.Result.Path)

	entry := findEntry(hook, "Task removed")
	require.NotNil(t, entry)
	assert.Equal(t, "Test Song", entry.Data["title"])
}

func TestService_ListOrdersByCreation(t *testing.T) {
	f := newFixture(t, "mp3", true)

	first, err := f.svc.Submit(model.Request{URL: "https://youtu.be/one"})
	require.NoError(t, err)
	second, err := f.svc.Submit(model.Request{URL: "https://youtu.be/two"})
	require.NoError(t, err)
	f.svc.Wait()

	tasks := f.svc.List()
	require.Len(t, tasks, 2)
	assert.Equal(t, first.ID, tasks[0].ID)
	assert.Equal(t, second.ID, tasks[1].ID)
}

func TestService_Info(t *testing.T) {
	f := newFixture(t, "mp3", true)

	info, err := f.svc.Info(context.Background(), "https://youtu.be/abc123")
	require.NoError(t, err)
	assert.Equal(t, "Test Song", info.Title)
	assert.Equal(t, "Tester", info.Uploader)

	f.ext.metaErrs = []error{nil, errors.New("This video has been removed")}
	_, err = f.svc.Info(context.Background(), "https://youtu.be/abc123")
	require.Error(t, err)
	assert.Equal(t, failure.NotFoundOrRestricted, failure.KindOf(err))

	f.ext.metaErrs = append(f.ext.metaErrs, errors.New("HTTP Error 403: Forbidden"))
	_, err = f.svc.Info(context.Background(), "https://youtu.be/abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestService_Health(t *testing.T) {
	f := newFixture(t, "mp3", true)
	now := time.Date(2024, 8, 6, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	h := f.svc.Health(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, now, h.Timestamp)
	assert.True(t, h.FFmpegAvailable)
	assert.Equal(t, "ffmpeg version 6.1.1", h.FFmpegVersion)
	assert.Equal(t, "2024.08.06", h.YtDlpVersion)
	assert.Equal(t, ConversionsWithTranscoder, h.SupportedConversions)
	assert.Contains(t, h.Recommendations, "update_ytdlp")
	assert.Contains(t, h.Recommendations, "install_ffmpeg")

	f.svc.prober = fakeProber{available: false}
	h = f.svc.Health(context.Background())
	assert.False(t, h.FFmpegAvailable)
	assert.Empty(t, h.FFmpegVersion)
	assert.Equal(t, ConversionsNative, h.SupportedConversions)
}

type stalledExtractor struct {
	*fakeExtractor
}

func (stalledExtractor) Version(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestService_HealthBoundsVersionLookup(t *testing.T) {
	f := newFixture(t, "mp3", true)
	f.svc.extractor = stalledExtractor{f.ext}
	f.svc.versionTimeout = 20 * time.Millisecond

	done := make(chan Health, 1)
	go func() { done <- f.svc.Health(context.Background()) }()

	select {
	case h := <-done:
		assert.Equal(t, "unknown", h.YtDlpVersion)
		assert.Equal(t, "healthy", h.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("Health did not return while yt-dlp hung")
	}
}

func TestService_UpdateExtractor(t *testing.T) {
	f := newFixture(t, "mp3", true)

	_, err := f.svc.UpdateExtractor(context.Background())
	assert.Error(t, err)

	f.svc.extractor = updatingExtractor{f.ext}
	out, err := f.svc.UpdateExtractor(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "Updated yt-dlp")
}

func TestService_Sweep(t *testing.T) {
	f := newFixture(t, "mp3", true)
	dir := f.ext.dir

	old := filepath.Join(dir, "old_x.mp3")
	fresh := filepath.Join(dir, "fresh_y.mp3")
	require.NoError(t, os.WriteFile(old, []byte("o"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("f"), 0644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := f.svc.Sweep()
	require.NoError(t, err)
	assert.Equal(t, []string{old}, removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}
