package download

import (
	"context"

	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/strategy"
)

// Extractor is the URL-metadata-and-media extraction collaborator
type Extractor interface {
	// ResolveMetadata returns display metadata without downloading
	ResolveMetadata(ctx context.Context, url string, plan strategy.Plan) (*model.VideoInfo, error)
	// Fetch downloads the content and returns the file name the extractor
	// reported last, which may be empty or stale.
	Fetch(ctx context.Context, url string, plan strategy.Plan, onProgress func(model.FetchProgress)) (string, error)
	// Version returns the extractor version string
	Version(ctx context.Context) (string, error)
}

// Updater upgrades the extractor in place
type Updater interface {
	Update(ctx context.Context) (string, error)
}

// Prober reports whether the transcoder can be used on this host
type Prober interface {
	Available(ctx context.Context) bool
	Version(ctx context.Context) (string, error)
}

// Reconciler aligns a downloaded file with the requested format. The returned
// note qualifies the success message and may be empty.
type Reconciler interface {
	Reconcile(ctx context.Context, file model.ResultFile, req model.Request, capable bool, onUpdate model.UpdateFunc) (model.ResultFile, string)
}

// Downloader defines the interface for the download service.
type Downloader interface {
	// Submit registers a task for req and schedules its worker
	Submit(req model.Request) (model.Task, error)
	// Info resolves metadata only
	Info(ctx context.Context, url string) (*model.VideoInfo, error)
	Get(id string) (model.Task, bool)
	List() []model.Task
	// Remove deletes the task record and, best effort, its file
	Remove(id string) (model.Task, bool)
	Health(ctx context.Context) Health
	// UpdateExtractor upgrades the extractor and reports its output
	UpdateExtractor(ctx context.Context) (string, error)
}
