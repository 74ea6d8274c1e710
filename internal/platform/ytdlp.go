package platform

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/lrstanley/go-ytdlp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/strategy"
)

// Output naming
const (
	DefaultFilenameTemplate = "%(title)s_%(id)s.%(ext)s"
	ProgressInterval        = 500 * time.Millisecond
)

// Metadata defaults used when the extractor omits a field
const (
	DefaultTitle    = "Untitled"
	DefaultUploader = "Unknown"
	DefaultDuration = "Unknown"
)

// Time formatting constants
const (
	SecondsPerHour   = 3600
	SecondsPerMinute = 60
)

// stderr prefix of fatal extractor messages
const errorLinePrefix = "ERROR:"

// YTDLP drives the yt-dlp executable through go-ytdlp
type YTDLP struct {
	outputDir string
	template  string
	log       logrus.FieldLogger
}

// NewYTDLP creates an extractor that writes into outputDir using template for file names
func NewYTDLP(outputDir, template string, log logrus.FieldLogger) *YTDLP {
	if template == "" {
		template = DefaultFilenameTemplate
	}
	return &YTDLP{outputDir: outputDir, template: template, log: log}
}

// command applies the network side of a plan: headers, timeouts and retries
func (y *YTDLP) command(plan strategy.Plan) *ytdlp.Command {
	cmd := ytdlp.New().
		NoPlaylist().
		NoCheckCertificates()

	if plan.SocketTimeout > 0 {
		cmd.SocketTimeout(plan.SocketTimeout.Seconds())
	}
	if plan.Retries > 0 {
		cmd.Retries(strconv.Itoa(plan.Retries))
	}
	if plan.ExtractorRetries > 0 {
		cmd.ExtractorRetries(strconv.Itoa(plan.ExtractorRetries))
	}
	if plan.FragmentRetries > 0 {
		cmd.FragmentRetries(strconv.Itoa(plan.FragmentRetries))
	}
	if plan.UserAgent != "" {
		cmd.AddHeaders("User-Agent:" + plan.UserAgent)
	}
	for _, h := range plan.Headers {
		cmd.AddHeaders(h.String())
	}
	if plan.NoWarnings {
		cmd.NoWarnings()
	}
	return cmd
}

func (y *YTDLP) metadataCommand(plan strategy.Plan) *ytdlp.Command {
	cmd := y.command(plan).SkipDownload().DumpJSON()
	if plan.Format != "" {
		cmd.Format(plan.Format)
	}
	return cmd
}

// fetchCommand adds the output template, format selection and audio extraction
func (y *YTDLP) fetchCommand(plan strategy.Plan) *ytdlp.Command {
	cmd := y.command(plan).
		Output(filepath.Join(y.outputDir, y.template)).
		RestrictFilenames().
		ForceOverwrites()

	if plan.Format != "" {
		cmd.Format(plan.Format)
	}
	if plan.ExtractAudio {
		cmd.ExtractAudio().AudioFormat(plan.AudioFormat)
		if plan.AudioQuality != "" {
			cmd.AudioQuality(plan.AudioQuality)
		}
	}
	return cmd
}

// ResolveMetadata fetches display metadata without downloading
func (y *YTDLP) ResolveMetadata(ctx context.Context, url string, plan strategy.Plan) (*model.VideoInfo, error) {
	res, err := y.metadataCommand(plan).Run(ctx, url)
	if err != nil {
		return nil, runError(ctx, res, err)
	}

	info, err := ParseMetadata(res.Stdout)
	if err != nil {
		return nil, err
	}

	y.log.WithFields(logrus.Fields{
		"id":       info.ID,
		"title":    info.Title,
		"duration": FormatDuration(int(info.Duration)),
	}).Debug("Resolved metadata")
	return info, nil
}

// Fetch downloads url into the output directory and returns the file name the
// extractor reported last, which may be empty.
func (y *YTDLP) Fetch(ctx context.Context, url string, plan strategy.Plan, onProgress func(model.FetchProgress)) (string, error) {
	cmd := y.fetchCommand(plan)

	var (
		mu       sync.Mutex
		filename string
	)
	cmd.ProgressFunc(ProgressInterval, func(update ytdlp.ProgressUpdate) {
		p := toFetchProgress(update)
		if p.Filename != "" {
			mu.Lock()
			filename = p.Filename
			mu.Unlock()
		}
		if onProgress != nil {
			onProgress(p)
		}
	})

	res, err := cmd.Run(ctx, url)
	if err != nil {
		return "", runError(ctx, res, err)
	}

	mu.Lock()
	defer mu.Unlock()
	return filename, nil
}

// Version returns the installed yt-dlp version string
func (y *YTDLP) Version(ctx context.Context) (string, error) {
	res, err := ytdlp.New().Version(ctx)
	if err != nil {
		return "", runError(ctx, res, err)
	}
	return FirstLine(res.Stdout), nil
}

// Update runs the extractor's self-update and returns its output
func (y *YTDLP) Update(ctx context.Context) (string, error) {
	res, err := ytdlp.New().Update(ctx)
	if err != nil {
		return "", runError(ctx, res, err)
	}
	y.log.WithField("output", FirstLine(res.Stdout)).Info("yt-dlp updated")
	return strings.TrimSpace(res.Stdout), nil
}

func toFetchProgress(update ytdlp.ProgressUpdate) model.FetchProgress {
	p := model.FetchProgress{
		Status:          model.FetchStatus(update.Status),
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		ETASec:          -1,
		Filename:        update.Filename,
	}
	if eta := update.ETA(); eta > 0 {
		p.ETASec = int(eta.Seconds())
	}
	return p
}

// runError turns a failed run into an error whose text carries the extractor's
// own messages, so classification can inspect it.
func runError(ctx context.Context, res *ytdlp.Result, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, "yt-dlp did not finish in time")
	}
	if res != nil {
		if msg := ErrorFromStderr(res.Stderr); msg != "" {
			return errors.New(msg)
		}
	}
	return errors.Wrap(err, "yt-dlp")
}

// ErrorFromStderr joins the ERROR lines of the extractor's stderr. If there are
// none the last non-empty line is returned.
func ErrorFromStderr(stderr string) string {
	var lines []string
	last := ""
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		last = line
		if strings.HasPrefix(line, errorLinePrefix) {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return last
	}
	return strings.Join(lines, "; ")
}

// metadataDump is the subset of the extractor's JSON dump we consume
type metadataDump struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Uploader  string  `json:"uploader"`
	Channel   string  `json:"channel"`
	ViewCount int64   `json:"view_count"`
	Thumbnail string  `json:"thumbnail"`
	Ext       string  `json:"ext"`
}

// ParseMetadata decodes the first JSON object in a JSON-lines dump
func ParseMetadata(output string) (*model.VideoInfo, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var dump metadataDump
		if err := json.Unmarshal([]byte(line), &dump); err != nil {
			return nil, errors.Wrap(err, "decode metadata")
		}
		if dump.ID == "" {
			return nil, errors.New("metadata has no id")
		}

		info := &model.VideoInfo{
			ID:        dump.ID,
			Title:     dump.Title,
			Duration:  dump.Duration,
			Uploader:  dump.Uploader,
			ViewCount: dump.ViewCount,
			Thumbnail: dump.Thumbnail,
			Ext:       dump.Ext,
		}
		if info.Title == "" {
			info.Title = DefaultTitle
		}
		if info.Uploader == "" {
			info.Uploader = dump.Channel
		}
		if info.Uploader == "" {
			info.Uploader = DefaultUploader
		}
		return info, nil
	}
	return nil, errors.New("could not extract video information")
}

// FormatDuration formats seconds into HH:MM:SS or MM:SS
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return DefaultDuration
	}
	hours := seconds / SecondsPerHour
	minutes := (seconds % SecondsPerHour) / SecondsPerMinute
	secs := seconds % SecondsPerMinute
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
