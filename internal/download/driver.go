package download

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ytget/yt-downloader-api/internal/failure"
	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/platform"
	"github.com/ytget/yt-downloader-api/internal/strategy"
)

// Default extractor timeouts
const (
	DefaultMetadataTimeout = 2 * time.Minute
	DefaultFetchTimeout    = 30 * time.Minute
)

// maxTitleInMessage caps the title shown in the "Downloading:" message
const maxTitleInMessage = 50

// DriverConfig configures the attempt loop
type DriverConfig struct {
	OutputDir       string
	MaxAttempts     int
	MetadataTimeout time.Duration
	FetchTimeout    time.Duration
}

// Driver runs up to MaxAttempts sequential extraction attempts for one request
type Driver struct {
	extractor Extractor
	cfg       DriverConfig
	log       logrus.FieldLogger

	sleep      func(ctx context.Context, d time.Duration) error
	findOutput func(dir, contentID string) ([]string, error)
}

// NewDriver creates a driver. MaxAttempts is clamped to [1, strategy.MaxAttempts].
func NewDriver(extractor Extractor, cfg DriverConfig, log logrus.FieldLogger) *Driver {
	if cfg.MaxAttempts <= 0 || cfg.MaxAttempts > strategy.MaxAttempts {
		cfg.MaxAttempts = strategy.MaxAttempts
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = DefaultMetadataTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Driver{
		extractor:  extractor,
		cfg:        cfg,
		log:        log,
		sleep:      sleepContext,
		findOutput: platform.FindByContentID,
	}
}

// Run drives the attempt loop and returns the located output file. Only the
// final error leaves Run: a terminal classification, or the last retryable
// error once the budget is spent.
func (d *Driver) Run(ctx context.Context, req model.Request, capable bool, onUpdate model.UpdateFunc) (model.ResultFile, error) {
	if note := nativeFallbackNote(req, capable); note != "" {
		onUpdate(model.MessagePatch(note))
	}

	attempts := d.cfg.MaxAttempts
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		plan, delay := strategy.PlanFor(attempt, req, capable)
		log := d.log.WithFields(logrus.Fields{"attempt": plan.Number(), "strategy": plan.Profile.String()})

		onUpdate(model.MessagePatch(fmt.Sprintf("Attempt %d of %d (strategy: %s)", plan.Number(), attempts, plan.Profile)))

		if delay > 0 {
			onUpdate(model.MessagePatch(fmt.Sprintf("Waiting %ds before attempt %d of %d...", int(delay.Seconds()), plan.Number(), attempts)))
			if err := d.sleep(ctx, delay); err != nil {
				return model.ResultFile{}, errors.Wrap(err, "download interrupted")
			}
		}

		file, err := d.attempt(ctx, req, plan, onUpdate)
		if err == nil {
			log.WithField("file", file.Path).Info("Download succeeded")
			return file, nil
		}

		kind := Classify(err)
		log.WithError(err).WithField("kind", kind.String()).Warn("Attempt failed")

		if kind.Terminal() {
			return model.ResultFile{}, terminalError(err, kind)
		}
		if !kind.Retryable() {
			return model.ResultFile{}, err
		}
		if ctx.Err() != nil {
			return model.ResultFile{}, errors.Wrap(ctx.Err(), "download interrupted")
		}
		last = err
	}

	return model.ResultFile{}, exhaustedError(last)
}

// attempt runs one metadata + transfer cycle under plan
func (d *Driver) attempt(ctx context.Context, req model.Request, plan strategy.Plan, onUpdate model.UpdateFunc) (model.ResultFile, error) {
	metaCtx, cancel := context.WithTimeout(ctx, d.cfg.MetadataTimeout)
	info, err := d.extractor.ResolveMetadata(metaCtx, req.URL, plan)
	cancel()
	if err != nil {
		return model.ResultFile{}, err
	}
	if info == nil || info.ID == "" {
		return model.ResultFile{}, errors.New("could not extract video information")
	}

	downloading := "Downloading: " + truncate(platform.CleanFilename(info.Title), maxTitleInMessage)
	onUpdate(model.TaskPatch{Info: info, Message: &downloading})

	fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.FetchTimeout)
	reported, err := d.extractor.Fetch(fetchCtx, req.URL, plan, func(p model.FetchProgress) {
		onUpdate(progressPatch(p))
	})
	cancel()
	if err != nil {
		return model.ResultFile{}, err
	}

	path, err := d.locateOutput(info.ID, req.Format)
	if err != nil {
		d.log.WithField("reported", reported).WithError(err).Error("Output file not found")
		return model.ResultFile{}, failure.Wrap(err, failure.OutputMissing, MsgOutputMissing)
	}
	return platform.Describe(path)
}

// locateOutput globs the output directory for the content id instead of
// trusting the extractor's own filename event. A file already in the requested
// format is preferred, then the newest.
func (d *Driver) locateOutput(contentID string, format model.Format) (string, error) {
	paths, err := d.findOutput(d.cfg.OutputDir, contentID)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", errors.Errorf("no file containing %q in %s", contentID, d.cfg.OutputDir)
	}
	for _, p := range paths {
		if platform.FileFormat(p) == string(format) {
			return p, nil
		}
	}
	return paths[0], nil
}

// progressPatch maps an extractor progress event to a ledger patch
func progressPatch(p model.FetchProgress) model.TaskPatch {
	switch p.Status {
	case model.FetchFinished:
		return model.ProgressPatch(100, "Download finished, processing file...")
	case model.FetchPostProcessing:
		return model.MessagePatch("Post-processing...")
	case model.FetchError:
		return model.TaskPatch{}
	}

	percent := p.Percent()
	msg := fmt.Sprintf("Downloading... %d%%", percent)
	if p.ETASec > 0 {
		msg += " (ETA " + model.FormatETA(p.ETASec) + ")"
	}
	return model.ProgressPatch(percent, msg)
}

// nativeFallbackNote is shown when an audio conversion was asked for but the
// transcoder is missing, so the extractor delivers native audio instead
func nativeFallbackNote(req model.Request, capable bool) string {
	if capable || !req.Format.IsAudio() || req.Format == model.FormatM4A {
		return ""
	}
	return fmt.Sprintf("FFmpeg not available. Downloading high quality M4A audio instead of %s.", req.Format.Upper())
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
