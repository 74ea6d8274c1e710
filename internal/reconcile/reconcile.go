// Package reconcile aligns a downloaded file with the format the client asked
// for, converting it when the transcoder is available. Mismatches never fail a
// task; they only qualify its success message.
package reconcile

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/platform"
	"github.com/ytget/yt-downloader-api/internal/strategy"
	"github.com/ytget/yt-downloader-api/internal/transcode"
)

// compatibleVideo lists containers accepted as-is for an mp4 request
var compatibleVideo = map[string]bool{
	"mp4": true,
	"m4v": true,
}

// Reconciler compares requested and actual formats and converts when it can
type Reconciler struct {
	transcoder transcode.Transcoder
	log        logrus.FieldLogger
}

// New creates a reconciler backed by transcoder
func New(transcoder transcode.Transcoder, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{transcoder: transcoder, log: log}
}

// Matches reports whether file already satisfies the requested format
func Matches(actual string, requested model.Format) bool {
	if actual == string(requested) {
		return true
	}
	return requested.IsVideo() && compatibleVideo[actual]
}

// Reconcile returns the final file and a note for the success message. The note
// is empty when nothing had to be qualified.
func (r *Reconciler) Reconcile(ctx context.Context, file model.ResultFile, req model.Request, capable bool, onUpdate model.UpdateFunc) (model.ResultFile, string) {
	if Matches(file.Format, req.Format) {
		return file, ""
	}

	log := r.log.WithFields(logrus.Fields{"file": file.Path, "actual": file.Format, "requested": req.Format})

	if !req.Format.IsAudio() {
		log.Info("Delivering video in a different container")
		note := fmt.Sprintf("(delivered as %s container)", upper(file.Format))
		if !capable {
			note += " " + installNote(file.Format, req.Format)
		}
		return file, note
	}

	if !capable {
		log.Info("Transcoder unavailable, delivering native format")
		return file, installNote(file.Format, req.Format)
	}

	return r.convert(ctx, file, req, onUpdate, log)
}

func (r *Reconciler) convert(ctx context.Context, file model.ResultFile, req model.Request, onUpdate model.UpdateFunc, log logrus.FieldLogger) (model.ResultFile, string) {
	target := req.Format.Upper()
	onUpdate(model.MessagePatch(fmt.Sprintf("Converting to %s...", target)))

	job := transcode.NewJob(file.Path, req.Format, strategy.AudioBitrate(req.Quality))
	err := r.transcoder.Transcode(ctx, job, func(percent int) {
		onUpdate(model.MessagePatch(fmt.Sprintf("Converting to %s... %d%%", target, percent)))
	})
	if err != nil {
		log.WithError(err).Warn("Conversion failed, delivering original file")
		return file, failedNote(file, req.Format)
	}

	converted, err := platform.Describe(job.OutputPath)
	if err != nil {
		log.WithError(err).Warn("Converted file missing, delivering original file")
		return file, failedNote(file, req.Format)
	}

	if err := platform.RemoveIfExists(file.Path); err != nil {
		log.WithError(err).Warn("Could not remove original file")
	}

	log.WithField("output", converted.Path).Info("Converted after download")
	return converted, fmt.Sprintf("(converted to %s after download)", target)
}

func failedNote(file model.ResultFile, requested model.Format) string {
	return fmt.Sprintf("(could not convert to %s, delivering original format .%s)", requested.Upper(), file.Format)
}

func installNote(actual string, requested model.Format) string {
	return fmt.Sprintf("(format: %s - install ffmpeg to convert to %s)", upper(actual), requested.Upper())
}

func upper(format string) string {
	return model.Format(format).Upper()
}
