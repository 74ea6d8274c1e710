package platform

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Transcoder executables
const (
	FFmpegCommand  = "ffmpeg"
	FFprobeCommand = "ffprobe"
	VersionFlag    = "-version"
)

// MaxProbeTimeout bounds every capability probe invocation
const MaxProbeTimeout = 10 * time.Second

// Prober checks at call time whether ffmpeg and ffprobe are usable on this host.
// Absence of the tools is a normal state and is never reported as an error.
type Prober struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
	Log         logrus.FieldLogger

	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	lookPath func(file string) (string, error)
}

// NewProber creates a prober for the given executables. Empty paths select the
// PATH defaults and the timeout is clamped to MaxProbeTimeout.
func NewProber(ffmpegPath, ffprobePath string, timeout time.Duration, log logrus.FieldLogger) *Prober {
	if ffmpegPath == "" {
		ffmpegPath = FFmpegCommand
	}
	if ffprobePath == "" {
		ffprobePath = FFprobeCommand
	}
	if timeout <= 0 || timeout > MaxProbeTimeout {
		timeout = MaxProbeTimeout
	}
	return &Prober{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Timeout:     timeout,
		Log:         log,
		run:         runOutput,
		lookPath:    exec.LookPath,
	}
}

func runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Available runs both tools' version commands and falls back to a PATH lookup
// when invocation fails.
func (p *Prober) Available(ctx context.Context) bool {
	if _, err := p.version(ctx, p.FFmpegPath); err == nil {
		if _, err := p.version(ctx, p.FFprobePath); err == nil {
			return true
		}
	} else {
		p.Log.WithError(err).Debug("ffmpeg version check failed, falling back to PATH lookup")
	}

	ffmpegPath, err := p.lookPath(p.FFmpegPath)
	if err != nil {
		p.Log.Debug("ffmpeg not found on PATH")
		return false
	}
	ffprobePath, err := p.lookPath(p.FFprobePath)
	if err != nil {
		p.Log.Debug("ffprobe not found on PATH")
		return false
	}

	p.Log.WithFields(logrus.Fields{"ffmpeg": ffmpegPath, "ffprobe": ffprobePath}).Debug("transcoder found on PATH")
	return true
}

// Version returns the first line of `ffmpeg -version`
func (p *Prober) Version(ctx context.Context) (string, error) {
	return p.version(ctx, p.FFmpegPath)
}

func (p *Prober) version(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := p.run(ctx, name, VersionFlag)
	if err != nil {
		return "", errors.Wrapf(err, "%s %s", name, VersionFlag)
	}
	return FirstLine(string(out)), nil
}

// FirstLine returns the first non-empty line of s, trimmed
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
