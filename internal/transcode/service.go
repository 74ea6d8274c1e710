package transcode

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ytget/yt-downloader-api/internal/failure"
	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/platform"
)

// FFmpeg constants for audio conversion
const (
	DefaultSampleRate   = 44100
	DefaultTimeout      = 10 * time.Minute
	DefaultProbeTimeout = 10 * time.Second

	ProgressPipeTarget = "pipe:2"
	ProgressTimePrefix = "out_time_us="
	NoStatsFlag        = "-nostats"
	ProgressFlag       = "-progress"

	// stderrTailLines is how much ffmpeg output is kept for error messages
	stderrTailLines = 5

	scanBufferSize = 64 * 1024
	maxScanLine    = 1024 * 1024
)

// codecs maps an audio target to its ffmpeg encoder
var codecs = map[model.Format]string{
	model.FormatMP3: "libmp3lame",
	model.FormatWAV: "pcm_s16le",
	model.FormatM4A: "aac",
}

// muxers maps an audio target to the ffmpeg output format name
var muxers = map[model.Format]string{
	model.FormatMP3: "mp3",
	model.FormatWAV: "wav",
	model.FormatM4A: "ipod",
}

// Job describes one conversion
type Job struct {
	InputPath   string
	OutputPath  string
	Format      model.Format
	BitrateKbps int
	SampleRate  int
}

// NewJob builds a job converting input next to itself as <stem>.<format>
func NewJob(input string, format model.Format, bitrateKbps int) Job {
	return Job{
		InputPath:   input,
		OutputPath:  OutputPath(input, format),
		Format:      format,
		BitrateKbps: bitrateKbps,
		SampleRate:  DefaultSampleRate,
	}
}

// OutputPath returns <stem>.<format> for input
func OutputPath(input string, format model.Format) string {
	return platform.StemPath(input) + "." + string(format)
}

// Service runs ffmpeg for audio conversions
type Service struct {
	ffmpegPath   string
	ffprobePath  string
	timeout      time.Duration
	probeTimeout time.Duration
	log          logrus.FieldLogger

	command func(ctx context.Context, name string, args ...string) *exec.Cmd
	probe   func(path string, timeout time.Duration) (float64, error)
}

// NewService creates a conversion service. Empty paths and zero timeouts select defaults.
func NewService(ffmpegPath, ffprobePath string, timeout, probeTimeout time.Duration, log logrus.FieldLogger) *Service {
	if ffmpegPath == "" {
		ffmpegPath = platform.FFmpegCommand
	}
	if ffprobePath == "" {
		ffprobePath = platform.FFprobeCommand
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	s := &Service{
		ffmpegPath:   ffmpegPath,
		ffprobePath:  ffprobePath,
		timeout:      timeout,
		probeTimeout: probeTimeout,
		log:          log,
		command:      exec.CommandContext,
	}
	s.probe = s.probeDuration
	return s
}

// BuildArgs builds the ffmpeg command arguments for job
func BuildArgs(job Job) ([]string, error) {
	codec, ok := codecs[job.Format]
	if !ok {
		return nil, errors.Errorf("unsupported conversion target %q", job.Format)
	}

	sampleRate := job.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	kwargs := ffmpeg.KwArgs{
		"vn":  "",
		"c:a": codec,
		"ar":  strconv.Itoa(sampleRate),
		"f":   muxers[job.Format],
	}
	// PCM has a fixed bitrate
	if job.Format != model.FormatWAV && job.BitrateKbps > 0 {
		kwargs["b:a"] = strconv.Itoa(job.BitrateKbps) + "k"
	}

	return ffmpeg.Input(job.InputPath).
		Output(job.OutputPath, kwargs).
		GlobalArgs(ProgressFlag, ProgressPipeTarget, NoStatsFlag).
		OverWriteOutput().
		GetArgs(), nil
}

// Transcode performs the conversion. A partial output file is removed on failure.
func (s *Service) Transcode(ctx context.Context, job Job, onProgress func(percent int)) error {
	if _, err := os.Stat(job.InputPath); err != nil {
		return failure.Wrap(err, failure.ConversionFailed, "input file does not exist: "+job.InputPath)
	}

	args, err := BuildArgs(job)
	if err != nil {
		return failure.Wrap(err, failure.ConversionFailed, err.Error())
	}

	log := s.log.WithFields(logrus.Fields{"input": job.InputPath, "format": job.Format})

	// Get duration of input file for progress calculation
	duration, err := s.probe(job.InputPath, s.probeTimeout)
	if err != nil {
		log.WithError(err).Warn("Failed to get input duration, progress disabled")
		duration = 0
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := s.command(ctx, s.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return failure.Wrap(err, failure.ConversionFailed, "failed to create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return failure.Wrap(err, failure.ConversionFailed, "failed to start ffmpeg")
	}

	tail := newTailBuffer(stderrTailLines)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitorProgress(stderr, duration, onProgress, tail)
	}()

	// Pipe must be drained before Wait closes it
	wg.Wait()
	err = cmd.Wait()

	if err != nil {
		_ = os.Remove(job.OutputPath)
		msg := "ffmpeg failed: " + err.Error()
		if ctx.Err() == context.DeadlineExceeded {
			msg = "ffmpeg timed out after " + s.timeout.String()
		} else if t := tail.String(); t != "" {
			msg += ": " + t
		}
		log.WithError(err).Warn("Conversion failed")
		return failure.Wrap(err, failure.ConversionFailed, msg)
	}

	if !platform.FileExists(job.OutputPath) {
		return failure.New(failure.ConversionFailed, "ffmpeg produced no output file")
	}

	log.WithField("output", job.OutputPath).Info("Conversion completed")
	return nil
}

// monitorProgress reads ffmpeg -progress output. Lines that are not progress
// keys are kept in tail for error reporting.
func monitorProgress(r io.Reader, totalDuration float64, onProgress func(int), tail *tailBuffer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanBufferSize), maxScanLine)
	last := -1
	// ffmpeg blocks on a full pipe, keep reading past a line the scanner rejects
	defer io.Copy(io.Discard, r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Parse progress line: out_time_us=123456
		if strings.HasPrefix(line, ProgressTimePrefix) {
			timeMicroseconds, err := strconv.ParseInt(strings.TrimPrefix(line, ProgressTimePrefix), 10, 64)
			if err != nil || totalDuration <= 0 || onProgress == nil {
				continue
			}

			progress := float64(timeMicroseconds) / 1000000.0 / totalDuration
			if progress > 1.0 {
				progress = 1.0
			}
			if percent := int(progress * 100); percent > last {
				last = percent
				onProgress(percent)
			}
			continue
		}

		if line != "" && !strings.Contains(line, "=") {
			tail.Add(line)
		}
	}
}

// probeOutput is the subset of ffprobe JSON we read
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// probeArgs are the ffprobe options ffmpeg.Probe uses, rendered for the configured binary
var probeArgs = ffmpeg.ConvertKwargsToCmdLineArgs(ffmpeg.KwArgs{
	"show_format":  "",
	"show_streams": "",
	"of":           "json",
})

// probeDuration gets the duration of a media file in seconds using ffprobe
func (s *Service) probeDuration(path string, timeout time.Duration) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	args := append(append([]string{}, probeArgs...), path)
	out, err := s.command(ctx, s.ffprobePath, args...).Output()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to run %s", s.ffprobePath)
	}
	return ParseProbeDuration(string(out))
}

// ParseProbeDuration extracts format.duration from ffprobe JSON output
func ParseProbeDuration(out string) (float64, error) {
	var probe probeOutput
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, errors.Wrap(err, "failed to decode ffprobe output")
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, errors.Wrap(err, "failed to parse duration")
	}
	return duration, nil
}

// tailBuffer keeps the last n lines written to it
type tailBuffer struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}
