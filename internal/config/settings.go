package config

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ytget/yt-downloader-api/internal/platform"
	"github.com/ytget/yt-downloader-api/internal/strategy"
)

// Environment overrides
const (
	EnvAddr        = "YTD_ADDR"
	EnvPort        = "PORT"
	EnvDownloadDir = "YTD_DOWNLOAD_DIR"
	EnvLogLevel    = "YTD_LOG_LEVEL"
	EnvLogFormat   = "YTD_LOG_FORMAT"
	EnvFFmpegPath  = "YTD_FFMPEG"
	EnvFFprobePath = "YTD_FFPROBE"
	EnvMaxAttempts = "YTD_MAX_ATTEMPTS"
)

// Default values
const (
	DefaultAddr             = ":8000"
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultDownloadDir      = "downloads"
	DefaultRetention        = time.Hour
	DefaultMetadataTimeout  = 2 * time.Minute
	DefaultFetchTimeout     = 30 * time.Minute
	DefaultFFmpegPath       = platform.FFmpegCommand
	DefaultFFprobePath      = platform.FFprobeCommand
	DefaultProbeTimeout     = platform.MaxProbeTimeout
	DefaultTranscodeTimeout = 10 * time.Minute
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultMaxAttempts      = strategy.MaxAttempts
	DefaultFilenameTemplate = platform.DefaultFilenameTemplate
	minRetention            = time.Minute
)

// Settings is the service configuration
type Settings struct {
	Server     ServerSettings     `yaml:"server"`
	Download   DownloadSettings   `yaml:"download"`
	Transcoder TranscoderSettings `yaml:"transcoder"`
	Log        LogSettings        `yaml:"log"`
}

// ServerSettings configures the HTTP listener
type ServerSettings struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DownloadSettings configures the extractor and the output directory
type DownloadSettings struct {
	Dir              string        `yaml:"dir"`
	Retention        time.Duration `yaml:"retention"`
	MaxAttempts      int           `yaml:"max_attempts"`
	MetadataTimeout  time.Duration `yaml:"metadata_timeout"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	FilenameTemplate string        `yaml:"filename_template"`
}

// TranscoderSettings configures ffmpeg
type TranscoderSettings struct {
	FFmpegPath   string        `yaml:"ffmpeg_path"`
	FFprobePath  string        `yaml:"ffprobe_path"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	Timeout      time.Duration `yaml:"timeout"`
}

// LogSettings configures logrus
type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns settings with every default applied
func Default() *Settings {
	return &Settings{
		Server: ServerSettings{
			Addr:            DefaultAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Download: DownloadSettings{
			Dir:              DefaultDownloadDir,
			Retention:        DefaultRetention,
			MaxAttempts:      DefaultMaxAttempts,
			MetadataTimeout:  DefaultMetadataTimeout,
			FetchTimeout:     DefaultFetchTimeout,
			FilenameTemplate: DefaultFilenameTemplate,
		},
		Transcoder: TranscoderSettings{
			FFmpegPath:   DefaultFFmpegPath,
			FFprobePath:  DefaultFFprobePath,
			ProbeTimeout: DefaultProbeTimeout,
			Timeout:      DefaultTranscodeTimeout,
		},
		Log: LogSettings{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads settings from a YAML file at path, then applies environment
// overrides and clamps. An empty path loads defaults only.
func Load(path string) (*Settings, error) {
	s := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open config %s", path)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(err, "decode config %s", path)
		}
	}

	if err := s.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	s.normalize()
	return s, nil
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		s.Server.Addr = ":" + v
	}
	if v, ok := lookup(EnvAddr); ok && v != "" {
		s.Server.Addr = v
	}
	if v, ok := lookup(EnvDownloadDir); ok && v != "" {
		s.Download.Dir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		s.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		s.Log.Format = v
	}
	if v, ok := lookup(EnvFFmpegPath); ok && v != "" {
		s.Transcoder.FFmpegPath = v
	}
	if v, ok := lookup(EnvFFprobePath); ok && v != "" {
		s.Transcoder.FFprobePath = v
	}
	if v, ok := lookup(EnvMaxAttempts); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parse %s", EnvMaxAttempts)
		}
		s.Download.MaxAttempts = n
	}
	return nil
}

// normalize replaces unset values with defaults and clamps the rest
func (s *Settings) normalize() {
	if s.Server.Addr == "" {
		s.Server.Addr = DefaultAddr
	}
	if s.Server.ShutdownTimeout <= 0 {
		s.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if s.Download.Dir == "" {
		s.Download.Dir = DefaultDownloadDir
	}
	if s.Download.Retention <= 0 {
		s.Download.Retention = DefaultRetention
	}
	if s.Download.Retention < minRetention {
		s.Download.Retention = minRetention
	}
	if s.Download.MaxAttempts < 1 {
		s.Download.MaxAttempts = 1
	}
	if s.Download.MaxAttempts > strategy.MaxAttempts {
		s.Download.MaxAttempts = strategy.MaxAttempts
	}
	if s.Download.MetadataTimeout <= 0 {
		s.Download.MetadataTimeout = DefaultMetadataTimeout
	}
	if s.Download.FetchTimeout <= 0 {
		s.Download.FetchTimeout = DefaultFetchTimeout
	}
	if s.Download.FilenameTemplate == "" {
		s.Download.FilenameTemplate = DefaultFilenameTemplate
	}

	if s.Transcoder.FFmpegPath == "" {
		s.Transcoder.FFmpegPath = DefaultFFmpegPath
	}
	if s.Transcoder.FFprobePath == "" {
		s.Transcoder.FFprobePath = DefaultFFprobePath
	}
	if s.Transcoder.ProbeTimeout <= 0 || s.Transcoder.ProbeTimeout > platform.MaxProbeTimeout {
		s.Transcoder.ProbeTimeout = DefaultProbeTimeout
	}
	if s.Transcoder.Timeout <= 0 {
		s.Transcoder.Timeout = DefaultTranscodeTimeout
	}

	s.Log.Level = strings.ToLower(strings.TrimSpace(s.Log.Level))
	if s.Log.Level == "" {
		s.Log.Level = DefaultLogLevel
	}
	s.Log.Format = strings.ToLower(strings.TrimSpace(s.Log.Format))
	if s.Log.Format != "json" {
		s.Log.Format = DefaultLogFormat
	}
}
