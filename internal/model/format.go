package model

import (
	"strings"

	"github.com/pkg/errors"
)

// Format is an output container requested by a client
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatMP4 Format = "mp4"
	FormatWAV Format = "wav"
	FormatM4A Format = "m4a"
)

// Default request values
const (
	DefaultFormat  = FormatMP3
	DefaultQuality = "192"
)

// SupportedFormats lists every format accepted by the download endpoint, in display order
var SupportedFormats = []Format{FormatMP3, FormatMP4, FormatWAV, FormatM4A}

// ParseFormat validates a client supplied format. An empty value selects DefaultFormat.
func ParseFormat(value string) (Format, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return DefaultFormat, nil
	}
	for _, f := range SupportedFormats {
		if string(f) == value {
			return f, nil
		}
	}
	return "", errors.Errorf("invalid format %q, use: %s", value, FormatList())
}

// FormatList returns the supported formats joined for messages
func FormatList() string {
	names := make([]string, len(SupportedFormats))
	for i, f := range SupportedFormats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// IsAudio returns true for audio-only targets
func (f Format) IsAudio() bool {
	return f == FormatMP3 || f == FormatWAV || f == FormatM4A
}

// IsVideo returns true for video container targets
func (f Format) IsVideo() bool {
	return f == FormatMP4
}

// Upper returns the format name in upper case for user-facing messages
func (f Format) Upper() string {
	return strings.ToUpper(string(f))
}

// Request is the immutable description of what a client asked for
type Request struct {
	URL     string
	Format  Format
	Quality string
}
