package strategy

import (
	"strconv"
	"strings"

	"github.com/ytget/yt-downloader-api/internal/model"
)

// Selector fragments
const (
	selectorBest       = "best"
	selectorWorst      = "worst"
	selectorPermissive = "best/worst"
)

var audioFallbackChain = []string{
	"bestaudio[ext=m4a]",
	"bestaudio[ext=mp4]",
	"bestaudio[ext=webm]",
	"bestaudio",
	"best[height<=480]",
	"best",
}

// nativeAudioChain never needs a transcoder: every candidate is already an audio container
var nativeAudioChain = []string{
	"bestaudio[ext=m4a]",
	"bestaudio[ext=mp4]",
	"bestaudio",
}

var videoQualityChains = map[string][]string{
	"480":  {"best[height<=480]", "best[height<=720]", "best"},
	"720":  {"best[height<=720]", "best[height<=1080]", "best"},
	"1080": {"best[height<=1080]", "best"},
}

// NeedsExtractorConversion reports whether the extractor should convert audio itself.
// m4a is always delivered natively.
func NeedsExtractorConversion(format model.Format, capable bool) bool {
	return format.IsAudio() && capable && format != model.FormatM4A
}

// FormatSelector returns the baseline selector chain for a request
func FormatSelector(req model.Request, capable bool) string {
	switch {
	case NeedsExtractorConversion(req.Format, capable):
		return strings.Join(audioFallbackChain, "/")
	case req.Format.IsAudio():
		return strings.Join(nativeAudioChain, "/")
	case req.Format.IsVideo():
		if chain, ok := videoQualityChains[req.Quality]; ok {
			return strings.Join(chain, "/")
		}
	}
	return selectorBest
}

// AudioBitrate returns the requested audio quality in kbps, or the default when
// quality is not a positive number.
func AudioBitrate(quality string) int {
	q := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(quality)), "k")
	if n, err := strconv.Atoi(q); err == nil && n > 0 {
		return n
	}
	n, _ := strconv.Atoi(model.DefaultQuality)
	return n
}
