package download

import (
	"strings"

	"github.com/ytget/yt-downloader-api/internal/failure"
)

// User-facing messages for terminal classifications
const (
	MsgRestricted     = "The video is private, has been removed or is not available"
	MsgGeoRestricted  = "The video is not available in your region"
	MsgOutputMissing  = "Download reported success but the output file was not found"
	MsgServiceBlocked = "YouTube is temporarily blocking downloads. Retry later or update yt-dlp"
)

// blockedUpstreamMarker in the last error means upstream refused to serve the player
const blockedUpstreamMarker = "player response"

// Keyword sets, matched case-insensitively as substrings
var (
	restrictedKeywords = []string{"private", "removed"}
	geoKeywords        = []string{"not available", "geo"}
	transientKeywords  = []string{"403", "forbidden", "blocked", "unavailable"}
)

// Classify maps an extractor error to a failure kind. Errors that already carry
// a kind keep it. Permanent kinds win over transient ones so that text such as
// "Video unavailable. This video is private" is not retried.
func Classify(err error) failure.Kind {
	if err == nil {
		return failure.Unclassified
	}
	if failure.IsClassified(err) {
		return failure.KindOf(err)
	}

	text := strings.ToLower(err.Error())
	switch {
	case containsAny(text, restrictedKeywords):
		return failure.NotFoundOrRestricted
	case containsAny(text, geoKeywords):
		return failure.GeoRestricted
	case containsAny(text, transientKeywords):
		return failure.TransientAccessBlocked
	}
	return failure.Unclassified
}

// terminalError wraps err with the user-facing message of its terminal kind
func terminalError(err error, kind failure.Kind) error {
	if failure.IsClassified(err) {
		return err
	}
	switch kind {
	case failure.NotFoundOrRestricted:
		return failure.Wrap(err, kind, MsgRestricted)
	case failure.GeoRestricted:
		return failure.Wrap(err, kind, MsgGeoRestricted)
	}
	return failure.Wrap(err, kind, err.Error())
}

// exhaustedError is surfaced when every attempt failed with a retryable error
func exhaustedError(last error) error {
	if strings.Contains(strings.ToLower(last.Error()), blockedUpstreamMarker) {
		return failure.Wrap(last, failure.ServiceBlocked, MsgServiceBlocked)
	}
	return last
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
