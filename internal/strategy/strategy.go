// Package strategy turns an attempt index into a concrete extractor configuration.
//
// Five profiles escalate from a plain browser-like request to an emergency
// minimal one. Profiles 0 to 3 build on each other; profile 4 starts from
// scratch. PlanFor is a pure function of its inputs.
package strategy

import (
	"strconv"
	"time"

	"github.com/ytget/yt-downloader-api/internal/model"
)

// MaxAttempts is the size of the shared retry budget for metadata and download failures
const MaxAttempts = 5

// Backoff parameters
const (
	BaseDelay = 5 * time.Second
	MaxDelay  = 30 * time.Second
)

// Socket timeouts per profile
const (
	DefaultSocketTimeout    = 60 * time.Second
	PermissiveSocketTimeout = 120 * time.Second
	EmergencySocketTimeout  = 180 * time.Second
)

// Transport level retry counts
const (
	DefaultRetries   = 5
	EmergencyRetries = 10
)

// Profile names one escalation step
type Profile int

const (
	ProfileBaseline Profile = iota
	ProfileBrowserCookies
	ProfileMobile
	ProfilePermissive
	ProfileEmergency
)

var profileNames = [...]string{
	ProfileBaseline:       "baseline",
	ProfileBrowserCookies: "browser-cookies",
	ProfileMobile:         "mobile-client",
	ProfilePermissive:     "permissive-format",
	ProfileEmergency:      "emergency-minimal",
}

func (p Profile) String() string {
	if p >= 0 && int(p) < len(profileNames) {
		return profileNames[p]
	}
	return "unknown"
}

// Plan is the immutable extractor configuration for a single attempt
type Plan struct {
	Attempt       int // 0-based
	Profile       Profile
	UserAgent     string
	Headers       []Header // excludes User-Agent
	Format        string
	SocketTimeout time.Duration
	Retries       int

	// ExtractorRetries and FragmentRetries are left unset (0) in the minimal profile
	ExtractorRetries int
	FragmentRetries  int

	ExtractAudio bool
	AudioFormat  string
	AudioQuality string // e.g. "192K"

	NoWarnings bool
	Minimal    bool
}

// Number returns the 1-based attempt number for messages
func (p Plan) Number() int {
	return p.Attempt + 1
}

// Delay returns the backoff applied before attempt i: 0, 5s, 10s, 20s, 30s, ...
func Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= MaxDelay {
			return MaxDelay
		}
	}
	return d
}

// PlanFor returns the plan for attempt (0-based) and the delay to wait before it.
// Attempts outside [0, MaxAttempts) are clamped.
func PlanFor(attempt int, req model.Request, capable bool) (Plan, time.Duration) {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= MaxAttempts {
		attempt = MaxAttempts - 1
	}

	if Profile(attempt) == ProfileEmergency {
		return emergencyPlan(attempt), Delay(attempt)
	}

	plan := Plan{
		Attempt:          attempt,
		Profile:          Profile(attempt),
		UserAgent:        userAgentFor(attempt),
		Headers:          baseHeaders(),
		Format:           FormatSelector(req, capable),
		SocketTimeout:    DefaultSocketTimeout,
		Retries:          DefaultRetries,
		ExtractorRetries: DefaultRetries,
		FragmentRetries:  DefaultRetries,
	}

	if NeedsExtractorConversion(req.Format, capable) {
		plan.ExtractAudio = true
		plan.AudioFormat = string(req.Format)
		plan.AudioQuality = strconv.Itoa(AudioBitrate(req.Quality)) + "K"
	}

	if attempt >= int(ProfileBrowserCookies) {
		plan.Headers = withHeader(plan.Headers, HeaderReferer, ReferrerURL)
		plan.Headers = withHeader(plan.Headers, HeaderCookie, ConsentCookie)
	}
	if attempt >= int(ProfileMobile) {
		plan.Headers = withHeader(plan.Headers, HeaderAccept, MobileAccept)
		if attempt == int(ProfileMobile) {
			plan.UserAgent = MobileUserAgent
		}
	}
	if attempt >= int(ProfilePermissive) {
		plan.Format = selectorPermissive
		plan.SocketTimeout = PermissiveSocketTimeout
	}

	return plan, Delay(attempt)
}

func emergencyPlan(attempt int) Plan {
	return Plan{
		Attempt:       attempt,
		Profile:       ProfileEmergency,
		UserAgent:     EmergencyUserAgent,
		Format:        selectorWorst,
		SocketTimeout: EmergencySocketTimeout,
		Retries:       EmergencyRetries,
		NoWarnings:    true,
		Minimal:       true,
	}
}

// MetadataPlan is used by the info endpoint: a baseline request with no format constraint
func MetadataPlan() Plan {
	return Plan{
		Profile:          ProfileBaseline,
		UserAgent:        userAgentFor(0),
		Headers:          baseHeaders(),
		SocketTimeout:    DefaultSocketTimeout,
		Retries:          DefaultRetries,
		ExtractorRetries: DefaultRetries,
		FragmentRetries:  DefaultRetries,
	}
}
