package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-downloader-api/internal/model"
)

var mp3Request = model.Request{URL: "https://www.youtube.com/watch?v=abc", Format: model.FormatMP3, Quality: "192"}

func TestDelay(t *testing.T) {
	expected := []time.Duration{0, 5 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second}
	for attempt, want := range expected {
		assert.Equal(t, want, Delay(attempt), "Delay(%d)", attempt)
	}
	assert.Equal(t, time.Duration(0), Delay(-3))
}

func TestPlanFor_DelaySequence(t *testing.T) {
	var got []time.Duration
	for i := 1; i < MaxAttempts; i++ {
		_, d := PlanFor(i, mp3Request, true)
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second}, got)
}

func TestPlanFor_IsPure(t *testing.T) {
	for i := 0; i < MaxAttempts; i++ {
		a, da := PlanFor(i, mp3Request, true)
		b, db := PlanFor(i, mp3Request, true)
		assert.Equal(t, a, b, "attempt %d", i)
		assert.Equal(t, da, db)
	}

	// mutating a returned plan must not leak into later calls
	p, _ := PlanFor(1, mp3Request, true)
	p.Headers[0].Value = "mutated"
	q, _ := PlanFor(1, mp3Request, true)
	assert.Equal(t, BrowserAccept, q.Headers[0].Value)
}

func TestPlanFor_Profiles(t *testing.T) {
	p0, _ := PlanFor(0, mp3Request, true)
	assert.Equal(t, ProfileBaseline, p0.Profile)
	assert.Equal(t, UserAgents[0], p0.UserAgent)
	assert.Equal(t, DefaultSocketTimeout, p0.SocketTimeout)
	_, hasCookie := lookupHeader(p0, HeaderCookie)
	assert.False(t, hasCookie)
	assert.True(t, p0.ExtractAudio)
	assert.Equal(t, "mp3", p0.AudioFormat)
	assert.Equal(t, "192K", p0.AudioQuality)

	p1, _ := PlanFor(1, mp3Request, true)
	assert.Equal(t, ProfileBrowserCookies, p1.Profile)
	assert.Equal(t, UserAgents[1], p1.UserAgent)
	cookie, _ := lookupHeader(p1, HeaderCookie)
	referer, _ := lookupHeader(p1, HeaderReferer)
	assert.Equal(t, ConsentCookie, cookie)
	assert.Equal(t, ReferrerURL, referer)

	p2, _ := PlanFor(2, mp3Request, true)
	assert.Equal(t, ProfileMobile, p2.Profile)
	assert.Equal(t, MobileUserAgent, p2.UserAgent)
	accept, _ := lookupHeader(p2, HeaderAccept)
	assert.Equal(t, MobileAccept, accept)
	_, hasCookie = lookupHeader(p2, HeaderCookie)
	assert.True(t, hasCookie, "mobile profile keeps consent cookies")

	p3, _ := PlanFor(3, mp3Request, true)
	assert.Equal(t, ProfilePermissive, p3.Profile)
	assert.Equal(t, "best/worst", p3.Format)
	assert.Equal(t, PermissiveSocketTimeout, p3.SocketTimeout)
	assert.Equal(t, UserAgents[3], p3.UserAgent)

	p4, _ := PlanFor(4, mp3Request, true)
	assert.Equal(t, ProfileEmergency, p4.Profile)
	assert.Equal(t, EmergencyUserAgent, p4.UserAgent)
	assert.Empty(t, p4.Headers)
	assert.Equal(t, "worst", p4.Format)
	assert.Equal(t, EmergencySocketTimeout, p4.SocketTimeout)
	assert.Equal(t, EmergencyRetries, p4.Retries)
	assert.True(t, p4.NoWarnings)
	assert.True(t, p4.Minimal)
	assert.False(t, p4.ExtractAudio)
}

func TestPlanFor_ClampsAttempt(t *testing.T) {
	p, _ := PlanFor(9, mp3Request, true)
	assert.Equal(t, ProfileEmergency, p.Profile)
	p, d := PlanFor(-1, mp3Request, true)
	assert.Equal(t, ProfileBaseline, p.Profile)
	assert.Zero(t, d)
}

func TestPlanFor_NoTranscoderAvoidsPostProcessing(t *testing.T) {
	for i := 0; i < MaxAttempts; i++ {
		p, _ := PlanFor(i, mp3Request, false)
		assert.False(t, p.ExtractAudio, "attempt %d", i)
		assert.Empty(t, p.AudioFormat)
	}

	p0, _ := PlanFor(0, mp3Request, false)
	assert.Equal(t, "bestaudio[ext=m4a]/bestaudio[ext=mp4]/bestaudio", p0.Format)
}

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		name     string
		req      model.Request
		capable  bool
		expected string
	}{
		{"mp3 with transcoder", mp3Request, true, "bestaudio[ext=m4a]/bestaudio[ext=mp4]/bestaudio[ext=webm]/bestaudio/best[height<=480]/best"},
		{"wav without transcoder", model.Request{Format: model.FormatWAV}, false, "bestaudio[ext=m4a]/bestaudio[ext=mp4]/bestaudio"},
		{"m4a always native", model.Request{Format: model.FormatM4A}, true, "bestaudio[ext=m4a]/bestaudio[ext=mp4]/bestaudio"},
		{"mp4 480", model.Request{Format: model.FormatMP4, Quality: "480"}, true, "best[height<=480]/best[height<=720]/best"},
		{"mp4 720", model.Request{Format: model.FormatMP4, Quality: "720"}, false, "best[height<=720]/best[height<=1080]/best"},
		{"mp4 1080", model.Request{Format: model.FormatMP4, Quality: "1080"}, true, "best[height<=1080]/best"},
		{"mp4 unknown quality", model.Request{Format: model.FormatMP4, Quality: "4k"}, true, "best"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatSelector(tt.req, tt.capable))
		})
	}
}

func TestAudioBitrate(t *testing.T) {
	assert.Equal(t, 320, AudioBitrate("320"))
	assert.Equal(t, 128, AudioBitrate("128k"))
	assert.Equal(t, 192, AudioBitrate("best"))
	assert.Equal(t, 192, AudioBitrate(""))
	assert.Equal(t, 192, AudioBitrate("-5"))
}

func TestProfile_String(t *testing.T) {
	names := make([]string, 0, MaxAttempts)
	for i := 0; i < MaxAttempts; i++ {
		names = append(names, Profile(i).String())
	}
	assert.Equal(t, "baseline,browser-cookies,mobile-client,permissive-format,emergency-minimal", strings.Join(names, ","))
	assert.Equal(t, "unknown", Profile(42).String())
}

func TestMetadataPlan(t *testing.T) {
	p := MetadataPlan()
	require.NotEmpty(t, p.Headers)
	assert.Empty(t, p.Format)
	assert.False(t, p.ExtractAudio)
	assert.Equal(t, "Accept:"+BrowserAccept, p.Headers[0].String())
}

func lookupHeader(p Plan, name string) (string, bool) {
	for _, h := range p.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}
