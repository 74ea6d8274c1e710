package strategy

// Header is a single HTTP request header passed to the extractor
type Header struct {
	Name  string
	Value string
}

// String renders the header in the extractor's Name:Value form
func (h Header) String() string {
	return h.Name + ":" + h.Value
}

// Header names
const (
	HeaderAccept   = "Accept"
	HeaderReferer  = "Referer"
	HeaderCookie   = "Cookie"
	HeaderLanguage = "Accept-Language"
)

const (
	ReferrerURL   = "https://www.youtube.com/"
	ConsentCookie = "CONSENT=YES+cb; YSC=randomstring; VISITOR_INFO1_LIVE=randomstring"

	BrowserAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
	MobileAccept  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

	MobileUserAgent    = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15"
	EmergencyUserAgent = "yt-dlp/2023.12.30"
)

// UserAgents is the desktop rotation pool indexed by attempt
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/121.0",
}

func userAgentFor(attempt int) string {
	return UserAgents[attempt%len(UserAgents)]
}

// baseHeaders returns a fresh copy on every call so plans never share backing arrays
func baseHeaders() []Header {
	return []Header{
		{HeaderAccept, BrowserAccept},
		{HeaderLanguage, "en-US,en;q=0.9,es;q=0.8"},
		{"DNT", "1"},
		{"Upgrade-Insecure-Requests", "1"},
		{"Sec-Fetch-Dest", "document"},
		{"Sec-Fetch-Mode", "navigate"},
		{"Sec-Fetch-Site", "none"},
		{"Sec-Fetch-User", "?1"},
		{"Cache-Control", "max-age=0"},
	}
}

// withHeader replaces name if present, otherwise appends it
func withHeader(headers []Header, name, value string) []Header {
	for i := range headers {
		if headers[i].Name == name {
			headers[i].Value = value
			return headers
		}
	}
	return append(headers, Header{Name: name, Value: value})
}

