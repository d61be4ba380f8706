package media

import (
	"net/url"
	"regexp"
	"strings"
)

// Provider identifies the media source family of a URL.
type Provider string

const (
	ProviderUnknown   Provider = ""
	ProviderInstagram Provider = "instagram"
	ProviderPinterest Provider = "pinterest"
	ProviderYouTube   Provider = "youtube"
	ProviderTikTok    Provider = "tiktok"
	ProviderFacebook  Provider = "facebook"
)

// Providers lists every supported family in detection order.
var Providers = []Provider{
	ProviderInstagram,
	ProviderPinterest,
	ProviderYouTube,
	ProviderTikTok,
	ProviderFacebook,
}

var providerPatterns = map[Provider]*regexp.Regexp{
	ProviderInstagram: regexp.MustCompile(`^https?://(?:www\.)?instagram\.com/(?:p|reel|reels|tv|stories)/[A-Za-z0-9_.-]+`),
	ProviderPinterest: regexp.MustCompile(`^https?://(?:[a-z]{2,3}\.|www\.)?(?:pinterest\.[a-z.]+|pin\.it)/\S+`),
	ProviderYouTube:   regexp.MustCompile(`^https?://(?:www\.|m\.|music\.)?(?:youtube\.com/(?:watch\?|shorts/|live/|playlist\?)|youtu\.be/)\S+`),
	ProviderTikTok:    regexp.MustCompile(`^https?://(?:www\.|vm\.|vt\.|m\.)?tiktok\.com/\S+`),
	ProviderFacebook:  regexp.MustCompile(`^https?://(?:www\.|m\.|web\.)?(?:facebook\.com|fb\.watch)/\S+`),
}

// urlInText finds the first http(s) URL in a free-form message.
var urlInText = regexp.MustCompile(`https?://\S+`)

// DetectProvider returns the provider family whose pattern matches rawURL.
func DetectProvider(rawURL string) Provider {
	for _, p := range Providers {
		if providerPatterns[p].MatchString(rawURL) {
			return p
		}
	}
	return ProviderUnknown
}

// ExtractURL returns the first supported URL in text, or "" when none is present.
func ExtractURL(text string) string {
	for _, candidate := range urlInText.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ".,)>]")
		if _, err := url.Parse(candidate); err != nil {
			continue
		}
		if DetectProvider(candidate) != ProviderUnknown {
			return candidate
		}
	}
	return ""
}

// DisplayName returns the human name used in user-facing messages.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderInstagram:
		return "Instagram"
	case ProviderPinterest:
		return "Pinterest"
	case ProviderYouTube:
		return "YouTube"
	case ProviderTikTok:
		return "TikTok"
	case ProviderFacebook:
		return "Facebook"
	default:
		return ""
	}
}

// SupportsAudio reports whether the audio-only mode is offered for p.
func (p Provider) SupportsAudio() bool {
	return p == ProviderYouTube
}
