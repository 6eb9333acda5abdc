package research

import "strings"

// SocialMediaItem is the simulated result of a social media download. No
// network request is made.
type SocialMediaItem struct {
	URL      string `json:"url"`
	Platform string `json:"platform"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

var platformHosts = []struct {
	platform string
	hosts    []string
}{
	{"twitter", []string{"twitter.com", "x.com", "t.co"}},
	{"facebook", []string{"facebook.com", "fb.com", "fb.watch"}},
	{"instagram", []string{"instagram.com"}},
	{"youtube", []string{"youtube.com", "youtu.be"}},
	{"tiktok", []string{"tiktok.com"}},
	{"linkedin", []string{"linkedin.com"}},
	{"reddit", []string{"reddit.com", "redd.it"}},
	{"telegram", []string{"t.me", "telegram.org"}},
}

// DetectPlatform names the social platform serving rawURL, or "unknown"
func DetectPlatform(rawURL string) string {
	u, err := ParseTargetURL(rawURL)
	if err != nil {
		return "unknown"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, p := range platformHosts {
		if matchesDomain(host, p.hosts) {
			return p.platform
		}
	}
	return "unknown"
}

// SimulateSocialDownload returns what a download of rawURL would record
func SimulateSocialDownload(rawURL string) (*SocialMediaItem, error) {
	u, err := ParseTargetURL(rawURL)
	if err != nil {
		return nil, err
	}
	platform := DetectPlatform(u.String())
	item := &SocialMediaItem{URL: u.String(), Platform: platform, Status: "simulated"}
	if platform == "unknown" {
		item.Status = "unsupported"
		item.Message = "URL is not on a recognised social media platform"
	} else {
		item.Message = "download simulated for " + platform + "; no content was retrieved"
	}
	return item, nil
}
