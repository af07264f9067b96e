package source

import (
	"net/url"
	"regexp"
	"strings"
)

// Hosts we accept remote sources from. Anything else is rejected before any
// network activity.
var allowedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"youtu.be":          true,
	"music.youtube.com": true,
	"m.youtube.com":     true,
}

var (
	videoIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	shortsRe  = regexp.MustCompile(`/shorts/([a-zA-Z0-9_-]+)`)
)

// ExtractVideoID pulls the canonical 11-character video id out of the
// recognized YouTube URL shapes (watch, youtu.be, shorts, music). It returns
// false for unrecognized hosts or URLs with no extractable id, which keeps
// ambiguous inputs (playlists, channels) out of the pipeline.
func ExtractVideoID(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !allowedHosts[u.Hostname()] {
		return "", false
	}

	var id string
	switch {
	case u.Hostname() == "youtu.be":
		id = strings.TrimPrefix(u.Path, "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
	case strings.Contains(u.Path, "/shorts/"):
		if m := shortsRe.FindStringSubmatch(u.Path); m != nil {
			id = m[1]
		}
	default:
		id = u.Query().Get("v")
	}

	if !videoIDRe.MatchString(id) {
		return "", false
	}
	return id, true
}

// CanonicalURL rebuilds a clean watch URL from a video id, dropping
// playlist parameters and tracking noise.
func CanonicalURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
