// Package source classifies a submitted URL into an extraction strategy
// kind. Resolution is a pure function over the URL's host and path: no
// network access, same answer every time.
package source

import (
	"net/url"
	"strings"
)

// Kind names an extraction strategy.
type Kind string

const (
	// KindPage is the generic browser-rendered page strategy and the
	// default when nothing more specific matches.
	KindPage Kind = "page"
	// KindArticle is the specialized article-platform strategy with its
	// own selector set.
	KindArticle Kind = "article"
	// KindMedia is the audio/video/podcast transcription strategy.
	KindMedia Kind = "media"
)

// articleHosts are platforms with a dedicated selector set.
var articleHosts = map[string]struct{}{
	"mp.weixin.qq.com": {},
	"weixin.qq.com":    {},
}

// mediaHosts are known audio/video/podcast platforms, including the short
// link hosts that redirect into them.
var mediaHosts = map[string]struct{}{
	"youtube.com":         {},
	"youtu.be":            {},
	"m.youtube.com":       {},
	"bilibili.com":        {},
	"b23.tv":              {},
	"podcasts.apple.com":  {},
	"soundcloud.com":      {},
	"open.spotify.com":    {},
	"music.163.com":       {},
	"ximalaya.com":        {},
	"podcasts.google.com": {},
	"overcast.fm":         {},
	"vimeo.com":           {},
	"dailymotion.com":     {},
	"twitch.tv":           {},
}

// Resolve maps a URL to its strategy kind. It always returns a value;
// unparseable or unknown URLs fall back to KindPage.
func Resolve(rawURL string) Kind {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return KindPage
	}
	host := strings.ToLower(u.Hostname())
	bare := strings.TrimPrefix(host, "www.")

	if hasHost(articleHosts, host, bare) {
		return KindArticle
	}
	if hasHost(mediaHosts, host, bare) {
		return KindMedia
	}
	return KindPage
}

func hasHost(set map[string]struct{}, host, bare string) bool {
	if _, ok := set[host]; ok {
		return true
	}
	_, ok := set[bare]
	return ok
}
