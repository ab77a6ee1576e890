// Package classify はユーザー入力URLの構造的な分類を提供する。
// ホスト名・パス・クエリパラメータのパターンマッチのみで判定し、
// ネットワークI/Oは一切行わない。
package classify

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/hitoshi/unifeed/internal/model"
)

// Hints は分類時にURLから抽出できた識別子を保持する。
// 該当しないフィールドは空文字列のまま。
type Hints struct {
	ChannelID  string // YouTubeチャンネルID（UCで始まる）
	VideoID    string // YouTube動画ID
	Handle     string // YouTubeハンドル（@なし）
	LegacyName string // /c/ または /user/ 形式のレガシー名
	FeedURL    string // URL自体がフィードエンドポイントの場合
}

// Result はURL分類の結果を表す。
// Matchedがfalseの場合、汎用RSS/Websiteハンドラーへのフォールバックを意味する
// （これはエラーではなく正常な分類結果）。
type Result struct {
	Matched bool
	Kind    model.SourceKind
	Hints   Hints
}

var (
	channelIDPattern  = regexp.MustCompile(`^/channel/(UC[\w-]{22})`)
	handlePattern     = regexp.MustCompile(`^/@([\w.\-]+)`)
	legacyPathPattern = regexp.MustCompile(`^/(?:c|user)/([\w.\-]+)`)
	videoIDPattern    = regexp.MustCompile(`^[\w-]{11}$`)
	applePodcastIDRe  = regexp.MustCompile(`/id(\d+)`)
)

// youtubeHosts はYouTubeとして扱うホスト名。
var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
}

// Classify はURLを構造的に分類する。
// 特定プラットフォームのパターンが汎用RSSフォールバックより常に優先される。
// パースできないURLはMatched=falseを返す。
func Classify(rawURL string) Result {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return Result{}
	}

	host := strings.ToLower(u.Hostname())
	path := u.Path

	// youtu.be 短縮URL: パスが動画ID
	if host == "youtu.be" {
		id := strings.Trim(path, "/")
		if videoIDPattern.MatchString(id) {
			return Result{Matched: true, Kind: model.SourceKindYouTubeVideo, Hints: Hints{VideoID: id}}
		}
		return Result{}
	}

	if youtubeHosts[host] {
		return classifyYouTube(u, path)
	}

	if kind, ok := classifyPodcastPlatform(host); ok {
		return Result{Matched: true, Kind: kind}
	}

	// フィード形状のURL: 拡張子・パス・クエリから判定
	if looksLikeFeedURL(u) {
		return Result{Matched: true, Kind: model.SourceKindRSS, Hints: Hints{FeedURL: rawURL}}
	}

	// どのパターンにも該当しない: 汎用RSS/Websiteハンドラーへフォールバック
	return Result{}
}

// classifyYouTube はYouTubeホストのURLをサブタイプに分類する。
// 判定順序は具体的なものから: チャンネルID > フィードURL > 動画 > ハンドル > レガシー名。
func classifyYouTube(u *url.URL, path string) Result {
	// 正規チャンネルURL: /channel/UC...
	if m := channelIDPattern.FindStringSubmatch(path); m != nil {
		return Result{Matched: true, Kind: model.SourceKindYouTubeChannel, Hints: Hints{ChannelID: m[1]}}
	}

	// フィードURL: /feeds/videos.xml?channel_id=UC...
	if strings.HasPrefix(path, "/feeds/videos.xml") {
		channelID := u.Query().Get("channel_id")
		if channelID != "" {
			return Result{
				Matched: true,
				Kind:    model.SourceKindYouTubeChannel,
				Hints:   Hints{ChannelID: channelID, FeedURL: u.String()},
			}
		}
		return Result{}
	}

	// 動画URL: /watch?v=... または /shorts/...
	if path == "/watch" {
		v := u.Query().Get("v")
		if videoIDPattern.MatchString(v) {
			return Result{Matched: true, Kind: model.SourceKindYouTubeVideo, Hints: Hints{VideoID: v}}
		}
		return Result{}
	}
	if strings.HasPrefix(path, "/shorts/") {
		id := strings.Trim(strings.TrimPrefix(path, "/shorts/"), "/")
		if videoIDPattern.MatchString(id) {
			return Result{Matched: true, Kind: model.SourceKindYouTubeVideo, Hints: Hints{VideoID: id}}
		}
		return Result{}
	}

	// ハンドルURL: /@handle
	if m := handlePattern.FindStringSubmatch(path); m != nil {
		return Result{Matched: true, Kind: model.SourceKindYouTubeChannel, Hints: Hints{Handle: m[1]}}
	}

	// レガシーURL: /c/name または /user/name
	if m := legacyPathPattern.FindStringSubmatch(path); m != nil {
		return Result{Matched: true, Kind: model.SourceKindYouTubeChannel, Hints: Hints{LegacyName: m[1]}}
	}

	return Result{}
}

// classifyPodcastPlatform はポッドキャスト配信プラットフォームのホストを判定する。
func classifyPodcastPlatform(host string) (model.SourceKind, bool) {
	switch {
	case host == "open.spotify.com":
		return model.SourceKindPodcast, true
	case host == "podcasts.apple.com":
		return model.SourceKindPodcast, true
	case host == "music.amazon.com" || strings.HasPrefix(host, "music.amazon."):
		return model.SourceKindPodcast, true
	}
	return "", false
}

// looksLikeFeedURL はURLがフィードエンドポイントの形状かを構造的に判定する。
// 拡張子（.xml/.rss/.atom）、パスセグメント（/feed）、
// クエリパラメータ（channel_id）をチェックする。
func looksLikeFeedURL(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	if strings.HasSuffix(path, ".xml") || strings.HasSuffix(path, ".rss") || strings.HasSuffix(path, ".atom") {
		return true
	}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "feed" || seg == "rss" || seg == "atom" {
			return true
		}
	}
	if u.Query().Get("channel_id") != "" {
		return true
	}
	return false
}

// ApplePodcastID はApple PodcastsのURLから数値のポッドキャストIDを抽出する。
// 見つからない場合は空文字列を返す。
func ApplePodcastID(rawURL string) string {
	m := applePodcastIDRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}
