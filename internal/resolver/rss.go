// Package resolver はユーザー入力URLを正規のフィード記述子へ解決する機能を提供する。
package resolver

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/hitoshi/unifeed/internal/fetcher"
	"github.com/hitoshi/unifeed/internal/model"
)

// feedAcceptHeader はフィード取得時のAcceptヘッダー。
const feedAcceptHeader = "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*"

// maxDescriptionLength は抽出する説明文の最大長。
const maxDescriptionLength = 500

// RSSResolver は汎用RSS/Websiteのリゾルバー。
// レジストリの最後に登録され、他のハンドラーにマッチしなかった
// 全URLのキャッチオールとして機能する。
type RSSResolver struct {
	client *fetcher.Client
}

// NewRSSResolver はRSSResolverの新しいインスタンスを生成する。
func NewRSSResolver(client *fetcher.Client) *RSSResolver {
	return &RSSResolver{client: client}
}

// Kind はrssを返す。
func (r *RSSResolver) Kind() model.SourceKind {
	return model.SourceKindRSS
}

// Kinds はこのハンドラーが同期を担当する種別を返す。
// ポッドキャストフィードの同期も同じフィード取得パスで処理する。
func (r *RSSResolver) Kinds() []model.SourceKind {
	return []model.SourceKind{
		model.SourceKindRSS,
		model.SourceKindWebsite,
		model.SourceKindNewsletter,
		model.SourceKindPodcast,
	}
}

// DetectURL はキャッチオールなので、http/httpsのURLなら常にマッチする。
func (r *RSSResolver) DetectURL(rawURL string) (bool, string) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false, ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false, ""
	}
	return true, rawURL
}

// Resolve はURLをフィード記述子へ解決する。
//  1. URLをフェッチし、フィードかHTMLかを判定
//  2. フィードの場合: ルート要素を検証し、ポッドキャストマーカーの有無を判定
//  3. HTMLの場合: headのlink rel="alternate"からフィード候補を検出し、
//     最適候補を再フェッチして検証
//  4. フィード未検出の場合はエラー（原因カテゴリ + 対処方法）を返す
func (r *RSSResolver) Resolve(ctx context.Context, rawURL string) (*model.FeedDescriptor, error) {
	resp, err := r.client.Fetch(ctx, rawURL, fetcher.Options{Accept: feedAcceptHeader})
	if err != nil {
		return nil, model.NewFetchFailedError(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	// フィード直接判定
	if IsFeedContent(resp.ContentType, resp.Body) {
		return r.describeFeed(resp.FinalURL, resp.Body), nil
	}

	// HTMLの場合: headタグからフィードリンクを検出
	mediaType, _, _ := mime.ParseMediaType(resp.ContentType)
	if !strings.Contains(strings.ToLower(mediaType), "html") {
		return nil, model.NewFeedNotDetectedError(rawURL)
	}

	candidates := parseFeedLinksFromHTML(resp.Body, resp.FinalURL)
	if len(candidates) == 0 {
		return nil, model.NewFeedNotDetectedError(rawURL)
	}

	best := selectBestFeed(candidates, resp.FinalURL)

	// 検出したフィードURLを再フェッチして検証
	feedResp, err := r.client.Fetch(ctx, best.URL, fetcher.Options{Accept: feedAcceptHeader})
	if err != nil {
		return nil, model.NewFetchFailedError(err.Error())
	}
	if feedResp.StatusCode != http.StatusOK || !IsFeedContent(feedResp.ContentType, feedResp.Body) {
		return nil, model.NewFeedNotDetectedError(best.URL)
	}

	desc := r.describeFeed(feedResp.FinalURL, feedResp.Body)
	if desc.Title == "" {
		desc.Title = best.Title
	}
	desc.SiteURL = resp.FinalURL
	return desc, nil
}

// describeFeed は検証済みフィードのボディから記述子を構築する。
func (r *RSSResolver) describeFeed(feedURL string, body []byte) *model.FeedDescriptor {
	isPodcast := HasPodcastMarkers(body)

	kind := model.SourceKindRSS
	if isPodcast {
		kind = model.SourceKindPodcast
	}

	return &model.FeedDescriptor{
		Kind:        kind,
		FeedURL:     feedURL,
		SiteURL:     feedURL,
		Title:       extractFeedTitle(body),
		Description: extractFeedDescription(body),
		Metadata:    model.SourceMetadata{IsPodcastFeed: isPodcast},
	}
}

// feedContentTypes はフィードとして認識するContent-Typeのリスト。
var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

// xmlContentTypes はXMLとして認識するContent-Type（ボディ解析が必要）。
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
}

// IsFeedContent はContent-Typeとボディを解析して、
// レスポンスがRSS/Atom/RDFフィードかどうかを判定する。
func IsFeedContent(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	// RSS/Atom固有のContent-Typeの場合は直接判定
	for _, feedCT := range feedContentTypes {
		if mediaType == feedCT {
			return true
		}
	}

	// 汎用XML Content-Typeの場合はボディ解析が必要
	isXML := false
	for _, xmlCT := range xmlContentTypes {
		if mediaType == xmlCT {
			isXML = true
			break
		}
	}

	// Content-Typeが不正確なサーバーもあるため、XML宣言で始まるボディも検査する
	if !isXML && len(body) > 0 && bytes.HasPrefix(bytes.TrimSpace(body), []byte("<?xml")) {
		isXML = true
	}

	if !isXML || len(body) == 0 {
		return false
	}

	return hasFeedRootElement(body)
}

// hasFeedRootElement はXMLボディの先頭部分を解析してフィードのルート要素を判定する。
// <rss>、Atom namespaceを含む<feed>、<rdf:RDF>、
// および<channel>と<item>/<entry>の共起を認識する。
func hasFeedRootElement(body []byte) bool {
	// 先頭8KBを検査（XMLプロローグ + ルート要素が含まれるのに十分）
	checkSize := 8192
	if len(body) < checkSize {
		checkSize = len(body)
	}
	prefix := strings.ToLower(string(body[:checkSize]))

	if strings.Contains(prefix, "<rss") {
		return true
	}
	if strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	if strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom") {
		return true
	}
	// ルート要素名が非標準でも、channelとitem/entryが共起すればフィードとみなす
	if strings.Contains(prefix, "<channel") &&
		(strings.Contains(prefix, "<item") || strings.Contains(prefix, "<entry")) {
		return true
	}

	return false
}

// podcastMarkerPatterns はポッドキャストフィードを示すマーカー。
var podcastMarkerPatterns = []string{
	`xmlns:itunes`,
	`<itunes:`,
	`xmlns:podcast`,
	`<podcast:`,
}

var audioEnclosureRe = regexp.MustCompile(`(?i)<enclosure[^>]+type="audio/`)

// HasPodcastMarkers はフィードボディがポッドキャストマーカーを含むかを判定する。
// 音声エンクロージャ（<enclosure type="audio/...">）または
// itunes:/podcast: 名前空間の存在をチェックする。
func HasPodcastMarkers(body []byte) bool {
	s := strings.ToLower(string(body))
	for _, marker := range podcastMarkerPatterns {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return audioEnclosureRe.Match(body)
}

var (
	feedTitleRe       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	feedDescriptionRe = regexp.MustCompile(`(?is)<description[^>]*>(.*?)</description>`)
	feedSubtitleRe    = regexp.MustCompile(`(?is)<(?:itunes:)?subtitle[^>]*>(.*?)</(?:itunes:)?subtitle>`)
	cdataRe           = regexp.MustCompile(`(?s)^\s*<!\[CDATA\[(.*?)\]\]>\s*$`)
	htmlTagRe         = regexp.MustCompile(`<[^>]*>`)
)

// extractFeedTitle はフィードの最初の<title>要素からタイトルを抽出する。
// CDATAのアンラップとHTMLエンティティのデコードを行う。
func extractFeedTitle(body []byte) string {
	m := feedTitleRe.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return cleanTextContent(string(m[1]))
}

// extractFeedDescription はフィードの説明文を抽出する。
// <description>を優先し、なければ<subtitle>（Atom/iTunes）を試す。
// HTMLタグを除去し、500文字で打ち切る。
func extractFeedDescription(body []byte) string {
	var raw string
	if m := feedDescriptionRe.FindSubmatch(body); m != nil {
		raw = string(m[1])
	} else if m := feedSubtitleRe.FindSubmatch(body); m != nil {
		raw = string(m[1])
	}
	if raw == "" {
		return ""
	}

	text := cleanTextContent(raw)
	text = htmlTagRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	return truncateRunes(text, maxDescriptionLength)
}

// cleanTextContent はCDATAをアンラップし、HTMLエンティティをデコードする。
func cleanTextContent(s string) string {
	if m := cdataRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	return strings.TrimSpace(html.UnescapeString(s))
}

// truncateRunes は文字列をルーン単位でmax文字に打ち切る。
// マルチバイト文字の途中で切断しない。
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// FeedType はHTML内で宣言されたフィードの種類（RSS/Atom）を表す。
type FeedType string

const (
	// FeedTypeRSS はRSSフィード。
	FeedTypeRSS FeedType = "rss"
	// FeedTypeAtom はAtomフィード。
	FeedTypeAtom FeedType = "atom"
)

// feedCandidate はHTMLから検出されたフィード候補を表す。
type feedCandidate struct {
	URL      string
	FeedType FeedType
	Title    string
}

// parseFeedLinksFromHTML はHTMLのheadタグからRSS/Atomフィードリンクを解析・検出する。
// 相対URLはbaseURLを基準に絶対URLに解決される。
func parseFeedLinksFromHTML(htmlBody []byte, baseURL string) []feedCandidate {
	var candidates []feedCandidate

	baseU, err := url.Parse(baseURL)
	if err != nil {
		return candidates
	}

	tokenizer := xhtml.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case xhtml.ErrorToken:
			return candidates

		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}

			if tagName == "body" {
				// bodyに入ったらheadの解析を終了
				return candidates
			}

			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href, title string
			for {
				key, val, more := tokenizer.TagAttr()
				k := strings.ToLower(string(key))
				v := string(val)
				switch k {
				case "rel":
					rel = strings.ToLower(v)
				case "type":
					linkType = strings.ToLower(v)
				case "href":
					href = v
				case "title":
					title = v
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}

			var feedType FeedType
			switch linkType {
			case "application/rss+xml":
				feedType = FeedTypeRSS
			case "application/atom+xml":
				feedType = FeedTypeAtom
			default:
				continue
			}

			resolved := resolveRelativeURL(baseU, href)
			if resolved == "" {
				continue
			}

			candidates = append(candidates, feedCandidate{
				URL:      resolved,
				FeedType: feedType,
				Title:    title,
			})

		case xhtml.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return candidates
			}
		}
	}
}

// resolveRelativeURL は相対URLをベースURLを基準に絶対URLに解決する。
func resolveRelativeURL(base *url.URL, rawRef string) string {
	ref, err := url.Parse(rawRef)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// selectBestFeed は複数のフィード候補から優先順位に従って最適なフィードを選択する。
// 優先順位: 同一ホスト > Atom > 先頭。
func selectBestFeed(candidates []feedCandidate, inputURL string) feedCandidate {
	inputHost := hostOf(inputURL)

	bestIdx := 0
	bestScore := -1

	for i, c := range candidates {
		score := 0
		if hostOf(c.URL) == inputHost {
			score += 100
		}
		if c.FeedType == FeedTypeAtom {
			score += 10
		}
		// 同スコアの場合は先頭の候補を優先する
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	return candidates[bestIdx]
}

// hostOf はURLからホスト名を抽出する。
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
