package resolver

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// channelIDValueRe はチャンネルIDの値形式（UC + 22文字）。
var channelIDValueRe = regexp.MustCompile(`^UC[\w-]{22}$`)

var (
	externalIDRe        = regexp.MustCompile(`"externalId"\s*:\s*"(UC[\w-]{22})"`)
	browseIDRe          = regexp.MustCompile(`"browseId"\s*:\s*"(UC[\w-]{22})"`)
	channelIDJSONRe     = regexp.MustCompile(`"channelId"\s*:\s*"(UC[\w-]{22})"`)
	externalChannelIDRe = regexp.MustCompile(`"externalChannelId"\s*:\s*"(UC[\w-]{22})"`)
	canonicalChannelRe  = regexp.MustCompile(`youtube\.com/channel/(UC[\w-]{22})`)
)

// channelIDStrategy はチャンネルページからチャンネルIDを抽出する1つの戦略を表す。
// 戦略は信頼度の高い順に試行され、最初に成功したものが採用される。
type channelIDStrategy struct {
	Name    string
	Extract func(body []byte, doc *goquery.Document) (string, bool)
}

// channelPageStrategies はチャンネルページ用の抽出戦略（信頼度順）。
//
// YouTubeのページ構造は予告なく変わるため、単一のパターンに依存せず
// 複数の独立した戦略を連鎖させる。新しい戦略の追加・順序変更が
// 他の戦略に影響しないよう、各戦略は完全に独立している。
var channelPageStrategies = []channelIDStrategy{
	{
		// channelMetadataRendererのexternalId。最も安定したフィールド。
		Name: "external_id",
		Extract: func(body []byte, _ *goquery.Document) (string, bool) {
			return firstMatch(externalIDRe, body)
		},
	},
	{
		// <link rel="canonical" href="https://www.youtube.com/channel/UC...">
		Name: "canonical_link",
		Extract: func(_ []byte, doc *goquery.Document) (string, bool) {
			if doc == nil {
				return "", false
			}
			href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href")
			if !ok {
				return "", false
			}
			if m := canonicalChannelRe.FindStringSubmatch(href); m != nil {
				return m[1], true
			}
			return "", false
		},
	},
	{
		// browseId。canonicalBaseUrlとの共起で、関連動画等の
		// 他チャンネルIDを拾う誤検出を防ぐ。
		Name: "browse_id",
		Extract: func(body []byte, _ *goquery.Document) (string, bool) {
			if !bytes.Contains(body, []byte(`"canonicalBaseUrl"`)) {
				return "", false
			}
			return firstMatch(browseIDRe, body)
		},
	},
	{
		// channelId。vanityChannelUrlとの共起を要求する。
		Name: "channel_id_with_vanity",
		Extract: func(body []byte, _ *goquery.Document) (string, bool) {
			if !bytes.Contains(body, []byte(`"vanityChannelUrl"`)) {
				return "", false
			}
			return firstMatch(channelIDJSONRe, body)
		},
	},
	{
		// ヘッダーレンダラー内のchannelId。
		Name: "header_channel_id",
		Extract: func(body []byte, _ *goquery.Document) (string, bool) {
			idx := bytes.Index(body, []byte(`c4TabbedHeaderRenderer`))
			if idx < 0 {
				idx = bytes.Index(body, []byte(`pageHeaderRenderer`))
			}
			if idx < 0 {
				return "", false
			}
			return firstMatch(channelIDJSONRe, body[idx:])
		},
	},
	{
		// 最終手段: ページ内の最初のchannelId。共起条件なし。
		Name: "bare_channel_id",
		Extract: func(body []byte, _ *goquery.Document) (string, bool) {
			return firstMatch(channelIDJSONRe, body)
		},
	},
}

// videoPageStrategies は動画ページ用の抽出戦略（信頼度順）。
// 動画ページは関連動画のチャンネルIDを大量に含むため、
// 動画所有者を示すフィールドとの共起条件が channel ページより厳しい。
var videoPageStrategies = []channelIDStrategy{
	{
		// videoOwnerRenderer系のexternalChannelId。ownerChannelNameとの共起を要求。
		Name: "owner_external_channel_id",
		Extract: func(body []byte, _ *goquery.Document) (string, bool) {
			if !bytes.Contains(body, []byte(`"ownerChannelName"`)) {
				return "", false
			}
			return firstMatch(externalChannelIDRe, body)
		},
	},
	{
		// microformat内のchannelId。ownerProfileUrlとの共起を要求。
		Name: "channel_id_with_owner_profile",
		Extract: func(body []byte, _ *goquery.Document) (string, bool) {
			if !bytes.Contains(body, []byte(`"ownerProfileUrl"`)) {
				return "", false
			}
			return firstMatch(channelIDJSONRe, body)
		},
	},
	{
		// 共起条件なしのexternalChannelId。
		Name: "external_channel_id",
		Extract: func(body []byte, _ *goquery.Document) (string, bool) {
			return firstMatch(externalChannelIDRe, body)
		},
	},
	{
		// 最終手段: ページ内の最初のchannelId。
		Name: "bare_channel_id",
		Extract: func(body []byte, _ *goquery.Document) (string, bool) {
			return firstMatch(channelIDJSONRe, body)
		},
	},
}

// firstMatch は正規表現の最初のキャプチャグループを返す。
func firstMatch(re *regexp.Regexp, body []byte) (string, bool) {
	m := re.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// extractChannelID は戦略を順に試行し、最初に抽出できたチャンネルIDと
// 採用した戦略名を返す。全戦略が失敗した場合は空文字列を返す。
func extractChannelID(strategies []channelIDStrategy, body []byte, doc *goquery.Document) (channelID, strategyName string) {
	for _, s := range strategies {
		if id, ok := s.Extract(body, doc); ok && channelIDValueRe.MatchString(id) {
			return id, s.Name
		}
	}
	return "", ""
}

var (
	avatarJSONRe      = regexp.MustCompile(`"avatar"\s*:\s*\{\s*"thumbnails"\s*:\s*\[\s*\{\s*"url"\s*:\s*"([^"]+)"`)
	shortDescRe       = regexp.MustCompile(`"shortDescription"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	metaDescSimpleRe  = regexp.MustCompile(`"description"\s*:\s*\{\s*"simpleText"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	unicodeEscapeRe   = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)
)

// extractChannelAvatar はチャンネルページからアバターURLを抽出する。
// ytInitialData内のavatar.thumbnailsを優先し、なければog:imageを使う。
// プロトコル相対URL（//yt3.ggpht.com/...）はhttpsに正規化する。
func extractChannelAvatar(body []byte, doc *goquery.Document) string {
	if m := avatarJSONRe.FindSubmatch(body); m != nil {
		return normalizeAvatarURL(string(m[1]))
	}
	if doc != nil {
		if content, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
			return normalizeAvatarURL(content)
		}
	}
	return ""
}

// normalizeAvatarURL はプロトコル相対URLをhttpsに正規化する。
func normalizeAvatarURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// extractPageTitle はog:titleまたは<title>からタイトルを抽出する。
// <title>の場合は末尾の「 - YouTube」サフィックスを除去する。
func extractPageTitle(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	if content, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if t := strings.TrimSpace(content); t != "" {
			return t
		}
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	title = strings.TrimSuffix(title, " - YouTube")
	return strings.TrimSpace(title)
}

// extractChannelDescription はチャンネルページから説明文を抽出する。
// og:description → JSON内のdescription.simpleText → shortDescription の順に試行。
func extractChannelDescription(body []byte, doc *goquery.Document) string {
	if doc != nil {
		if content, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok {
			if d := strings.TrimSpace(content); d != "" {
				return truncateRunes(d, maxDescriptionLength)
			}
		}
	}
	if m := metaDescSimpleRe.FindSubmatch(body); m != nil {
		return truncateRunes(unescapeJSONString(string(m[1])), maxDescriptionLength)
	}
	if m := shortDescRe.FindSubmatch(body); m != nil {
		return truncateRunes(unescapeJSONString(string(m[1])), maxDescriptionLength)
	}
	return ""
}

// unescapeJSONString は正規表現で切り出したJSON文字列リテラルのエスケープを解決する。
func unescapeJSONString(s string) string {
	s = unicodeEscapeRe.ReplaceAllStringFunc(s, func(m string) string {
		code, err := strconv.ParseUint(m[2:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(code))
	})
	replacer := strings.NewReplacer(
		`\n`, "\n",
		`\t`, "\t",
		`\"`, `"`,
		`\\`, `\`,
		`\/`, "/",
	)
	return strings.TrimSpace(replacer.Replace(s))
}

// podcastTabMarkers はチャンネルページにポッドキャストタブが存在することを示すマーカー。
// これらはタブの存在のみを示し、実際にエピソードがあるかはサブページで確認が必要。
var podcastTabMarkers = []string{
	`"url":"/podcasts"`,
	`/podcasts","`,
	`"tabIdentifier":"podcasts"`,
}

// hasPodcastTabMarker はチャンネルページHTMLにポッドキャストタブのマーカーがあるかを返す。
func hasPodcastTabMarker(body []byte) bool {
	for _, marker := range podcastTabMarkers {
		if bytes.Contains(body, []byte(marker)) {
			return true
		}
	}
	return false
}

// podcastPagePositiveMarkers はポッドキャストサブページに実コンテンツがあることを示すマーカー。
var podcastPagePositiveMarkers = []string{
	`gridPlaylistRenderer`,
	`lockupViewModel`,
	`richGridRenderer`,
}

// podcastPageNegativeMarkers はポッドキャストサブページが空であることを示すマーカー。
// ポジティブマーカーより優先して判定する。
var podcastPageNegativeMarkers = []string{
	`このチャンネルにはポッドキャストがありません`,
	`This channel has no podcasts`,
	`"messageRenderer"`,
}

// podcastConfirmation はポッドキャストサブページの検査結果。
type podcastConfirmation int

const (
	// podcastConfirmed はプレイリストレンダラーのマーカーを確認できた状態。
	podcastConfirmed podcastConfirmation = iota
	// podcastDenied は「コンテンツなし」の明示的なマーカーを確認できた状態。
	podcastDenied
	// podcastInconclusive はどちらのマーカーも見つからなかった状態。
	podcastInconclusive
)

// confirmPodcastContent はポッドキャストサブページのHTMLを検査し、
// 実際にポッドキャストコンテンツが存在するかを判定する。
// タブマーカーだけでは「空のポッドキャストタブ」を誤検出するため、
// サブページでの確認を必須とする。ネガティブマーカーを優先して判定し、
// どちらのマーカーも見つからない場合は判定不能を返す。
func confirmPodcastContent(body []byte) podcastConfirmation {
	for _, marker := range podcastPageNegativeMarkers {
		if bytes.Contains(body, []byte(marker)) {
			return podcastDenied
		}
	}
	for _, marker := range podcastPagePositiveMarkers {
		if bytes.Contains(body, []byte(marker)) {
			return podcastConfirmed
		}
	}
	return podcastInconclusive
}

var (
	playlistIDRe = regexp.MustCompile(`"playlistId"\s*:\s*"(PL[\w-]+|PP[\w-]+|UU[\w-]+)"`)
	// プレイリストタイトルはレンダラーの種類によって複数の形状をとる
	playlistTitleShapes = []*regexp.Regexp{
		regexp.MustCompile(`"title"\s*:\s*\{\s*"simpleText"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		regexp.MustCompile(`"title"\s*:\s*\{\s*"runs"\s*:\s*\[\s*\{\s*"text"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		regexp.MustCompile(`"title"\s*:\s*\{\s*"content"\s*:\s*"((?:[^"\\]|\\.)*)"`),
	}
	episodeCountRe = regexp.MustCompile(`"videoCountShortText"\s*:\s*\{\s*"simpleText"\s*:\s*"(\d+)`)
	videoCountRe   = regexp.MustCompile(`"videoCount"\s*:\s*"(\d+)"`)
)

// playlistEntry はポッドキャストサブページから抽出した1プレイリスト分の断片。
type playlistEntry struct {
	ID           string
	Title        string
	EpisodeCount int
}

// extractPodcastPlaylists はポッドキャストサブページからプレイリストを抽出する。
// playlistIdの出現位置を基点に、後続のタイトルとエピソード数を対応付ける。
// 重複IDは除去し、エピソード数降順（同数はID昇順）でソートして返す。
func extractPodcastPlaylists(body []byte) []playlistEntry {
	locs := playlistIDRe.FindAllSubmatchIndex(body, -1)
	if locs == nil {
		return nil
	}

	seen := make(map[string]bool)
	var entries []playlistEntry

	for i, loc := range locs {
		id := string(body[loc[2]:loc[3]])
		if seen[id] {
			continue
		}
		seen[id] = true

		// このplaylistIdから次のplaylistIdまでをこのプレイリストの領域とみなす
		start := loc[1]
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		region := body[start:end]

		entries = append(entries, playlistEntry{
			ID:           id,
			Title:        extractPlaylistTitle(region),
			EpisodeCount: extractEpisodeCount(region),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].EpisodeCount != entries[j].EpisodeCount {
			return entries[i].EpisodeCount > entries[j].EpisodeCount
		}
		return entries[i].ID < entries[j].ID
	})

	return entries
}

// extractEmbeddedPodcastPlaylistID はチャンネルページ本体に埋め込まれた
// プレイリストIDを返す。サブページで確認できなかった場合の最終手段として
// 使うため、共起条件は課さない。
func extractEmbeddedPodcastPlaylistID(body []byte) string {
	if m := playlistIDRe.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return ""
}

// extractPlaylistTitle は既知のタイトル形状を順に試行する。
func extractPlaylistTitle(region []byte) string {
	for _, re := range playlistTitleShapes {
		if m := re.FindSubmatch(region); m != nil {
			return unescapeJSONString(string(m[1]))
		}
	}
	return ""
}

// extractEpisodeCount はプレイリスト領域からエピソード数を抽出する。
func extractEpisodeCount(region []byte) int {
	if m := episodeCountRe.FindSubmatch(region); m != nil {
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			return n
		}
	}
	if m := videoCountRe.FindSubmatch(region); m != nil {
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			return n
		}
	}
	return 0
}
