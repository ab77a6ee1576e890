package resolver

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/unifeed/internal/classify"
	"github.com/hitoshi/unifeed/internal/fetcher"
	"github.com/hitoshi/unifeed/internal/model"
)

// FailureRecorder は解決失敗の観測を受け取る。
// 呼び出し側がメトリクス収集を注入する（nilの場合は記録しない）。
type FailureRecorder interface {
	RecordResolutionFailure(platform, stage string)
}

// YouTubeResolver はYouTubeチャンネル・動画URLのリゾルバー。
// 全ての入力形式（チャンネルID、ハンドル、レガシー名、動画、フィードURL）を
// 安定したチャンネルIDに解決し、RSSフィードURLを導出する。
type YouTubeResolver struct {
	client  *fetcher.Client
	metrics FailureRecorder
	baseURL string // テスト用にページ取得先を差し替え可能
}

// NewYouTubeResolver はYouTubeResolverの新しいインスタンスを生成する。
func NewYouTubeResolver(client *fetcher.Client, metrics FailureRecorder) *YouTubeResolver {
	return &YouTubeResolver{
		client:  client,
		metrics: metrics,
		baseURL: "https://www.youtube.com",
	}
}

// Kind はyoutube-channelを返す。
func (y *YouTubeResolver) Kind() model.SourceKind {
	return model.SourceKindYouTubeChannel
}

// Kinds はチャンネルと動画の両種別を返す。
// 動画URLは所属チャンネルへ解決されるため、同期は常にチャンネル単位で行う。
func (y *YouTubeResolver) Kinds() []model.SourceKind {
	return []model.SourceKind{
		model.SourceKindYouTubeChannel,
		model.SourceKindYouTubeVideo,
	}
}

// DetectURL はYouTubeのURLパターンにマッチするかを判定する。
func (y *YouTubeResolver) DetectURL(rawURL string) (bool, string) {
	r := classify.Classify(rawURL)
	if !r.Matched {
		return false, ""
	}
	switch r.Kind {
	case model.SourceKindYouTubeChannel, model.SourceKindYouTubeVideo:
		return true, rawURL
	}
	return false, ""
}

// ChannelFeedURL はチャンネルIDから定期同期用のRSSフィードURLを導出する。
func ChannelFeedURL(channelID string) string {
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + channelID
}

// finalURLHandleRe はリダイレクト後のURLからハンドルを抽出する。
var finalURLHandleRe = regexp.MustCompile(`/@([\w.\-]+)`)

// Resolve はYouTubeのURLをチャンネルのフィード記述子へ解決する。
// 入力形式ごとの分岐:
//   - /channel/UC...       → チャンネルページを取得しメタデータを抽出
//   - /@handle, /c/, /user/ → チャンネルページからチャンネルIDを抽出
//   - /feeds/videos.xml     → channel_idパラメータから直接解決
//   - /watch, youtu.be      → 動画ページから所属チャンネルを特定し再帰的に解決
func (y *YouTubeResolver) Resolve(ctx context.Context, rawURL string) (*model.FeedDescriptor, error) {
	r := classify.Classify(rawURL)
	if !r.Matched {
		return nil, model.NewInvalidURLError("YouTubeのURLとして認識できません")
	}

	switch {
	case r.Kind == model.SourceKindYouTubeVideo:
		return y.resolveFromVideo(ctx, r.Hints.VideoID)

	case r.Hints.ChannelID != "":
		// チャンネルIDが既知でも、タイトル・アバター・ポッドキャスト情報の
		// 取得のためにページフェッチは行う
		return y.resolveChannelPage(ctx, y.baseURL+"/channel/"+r.Hints.ChannelID, "")

	case r.Hints.Handle != "":
		return y.resolveChannelPage(ctx, y.baseURL+"/@"+r.Hints.Handle, r.Hints.Handle)

	case r.Hints.LegacyName != "":
		return y.resolveChannelPage(ctx, rawURL, "")
	}

	return nil, model.NewInvalidURLError("YouTubeのURLとして認識できません")
}

// resolveChannelPage はチャンネルページを取得し、フィード記述子を構築する。
// inputHandleが非空の場合、リダイレクト後の正規ハンドルとの不一致を記録する。
func (y *YouTubeResolver) resolveChannelPage(ctx context.Context, pageURL, inputHandle string) (*model.FeedDescriptor, error) {
	resp, err := y.client.Fetch(ctx, pageURL, fetcher.Options{BrowserUA: true})
	if err != nil {
		y.recordFailure("youtube", "channel_page_fetch")
		return nil, model.NewFetchFailedError(err.Error())
	}
	if resp.StatusCode == http.StatusNotFound {
		y.recordFailure("youtube", "channel_not_found")
		return nil, model.NewResolutionFailedError("チャンネルが見つかりません")
	}
	if resp.StatusCode != http.StatusOK {
		y.recordFailure("youtube", "channel_page_fetch")
		return nil, model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if docErr != nil {
		// DOM解析に失敗しても正規表現ベースの戦略は動作する
		doc = nil
	}

	channelID, strategy := extractChannelID(channelPageStrategies, resp.Body, doc)
	if channelID == "" {
		y.recordFailure("youtube", "channel_id_extraction")
		return nil, model.NewResolutionFailedError("チャンネルIDを特定できませんでした")
	}
	slog.Debug("チャンネルIDを抽出しました", "channel_id", channelID, "strategy", strategy)

	metadata := model.SourceMetadata{ChannelID: channelID}

	// リダイレクトによるハンドル変化の記録
	if inputHandle != "" {
		finalHandle := handleFromURL(resp.FinalURL)
		metadata.Handle = finalHandle
		if finalHandle != "" && !strings.EqualFold(finalHandle, inputHandle) {
			metadata.OriginalHandle = inputHandle
			metadata.WasRedirected = true
		}
	}

	// ポッドキャストタブの検出（ベストエフォート）
	if hasPodcastTabMarker(resp.Body) {
		y.detectPodcast(ctx, channelID, resp.Body, &metadata)
	}

	return &model.FeedDescriptor{
		Kind:        model.SourceKindYouTubeChannel,
		FeedURL:     ChannelFeedURL(channelID),
		SiteURL:     "https://www.youtube.com/channel/" + channelID,
		Title:       extractPageTitle(doc),
		Description: extractChannelDescription(resp.Body, doc),
		AvatarURL:   extractChannelAvatar(resp.Body, doc),
		Metadata:    metadata,
	}, nil
}

// resolveFromVideo は動画ページから所属チャンネルを特定し、チャンネルとして解決する。
func (y *YouTubeResolver) resolveFromVideo(ctx context.Context, videoID string) (*model.FeedDescriptor, error) {
	watchURL := y.baseURL + "/watch?v=" + videoID
	resp, err := y.client.Fetch(ctx, watchURL, fetcher.Options{BrowserUA: true})
	if err != nil {
		y.recordFailure("youtube", "video_page_fetch")
		return nil, model.NewFetchFailedError(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		y.recordFailure("youtube", "video_page_fetch")
		return nil, model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if docErr != nil {
		doc = nil
	}

	channelID, _ := extractChannelID(videoPageStrategies, resp.Body, doc)
	if channelID == "" {
		y.recordFailure("youtube", "video_owner_extraction")
		return nil, model.NewResolutionFailedError("動画の所属チャンネルを特定できませんでした")
	}

	return y.resolveChannelPage(ctx, y.baseURL+"/channel/"+channelID, "")
}

// detectPodcast はポッドキャストサブページを取得して実コンテンツの有無を確認し、
// 存在する場合はプレイリスト一覧をメタデータに記録する。
// サブページの取得失敗はチャンネル解決自体を失敗させない。
// サブページで判定不能（取得失敗、またはマーカー不在）の場合でも、
// チャンネルページ本体にプレイリストIDが埋め込まれていれば、それを
// 単一のプレイリストとして採用する。明示的なネガティブマーカーが
// あった場合のみポッドキャストなしと確定する。
func (y *YouTubeResolver) detectPodcast(ctx context.Context, channelID string, channelBody []byte, metadata *model.SourceMetadata) {
	podcastURL := y.baseURL + "/channel/" + channelID + "/podcasts"
	resp, err := y.client.Fetch(ctx, podcastURL, fetcher.Options{BrowserUA: true})
	if err != nil || resp.StatusCode != http.StatusOK {
		y.adoptEmbeddedPlaylist(channelBody, metadata)
		return
	}

	switch confirmPodcastContent(resp.Body) {
	case podcastDenied:
		return
	case podcastInconclusive:
		y.adoptEmbeddedPlaylist(channelBody, metadata)
		return
	}

	metadata.HasPodcast = true
	for _, e := range extractPodcastPlaylists(resp.Body) {
		metadata.PodcastPlaylists = append(metadata.PodcastPlaylists, model.PodcastPlaylist{
			ID:           e.ID,
			Title:        e.Title,
			EpisodeCount: e.EpisodeCount,
		})
	}
}

// adoptEmbeddedPlaylist はチャンネルページ本体に埋め込まれたプレイリストIDを
// 単一のポッドキャストプレイリストとして記録する。タイトルとエピソード数は
// サブページからしか得られないため空値のままとする。
func (y *YouTubeResolver) adoptEmbeddedPlaylist(channelBody []byte, metadata *model.SourceMetadata) {
	id := extractEmbeddedPodcastPlaylistID(channelBody)
	if id == "" {
		return
	}
	metadata.HasPodcast = true
	metadata.PodcastPlaylists = append(metadata.PodcastPlaylists, model.PodcastPlaylist{ID: id})
}

// handleFromURL はURLからハンドル（@なし）を抽出する。
func handleFromURL(rawURL string) string {
	m := finalURLHandleRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// recordFailure は解決失敗をメトリクスに記録する。
func (y *YouTubeResolver) recordFailure(platform, stage string) {
	if y.metrics != nil {
		y.metrics.RecordResolutionFailure(platform, stage)
	}
}
