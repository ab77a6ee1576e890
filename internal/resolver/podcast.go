package resolver

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/hitoshi/unifeed/internal/classify"
	"github.com/hitoshi/unifeed/internal/fetcher"
	"github.com/hitoshi/unifeed/internal/model"
)

// PodcastResolution はポッドキャストURL解決の結果を表す。
// 成功・失敗にかかわらず同じ形で返し、失敗時はReasonに人間可読な理由を持つ。
// RequiresManualFeedは「プラットフォームが構造的にRSSを公開していないため、
// ユーザーがフィードURLを直接入力する必要がある」ことを示す。
type PodcastResolution struct {
	Success            bool
	Descriptor         *model.FeedDescriptor
	Reason             string
	RequiresManualFeed bool
}

// PodcastResolver はポッドキャスト配信プラットフォームURLのリゾルバー。
// Apple PodcastsはLookup APIでRSSフィードへ解決できる。
// SpotifyとAmazon MusicはRSSフィードを公開しないため、構造的な解決不能として扱う。
type PodcastResolver struct {
	client   *fetcher.Client
	apple    *AppleLookupClient
	youtube  *YouTubeResolver
	fallback *RSSResolver
	metrics  FailureRecorder
}

// NewPodcastResolver はPodcastResolverの新しいインスタンスを生成する。
func NewPodcastResolver(client *fetcher.Client, apple *AppleLookupClient, youtube *YouTubeResolver, fallback *RSSResolver, metrics FailureRecorder) *PodcastResolver {
	return &PodcastResolver{
		client:   client,
		apple:    apple,
		youtube:  youtube,
		fallback: fallback,
		metrics:  metrics,
	}
}

// Kind はpodcastを返す。
func (p *PodcastResolver) Kind() model.SourceKind {
	return model.SourceKindPodcast
}

// Kinds はpodcastのみを返す。
// ポッドキャストフィードの定期同期は汎用フィードパスで処理されるため、
// レジストリの登録順で汎用ハンドラーが同期担当になる場合がある。
func (p *PodcastResolver) Kinds() []model.SourceKind {
	return []model.SourceKind{model.SourceKindPodcast}
}

// DetectURL はポッドキャスト配信プラットフォームのホストにマッチするかを判定する。
func (p *PodcastResolver) DetectURL(rawURL string) (bool, string) {
	r := classify.Classify(rawURL)
	if r.Matched && r.Kind == model.SourceKindPodcast {
		return true, rawURL
	}
	return false, ""
}

// Resolve はHandlerインターフェースの実装。
// 構造的な解決不能（Spotify等）もエラーとして返す。
// 成功フラグ付きの結果が必要な場合はResolveDetailedを使う。
func (p *PodcastResolver) Resolve(ctx context.Context, rawURL string) (*model.FeedDescriptor, error) {
	res, err := p.ResolveDetailed(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		if res.RequiresManualFeed {
			return nil, model.NewPlatformUnsupportedError(res.Reason)
		}
		return nil, model.NewResolutionFailedError(res.Reason)
	}
	return res.Descriptor, nil
}

// ResolveDetailed はプラットフォームごとのサブリゾルバーに振り分け、
// 成功・失敗を統一された形で返す。
//   - Apple Podcasts → Lookup APIでRSSフィードへ解決
//   - Spotify / Amazon Music → 構造的な解決不能（手動フィード入力が必要）
//   - YouTube → YouTubeリゾルバーへ委譲
//   - その他 → 汎用RSSリゾルバーへ委譲
func (p *PodcastResolver) ResolveDetailed(ctx context.Context, rawURL string) (*PodcastResolution, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil, model.NewInvalidURLError("URLをパースできません")
	}

	host := strings.ToLower(u.Hostname())

	switch {
	case host == "podcasts.apple.com":
		return p.resolveApple(ctx, rawURL)

	case host == "open.spotify.com":
		// SpotifyはRSSフィードを公開しない。解決の失敗ではなく構造的な制約。
		p.recordFailure("spotify", "platform_unsupported")
		return &PodcastResolution{Reason: "Spotify", RequiresManualFeed: true}, nil

	case host == "music.amazon.com" || strings.HasPrefix(host, "music.amazon."):
		p.recordFailure("amazon", "platform_unsupported")
		return &PodcastResolution{Reason: "Amazon Music", RequiresManualFeed: true}, nil

	case strings.Contains(host, "youtube.com") || host == "youtu.be":
		desc, err := p.youtube.Resolve(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		return &PodcastResolution{Success: true, Descriptor: desc}, nil
	}

	// 未知のホスト: ポッドキャストのRSSフィードが直接入力された可能性
	desc, err := p.fallback.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return &PodcastResolution{Success: true, Descriptor: desc}, nil
}

// resolveApple はApple PodcastsのURLをLookup API経由でRSSフィードへ解決する。
// Lookupで得たフィードURLは実際に取得・検証し、フィード側のメタデータで補完する。
func (p *PodcastResolver) resolveApple(ctx context.Context, rawURL string) (*PodcastResolution, error) {
	podcastID := classify.ApplePodcastID(rawURL)
	if podcastID == "" {
		p.recordFailure("apple", "id_extraction")
		return nil, model.NewInvalidURLError("Apple PodcastsのURLからIDを抽出できません")
	}

	info, err := p.apple.Lookup(ctx, podcastID)
	if err != nil {
		p.recordFailure("apple", "lookup")
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, model.NewResolutionFailedError(err.Error())
	}

	desc := &model.FeedDescriptor{
		Kind:      model.SourceKindPodcast,
		FeedURL:   info.FeedURL,
		SiteURL:   rawURL,
		Title:     info.Title,
		AvatarURL: info.ArtworkURL,
		Metadata:  model.SourceMetadata{IsPodcastFeed: true},
	}

	// フィード本体の検証と説明文の補完（失敗してもLookupの結果で解決は成立する）
	if resp, ferr := p.client.Fetch(ctx, info.FeedURL, fetcher.Options{Accept: feedAcceptHeader}); ferr == nil &&
		resp.StatusCode == 200 && IsFeedContent(resp.ContentType, resp.Body) {
		desc.FeedURL = resp.FinalURL
		desc.Description = extractFeedDescription(resp.Body)
		if desc.Title == "" {
			desc.Title = extractFeedTitle(resp.Body)
		}
	}

	return &PodcastResolution{Success: true, Descriptor: desc}, nil
}

// recordFailure は解決失敗をメトリクスに記録する。
func (p *PodcastResolver) recordFailure(platform, stage string) {
	if p.metrics != nil {
		p.metrics.RecordResolutionFailure(platform, stage)
	}
}
