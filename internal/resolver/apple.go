package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

const (
	// appleLookupEndpoint はApple Podcasts Lookup APIのエンドポイント。
	appleLookupEndpoint = "https://itunes.apple.com/lookup"
	// appleLookupMaxBody はLookupレスポンスボディの最大サイズ。
	appleLookupMaxBody = 1 << 20
)

// AppleLookupClient はApple Podcasts Lookup APIのクライアント。
// Apple PodcastsのページURLから抽出した数値IDを、
// 番組の元となるRSSフィードURLへ解決する。
type AppleLookupClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewAppleLookupClient はAppleLookupClientの新しいインスタンスを生成する。
func NewAppleLookupClient(httpClient *http.Client, logger *slog.Logger) *AppleLookupClient {
	return &AppleLookupClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   appleLookupEndpoint,
	}
}

// ApplePodcastInfo はLookup APIから取得した番組情報を表す。
type ApplePodcastInfo struct {
	FeedURL    string
	Title      string
	ArtworkURL string
}

// lookupResponse はLookup APIのレスポンス形式。
type lookupResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		FeedURL        string `json:"feedUrl"`
		CollectionName string `json:"collectionName"`
		ArtworkURL600  string `json:"artworkUrl600"`
		ArtworkURL100  string `json:"artworkUrl100"`
	} `json:"results"`
}

// Lookup はApple PodcastsのIDから番組情報を取得する。
// 結果が0件、またはfeedUrlが欠落している場合はエラーを返す
// （独占配信の番組はRSSフィードを持たないことがある）。
func (c *AppleLookupClient) Lookup(ctx context.Context, podcastID string) (*ApplePodcastInfo, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	q.Set("id", podcastID)
	q.Set("entity", "podcast")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Unifeed/1.0 Content Aggregator")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Apple Lookup APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("podcast_id", podcastID),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Apple Lookup APIがエラーを返しました: status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, appleLookupMaxBody))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var lr lookupResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, fmt.Errorf("レスポンスのパースに失敗しました: %w", err)
	}

	if lr.ResultCount == 0 || len(lr.Results) == 0 {
		return nil, fmt.Errorf("ポッドキャストが見つかりません: id=%s", podcastID)
	}

	result := lr.Results[0]
	if result.FeedURL == "" {
		return nil, fmt.Errorf("この番組はRSSフィードを公開していません: id=%s", podcastID)
	}

	artwork := result.ArtworkURL600
	if artwork == "" {
		artwork = result.ArtworkURL100
	}

	return &ApplePodcastInfo{
		FeedURL:    result.FeedURL,
		Title:      result.CollectionName,
		ArtworkURL: artwork,
	}, nil
}
