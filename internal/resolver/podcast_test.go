package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/unifeed/internal/fetcher"
	"github.com/hitoshi/unifeed/internal/model"
)

// newTestPodcastResolver はhttptestサーバー群に向けたポッドキャストリゾルバーを生成する。
func newTestPodcastResolver(appleEndpoint string, recorder *fakeFailureRecorder) *PodcastResolver {
	client := fetcher.NewClient(nil, 0, 0)
	apple := NewAppleLookupClient(http.DefaultClient, slog.Default())
	if appleEndpoint != "" {
		apple.endpoint = appleEndpoint
	}
	// recorderがnilの場合、型付きnilをインターフェースに入れるとnilチェックを
	// すり抜けてしまうため、真のnilインターフェースへ変換する。
	var metrics FailureRecorder
	if recorder != nil {
		metrics = recorder
	}
	return NewPodcastResolver(client, apple, NewYouTubeResolver(client, metrics), NewRSSResolver(client), metrics)
}

// TestPodcastResolver_Spotify はSpotify URLが構造的な解決不能として
// 統一された結果形式で返ることをテストする。
func TestPodcastResolver_Spotify(t *testing.T) {
	recorder := &fakeFailureRecorder{}
	p := newTestPodcastResolver("", recorder)

	res, err := p.ResolveDetailed(context.Background(), "https://open.spotify.com/show/abc123")
	if err != nil {
		t.Fatalf("構造的な解決不能はエラーではなく結果として返るべき: %v", err)
	}

	if res.Success {
		t.Error("Spotifyの解決は成功するべきではない")
	}
	if !res.RequiresManualFeed {
		t.Error("SpotifyはRequiresManualFeed=trueであるべき")
	}
	if len(recorder.calls) != 1 || recorder.calls[0] != "spotify/platform_unsupported" {
		t.Errorf("期待外のメトリクス記録: %v", recorder.calls)
	}
}

// TestPodcastResolver_SpotifyViaHandler はHandlerインターフェース経由では
// PLATFORM_UNSUPPORTEDエラーに変換されることをテストする。
func TestPodcastResolver_SpotifyViaHandler(t *testing.T) {
	p := newTestPodcastResolver("", nil)

	_, err := p.Resolve(context.Background(), "https://open.spotify.com/show/abc123")
	if err == nil {
		t.Fatal("Handler経由ではエラーが返るべき")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("APIErrorが返るべき: %T", err)
	}
	if apiErr.Code != model.ErrCodePlatformUnsupported {
		t.Errorf("期待コード: %s, 結果: %s", model.ErrCodePlatformUnsupported, apiErr.Code)
	}
}

// TestPodcastResolver_AmazonMusic はAmazon Musicの国別ドメインも
// 解決不能として扱われることをテストする。
func TestPodcastResolver_AmazonMusic(t *testing.T) {
	p := newTestPodcastResolver("", nil)

	res, err := p.ResolveDetailed(context.Background(), "https://music.amazon.co.jp/podcasts/xyz")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if res.Success || !res.RequiresManualFeed {
		t.Errorf("Amazon Musicは手動フィード入力が必要: %+v", res)
	}
}

// TestPodcastResolver_Apple はApple PodcastsのURLがLookup API経由で
// RSSフィードへ解決されることをテストする。
func TestPodcastResolver_Apple(t *testing.T) {
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0" xmlns:itunes="x"><channel><title>番組タイトル</title><description>番組の説明</description></channel></rss>`)
	}))
	defer feedServer.Close()

	lookupServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "123456" {
			fmt.Fprint(w, `{"resultCount":0,"results":[]}`)
			return
		}
		fmt.Fprintf(w, `{"resultCount":1,"results":[{"feedUrl":"%s/feed.xml","collectionName":"My Podcast","artworkUrl600":"https://example.com/art.jpg"}]}`, feedServer.URL)
	}))
	defer lookupServer.Close()

	p := newTestPodcastResolver(lookupServer.URL, nil)
	res, err := p.ResolveDetailed(context.Background(), "https://podcasts.apple.com/jp/podcast/test/id123456")
	if err != nil {
		t.Fatalf("解決に失敗: %v", err)
	}

	if !res.Success {
		t.Fatalf("解決は成功するべき: %+v", res)
	}
	desc := res.Descriptor
	if desc.Kind != model.SourceKindPodcast {
		t.Errorf("期待種別: podcast, 結果: %s", desc.Kind)
	}
	if desc.Title != "My Podcast" {
		t.Errorf("Lookupのタイトルが優先されるべき: %s", desc.Title)
	}
	if desc.Description != "番組の説明" {
		t.Errorf("説明文はフィードから補完されるべき: %s", desc.Description)
	}
	if desc.AvatarURL != "https://example.com/art.jpg" {
		t.Errorf("期待外のアートワークURL: %s", desc.AvatarURL)
	}
	if !desc.Metadata.IsPodcastFeed {
		t.Error("IsPodcastFeedがtrueであるべき")
	}
}

// TestPodcastResolver_AppleNotFound はLookupが0件の場合にエラーと
// メトリクス記録が行われることをテストする。
func TestPodcastResolver_AppleNotFound(t *testing.T) {
	lookupServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultCount":0,"results":[]}`)
	}))
	defer lookupServer.Close()

	recorder := &fakeFailureRecorder{}
	p := newTestPodcastResolver(lookupServer.URL, recorder)

	_, err := p.ResolveDetailed(context.Background(), "https://podcasts.apple.com/jp/podcast/test/id999999")
	if err == nil {
		t.Fatal("Lookup 0件の場合はエラーが返るべき")
	}
	if len(recorder.calls) != 1 || recorder.calls[0] != "apple/lookup" {
		t.Errorf("期待外のメトリクス記録: %v", recorder.calls)
	}
}

// TestPodcastResolver_AppleInvalidURL はIDのないApple URLでエラーが返ることをテストする。
func TestPodcastResolver_AppleInvalidURL(t *testing.T) {
	p := newTestPodcastResolver("", nil)

	_, err := p.ResolveDetailed(context.Background(), "https://podcasts.apple.com/jp/browse")
	if err == nil {
		t.Fatal("ID抽出不能の場合はエラーが返るべき")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("APIErrorが返るべき: %T", err)
	}
	if apiErr.Code != model.ErrCodeInvalidURL {
		t.Errorf("期待コード: %s, 結果: %s", model.ErrCodeInvalidURL, apiErr.Code)
	}
}

// TestPodcastResolver_GenericFeedFallback は未知ホストのURLが
// 汎用RSSリゾルバーへ委譲されることをテストする。
func TestPodcastResolver_GenericFeedFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0" xmlns:itunes="x"><channel><title>直接入力の番組</title></channel></rss>`)
	}))
	defer server.Close()

	p := newTestPodcastResolver("", nil)
	res, err := p.ResolveDetailed(context.Background(), server.URL+"/podcast.rss")
	if err != nil {
		t.Fatalf("解決に失敗: %v", err)
	}

	if !res.Success {
		t.Fatalf("解決は成功するべき: %+v", res)
	}
	if res.Descriptor.Title != "直接入力の番組" {
		t.Errorf("期待外のタイトル: %s", res.Descriptor.Title)
	}
}

// --- AppleLookupClient のテスト ---

// TestAppleLookupClient_MissingFeedURL はfeedUrl欠落（独占配信）の場合に
// エラーが返ることをテストする。
func TestAppleLookupClient_MissingFeedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultCount":1,"results":[{"collectionName":"Exclusive Show"}]}`)
	}))
	defer server.Close()

	c := NewAppleLookupClient(http.DefaultClient, slog.Default())
	c.endpoint = server.URL

	_, err := c.Lookup(context.Background(), "123")
	if err == nil {
		t.Fatal("feedUrl欠落の場合はエラーが返るべき")
	}
}

// TestAppleLookupClient_ArtworkFallback はartworkUrl600がない場合に
// artworkUrl100へフォールバックすることをテストする。
func TestAppleLookupClient_ArtworkFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultCount":1,"results":[{"feedUrl":"https://example.com/feed","artworkUrl100":"https://example.com/art100.jpg"}]}`)
	}))
	defer server.Close()

	c := NewAppleLookupClient(http.DefaultClient, slog.Default())
	c.endpoint = server.URL

	info, err := c.Lookup(context.Background(), "123")
	if err != nil {
		t.Fatalf("Lookupに失敗: %v", err)
	}
	if info.ArtworkURL != "https://example.com/art100.jpg" {
		t.Errorf("artworkUrl100へフォールバックするべき: %s", info.ArtworkURL)
	}
}

// TestAppleLookupClient_ServerError は非200レスポンスでエラーが返ることをテストする。
func TestAppleLookupClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewAppleLookupClient(http.DefaultClient, slog.Default())
	c.endpoint = server.URL

	if _, err := c.Lookup(context.Background(), "123"); err == nil {
		t.Fatal("サーバーエラーの場合はエラーが返るべき")
	}
}
