package resolver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/unifeed/internal/security"
)

// maxAvatarSize はアバター画像の最大サイズ（2MB）。
const maxAvatarSize = 2 * 1024 * 1024

// avatarTimeout はアバター取得のタイムアウト。
const avatarTimeout = 5 * time.Second

// AvatarFetcherService はソースのアバター画像取得のインターフェース。
type AvatarFetcherService interface {
	// FetchAvatar は解決済みのアバターURLを優先して画像を取得する。
	// アバターURLが空または取得失敗の場合、サイトURLの/favicon.icoへフォールバックする。
	// 全て失敗した場合はnilデータと空MIMEを返す（エラーは返さない）。
	FetchAvatar(ctx context.Context, avatarURL, siteURL string) (data []byte, mimeType string, err error)
}

// AvatarFetcher はアバター画像取得機能の実装。
// ソース登録を妨げないよう、あらゆる失敗をnil結果として吸収する。
type AvatarFetcher struct {
	ssrfGuard security.SSRFGuardService
}

// NewAvatarFetcher はAvatarFetcherの新しいインスタンスを生成する。
func NewAvatarFetcher(ssrfGuard security.SSRFGuardService) *AvatarFetcher {
	return &AvatarFetcher{ssrfGuard: ssrfGuard}
}

// FetchAvatar は解決済みのアバターURL、次いでサイトのfaviconを試行する。
func (f *AvatarFetcher) FetchAvatar(ctx context.Context, avatarURL, siteURL string) ([]byte, string, error) {
	if avatarURL != "" {
		if data, mimeType := f.fetchImage(ctx, avatarURL); data != nil {
			return data, mimeType, nil
		}
	}

	faviconURL := defaultFaviconURL(siteURL)
	if faviconURL == "" {
		return nil, "", nil
	}
	data, mimeType := f.fetchImage(ctx, faviconURL)
	return data, mimeType, nil
}

// fetchImage は1つのURLから画像を取得する。失敗時はnilを返す。
func (f *AvatarFetcher) fetchImage(ctx context.Context, imageURL string) ([]byte, string) {
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(imageURL); err != nil {
			slog.Warn("アバター取得: SSRFブロック", "url", imageURL, "error", err)
			return nil, ""
		}
	}

	client := f.httpClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		slog.Warn("アバター取得: リクエスト作成失敗", "url", imageURL, "error", err)
		return nil, ""
	}
	req.Header.Set("User-Agent", "Unifeed/1.0 Content Aggregator")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("アバター取得: HTTPリクエスト失敗", "url", imageURL, "error", err)
		return nil, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("アバター取得: HTTPステータス異常", "url", imageURL, "status", resp.StatusCode)
		return nil, ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarSize+1))
	if err != nil {
		slog.Warn("アバター取得: レスポンス読み取り失敗", "url", imageURL, "error", err)
		return nil, ""
	}
	if int64(len(body)) > maxAvatarSize {
		slog.Warn("アバター取得: サイズ超過", "url", imageURL, "size", len(body))
		return nil, ""
	}

	mimeType := imageMimeType(resp.Header.Get("Content-Type"))
	if mimeType == "" {
		slog.Warn("アバター取得: 画像以外のContent-Type", "url", imageURL,
			"contentType", resp.Header.Get("Content-Type"))
		return nil, ""
	}

	return body, mimeType
}

// httpClient はSSRF対策済みのHTTPクライアントを返す。
func (f *AvatarFetcher) httpClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(avatarTimeout, maxAvatarSize)
	}
	return &http.Client{Timeout: avatarTimeout}
}

// defaultFaviconURL はサイトURLからデフォルトのfavicon URLを導出する。
func defaultFaviconURL(siteURL string) string {
	if siteURL == "" {
		return ""
	}
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Path = "/favicon.ico"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// imageMimeType はContent-Typeを正規化し、画像の場合のみメディアタイプを返す。
func imageMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType := strings.TrimSpace(strings.ToLower(strings.SplitN(contentType, ";", 2)[0]))
	if !strings.HasPrefix(mediaType, "image/") {
		return ""
	}
	return mediaType
}

// compile-time interface check
var _ AvatarFetcherService = (*AvatarFetcher)(nil)
