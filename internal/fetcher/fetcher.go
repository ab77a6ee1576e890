// Package fetcher はプラットフォーム解決と同期で共有するHTTP取得機能を提供する。
// リクエスト整形（User-Agent、Accept）、リダイレクト追従、タイムアウト管理を行い、
// 生のペイロードをリゾルバーへ返すステートレスなコンポーネント。
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/unifeed/internal/security"
)

const (
	// browserUserAgent はHTMLページのスクレイピングに使用するUser-Agent。
	// 一部のプラットフォームは非ブラウザのUser-Agentをブロックするため、
	// 実在するブラウザの形式に合わせる。
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// appUserAgent は機械可読フィード（XML/JSON）の取得に使用するUser-Agent。
	// フィード配信元がアクセス元を識別できるよう、アプリケーション名を明示する。
	appUserAgent = "Unifeed/1.0 Content Aggregator"

	// defaultTimeout は1フェッチあたりのデフォルトタイムアウト。
	// 応答しないソースが同期ループを停滞させないよう制限する。
	defaultTimeout = 10 * time.Second

	// defaultMaxBodySize はレスポンスボディの最大読み取りサイズ（5MB）。
	defaultMaxBodySize = 5 * 1024 * 1024
)

// Response はフェッチ結果を表す。
// 非2xxのステータスコードはエラーではなくStatusCodeで返されるため、
// 呼び出し側は「見つからない」と「通信障害」を区別できる。
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
	// FinalURL はリダイレクト追従後の最終URL。
	// ハンドルURLが別の正規ハンドルへリダイレクトされたことを
	// リゾルバーが検出するために、リクエストURLとは別に公開する。
	FinalURL string
}

// Options は1回のフェッチのリクエスト整形を指定する。
type Options struct {
	// BrowserUA がtrueの場合、ブラウザのUser-Agentを送信する（HTMLスクレイピング用）。
	// falseの場合はアプリケーションを識別するUser-Agentを送信する（フィード取得用）。
	BrowserUA bool
	// Accept はAcceptヘッダー。空の場合は送信しない。
	Accept string
	// Timeout は0の場合クライアントのデフォルトを使用する。
	Timeout time.Duration
}

// Client はSSRF防止付きのHTTP取得クライアント。
// 全リゾルバーと同期エンジンで共有され、状態を持たない。
type Client struct {
	ssrfGuard   security.SSRFGuardService
	timeout     time.Duration
	maxBodySize int64
}

// NewClient はClientの新しいインスタンスを生成する。
// timeoutが0以下の場合は10秒、maxBodySizeが0以下の場合は5MBを使用する。
func NewClient(ssrfGuard security.SSRFGuardService, timeout time.Duration, maxBodySize int64) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	return &Client{
		ssrfGuard:   ssrfGuard,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch は指定URLをGETし、ボディと最終URLを返す。
// タイムアウト・DNS・接続失敗時のみエラーを返し、
// 非2xxレスポンスはエラーなしでStatusCodeに反映する。
// リダイレクトは自動追従し、FinalURLに解決後のURLを格納する。
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if c.ssrfGuard != nil {
		if err := c.ssrfGuard.ValidateURL(rawURL); err != nil {
			return nil, fmt.Errorf("SSRF検証に失敗: %w", err)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	if opts.BrowserUA {
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	} else {
		req.Header.Set("User-Agent", appUserAgent)
	}
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}

	client := c.httpClient(timeout)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    finalURL,
	}, nil
}

// httpClient はSSRF防止付きのHTTPクライアントを取得する。
// SSRFGuardが未設定の場合（テスト等）は通常のクライアントを返す。
func (c *Client) httpClient(timeout time.Duration) *http.Client {
	if c.ssrfGuard != nil {
		return c.ssrfGuard.NewSafeClient(timeout, c.maxBodySize)
	}
	return &http.Client{Timeout: timeout}
}
