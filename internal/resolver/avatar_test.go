package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// pngBytes はテスト用の最小画像データ。
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

// TestAvatarFetcher_FetchFromAvatarURL は解決済みアバターURLからの取得をテストする。
func TestAvatarFetcher_FetchFromAvatarURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer server.Close()

	f := NewAvatarFetcher(nil)
	data, mimeType, err := f.FetchAvatar(context.Background(), server.URL+"/avatar.png", "")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(data) != len(pngBytes) {
		t.Errorf("画像データが取得されるべき: %dバイト", len(data))
	}
	if mimeType != "image/png" {
		t.Errorf("期待MIME: image/png, 結果: %s", mimeType)
	}
}

// TestAvatarFetcher_FaviconFallback はアバターURL失敗時に
// /favicon.ico へフォールバックすることをテストする。
func TestAvatarFetcher_FaviconFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/favicon.ico" {
			w.Header().Set("Content-Type", "image/x-icon")
			w.Write(pngBytes)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := NewAvatarFetcher(nil)
	data, mimeType, err := f.FetchAvatar(context.Background(), server.URL+"/missing.png", server.URL+"/blog/page")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if data == nil {
		t.Fatal("faviconへフォールバックするべき")
	}
	if mimeType != "image/x-icon" {
		t.Errorf("期待MIME: image/x-icon, 結果: %s", mimeType)
	}
}

// TestAvatarFetcher_NonImageContentType は画像以外のContent-Typeで
// nilが返ることをテストする。
func TestAvatarFetcher_NonImageContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	f := NewAvatarFetcher(nil)
	data, _, err := f.FetchAvatar(context.Background(), server.URL+"/avatar", "")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if data != nil {
		t.Error("画像以外のレスポンスはnilデータであるべき")
	}
}

// TestAvatarFetcher_AllFailed は全試行失敗でもエラーを返さないことをテストする。
func TestAvatarFetcher_AllFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	f := NewAvatarFetcher(nil)
	data, mimeType, err := f.FetchAvatar(context.Background(), server.URL+"/a.png", server.URL)
	if err != nil {
		t.Fatalf("取得失敗はエラーとして返すべきではない: %v", err)
	}
	if data != nil || mimeType != "" {
		t.Error("全試行失敗時はnilデータと空MIMEが返るべき")
	}
}

// TestDefaultFaviconURL はサイトURLからのfavicon URL導出をテストする。
func TestDefaultFaviconURL(t *testing.T) {
	got := defaultFaviconURL("https://example.com/blog/post?page=2#top")
	if got != "https://example.com/favicon.ico" {
		t.Errorf("期待: https://example.com/favicon.ico, 結果: %s", got)
	}

	if defaultFaviconURL("") != "" {
		t.Error("空のサイトURLは空文字列を返すべき")
	}
	if defaultFaviconURL("://invalid") != "" {
		t.Error("無効なURLは空文字列を返すべき")
	}
}
