package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/unifeed/internal/middleware"
	"github.com/hitoshi/unifeed/internal/model"
	"github.com/hitoshi/unifeed/internal/source"
)

// --- モック定義 ---

// mockSourceService はSourceServiceInterfaceのモック実装。
type mockSourceService struct {
	registerSourceFn func(ctx context.Context, userID, inputURL string) (*model.Source, error)
	listSourcesFn    func(ctx context.Context, userID string) ([]source.SourceInfo, error)
	getSourceFn      func(ctx context.Context, userID, sourceID string) (*source.SourceInfo, error)
	deleteSourceFn   func(ctx context.Context, userID, sourceID string) error
	resumeFetchFn    func(ctx context.Context, userID, sourceID string) (*source.SourceInfo, error)
}

func (m *mockSourceService) RegisterSource(ctx context.Context, userID, inputURL string) (*model.Source, error) {
	if m.registerSourceFn != nil {
		return m.registerSourceFn(ctx, userID, inputURL)
	}
	return nil, nil
}

func (m *mockSourceService) ListSources(ctx context.Context, userID string) ([]source.SourceInfo, error) {
	if m.listSourcesFn != nil {
		return m.listSourcesFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockSourceService) GetSource(ctx context.Context, userID, sourceID string) (*source.SourceInfo, error) {
	if m.getSourceFn != nil {
		return m.getSourceFn(ctx, userID, sourceID)
	}
	return nil, nil
}

func (m *mockSourceService) DeleteSource(ctx context.Context, userID, sourceID string) error {
	if m.deleteSourceFn != nil {
		return m.deleteSourceFn(ctx, userID, sourceID)
	}
	return nil
}

func (m *mockSourceService) ResumeFetch(ctx context.Context, userID, sourceID string) (*source.SourceInfo, error) {
	if m.resumeFetchFn != nil {
		return m.resumeFetchFn(ctx, userID, sourceID)
	}
	return nil, nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- POST /api/sources テスト ---

func TestSourceHandler_RegisterSource_Success(t *testing.T) {
	svc := &mockSourceService{
		registerSourceFn: func(ctx context.Context, userID, inputURL string) (*model.Source, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			if inputURL != "https://www.youtube.com/@example" {
				t.Errorf("inputURL = %q, want %q", inputURL, "https://www.youtube.com/@example")
			}
			return &model.Source{
				ID:           "source-id-1",
				UserID:       "user-123",
				Kind:         model.SourceKindYouTubeChannel,
				CanonicalURL: "https://www.youtube.com/@example",
				FeedURL:      "https://www.youtube.com/feeds/videos.xml?channel_id=UC123",
				Title:        "Example Channel",
				FetchStatus:  model.FetchStatusActive,
			}, nil
		},
	}

	h := NewSourceHandler(svc)

	body := `{"url": "https://www.youtube.com/@example"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sources", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RegisterSource(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["success"] != true {
		t.Errorf("success = %v, want true", result["success"])
	}
	src, ok := result["source"].(map[string]interface{})
	if !ok {
		t.Fatalf("source = %v, want object", result["source"])
	}
	if src["id"] != "source-id-1" {
		t.Errorf("id = %v, want %q", src["id"], "source-id-1")
	}
	if src["kind"] != "youtube-channel" {
		t.Errorf("kind = %v, want %q", src["kind"], "youtube-channel")
	}
	if src["feed_url"] != "https://www.youtube.com/feeds/videos.xml?channel_id=UC123" {
		t.Errorf("feed_url = %v", src["feed_url"])
	}
}

func TestSourceHandler_RegisterSource_EmptyURL_ReturnsBadRequest(t *testing.T) {
	h := NewSourceHandler(&mockSourceService{})

	body := `{"url": ""}`
	req := httptest.NewRequest(http.MethodPost, "/api/sources", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RegisterSource(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeInvalidURL {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeInvalidURL)
	}
}

func TestSourceHandler_RegisterSource_WithoutUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewSourceHandler(&mockSourceService{})

	body := `{"url": "https://example.com/feed.xml"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sources", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	h.RegisterSource(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestSourceHandler_RegisterSource_DuplicateSource_ReturnsConflict(t *testing.T) {
	svc := &mockSourceService{
		registerSourceFn: func(ctx context.Context, userID, inputURL string) (*model.Source, error) {
			return nil, model.NewDuplicateSourceError()
		},
	}
	h := NewSourceHandler(svc)

	body := `{"url": "https://example.com/feed.xml"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sources", bytes.NewBufferString(body))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RegisterSource(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}

	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeDuplicateSource {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeDuplicateSource)
	}
}

func TestSourceHandler_RegisterSource_PlatformUnsupported_ReturnsSuccessFalse(t *testing.T) {
	svc := &mockSourceService{
		registerSourceFn: func(ctx context.Context, userID, inputURL string) (*model.Source, error) {
			return nil, model.NewPlatformUnsupportedError("Spotify")
		},
	}
	h := NewSourceHandler(svc)

	body := `{"url": "https://open.spotify.com/show/abc"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sources", bytes.NewBufferString(body))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RegisterSource(w, req)

	// 構造的な解決不能はHTTPエラーではなくsuccess=falseで返す
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["success"] != false {
		t.Errorf("success = %v, want false", result["success"])
	}
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("error = %v, want object", result["error"])
	}
	if errObj["code"] != model.ErrCodePlatformUnsupported {
		t.Errorf("code = %v, want %q", errObj["code"], model.ErrCodePlatformUnsupported)
	}
}

// --- GET /api/sources テスト ---

func TestSourceHandler_ListSources_ReturnsUnreadCounts(t *testing.T) {
	avatarURL := "data:image/png;base64,iVBORw0KGgo="
	svc := &mockSourceService{
		listSourcesFn: func(ctx context.Context, userID string) ([]source.SourceInfo, error) {
			return []source.SourceInfo{
				{
					ID:          "source-1",
					Kind:        model.SourceKindRSS,
					FeedURL:     "https://example.com/feed.xml",
					Title:       "Example Blog",
					FetchStatus: string(model.FetchStatusActive),
					UnreadCount: 5,
					AvatarURL:   &avatarURL,
				},
				{
					ID:          "source-2",
					Kind:        model.SourceKindPodcast,
					FeedURL:     "https://example.com/podcast.xml",
					Title:       "Example Podcast",
					FetchStatus: string(model.FetchStatusStopped),
					UnreadCount: 0,
				},
			}, nil
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListSources(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result []map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2", len(result))
	}
	if result[0]["unread_count"] != float64(5) {
		t.Errorf("unread_count = %v, want 5", result[0]["unread_count"])
	}
	if result[0]["avatar_url"] != avatarURL {
		t.Errorf("avatar_url = %v, want %q", result[0]["avatar_url"], avatarURL)
	}
	if result[1]["fetch_status"] != "stopped" {
		t.Errorf("fetch_status = %v, want %q", result[1]["fetch_status"], "stopped")
	}
}

// --- GET /api/sources/:id テスト ---

func TestSourceHandler_GetSource_NotFound_Returns404(t *testing.T) {
	svc := &mockSourceService{
		getSourceFn: func(ctx context.Context, userID, sourceID string) (*source.SourceInfo, error) {
			return nil, model.NewSourceNotFoundError(sourceID)
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/sources/missing", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.GetSource(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeSourceNotFound {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeSourceNotFound)
	}
}

// --- DELETE /api/sources/:id テスト ---

func TestSourceHandler_DeleteSource_Success_ReturnsNoContent(t *testing.T) {
	deleted := false
	svc := &mockSourceService{
		deleteSourceFn: func(ctx context.Context, userID, sourceID string) error {
			if sourceID != "source-1" {
				t.Errorf("sourceID = %q, want %q", sourceID, "source-1")
			}
			deleted = true
			return nil
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/sources/source-1", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "source-1")
	w := httptest.NewRecorder()

	h.DeleteSource(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !deleted {
		t.Error("DeleteSource was not called")
	}
}

// --- POST /api/sources/:id/resume テスト ---

func TestSourceHandler_ResumeFetch_NotStopped_ReturnsConflict(t *testing.T) {
	svc := &mockSourceService{
		resumeFetchFn: func(ctx context.Context, userID, sourceID string) (*source.SourceInfo, error) {
			return nil, model.NewSourceNotStoppedError()
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/sources/source-1/resume", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "source-1")
	w := httptest.NewRecorder()

	h.ResumeFetch(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestSourceHandler_ResumeFetch_Success(t *testing.T) {
	svc := &mockSourceService{
		resumeFetchFn: func(ctx context.Context, userID, sourceID string) (*source.SourceInfo, error) {
			return &source.SourceInfo{
				ID:          sourceID,
				Kind:        model.SourceKindRSS,
				FetchStatus: string(model.FetchStatusActive),
			}, nil
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/sources/source-1/resume", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "source-1")
	w := httptest.NewRecorder()

	h.ResumeFetch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["fetch_status"] != "active" {
		t.Errorf("fetch_status = %v, want %q", result["fetch_status"], "active")
	}
}
