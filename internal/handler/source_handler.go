// Package handler はHTTP APIのハンドラー層を提供する。
// サービス層のエラーを統一エラーフォーマットに変換し、chiルーターに
// エンドポイントを束ねる。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/unifeed/internal/middleware"
	"github.com/hitoshi/unifeed/internal/model"
	"github.com/hitoshi/unifeed/internal/source"
)

// SourceServiceInterface はソースハンドラーが必要とするサービスインターフェース。
type SourceServiceInterface interface {
	// RegisterSource はURLからソースを解決し登録する。
	RegisterSource(ctx context.Context, userID, inputURL string) (*model.Source, error)
	// ListSources はユーザーの全ソースを未読数付きで返す。
	ListSources(ctx context.Context, userID string) ([]source.SourceInfo, error)
	// GetSource はソース詳細を取得する。
	GetSource(ctx context.Context, userID, sourceID string) (*source.SourceInfo, error)
	// DeleteSource はソースと関連データを削除する。
	DeleteSource(ctx context.Context, userID, sourceID string) error
	// ResumeFetch は停止中ソースのフェッチを再開する。
	ResumeFetch(ctx context.Context, userID, sourceID string) (*source.SourceInfo, error)
}

// SourceHandler はソース管理のHTTPハンドラー。
type SourceHandler struct {
	service SourceServiceInterface
}

// NewSourceHandler はSourceHandlerを生成する。
func NewSourceHandler(service SourceServiceInterface) *SourceHandler {
	return &SourceHandler{service: service}
}

// registerSourceRequest はソース登録リクエストのボディ。
type registerSourceRequest struct {
	URL string `json:"url"`
}

// sourceResponse はソース情報のAPIレスポンス。
type sourceResponse struct {
	ID            string               `json:"id"`
	Kind          string               `json:"kind"`
	CanonicalURL  string               `json:"canonical_url"`
	FeedURL       string               `json:"feed_url"`
	Title         string               `json:"title"`
	Description   string               `json:"description,omitempty"`
	AvatarURL     *string              `json:"avatar_url,omitempty"`
	FetchStatus   string               `json:"fetch_status"`
	ErrorMessage  *string              `json:"error_message,omitempty"`
	UnreadCount   int                  `json:"unread_count"`
	LastFetchedAt *time.Time           `json:"last_fetched_at,omitempty"`
	Metadata      model.SourceMetadata `json:"metadata"`
	CreatedAt     time.Time            `json:"created_at"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// registerSourceResponse はソース登録のレスポンスエンベロープ。
// 想定内の解決失敗（Spotify等の構造的な解決不能）はHTTP 200で
// success=falseとして返し、エラーステータスにはしない。
type registerSourceResponse struct {
	Success bool              `json:"success"`
	Source  *sourceResponse   `json:"source,omitempty"`
	Error   *apiErrorResponse `json:"error,omitempty"`
}

// RegisterSource はソース登録を処理する。
// POST /api/sources
func (h *SourceHandler) RegisterSource(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req registerSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	created, err := h.service.RegisterSource(r.Context(), userID, req.URL)
	if err != nil {
		// 想定内の解決失敗はエンベロープで success=false として返す
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && isExpectedResolutionFailure(apiErr) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(registerSourceResponse{
				Success: false,
				Error: &apiErrorResponse{
					Code:     apiErr.Code,
					Message:  apiErr.Message,
					Category: apiErr.Category,
					Action:   apiErr.Action,
				},
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	resp := toCreatedSourceResponse(created)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(registerSourceResponse{
		Success: true,
		Source:  &resp,
	})
}

// isExpectedResolutionFailure は登録フローで想定内とみなす解決失敗かを判定する。
// 未対応プラットフォーム・解決失敗・フィード未検出はリクエスト自体が正当なため、
// HTTPエラーではなくドメインレベルの失敗として返す。
func isExpectedResolutionFailure(apiErr *model.APIError) bool {
	switch apiErr.Code {
	case model.ErrCodePlatformUnsupported, model.ErrCodeResolutionFailed, model.ErrCodeFeedNotDetected:
		return true
	}
	return false
}

// ListSources はソース一覧を返す。
// GET /api/sources
func (h *SourceHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	infos, err := h.service.ListSources(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]sourceResponse, len(infos))
	for i := range infos {
		responses[i] = toSourceResponse(&infos[i])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// GetSource はソース詳細を返す。
// GET /api/sources/:id
func (h *SourceHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	sourceID := chi.URLParam(r, "id")

	info, err := h.service.GetSource(r.Context(), userID, sourceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSourceResponse(info))
}

// DeleteSource はソースを削除する。
// DELETE /api/sources/:id
func (h *SourceHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	sourceID := chi.URLParam(r, "id")

	if err := h.service.DeleteSource(r.Context(), userID, sourceID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResumeFetch は停止中ソースのフェッチを再開する。
// POST /api/sources/:id/resume
func (h *SourceHandler) ResumeFetch(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	sourceID := chi.URLParam(r, "id")

	info, err := h.service.ResumeFetch(r.Context(), userID, sourceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSourceResponse(info))
}

// --- ヘルパー関数 ---

// toSourceResponse はSourceInfoからAPIレスポンスに変換する。
func toSourceResponse(info *source.SourceInfo) sourceResponse {
	return sourceResponse{
		ID:            info.ID,
		Kind:          string(info.Kind),
		CanonicalURL:  info.CanonicalURL,
		FeedURL:       info.FeedURL,
		Title:         info.Title,
		Description:   info.Description,
		AvatarURL:     info.AvatarURL,
		FetchStatus:   info.FetchStatus,
		ErrorMessage:  info.ErrorMessage,
		UnreadCount:   info.UnreadCount,
		LastFetchedAt: info.LastFetchedAt,
		Metadata:      info.Metadata,
		CreatedAt:     info.CreatedAt,
	}
}

// toCreatedSourceResponse は登録直後のmodel.SourceからAPIレスポンスに変換する。
// 登録直後は未読数ゼロ、アバター未取得として返す。
func toCreatedSourceResponse(s *model.Source) sourceResponse {
	var errMsg *string
	if s.ErrorMessage != "" {
		errMsg = &s.ErrorMessage
	}
	return sourceResponse{
		ID:            s.ID,
		Kind:          string(s.Kind),
		CanonicalURL:  s.CanonicalURL,
		FeedURL:       s.FeedURL,
		Title:         s.Title,
		Description:   s.Description,
		FetchStatus:   string(s.FetchStatus),
		ErrorMessage:  errMsg,
		LastFetchedAt: s.LastFetchedAt,
		Metadata:      s.Metadata,
		CreatedAt:     s.CreatedAt,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidURL, model.ErrCodeInvalidFilter, "INVALID_REQUEST":
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeSourceNotFound, model.ErrCodeItemNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateSource, model.ErrCodeSourceLimit, model.ErrCodeSourceNotStopped:
		return http.StatusConflict
	case model.ErrCodeFeedNotDetected, model.ErrCodeParseFailed,
		model.ErrCodeResolutionFailed, model.ErrCodePlatformUnsupported:
		return http.StatusUnprocessableEntity
	case model.ErrCodeFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
