package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/unifeed/internal/item"
	"github.com/hitoshi/unifeed/internal/middleware"
	"github.com/hitoshi/unifeed/internal/model"
)

// defaultItemsPerPage はコンテンツ一覧の1ページあたりのデフォルト件数。
const defaultItemsPerPage = 50

// maxItemsPerPage は1ページあたりの上限件数。
const maxItemsPerPage = 200

// ItemServiceInterface はコンテンツハンドラーが必要とするサービスインターフェース。
type ItemServiceInterface interface {
	// ListItems はソースのコンテンツ一覧をフィルタ・ページネーション付きで返す。
	ListItems(ctx context.Context, userID, sourceID string, filter model.ItemFilter, cursor string, limit int) (*item.ItemListResult, error)
	// GetItem はコンテンツ詳細をユーザーの状態付きで返す。
	GetItem(ctx context.Context, userID, itemID string) (*item.ItemDetail, error)
}

// ItemStateServiceInterface はコンテンツ状態更新のサービスインターフェース。
type ItemStateServiceInterface interface {
	// UpdateState はコンテンツの既読・スター・アーカイブ状態を冪等に更新する。
	UpdateState(ctx context.Context, userID, itemID string, isRead, isStarred, isArchived *bool) (*model.ItemState, error)
}

// ItemHandler はコンテンツ取得・状態管理のHTTPハンドラー。
type ItemHandler struct {
	itemService  ItemServiceInterface
	stateService ItemStateServiceInterface
}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler(itemService ItemServiceInterface, stateService ItemStateServiceInterface) *ItemHandler {
	return &ItemHandler{
		itemService:  itemService,
		stateService: stateService,
	}
}

// updateItemStateRequest はコンテンツ状態更新リクエストのボディ。
// nilのフィールドは変更しない部分更新。
type updateItemStateRequest struct {
	IsRead     *bool `json:"is_read"`
	IsStarred  *bool `json:"is_starred"`
	IsArchived *bool `json:"is_archived"`
}

// itemSummaryResponse はコンテンツ一覧のサマリーレスポンス。
type itemSummaryResponse struct {
	ID              string    `json:"id"`
	SourceID        string    `json:"source_id"`
	Title           string    `json:"title"`
	Link            string    `json:"link"`
	PublishedAt     time.Time `json:"published_at"`
	IsDateEstimated bool      `json:"is_date_estimated"`
	IsRead          bool      `json:"is_read"`
	IsStarred       bool      `json:"is_starred"`
	IsArchived      bool      `json:"is_archived"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	AudioURL        string    `json:"audio_url,omitempty"`
	ViewCount       int64     `json:"view_count,omitempty"`
}

// itemDetailResponse はコンテンツ詳細レスポンス。
type itemDetailResponse struct {
	itemSummaryResponse
	Content string `json:"content"`
	Summary string `json:"summary"`
	Author  string `json:"author,omitempty"`
}

// itemListResponse はコンテンツ一覧レスポンス。
type itemListResponse struct {
	Items      []itemSummaryResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
	HasMore    bool                  `json:"has_more"`
}

// itemStateResponse はコンテンツ状態更新のレスポンス。
type itemStateResponse struct {
	ItemID     string `json:"item_id"`
	IsRead     bool   `json:"is_read"`
	IsStarred  bool   `json:"is_starred"`
	IsArchived bool   `json:"is_archived"`
}

// ListItems はソースのコンテンツ一覧を返す。
// GET /api/sources/:id/items?filter=unread&cursor=...&limit=50
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	sourceID := chi.URLParam(r, "id")

	filter := model.ItemFilter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = model.ItemFilterAll
	}

	cursor := r.URL.Query().Get("cursor")

	limit := defaultItemsPerPage
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidFilterError("無効なlimit値: "+limitStr))
			return
		}
		if parsed > maxItemsPerPage {
			parsed = maxItemsPerPage
		}
		limit = parsed
	}

	result, err := h.itemService.ListItems(r.Context(), userID, sourceID, filter, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]itemSummaryResponse, len(result.Items))
	for i := range result.Items {
		items[i] = toItemSummaryResponse(&result.Items[i])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(itemListResponse{
		Items:      items,
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	})
}

// GetItem はコンテンツ詳細を返す。
// GET /api/items/:id
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	itemID := chi.URLParam(r, "id")

	detail, err := h.itemService.GetItem(r.Context(), userID, itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(itemDetailResponse{
		itemSummaryResponse: toItemSummaryResponse(&detail.ItemSummary),
		Content:             detail.Content,
		Summary:             detail.Summary,
		Author:              detail.Author,
	})
}

// UpdateItemState はコンテンツの状態を更新する。
// PUT /api/items/:id/state
func (h *ItemHandler) UpdateItemState(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	itemID := chi.URLParam(r, "id")

	var req updateItemStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.IsRead == nil && req.IsStarred == nil && req.IsArchived == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "更新するフィールドが指定されていません。",
			Category: "validation",
			Action:   "is_read、is_starred、is_archivedのいずれかを指定してください。",
		})
		return
	}

	state, err := h.stateService.UpdateState(r.Context(), userID, itemID, req.IsRead, req.IsStarred, req.IsArchived)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(itemStateResponse{
		ItemID:     state.ItemID,
		IsRead:     state.IsRead,
		IsStarred:  state.IsStarred,
		IsArchived: state.IsArchived,
	})
}

// toItemSummaryResponse はItemSummaryからAPIレスポンスに変換する。
func toItemSummaryResponse(s *item.ItemSummary) itemSummaryResponse {
	return itemSummaryResponse{
		ID:              s.ID,
		SourceID:        s.SourceID,
		Title:           s.Title,
		Link:            s.Link,
		PublishedAt:     s.PublishedAt,
		IsDateEstimated: s.IsDateEstimated,
		IsRead:          s.IsRead,
		IsStarred:       s.IsStarred,
		IsArchived:      s.IsArchived,
		DurationSeconds: s.DurationSeconds,
		ThumbnailURL:    s.ThumbnailURL,
		AudioURL:        s.AudioURL,
		ViewCount:       s.ViewCount,
	}
}
