package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/unifeed/internal/middleware"
	"github.com/hitoshi/unifeed/internal/model"
)

// SyncServiceInterface は同期ハンドラーが必要とするサービスインターフェース。
type SyncServiceInterface interface {
	// SyncSource は指定ソースを1件同期する。
	SyncSource(ctx context.Context, userID, sourceID string, full bool) (*model.SyncOutcome, error)
	// SyncAll はユーザーの全ソースを順番に同期する。
	SyncAll(ctx context.Context, userID string, full bool) (*model.SyncSummary, error)
}

// SyncHandler は手動同期のHTTPハンドラー。
type SyncHandler struct {
	service SyncServiceInterface
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(service SyncServiceInterface) *SyncHandler {
	return &SyncHandler{service: service}
}

// syncOutcomeResponse は1ソースの同期結果レスポンス。
type syncOutcomeResponse struct {
	SourceID     string `json:"source_id"`
	Success      bool   `json:"success"`
	ItemsAdded   int    `json:"items_added"`
	ItemsUpdated int    `json:"items_updated"`
	Message      string `json:"message,omitempty"`
}

// syncSummaryResponse は複数ソース同期の集計レスポンス。
type syncSummaryResponse struct {
	TotalSources      int                   `json:"total_sources"`
	SuccessfulSyncs   int                   `json:"successful_syncs"`
	FailedSyncs       int                   `json:"failed_syncs"`
	TotalItemsAdded   int                   `json:"total_items_added"`
	TotalItemsUpdated int                   `json:"total_items_updated"`
	Outcomes          []syncOutcomeResponse `json:"outcomes"`
}

// SyncSource は指定ソースの手動同期を処理する。
// POST /api/sources/:id/sync
func (h *SyncHandler) SyncSource(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	sourceID := chi.URLParam(r, "id")
	full := r.URL.Query().Get("full") == "true"

	outcome, err := h.service.SyncSource(r.Context(), userID, sourceID, full)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSyncOutcomeResponse(*outcome))
}

// SyncAll は全ソースの手動同期を処理する。
// POST /api/sources/sync
func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	h.syncAll(w, r, false)
}

// SyncAllFull は全ソースのフル同期を処理する。
// 直近ウィンドウを無視してフィード全体を取り込む。
// POST /api/sources/sync/full
func (h *SyncHandler) SyncAllFull(w http.ResponseWriter, r *http.Request) {
	h.syncAll(w, r, true)
}

func (h *SyncHandler) syncAll(w http.ResponseWriter, r *http.Request, full bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	summary, err := h.service.SyncAll(r.Context(), userID, full)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	outcomes := make([]syncOutcomeResponse, len(summary.Outcomes))
	for i, o := range summary.Outcomes {
		outcomes[i] = toSyncOutcomeResponse(o)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(syncSummaryResponse{
		TotalSources:      summary.TotalSources,
		SuccessfulSyncs:   summary.SuccessfulSyncs,
		FailedSyncs:       summary.FailedSyncs,
		TotalItemsAdded:   summary.TotalItemsAdded,
		TotalItemsUpdated: summary.TotalItemsUpdated,
		Outcomes:          outcomes,
	})
}

// toSyncOutcomeResponse はSyncOutcomeからAPIレスポンスに変換する。
func toSyncOutcomeResponse(o model.SyncOutcome) syncOutcomeResponse {
	return syncOutcomeResponse{
		SourceID:     o.SourceID,
		Success:      o.Success,
		ItemsAdded:   o.ItemsAdded,
		ItemsUpdated: o.ItemsUpdated,
		Message:      o.Message,
	}
}
