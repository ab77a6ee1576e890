package item

import (
	"context"
	"time"

	"github.com/hitoshi/unifeed/internal/model"
	"github.com/hitoshi/unifeed/internal/repository"
)

// Service はコンテンツ取得・フィルタリングのサービス。
type Service struct {
	itemRepo      repository.ItemRepository
	itemStateRepo repository.ItemStateRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	itemRepo repository.ItemRepository,
	itemStateRepo repository.ItemStateRepository,
) *Service {
	return &Service{
		itemRepo:      itemRepo,
		itemStateRepo: itemStateRepo,
	}
}

// ItemListResult はListItemsの戻り値。
type ItemListResult struct {
	Items      []ItemSummary
	NextCursor string
	HasMore    bool
}

// ItemSummary はコンテンツ一覧のサマリー情報。
// 記事・動画・エピソードを同一の形で返し、メディア固有のフィールドは
// 該当しない種別ではゼロ値となる。
type ItemSummary struct {
	ID              string
	SourceID        string
	Title           string
	Link            string
	PublishedAt     time.Time
	IsDateEstimated bool
	IsRead          bool
	IsStarred       bool
	IsArchived      bool
	DurationSeconds int
	ThumbnailURL    string
	AudioURL        string
	ViewCount       int64
}

// validFilters は有効なフィルタ値のセット。
var validFilters = map[model.ItemFilter]bool{
	model.ItemFilterAll:      true,
	model.ItemFilterUnread:   true,
	model.ItemFilterStarred:  true,
	model.ItemFilterArchived: true,
}

// ListItems はソースのコンテンツ一覧をフィルタ・ページネーション付きで返す。
// カーソルベースページネーションを使用し、published_at降順でソートする。
// limit+1件を取得してHasMoreを判定する。
func (s *Service) ListItems(
	ctx context.Context,
	userID, sourceID string,
	filter model.ItemFilter,
	cursorStr string,
	limit int,
) (*ItemListResult, error) {
	// フィルタのバリデーション
	if !validFilters[filter] {
		return nil, model.NewInvalidFilterError(string(filter))
	}

	// カーソルのパース
	var cursor time.Time
	if cursorStr != "" {
		var err error
		cursor, err = time.Parse(time.RFC3339Nano, cursorStr)
		if err != nil {
			// RFC3339でもパースを試みる
			cursor, err = time.Parse(time.RFC3339, cursorStr)
			if err != nil {
				return nil, model.NewInvalidFilterError("無効なカーソル値: " + cursorStr)
			}
		}
	}

	// limit+1件を取得してHasMoreを判定する
	fetchLimit := limit + 1
	items, err := s.itemRepo.ListBySource(ctx, sourceID, userID, filter, cursor, fetchLimit)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit] // 余分な1件を除外
	}

	summaries := make([]ItemSummary, len(items))
	for i, it := range items {
		summaries[i] = toSummary(it)
	}

	// HasMoreの場合、最後のコンテンツのpublished_atをNextCursorに設定
	var nextCursor string
	if hasMore && len(summaries) > 0 {
		nextCursor = summaries[len(summaries)-1].PublishedAt.Format(time.RFC3339Nano)
	}

	return &ItemListResult{
		Items:      summaries,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// GetItem はコンテンツ詳細をユーザーの状態付きで返す。
func (s *Service) GetItem(
	ctx context.Context,
	userID, itemID string,
) (*ItemDetail, error) {
	it, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}

	state, err := s.itemStateRepo.FindByUserAndItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	withState := model.ItemWithState{ContentItem: *it}
	if state != nil {
		withState.IsRead = state.IsRead
		withState.IsStarred = state.IsStarred
		withState.IsArchived = state.IsArchived
	}

	return &ItemDetail{
		ItemSummary: toSummary(withState),
		Content:     it.Content,
		Summary:     it.Summary,
		Author:      it.Author,
	}, nil
}

// ItemDetail はコンテンツ詳細情報。
type ItemDetail struct {
	ItemSummary
	Content string
	Summary string
	Author  string
}

// toSummary は状態付きコンテンツをサマリーに変換する。
func toSummary(it model.ItemWithState) ItemSummary {
	pubAt := time.Time{}
	if it.PublishedAt != nil {
		pubAt = *it.PublishedAt
	}
	return ItemSummary{
		ID:              it.ID,
		SourceID:        it.SourceID,
		Title:           it.Title,
		Link:            it.Link,
		PublishedAt:     pubAt,
		IsDateEstimated: it.IsDateEstimated,
		IsRead:          it.IsRead,
		IsStarred:       it.IsStarred,
		IsArchived:      it.IsArchived,
		DurationSeconds: it.DurationSeconds,
		ThumbnailURL:    it.ThumbnailURL,
		AudioURL:        it.AudioURL,
		ViewCount:       it.ViewCount,
	}
}
