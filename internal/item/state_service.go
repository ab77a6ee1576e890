package item

import (
	"context"

	"github.com/hitoshi/unifeed/internal/model"
	"github.com/hitoshi/unifeed/internal/repository"
)

// StateService はコンテンツの既読・スター・アーカイブ状態の管理サービス。
// 冪等な明示的更新（トグルではない）で状態を変更する。
type StateService struct {
	itemRepo      repository.ItemRepository
	itemStateRepo repository.ItemStateRepository
}

// NewStateService はStateServiceの新しいインスタンスを生成する。
func NewStateService(
	itemRepo repository.ItemRepository,
	itemStateRepo repository.ItemStateRepository,
) *StateService {
	return &StateService{
		itemRepo:      itemRepo,
		itemStateRepo: itemStateRepo,
	}
}

// UpdateState はコンテンツの状態を冪等に更新する。
// nilフィールドは変更せず、既存の値を維持する部分更新を行う。
// コンテンツが存在しない場合はITEM_NOT_FOUNDエラーを返す。
// ユーザーデータ分離（全クエリにuser_id条件付与）をRepository層で強制する。
func (s *StateService) UpdateState(
	ctx context.Context,
	userID, itemID string,
	isRead, isStarred, isArchived *bool,
) (*model.ItemState, error) {
	// コンテンツの存在確認
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}

	state, err := s.itemStateRepo.Upsert(ctx, userID, itemID, isRead, isStarred, isArchived)
	if err != nil {
		return nil, err
	}

	return state, nil
}
