package sync

import (
	"context"
	"fmt"

	"github.com/hitoshi/unifeed/internal/model"
	"github.com/hitoshi/unifeed/internal/repository"
)

// SourceFinder は同期対象ソースの検索に必要なインターフェース。
// repository.SourceRepositoryの部分集合として定義する。
type SourceFinder interface {
	FindByUserAndID(ctx context.Context, userID, id string) (*model.Source, error)
	ListByUserID(ctx context.Context, userID string) ([]repository.SourceWithUnreadCount, error)
}

// Service はユーザー操作起点の手動同期を提供する。
// ワーカーの定期同期と同じEngineを共有し、ユーザースコープの
// ソース検索だけをこの層で行う。
type Service struct {
	engine  *Engine
	sources SourceFinder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(engine *Engine, sources SourceFinder) *Service {
	return &Service{
		engine:  engine,
		sources: sources,
	}
}

// SyncSource は指定ソースを1件同期する。
// fullがtrueの場合はフィード全体を取り込むフル同期を行う。
func (s *Service) SyncSource(ctx context.Context, userID, sourceID string, full bool) (*model.SyncOutcome, error) {
	source, err := s.sources.FindByUserAndID(ctx, userID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	if source == nil {
		return nil, model.NewSourceNotFoundError(sourceID)
	}

	outcome := s.engine.SyncSource(ctx, source, full)
	return &outcome, nil
}

// SyncAll はユーザーの全ソースを順番に同期する。
func (s *Service) SyncAll(ctx context.Context, userID string, full bool) (*model.SyncSummary, error) {
	rows, err := s.sources.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗しました: %w", err)
	}

	sources := make([]*model.Source, 0, len(rows))
	for i := range rows {
		sources = append(sources, &rows[i].Source)
	}

	return s.engine.SyncSources(ctx, sources, full), nil
}
