// Package source はソース登録・管理のドメインロジックを提供する。
// URL分類 → プラットフォーム解決 → 重複チェック → 保存 → アバター取得のフローを統括する。
package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/unifeed/internal/model"
	"github.com/hitoshi/unifeed/internal/repository"
	"github.com/hitoshi/unifeed/internal/resolver"
)

// maxSourcesPerUser はユーザーあたりのソース登録上限。
const maxSourcesPerUser = 100

// SourceInfo はソース情報と未読数を結合したドメインオブジェクト。
type SourceInfo struct {
	ID            string
	Kind          model.SourceKind
	CanonicalURL  string
	FeedURL       string
	Title         string
	Description   string
	AvatarURL     *string // data URL形式。未取得の場合はnil
	FetchStatus   string
	ErrorMessage  *string
	UnreadCount   int
	LastFetchedAt *time.Time
	Metadata      model.SourceMetadata
	CreatedAt     time.Time
}

// Service はソース登録・管理のサービス層。
type Service struct {
	sourceRepo    repository.SourceRepository
	itemStateRepo repository.ItemStateRepository
	registry      *resolver.Registry
	avatarFetcher resolver.AvatarFetcherService
	logger        *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	sourceRepo repository.SourceRepository,
	itemStateRepo repository.ItemStateRepository,
	registry *resolver.Registry,
	avatarFetcher resolver.AvatarFetcherService,
	logger *slog.Logger,
) *Service {
	return &Service{
		sourceRepo:    sourceRepo,
		itemStateRepo: itemStateRepo,
		registry:      registry,
		avatarFetcher: avatarFetcher,
		logger:        logger,
	}
}

// RegisterSource はURLからソースを解決し登録する。
// フロー: 登録上限チェック → URL分類 → プラットフォーム解決 → 重複チェック → 保存 → アバター取得
// 動画URLの登録は所属チャンネルのソースに解決される。
func (s *Service) RegisterSource(ctx context.Context, userID, inputURL string) (*model.Source, error) {
	// 1. 登録上限チェック
	count, err := s.sourceRepo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ソース数の確認に失敗しました: %w", err)
	}
	if count >= maxSourcesPerUser {
		return nil, model.NewSourceLimitError()
	}

	// 2. URL分類
	detection, ok := s.registry.DetectSourceType(inputURL)
	if !ok {
		return nil, model.NewInvalidURLError("対応していないURL形式です")
	}

	// 3. プラットフォーム解決
	descriptor, err := detection.Handler.Resolve(ctx, detection.CanonicalURL)
	if err != nil {
		return nil, err
	}

	// 4. 重複チェック
	// 正規URLは解決後のサイトURLを使う。動画URLとチャンネルURLのように
	// 入力の形が違っても、同一チャンネルは同一の正規URLに収束する。
	canonicalURL := descriptor.SiteURL
	if canonicalURL == "" {
		canonicalURL = detection.CanonicalURL
	}

	existing, err := s.sourceRepo.FindByUserKindAndURL(ctx, userID, descriptor.Kind, canonicalURL)
	if err != nil {
		return nil, fmt.Errorf("ソースの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateSourceError()
	}

	// 5. ソースの作成
	now := time.Now()
	source := &model.Source{
		ID:           uuid.New().String(),
		UserID:       userID,
		Kind:         descriptor.Kind,
		CanonicalURL: canonicalURL,
		FeedURL:      descriptor.FeedURL,
		Title:        descriptor.Title,
		Description:  descriptor.Description,
		AvatarURL:    descriptor.AvatarURL,
		Metadata:     descriptor.Metadata,
		FetchStatus:  model.FetchStatusActive,
		NextFetchAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if source.Title == "" {
		// 初期タイトルはフィードURL。同期時にフィード側のタイトルで補完される
		source.Title = descriptor.FeedURL
	}

	if err := s.sourceRepo.Create(ctx, source); err != nil {
		return nil, fmt.Errorf("ソースの保存に失敗しました: %w", err)
	}

	// 6. アバター取得（同期実行。取得失敗時はnullのまま）
	s.fetchAndSaveAvatar(ctx, source)

	s.logger.Info("ソースを登録しました",
		"source_id", source.ID, "kind", source.Kind, "canonical_url", canonicalURL)
	return source, nil
}

// ListSources はユーザーのソース一覧を未読数付きで返す。
func (s *Service) ListSources(ctx context.Context, userID string) ([]SourceInfo, error) {
	rows, err := s.sourceRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗しました: %w", err)
	}

	results := make([]SourceInfo, len(rows))
	for i, row := range rows {
		results[i] = toSourceInfo(&row.Source, row.UnreadCount)
	}
	return results, nil
}

// GetSource はユーザーのソースを1件取得する。
// 他ユーザーのソースは見つからない扱いとなる。
func (s *Service) GetSource(ctx context.Context, userID, sourceID string) (*SourceInfo, error) {
	source, err := s.sourceRepo.FindByUserAndID(ctx, userID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	if source == nil {
		return nil, model.NewSourceNotFoundError(sourceID)
	}

	info := toSourceInfo(source, 0)
	return &info, nil
}

// DeleteSource はユーザーのソースを削除する。
// 関連するコンテンツ状態を先に削除し、コンテンツ本体はデータベース側のCASCADEで削除される。
func (s *Service) DeleteSource(ctx context.Context, userID, sourceID string) error {
	source, err := s.sourceRepo.FindByUserAndID(ctx, userID, sourceID)
	if err != nil {
		return fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	if source == nil {
		return model.NewSourceNotFoundError(sourceID)
	}

	if s.itemStateRepo != nil {
		if err := s.itemStateRepo.DeleteByUserAndSource(ctx, userID, sourceID); err != nil {
			return fmt.Errorf("コンテンツ状態の削除に失敗しました: %w", err)
		}
	}

	if err := s.sourceRepo.Delete(ctx, userID, sourceID); err != nil {
		return fmt.Errorf("ソースの削除に失敗しました: %w", err)
	}

	s.logger.Info("ソースを削除しました", "source_id", sourceID)
	return nil
}

// ResumeFetch は停止中ソースのフェッチを再開する。
func (s *Service) ResumeFetch(ctx context.Context, userID, sourceID string) (*SourceInfo, error) {
	source, err := s.sourceRepo.FindByUserAndID(ctx, userID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	if source == nil {
		return nil, model.NewSourceNotFoundError(sourceID)
	}
	if source.FetchStatus == model.FetchStatusActive {
		return nil, model.NewSourceNotStoppedError()
	}

	source.FetchStatus = model.FetchStatusActive
	source.ErrorMessage = ""
	source.ConsecutiveErrors = 0
	source.NextFetchAt = time.Now()

	if err := s.sourceRepo.UpdateFetchState(ctx, source); err != nil {
		return nil, fmt.Errorf("ソース状態の更新に失敗しました: %w", err)
	}

	info := toSourceInfo(source, 0)
	return &info, nil
}

// fetchAndSaveAvatar はソースのアバター画像を取得して保存する。
// 取得失敗時はログ出力のみで、エラーを返さない。
func (s *Service) fetchAndSaveAvatar(ctx context.Context, source *model.Source) {
	if s.avatarFetcher == nil {
		return
	}

	siteURL := source.CanonicalURL
	if siteURL == "" {
		siteURL = source.FeedURL
	}

	data, mimeType, err := s.avatarFetcher.FetchAvatar(ctx, source.AvatarURL, siteURL)
	if err != nil {
		s.logger.Warn("アバター取得エラー", "source_id", source.ID, "site_url", siteURL, "error", err)
		return
	}
	if data == nil {
		s.logger.Info("アバター未検出（nullとして保存）", "source_id", source.ID, "site_url", siteURL)
		return
	}

	if err := s.sourceRepo.UpdateAvatar(ctx, source.ID, data, mimeType); err != nil {
		s.logger.Warn("アバター保存エラー", "source_id", source.ID, "error", err)
		return
	}

	source.AvatarData = data
	source.AvatarMime = mimeType
	s.logger.Info("アバター保存完了", "source_id", source.ID, "mime_type", mimeType, "size", len(data))
}

// toSourceInfo はソースモデルをAPI向けのドメインオブジェクトに変換する。
func toSourceInfo(source *model.Source, unreadCount int) SourceInfo {
	info := SourceInfo{
		ID:            source.ID,
		Kind:          source.Kind,
		CanonicalURL:  source.CanonicalURL,
		FeedURL:       source.FeedURL,
		Title:         source.Title,
		Description:   source.Description,
		FetchStatus:   string(source.FetchStatus),
		UnreadCount:   unreadCount,
		LastFetchedAt: source.LastFetchedAt,
		Metadata:      source.Metadata,
		CreatedAt:     source.CreatedAt,
	}

	// アバターデータがある場合はdata URLに変換
	if len(source.AvatarData) > 0 && source.AvatarMime != "" {
		dataURL := fmt.Sprintf("data:%s;base64,%s", source.AvatarMime, base64.StdEncoding.EncodeToString(source.AvatarData))
		info.AvatarURL = &dataURL
	}

	if source.ErrorMessage != "" {
		msg := source.ErrorMessage
		info.ErrorMessage = &msg
	}

	return info
}
