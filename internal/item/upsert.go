// Package item はコンテンツの管理機能を提供する。
package item

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/unifeed/internal/model"
	"github.com/hitoshi/unifeed/internal/repository"
	"github.com/hitoshi/unifeed/internal/security"
)

// ContentUpsertService はコンテンツの同一性判定とUPSERT処理を提供する。
// (source_id, native_id)を主たる同一性として重複登録を防ぎ、
// 変更があった既存コンテンツのみを上書き更新する。
type ContentUpsertService struct {
	itemRepo  repository.ItemRepository
	sanitizer security.ContentSanitizerService
}

// NewContentUpsertService はContentUpsertServiceの新しいインスタンスを生成する。
func NewContentUpsertService(
	itemRepo repository.ItemRepository,
	sanitizer security.ContentSanitizerService,
) *ContentUpsertService {
	return &ContentUpsertService{
		itemRepo:  itemRepo,
		sanitizer: sanitizer,
	}
}

// UpsertItems はフィードから取得したコンテンツをUPSERTする。
// 3段階の同一性判定ロジック:
//  1. (source_id, native_id) - 最優先
//  2. (source_id, link) - 第2優先
//  3. hash(title + published + summary) - 第3優先
//
// 既存コンテンツと完全に一致する場合は更新をスキップするため、
// 変化のないフィードの再同期は inserted=0, updated=0 となる。
// 戻り値は挿入数、更新数、エラー。
func (s *ContentUpsertService) UpsertItems(
	ctx context.Context,
	sourceID string,
	items []model.ParsedContent,
) (inserted int, updated int, err error) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	now := time.Now()

	for _, parsed := range items {
		// コンテンツとサマリーにサニタイズ処理を適用
		sanitizedContent := s.sanitizer.Sanitize(parsed.Content)
		sanitizedSummary := s.sanitizer.Sanitize(parsed.Summary)

		// content_hashを計算（サニタイズ後のサマリーを使用）
		contentHash := computeContentHash(parsed.Title, parsed.PublishedAt, sanitizedSummary)

		// 3段階の同一性判定で既存コンテンツを検索
		existing, findErr := s.findExistingItem(ctx, sourceID, parsed, contentHash)
		if findErr != nil {
			slog.Error("コンテンツの同一性判定でエラー",
				"source_id", sourceID,
				"native_id", parsed.NativeID,
				"error", findErr,
			)
			return inserted, updated, fmt.Errorf("コンテンツの同一性判定に失敗: %w", findErr)
		}

		if existing != nil {
			changed, updateErr := s.updateIfChanged(ctx, existing, parsed, sanitizedContent, sanitizedSummary, contentHash, now)
			if updateErr != nil {
				slog.Error("コンテンツの更新でエラー",
					"source_id", sourceID,
					"item_id", existing.ID,
					"error", updateErr,
				)
				return inserted, updated, fmt.Errorf("コンテンツの更新に失敗: %w", updateErr)
			}
			if changed {
				updated++
			}
		} else {
			createErr := s.createNewItem(ctx, sourceID, parsed, sanitizedContent, sanitizedSummary, contentHash, now)
			if createErr != nil {
				slog.Error("コンテンツの挿入でエラー",
					"source_id", sourceID,
					"native_id", parsed.NativeID,
					"error", createErr,
				)
				return inserted, updated, fmt.Errorf("コンテンツの挿入に失敗: %w", createErr)
			}
			inserted++
		}
	}

	slog.Info("コンテンツUPSERT完了",
		"source_id", sourceID,
		"inserted", inserted,
		"updated", updated,
	)

	return inserted, updated, nil
}

// findExistingItem は3段階の同一性判定で既存コンテンツを検索する。
// 優先順位: (source_id, native_id) > (source_id, link) > hash(title+published+summary)
func (s *ContentUpsertService) findExistingItem(
	ctx context.Context,
	sourceID string,
	parsed model.ParsedContent,
	contentHash string,
) (*model.ContentItem, error) {
	// 第1優先: source_id + native_id
	if parsed.NativeID != "" {
		item, err := s.itemRepo.FindBySourceAndNativeID(ctx, sourceID, parsed.NativeID)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}

	// 第2優先: source_id + link
	if parsed.Link != "" {
		item, err := s.itemRepo.FindBySourceAndLink(ctx, sourceID, parsed.Link)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}

	// 第3優先: content_hash
	if contentHash != "" {
		item, err := s.itemRepo.FindByContentHash(ctx, sourceID, contentHash)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}

	return nil, nil
}

// updateIfChanged は既存コンテンツと今回のパース結果を比較し、
// 変更があるフィールドが1つでもあれば上書き更新する。
// 完全一致の場合は更新せずfalseを返す（冪等な再同期のため）。
func (s *ContentUpsertService) updateIfChanged(
	ctx context.Context,
	existing *model.ContentItem,
	parsed model.ParsedContent,
	sanitizedContent, sanitizedSummary, contentHash string,
	now time.Time,
) (bool, error) {
	if !s.hasFieldChanges(existing, parsed, sanitizedContent, sanitizedSummary, contentHash) {
		return false, nil
	}

	existing.NativeID = parsed.NativeID
	existing.Title = parsed.Title
	existing.Link = parsed.Link
	existing.Content = sanitizedContent
	existing.Summary = sanitizedSummary
	existing.Author = parsed.Author
	existing.ContentHash = contentHash
	existing.DurationSeconds = parsed.DurationSeconds
	existing.ThumbnailURL = parsed.ThumbnailURL
	existing.AudioURL = parsed.AudioURL
	existing.ViewCount = parsed.ViewCount
	existing.UpdatedAt = now

	// published_atが取得できた場合のみ更新。nilの場合は既存の値（推定値含む）を維持する
	if parsed.PublishedAt != nil {
		existing.PublishedAt = parsed.PublishedAt
		existing.IsDateEstimated = false
	}

	if err := s.itemRepo.Update(ctx, existing); err != nil {
		return false, err
	}
	return true, nil
}

// hasFieldChanges は既存コンテンツとパース結果の間に差分があるかを判定する。
// 再生回数（ViewCount）は同期のたびに変わるノイズのため、差分として扱わない。
func (s *ContentUpsertService) hasFieldChanges(
	existing *model.ContentItem,
	parsed model.ParsedContent,
	sanitizedContent, sanitizedSummary, contentHash string,
) bool {
	if existing.Title != parsed.Title ||
		existing.Link != parsed.Link ||
		existing.Content != sanitizedContent ||
		existing.Summary != sanitizedSummary ||
		existing.Author != parsed.Author ||
		existing.ContentHash != contentHash ||
		existing.DurationSeconds != parsed.DurationSeconds ||
		existing.ThumbnailURL != parsed.ThumbnailURL ||
		existing.AudioURL != parsed.AudioURL {
		return true
	}

	// 公開日時の変化（nilからの確定を含む）
	if parsed.PublishedAt != nil {
		if existing.PublishedAt == nil || !existing.PublishedAt.Equal(*parsed.PublishedAt) {
			return true
		}
		if existing.IsDateEstimated {
			return true
		}
	}

	return false
}

// createNewItem は新規コンテンツを作成する。
// published_at未設定の場合はfetched_atを代用し、推定フラグを付与する。
func (s *ContentUpsertService) createNewItem(
	ctx context.Context,
	sourceID string,
	parsed model.ParsedContent,
	sanitizedContent, sanitizedSummary, contentHash string,
	now time.Time,
) error {
	item := &model.ContentItem{
		ID:              uuid.New().String(),
		SourceID:        sourceID,
		NativeID:        parsed.NativeID,
		Title:           parsed.Title,
		Link:            parsed.Link,
		Content:         sanitizedContent,
		Summary:         sanitizedSummary,
		Author:          parsed.Author,
		ContentHash:     contentHash,
		DurationSeconds: parsed.DurationSeconds,
		ThumbnailURL:    parsed.ThumbnailURL,
		AudioURL:        parsed.AudioURL,
		ViewCount:       parsed.ViewCount,
		FetchedAt:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// published_atの設定: 未設定の場合はfetched_atを代用し推定フラグを付与
	if parsed.PublishedAt != nil {
		item.PublishedAt = parsed.PublishedAt
		item.IsDateEstimated = false
	} else {
		item.PublishedAt = &now
		item.IsDateEstimated = true
	}

	return s.itemRepo.Create(ctx, item)
}

// computeContentHash はtitle + published + summaryのSHA-256ハッシュを計算する。
// 同一性判定の第3優先手段として使用される。
func computeContentHash(title string, publishedAt *time.Time, summary string) string {
	pubStr := ""
	if publishedAt != nil {
		pubStr = publishedAt.UTC().Format(time.RFC3339)
	}
	data := fmt.Sprintf("%s|%s|%s", title, pubStr, summary)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
