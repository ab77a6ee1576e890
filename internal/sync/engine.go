package sync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/unifeed/internal/fetcher"
	"github.com/hitoshi/unifeed/internal/model"
)

// feedAcceptHeader はフィード取得時のAcceptヘッダー。
const feedAcceptHeader = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.1"

const (
	// defaultRecentWindow は通常同期で取り込む公開日時の遡り幅。
	defaultRecentWindow = 24 * time.Hour
	// defaultFetchInterval は同期成功後の次回フェッチまでの間隔。
	defaultFetchInterval = 60 * time.Minute
)

// SourceStateStore はソースのフェッチ状態を永続化する。
type SourceStateStore interface {
	UpdateFetchState(ctx context.Context, source *model.Source) error
}

// ContentUpserter はパース済みコンテンツをソース配下にUPSERTする。
type ContentUpserter interface {
	UpsertItems(ctx context.Context, sourceID string, items []model.ParsedContent) (inserted, updated int, err error)
}

// SyncRecorder は同期結果をメトリクスとして記録する。
type SyncRecorder interface {
	RecordSourceSync(kind string, success bool)
	RecordSyncLatency(duration time.Duration)
	RecordItemsUpserted(count int)
}

// Config はEngineの動作設定。ゼロ値のフィールドには既定値が使われる。
type Config struct {
	// RecentWindow は通常同期で取り込むアイテムの公開日時の遡り幅。
	RecentWindow time.Duration
	// FetchInterval は同期成功後の次回フェッチまでの間隔。
	FetchInterval time.Duration
}

// Engine はソースの同期を実行する。
// 1ソースの同期はフェッチ、パース、変換、ウィンドウフィルタ、UPSERT、
// フェッチ状態の更新からなる。複数ソースの同期は意図的に直列で行う。
type Engine struct {
	client        *fetcher.Client
	sources       SourceStateStore
	upserter      ContentUpserter
	metrics       SyncRecorder
	logger        *slog.Logger
	recentWindow  time.Duration
	fetchInterval time.Duration
}

// NewEngine は同期エンジンを生成する。metricsはnilでもよい。
func NewEngine(client *fetcher.Client, sources SourceStateStore, upserter ContentUpserter, metrics SyncRecorder, logger *slog.Logger, cfg Config) *Engine {
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = defaultRecentWindow
	}
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = defaultFetchInterval
	}
	return &Engine{
		client:        client,
		sources:       sources,
		upserter:      upserter,
		metrics:       metrics,
		logger:        logger,
		recentWindow:  cfg.RecentWindow,
		fetchInterval: cfg.FetchInterval,
	}
}

// SyncSource は1ソースを同期する。
// どの種別のソースも登録時に正規のフィードURLへ解決済みのため、
// 同期は種別によらず単一のフィード取得経路で行い、リゾルバーには委譲しない。
// fullがtrueの場合は直近ウィンドウのフィルタを行わず、フィード全体を取り込む。
// 失敗はエラーではなくSyncOutcomeのSuccess/Messageで表現し、
// フェッチ状態（連続エラー回数、バックオフ、停止）をあわせて永続化する。
func (e *Engine) SyncSource(ctx context.Context, source *model.Source, full bool) model.SyncOutcome {
	now := time.Now()
	defer e.recordLatency(now)
	outcome := model.SyncOutcome{SourceID: source.ID}

	resp, err := e.client.Fetch(ctx, source.FeedURL, fetcher.Options{Accept: feedAcceptHeader})
	if err != nil {
		ApplyBackoff(source, fmt.Sprintf("フィードの取得に失敗しました: %v", err), now)
		e.persistState(ctx, source)
		outcome.Message = "フィードの取得に失敗しました"
		e.record(source.Kind, false)
		return outcome
	}

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case StatusClassNotModified:
		// 本文なしの成功。取り込みは行わない。
		ApplySuccess(source, e.fetchInterval, now)
		e.persistState(ctx, source)
		outcome.Success = true
		e.record(source.Kind, true)
		return outcome
	case StatusClassStop:
		ApplyStopSource(source, resp.StatusCode, now)
		e.persistState(ctx, source)
		outcome.Message = fmt.Sprintf("HTTP %d によりフェッチを停止しました", resp.StatusCode)
		e.logger.Warn("ソースのフェッチを停止しました",
			"source_id", source.ID, "status_code", resp.StatusCode)
		e.record(source.Kind, false)
		return outcome
	case StatusClassBackoff:
		ApplyBackoff(source, fmt.Sprintf("HTTP %d", resp.StatusCode), now)
		e.persistState(ctx, source)
		outcome.Message = fmt.Sprintf("HTTP %d のため再試行を予約しました", resp.StatusCode)
		e.record(source.Kind, false)
		return outcome
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		ApplyParseFailure(source, fmt.Sprintf("フィードのパースに失敗しました: %v", err), now)
		e.persistState(ctx, source)
		outcome.Message = "フィードのパースに失敗しました"
		e.logger.Warn("フィードのパースに失敗しました",
			"source_id", source.ID, "feed_url", source.FeedURL, "error", err)
		e.record(source.Kind, false)
		return outcome
	}

	// タイトル未設定のソースはフィード側のタイトルで補完する
	if source.Title == "" && feed.Title != "" {
		source.Title = feed.Title
	}

	parsed := convertItems(source.Kind, feed.Items)
	if !full {
		parsed = filterRecent(parsed, now.Add(-e.recentWindow))
	}

	inserted, updated, err := e.upserter.UpsertItems(ctx, source.ID, parsed)
	if err != nil {
		// 保存失敗はフィード側の問題ではないためフェッチ状態は変更しない
		outcome.Message = "コンテンツの保存に失敗しました"
		e.logger.Error("コンテンツの保存に失敗しました",
			"source_id", source.ID, "error", err)
		e.record(source.Kind, false)
		return outcome
	}

	ApplySuccess(source, e.fetchInterval, now)
	e.persistState(ctx, source)

	outcome.Success = true
	outcome.ItemsAdded = inserted
	outcome.ItemsUpdated = updated
	e.recordUpserted(inserted + updated)
	e.logger.Info("ソースを同期しました",
		"source_id", source.ID, "kind", source.Kind,
		"items_added", inserted, "items_updated", updated, "full", full)
	e.record(source.Kind, true)
	return outcome
}

// SyncSources は複数のソースを順番に同期し、結果を集計して返す。
// 同一ホストへの同時アクセスを避けるため並列化はせず、1ソースずつ処理する。
// 個々のソースの失敗は集計に記録するのみで、バッチ全体は中断しない。
// コンテキストのキャンセルのみが処理を打ち切る。
func (e *Engine) SyncSources(ctx context.Context, sources []*model.Source, full bool) *model.SyncSummary {
	summary := &model.SyncSummary{}

	for _, source := range sources {
		if ctx.Err() != nil {
			e.logger.Info("同期バッチを中断しました",
				"processed", summary.TotalSources, "remaining", len(sources)-summary.TotalSources)
			break
		}
		summary.Add(e.SyncSource(ctx, source, full))
	}

	return summary
}

// persistState はフェッチ状態の永続化を試みる。失敗しても同期結果には影響させない。
func (e *Engine) persistState(ctx context.Context, source *model.Source) {
	if err := e.sources.UpdateFetchState(ctx, source); err != nil {
		e.logger.Error("フェッチ状態の保存に失敗しました",
			"source_id", source.ID, "error", err)
	}
}

func (e *Engine) record(kind model.SourceKind, success bool) {
	if e.metrics != nil {
		e.metrics.RecordSourceSync(string(kind), success)
	}
}

// recordLatency は同期サイクル全体（フェッチから状態永続化まで）の所要時間を記録する。
func (e *Engine) recordLatency(start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordSyncLatency(time.Since(start))
	}
}

func (e *Engine) recordUpserted(count int) {
	if e.metrics != nil {
		e.metrics.RecordItemsUpserted(count)
	}
}

// filterRecent は公開日時がcutoff以降のアイテムだけを残す。
// 公開日時のないアイテムは判定できないため常に取り込み対象とする。
func filterRecent(items []model.ParsedContent, cutoff time.Time) []model.ParsedContent {
	filtered := make([]model.ParsedContent, 0, len(items))
	for _, item := range items {
		if item.PublishedAt == nil || !item.PublishedAt.Before(cutoff) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
