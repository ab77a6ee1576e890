// Package fetch はソースのバックグラウンド同期処理を提供する。
// 一定間隔のティッカーで同期対象ソースを取得し、並列制御のもとで
// 直近ウィンドウ同期を実行するスケジューラを含む。
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/unifeed/internal/model"
)

// DueSourceLister は同期対象ソースの取得インターフェース。
type DueSourceLister interface {
	// ListDueForFetch はnext_fetch_atが到来したアクティブなソースを取得する。
	ListDueForFetch(ctx context.Context, limit int) ([]*model.Source, error)
}

// SourceSyncer は1ソースの同期の実行インターフェース。
type SourceSyncer interface {
	// SyncSource は指定ソースを同期し、結果とあわせてフェッチ状態を更新する。
	SyncSource(ctx context.Context, source *model.Source, full bool) model.SyncOutcome
}

// Scheduler はソース同期のスケジューリングと並列制御を行う。
// 一定間隔のティッカーで同期対象ソースを取得し、
// semaphoreパターンで最大並列数を制御しながら同期を実行する。
type Scheduler struct {
	sources        DueSourceLister
	syncer         SourceSyncer
	logger         *slog.Logger
	batchLimit     int
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// batchLimitが0以下の場合はデフォルト値50、
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(
	sources DueSourceLister,
	syncer SourceSyncer,
	logger *slog.Logger,
	batchLimit int,
	maxConcurrency int,
) *Scheduler {
	if batchLimit <= 0 {
		batchLimit = 50
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		sources:        sources,
		syncer:         syncer,
		logger:         logger,
		batchLimit:     batchLimit,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("batch_limit", s.batchLimit),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は同期対象ソースを1回取得し、並列で直近ウィンドウ同期を実行する。
// 個別ソースの同期失敗はサイクルのエラーとはならず、
// SyncOutcomeとフェッチ状態（バックオフ、停止）に反映される。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// 同期対象ソースを取得（FOR UPDATE SKIP LOCKED）
	sources, err := s.sources.ListDueForFetch(ctx, s.batchLimit)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		s.logger.Info("同期対象のソースはありません")
		return nil
	}

	s.logger.Info("同期サイクルを開始します",
		slog.Int("source_count", len(sources)),
	)

	var itemsAdded, itemsUpdated, failed int64

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(src *model.Source) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			outcome := s.syncer.SyncSource(ctx, src, false)
			if !outcome.Success {
				atomic.AddInt64(&failed, 1)
				s.logger.Error("ソース同期に失敗しました",
					slog.String("source_id", src.ID),
					slog.String("feed_url", src.FeedURL),
					slog.String("message", outcome.Message),
				)
				return
			}
			atomic.AddInt64(&itemsAdded, int64(outcome.ItemsAdded))
			atomic.AddInt64(&itemsUpdated, int64(outcome.ItemsUpdated))
		}(source)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("同期サイクルが完了しました",
		slog.Int("source_count", len(sources)),
		slog.Int64("failed_count", atomic.LoadInt64(&failed)),
		slog.Int64("items_added", atomic.LoadInt64(&itemsAdded)),
		slog.Int64("items_updated", atomic.LoadInt64(&itemsUpdated)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
