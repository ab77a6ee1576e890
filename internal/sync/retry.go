package sync

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/unifeed/internal/model"
)

// StatusClass はHTTPステータスコードの分類結果を表す。
type StatusClass int

const (
	// StatusClassOK は正常応答。
	StatusClassOK StatusClass = iota
	// StatusClassNotModified は304応答。本文なしの成功として扱う。
	StatusClassNotModified
	// StatusClassStop は恒久的な失敗。ソースのフェッチを停止する。
	StatusClassStop
	// StatusClassBackoff は一時的な失敗。間隔を広げて再試行する。
	StatusClassBackoff
)

const (
	// initialBackoff はバックオフの初期間隔。
	initialBackoff = 30 * time.Minute
	// maxBackoff はバックオフの上限。
	maxBackoff = 12 * time.Hour
	// parseFailureThreshold はフェッチ成功・パース失敗の連続回数の上限。
	// この回数を超えたらソースを停止する。
	parseFailureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ継続可否で分類する。
//
//	200:      正常
//	304:      未更新（成功扱い）
//	404, 410: フィード消滅 → 停止
//	401, 403: アクセス拒否 → 停止
//	429, 5xx: 一時障害 → バックオフ
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode == http.StatusNotModified:
		return StatusClassNotModified
	case statusCode == http.StatusNotFound,
		statusCode == http.StatusGone,
		statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		return StatusClassStop
	case statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		return StatusClassBackoff
	case statusCode >= 200 && statusCode < 300:
		return StatusClassOK
	default:
		return StatusClassBackoff
	}
}

// CalculateBackoff は連続エラー回数に応じたバックオフ間隔を返す。
// 30分から始めて倍々で広げ、12時間を上限とする。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	if consecutiveErrors <= 1 {
		return initialBackoff
	}

	backoff := initialBackoff
	for i := 1; i < consecutiveErrors; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}

// ApplyStopSource はソースを恒久停止状態にする。404/410/401/403を受けた場合に使う。
func ApplyStopSource(source *model.Source, statusCode int, now time.Time) {
	source.FetchStatus = model.FetchStatusStopped
	source.ConsecutiveErrors++
	source.ErrorMessage = fmt.Sprintf("HTTP %d によりフェッチを停止しました", statusCode)
	source.UpdatedAt = now
}

// ApplyBackoff は一時的な失敗を記録し、次回フェッチをバックオフ間隔の後ろに倒す。
func ApplyBackoff(source *model.Source, reason string, now time.Time) {
	source.ConsecutiveErrors++
	source.ErrorMessage = reason
	source.NextFetchAt = now.Add(CalculateBackoff(source.ConsecutiveErrors))
	source.UpdatedAt = now
}

// ApplyParseFailure はフェッチ成功・パース失敗を記録する。
// 一時的なフィード破損はよくあるため即座に停止せず、
// 連続parseFailureThreshold回を超えた時点でエラー停止に遷移する。
func ApplyParseFailure(source *model.Source, reason string, now time.Time) {
	source.ConsecutiveErrors++
	source.ErrorMessage = reason
	if source.ConsecutiveErrors > parseFailureThreshold {
		source.FetchStatus = model.FetchStatusError
	} else {
		source.NextFetchAt = now.Add(CalculateBackoff(source.ConsecutiveErrors))
	}
	source.UpdatedAt = now
}

// ApplySuccess は同期成功を記録し、エラー状態をリセットして次回フェッチを予約する。
func ApplySuccess(source *model.Source, interval time.Duration, now time.Time) {
	source.FetchStatus = model.FetchStatusActive
	source.ConsecutiveErrors = 0
	source.ErrorMessage = ""
	source.LastFetchedAt = &now
	source.NextFetchAt = now.Add(interval)
	source.UpdatedAt = now
}
