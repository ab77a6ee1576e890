// Package model はドメインモデルを定義する。
package model

import "time"

// ContentItem はソースから取り込まれた1件のコンテンツ（記事・動画・エピソード）を表す。
// (source_id, native_id) が一意キーとなり、再同期では既存行を更新する。
type ContentItem struct {
	ID              string
	SourceID        string
	NativeID        string // プラットフォーム固有の安定ID（動画ID、GUID、音声URL等）
	Title           string
	Link            string
	Content         string // サニタイズ済みHTML（記事本文・ショーノート）
	Summary         string // サニタイズ済み
	Author          string
	PublishedAt     *time.Time // 公開日時を省略するプラットフォームがあるためnullable
	IsDateEstimated bool
	FetchedAt       time.Time
	ContentHash     string
	DurationSeconds int    // 動画・エピソードの再生時間（秒）。不明な場合は0
	ThumbnailURL    string // 動画サムネイル
	AudioURL        string // ポッドキャストエピソードの音声URL
	ViewCount       int64  // 動画の再生回数。不明な場合は0
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemWithState はコンテンツとユーザーごとの状態（既読/スター/アーカイブ）を結合したモデル。
// item_statesテーブルとLEFT JOINして取得される。
type ItemWithState struct {
	ContentItem
	IsRead     bool
	IsStarred  bool
	IsArchived bool
}

// ItemFilter はコンテンツ一覧のフィルタ種別を表す。
type ItemFilter string

const (
	// ItemFilterAll は全件を表示するフィルタ。
	ItemFilterAll ItemFilter = "all"
	// ItemFilterUnread は未読のみを表示するフィルタ。
	ItemFilterUnread ItemFilter = "unread"
	// ItemFilterStarred はスター付きのみを表示するフィルタ。
	ItemFilterStarred ItemFilter = "starred"
	// ItemFilterArchived はアーカイブ済みのみを表示するフィルタ。
	ItemFilterArchived ItemFilter = "archived"
)

// ItemState はユーザーごとのコンテンツ状態を表す。
type ItemState struct {
	ID         string
	UserID     string
	ItemID     string
	IsRead     bool
	IsStarred  bool
	IsArchived bool
	ReadAt     *time.Time
	StarredAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ParsedContent はフィードパーサーから取得した未保存のコンテンツを表す。
// NativeIDは呼び出し側が必ず設定する（空のまま渡してはならない）。
type ParsedContent struct {
	NativeID        string
	Title           string
	Link            string
	Content         string // 未サニタイズのHTML
	Summary         string // 未サニタイズ
	Author          string
	PublishedAt     *time.Time
	DurationSeconds int
	ThumbnailURL    string
	AudioURL        string
	ViewCount       int64
}
