// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/unifeed/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れの全セッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// SourceRepository はソースデータの永続化インターフェース。
// ソースはユーザーに直接帰属するため、取得系は常にuser_idでスコープする。
type SourceRepository interface {
	// FindByUserAndID はユーザーIDとソースIDでソースを取得する。
	// 他ユーザーのソースは見つからない扱いとなる。見つからない場合はnilを返す。
	FindByUserAndID(ctx context.Context, userID, id string) (*model.Source, error)

	// FindByUserKindAndURL は(user_id, kind, canonical_url)の一意キーで検索する。
	// 同一URLの再登録を既存ソースの再利用に倒すために使う。見つからない場合はnilを返す。
	FindByUserKindAndURL(ctx context.Context, userID string, kind model.SourceKind, canonicalURL string) (*model.Source, error)

	// CountByUserID はユーザーのソース数を返す。
	CountByUserID(ctx context.Context, userID string) (int, error)

	// Create はソースを作成する。
	Create(ctx context.Context, source *model.Source) error

	// Update はソース情報を更新する。
	Update(ctx context.Context, source *model.Source) error

	// UpdateAvatar はソースのアバター画像データを更新する。
	UpdateAvatar(ctx context.Context, sourceID string, avatarData []byte, avatarMime string) error

	// ListByUserID はユーザーのソース一覧を未読数付きで返す。
	ListByUserID(ctx context.Context, userID string) ([]SourceWithUnreadCount, error)

	// ListDueForFetch はフェッチ対象のソースを取得する。
	// next_fetch_at <= now() かつ fetch_status = 'active' のソースを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForFetch(ctx context.Context, limit int) ([]*model.Source, error)

	// UpdateFetchState はソースのフェッチ状態を更新する。
	// fetch_status、consecutive_errors、error_message、last_fetched_at、next_fetch_atに加え、
	// 同期中に補完されたtitleを反映する。
	UpdateFetchState(ctx context.Context, source *model.Source) error

	// Delete は指定ユーザーのソースを削除する。
	// 関連するcontent_itemsとitem_statesはCASCADE削除される。
	Delete(ctx context.Context, userID, id string) error
}

// ItemRepository はコンテンツデータの永続化インターフェース。
// (source_id, native_id)を主たる同一性として、リンク・ハッシュの
// フォールバック判定とCRUD操作を提供する。
type ItemRepository interface {
	// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ContentItem, error)

	// FindBySourceAndNativeID はsource_idとnative_idでコンテンツを検索する。
	// 同一性判定の最優先手段。見つからない場合はnilを返す。
	FindBySourceAndNativeID(ctx context.Context, sourceID, nativeID string) (*model.ContentItem, error)

	// FindBySourceAndLink はsource_idとlinkでコンテンツを検索する。
	// 同一性判定の第2優先手段。見つからない場合はnilを返す。
	FindBySourceAndLink(ctx context.Context, sourceID, link string) (*model.ContentItem, error)

	// FindByContentHash はsource_idとcontent_hashでコンテンツを検索する。
	// 同一性判定の第3優先手段（hash(title+published+summary)）。見つからない場合はnilを返す。
	FindByContentHash(ctx context.Context, sourceID, contentHash string) (*model.ContentItem, error)

	// ListBySource はソースのコンテンツ一覧をユーザーの状態とJOINして取得する。
	// published_at降順でカーソルベースページネーションを使用する。
	// cursorがゼロ値の場合は先頭から取得する。
	// filter: all=全件, unread=未読のみ, starred=スターのみ, archived=アーカイブのみ
	ListBySource(ctx context.Context, sourceID, userID string, filter model.ItemFilter, cursor time.Time, limit int) ([]model.ItemWithState, error)

	// Create は新規コンテンツを作成する。
	Create(ctx context.Context, item *model.ContentItem) error

	// Update は既存コンテンツを上書き更新する。履歴は保持しない。
	Update(ctx context.Context, item *model.ContentItem) error
}

// ItemStateRepository はユーザーごとのコンテンツ状態（既読/スター/アーカイブ）の
// 永続化インターフェース。
type ItemStateRepository interface {
	// FindByUserAndItem はユーザーIDとコンテンツIDで状態を取得する。見つからない場合はnilを返す。
	FindByUserAndItem(ctx context.Context, userID, itemID string) (*model.ItemState, error)

	// Upsert はコンテンツ状態を冪等にUPSERTする。
	// nilフィールドは変更せず、既存の値を維持する部分更新を行う。
	Upsert(ctx context.Context, userID, itemID string, isRead, isStarred, isArchived *bool) (*model.ItemState, error)

	// DeleteByUserAndSource はユーザーIDとソースIDに関連する状態を全て削除する。
	DeleteByUserAndSource(ctx context.Context, userID, sourceID string) error
}

// SourceWithUnreadCount はソースと未読数を結合した構造体。
type SourceWithUnreadCount struct {
	model.Source
	UnreadCount int
}
