package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/unifeed/internal/model"
)

// itemColumns はcontent_itemsテーブルのSELECT句。スキャン順序とペアで管理する。
const itemColumns = `id, source_id, native_id, title, link, content, summary, author,
       published_at, is_date_estimated, fetched_at, content_hash,
       duration_seconds, thumbnail_url, audio_url, view_count,
       created_at, updated_at`

// PostgresItemRepo はPostgreSQLを使用したコンテンツリポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// scanContentItem は1行分のコンテンツをスキャンする。
func scanContentItem(scanner interface{ Scan(...any) error }) (*model.ContentItem, error) {
	item := &model.ContentItem{}
	var publishedAt sql.NullTime

	err := scanner.Scan(
		&item.ID, &item.SourceID, &item.NativeID, &item.Title, &item.Link,
		&item.Content, &item.Summary, &item.Author,
		&publishedAt, &item.IsDateEstimated, &item.FetchedAt, &item.ContentHash,
		&item.DurationSeconds, &item.ThumbnailURL, &item.AudioURL, &item.ViewCount,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if publishedAt.Valid {
		t := publishedAt.Time
		item.PublishedAt = &t
	}

	return item, nil
}

// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByID(ctx context.Context, id string) (*model.ContentItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM content_items WHERE id = $1`,
		id,
	)
	item, err := scanContentItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	return item, nil
}

// FindBySourceAndNativeID はsource_idとnative_idでコンテンツを検索する。
func (r *PostgresItemRepo) FindBySourceAndNativeID(ctx context.Context, sourceID, nativeID string) (*model.ContentItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM content_items WHERE source_id = $1 AND native_id = $2`,
		sourceID, nativeID,
	)
	item, err := scanContentItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("native_id によるコンテンツの検索に失敗しました: %w", err)
	}
	return item, nil
}

// FindBySourceAndLink はsource_idとlinkでコンテンツを検索する。
func (r *PostgresItemRepo) FindBySourceAndLink(ctx context.Context, sourceID, link string) (*model.ContentItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM content_items WHERE source_id = $1 AND link = $2`,
		sourceID, link,
	)
	item, err := scanContentItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("link によるコンテンツの検索に失敗しました: %w", err)
	}
	return item, nil
}

// FindByContentHash はsource_idとcontent_hashでコンテンツを検索する。
func (r *PostgresItemRepo) FindByContentHash(ctx context.Context, sourceID, contentHash string) (*model.ContentItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM content_items WHERE source_id = $1 AND content_hash = $2`,
		sourceID, contentHash,
	)
	item, err := scanContentItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("content_hash によるコンテンツの検索に失敗しました: %w", err)
	}
	return item, nil
}

// ListBySource はソースのコンテンツ一覧をユーザーの状態とJOINして取得する。
// published_at降順でカーソルベースページネーションを使用する。
// cursorがゼロ値の場合は先頭から取得する。
// filter: all=全件, unread=未読のみ, starred=スターのみ, archived=アーカイブのみ
func (r *PostgresItemRepo) ListBySource(
	ctx context.Context,
	sourceID, userID string,
	filter model.ItemFilter,
	cursor time.Time,
	limit int,
) ([]model.ItemWithState, error) {
	baseQuery := `
		SELECT i.id, i.source_id, i.native_id, i.title, i.link, i.summary, i.author,
		       i.published_at, i.is_date_estimated, i.fetched_at,
		       i.duration_seconds, i.thumbnail_url, i.audio_url, i.view_count,
		       i.created_at, i.updated_at,
		       COALESCE(s.is_read, false) AS is_read,
		       COALESCE(s.is_starred, false) AS is_starred,
		       COALESCE(s.is_archived, false) AS is_archived
		FROM content_items i
		LEFT JOIN item_states s ON i.id = s.item_id AND s.user_id = $1
		WHERE i.source_id = $2`

	args := []interface{}{userID, sourceID}
	argIndex := 3

	// カーソルベースページネーション
	if !cursor.IsZero() {
		baseQuery += fmt.Sprintf(" AND i.published_at < $%d", argIndex)
		args = append(args, cursor)
		argIndex++
	}

	// フィルタ条件
	switch filter {
	case model.ItemFilterUnread:
		// 未読: item_statesにレコードがない、またはis_read=false
		baseQuery += " AND COALESCE(s.is_read, false) = false"
	case model.ItemFilterStarred:
		baseQuery += " AND COALESCE(s.is_starred, false) = true"
	case model.ItemFilterArchived:
		baseQuery += " AND COALESCE(s.is_archived, false) = true"
	case model.ItemFilterAll:
		// 全件: 追加条件なし
	}

	baseQuery += fmt.Sprintf(" ORDER BY i.published_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []model.ItemWithState
	for rows.Next() {
		var iws model.ItemWithState
		var publishedAt sql.NullTime

		if err := rows.Scan(
			&iws.ID, &iws.SourceID, &iws.NativeID, &iws.Title, &iws.Link,
			&iws.Summary, &iws.Author,
			&publishedAt, &iws.IsDateEstimated, &iws.FetchedAt,
			&iws.DurationSeconds, &iws.ThumbnailURL, &iws.AudioURL, &iws.ViewCount,
			&iws.CreatedAt, &iws.UpdatedAt,
			&iws.IsRead, &iws.IsStarred, &iws.IsArchived,
		); err != nil {
			return nil, fmt.Errorf("コンテンツ行の読み取りに失敗しました: %w", err)
		}

		if publishedAt.Valid {
			t := publishedAt.Time
			iws.PublishedAt = &t
		}

		items = append(items, iws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の走査に失敗しました: %w", err)
	}

	return items, nil
}

// Create は新規コンテンツを作成する。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.ContentItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO content_items (id, source_id, native_id, title, link, content, summary, author,
		                            published_at, is_date_estimated, fetched_at, content_hash,
		                            duration_seconds, thumbnail_url, audio_url, view_count,
		                            created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		item.ID, item.SourceID, item.NativeID, item.Title, item.Link,
		item.Content, item.Summary, item.Author,
		item.PublishedAt, item.IsDateEstimated, item.FetchedAt, item.ContentHash,
		item.DurationSeconds, item.ThumbnailURL, item.AudioURL, item.ViewCount,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コンテンツの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存コンテンツを上書き更新する。履歴は保持しない。
func (r *PostgresItemRepo) Update(ctx context.Context, item *model.ContentItem) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE content_items SET
		    native_id = $2, title = $3, link = $4, content = $5,
		    summary = $6, author = $7, published_at = $8,
		    is_date_estimated = $9, content_hash = $10,
		    duration_seconds = $11, thumbnail_url = $12, audio_url = $13,
		    view_count = $14, updated_at = $15
		 WHERE id = $1`,
		item.ID, item.NativeID, item.Title, item.Link, item.Content,
		item.Summary, item.Author, item.PublishedAt,
		item.IsDateEstimated, item.ContentHash,
		item.DurationSeconds, item.ThumbnailURL, item.AudioURL,
		item.ViewCount, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コンテンツの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
