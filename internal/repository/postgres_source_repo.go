package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/unifeed/internal/model"
)

// sourceColumns はsourcesテーブルのSELECT句。スキャン順序とペアで管理する。
const sourceColumns = `id, user_id, kind, canonical_url, feed_url, title, description,
       avatar_url, avatar_data, avatar_mime, metadata, fetch_status,
       consecutive_errors, error_message, last_fetched_at, next_fetch_at,
       created_at, updated_at`

// PostgresSourceRepo はPostgreSQLを使用したソースリポジトリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

// scanSource は1行分のソースをスキャンする。
func scanSource(scanner interface{ Scan(...any) error }) (*model.Source, error) {
	source := &model.Source{}
	var avatarData []byte
	var metadataJSON []byte
	var lastFetchedAt sql.NullTime

	err := scanner.Scan(
		&source.ID, &source.UserID, &source.Kind, &source.CanonicalURL,
		&source.FeedURL, &source.Title, &source.Description,
		&source.AvatarURL, &avatarData, &source.AvatarMime,
		&metadataJSON, &source.FetchStatus,
		&source.ConsecutiveErrors, &source.ErrorMessage,
		&lastFetchedAt, &source.NextFetchAt,
		&source.CreatedAt, &source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	source.AvatarData = avatarData
	if lastFetchedAt.Valid {
		t := lastFetchedAt.Time
		source.LastFetchedAt = &t
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &source.Metadata); err != nil {
			return nil, fmt.Errorf("メタデータのパースに失敗しました: %w", err)
		}
	}

	return source, nil
}

// FindByUserAndID はユーザーIDとソースIDでソースを取得する。見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByUserAndID(ctx context.Context, userID, id string) (*model.Source, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE user_id = $1 AND id = $2`,
		userID, id,
	)
	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	return source, nil
}

// FindByUserKindAndURL は(user_id, kind, canonical_url)の一意キーで検索する。
// 見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByUserKindAndURL(ctx context.Context, userID string, kind model.SourceKind, canonicalURL string) (*model.Source, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources
		 WHERE user_id = $1 AND kind = $2 AND canonical_url = $3`,
		userID, kind, canonicalURL,
	)
	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("正規URLによるソースの検索に失敗しました: %w", err)
	}
	return source, nil
}

// CountByUserID はユーザーのソース数を返す。
func (r *PostgresSourceRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sources WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ソース数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Create はソースを作成する。
func (r *PostgresSourceRepo) Create(ctx context.Context, source *model.Source) error {
	metadataJSON, err := json.Marshal(source.Metadata)
	if err != nil {
		return fmt.Errorf("メタデータのシリアライズに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sources (id, user_id, kind, canonical_url, feed_url, title, description,
		                      avatar_url, avatar_data, avatar_mime, metadata, fetch_status,
		                      consecutive_errors, error_message, last_fetched_at, next_fetch_at,
		                      created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		source.ID, source.UserID, source.Kind, source.CanonicalURL,
		source.FeedURL, source.Title, source.Description,
		source.AvatarURL, source.AvatarData, source.AvatarMime,
		metadataJSON, source.FetchStatus,
		source.ConsecutiveErrors, source.ErrorMessage,
		source.LastFetchedAt, source.NextFetchAt,
		source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ソースの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はソース情報を更新する。
func (r *PostgresSourceRepo) Update(ctx context.Context, source *model.Source) error {
	metadataJSON, err := json.Marshal(source.Metadata)
	if err != nil {
		return fmt.Errorf("メタデータのシリアライズに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE sources SET
		    kind = $2, canonical_url = $3, feed_url = $4, title = $5,
		    description = $6, avatar_url = $7, metadata = $8,
		    fetch_status = $9, consecutive_errors = $10, error_message = $11,
		    last_fetched_at = $12, next_fetch_at = $13, updated_at = now()
		 WHERE id = $1`,
		source.ID, source.Kind, source.CanonicalURL, source.FeedURL,
		source.Title, source.Description, source.AvatarURL, metadataJSON,
		source.FetchStatus, source.ConsecutiveErrors, source.ErrorMessage,
		source.LastFetchedAt, source.NextFetchAt,
	)
	if err != nil {
		return fmt.Errorf("ソースの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateAvatar はソースのアバター画像データを更新する。
func (r *PostgresSourceRepo) UpdateAvatar(ctx context.Context, sourceID string, avatarData []byte, avatarMime string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET avatar_data = $2, avatar_mime = $3, updated_at = now() WHERE id = $1`,
		sourceID, avatarData, avatarMime,
	)
	if err != nil {
		return fmt.Errorf("アバターの更新に失敗しました: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのソース一覧を未読数付きで返す。
// 未読数は「そのソースのコンテンツ総数 − 既読状態の件数」で算出する。
func (r *PostgresSourceRepo) ListByUserID(ctx context.Context, userID string) ([]SourceWithUnreadCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.kind, s.canonical_url, s.feed_url, s.title, s.description,
		        s.avatar_url, s.avatar_data, s.avatar_mime, s.metadata, s.fetch_status,
		        s.consecutive_errors, s.error_message, s.last_fetched_at, s.next_fetch_at,
		        s.created_at, s.updated_at,
		        (SELECT COUNT(*)
		         FROM content_items ci
		         LEFT JOIN item_states ist
		           ON ist.item_id = ci.id AND ist.user_id = s.user_id
		         WHERE ci.source_id = s.id
		           AND COALESCE(ist.is_read, FALSE) = FALSE) AS unread_count
		 FROM sources s
		 WHERE s.user_id = $1
		 ORDER BY s.created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var results []SourceWithUnreadCount
	for rows.Next() {
		var row SourceWithUnreadCount
		var avatarData, metadataJSON []byte
		var lastFetchedAt sql.NullTime

		if err := rows.Scan(
			&row.ID, &row.UserID, &row.Kind, &row.CanonicalURL,
			&row.FeedURL, &row.Title, &row.Description,
			&row.AvatarURL, &avatarData, &row.AvatarMime,
			&metadataJSON, &row.FetchStatus,
			&row.ConsecutiveErrors, &row.ErrorMessage,
			&lastFetchedAt, &row.NextFetchAt,
			&row.CreatedAt, &row.UpdatedAt,
			&row.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("ソース一覧の読み取りに失敗しました: %w", err)
		}

		row.AvatarData = avatarData
		if lastFetchedAt.Valid {
			t := lastFetchedAt.Time
			row.LastFetchedAt = &t
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &row.Metadata); err != nil {
				return nil, fmt.Errorf("メタデータのパースに失敗しました: %w", err)
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ソース一覧の走査に失敗しました: %w", err)
	}

	return results, nil
}

// ListDueForFetch はフェッチ対象のソースを取得する。
// next_fetch_at <= now() かつ fetch_status = 'active' のソースを
// FOR UPDATE SKIP LOCKEDで排他的に取得する。
func (r *PostgresSourceRepo) ListDueForFetch(ctx context.Context, limit int) ([]*model.Source, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sourceColumns+`
		 FROM sources
		 WHERE next_fetch_at <= now()
		   AND fetch_status = 'active'
		 ORDER BY next_fetch_at ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象ソースの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []*model.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("フェッチ対象ソースの読み取りに失敗しました: %w", err)
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フェッチ対象ソースの走査に失敗しました: %w", err)
	}

	return sources, nil
}

// UpdateFetchState はソースのフェッチ状態を更新する。
func (r *PostgresSourceRepo) UpdateFetchState(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    title = $2,
		    fetch_status = $3,
		    consecutive_errors = $4,
		    error_message = $5,
		    last_fetched_at = $6,
		    next_fetch_at = $7,
		    updated_at = now()
		 WHERE id = $1`,
		source.ID,
		source.Title,
		source.FetchStatus,
		source.ConsecutiveErrors,
		source.ErrorMessage,
		source.LastFetchedAt,
		source.NextFetchAt,
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定ユーザーのソースを削除する。
// 関連するcontent_itemsとitem_statesはCASCADE削除される。
func (r *PostgresSourceRepo) Delete(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sources WHERE user_id = $1 AND id = $2`,
		userID, id,
	)
	if err != nil {
		return fmt.Errorf("ソースの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SourceRepository = (*PostgresSourceRepo)(nil)
