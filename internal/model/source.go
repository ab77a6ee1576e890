// Package model はドメインモデルを定義する。
package model

import "time"

// SourceKind はソースの種類を表す。
type SourceKind string

const (
	// SourceKindRSS は一般的なRSS/Atomフィード。
	SourceKindRSS SourceKind = "rss"
	// SourceKindYouTubeChannel はYouTubeチャンネル。
	SourceKindYouTubeChannel SourceKind = "youtube-channel"
	// SourceKindYouTubeVideo はYouTube動画（所属チャンネルに解決される）。
	SourceKindYouTubeVideo SourceKind = "youtube-video"
	// SourceKindPodcast はポッドキャスト。
	SourceKindPodcast SourceKind = "podcast"
	// SourceKindTwitter はTwitter/Xアカウント。
	SourceKindTwitter SourceKind = "twitter"
	// SourceKindInstagram はInstagramアカウント。
	SourceKindInstagram SourceKind = "instagram"
	// SourceKindTikTok はTikTokアカウント。
	SourceKindTikTok SourceKind = "tiktok"
	// SourceKindNewsletter はニュースレター。
	SourceKindNewsletter SourceKind = "newsletter"
	// SourceKindWebsite はWebサイト（フィード未検出のフォールバック）。
	SourceKindWebsite SourceKind = "website"
)

// FetchStatus はソースのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
	// FetchStatusError はエラーによるフェッチ停止状態。
	FetchStatusError FetchStatus = "error"
)

// Source はユーザーが購読するコンテンツソース（フィード、チャンネル、ポッドキャスト）を表す。
// (user_id, kind, canonical_url) が一意キーとなり、同一URLの再解決は既存レコードを再利用する。
type Source struct {
	ID                string
	UserID            string
	Kind              SourceKind
	CanonicalURL      string // ユーザー入力から正規化されたURL
	FeedURL           string // 定期同期に使用する機械取得可能なエンドポイント
	Title             string
	Description       string
	AvatarURL         string
	AvatarData        []byte
	AvatarMime        string
	Metadata          SourceMetadata
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	LastFetchedAt     *time.Time // 最後に同期が成功した日時
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SourceMetadata はプラットフォーム固有のメタデータを表す。
// 解決時に判明した値のみを保持し、JSONBカラムに永続化される。
// スクレイピング結果を開放的な辞書ではなく明示的な型として扱う。
type SourceMetadata struct {
	// ChannelID はYouTubeチャンネルの安定ID（UCで始まる）。
	ChannelID string `json:"channel_id,omitempty"`
	// Handle はYouTubeハンドル（@なし）。リダイレクト後の正規ハンドル。
	Handle string `json:"handle,omitempty"`
	// OriginalHandle はユーザーが入力したハンドル。リダイレクトで変化した場合に保持する。
	OriginalHandle string `json:"original_handle,omitempty"`
	// WasRedirected はハンドルURLが別の正規ハンドルへリダイレクトされたことを示す。
	WasRedirected bool `json:"was_redirected,omitempty"`
	// HasPodcast はYouTubeチャンネルが実在するポッドキャストタブを持つことを示す。
	HasPodcast bool `json:"has_podcast,omitempty"`
	// PodcastPlaylists は検出されたポッドキャストプレイリスト（エピソード数降順）。
	PodcastPlaylists []PodcastPlaylist `json:"podcast_playlists,omitempty"`
	// IsPodcastFeed はRSSフィードがポッドキャストマーカーを含むことを示す。
	IsPodcastFeed bool `json:"is_podcast_feed,omitempty"`
}

// PodcastPlaylist はYouTubeチャンネルのポッドキャストプレイリストを表す。
type PodcastPlaylist struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	EpisodeCount int    `json:"episode_count"`
}

// Session はユーザーのログインセッションを表す。
// アカウント管理自体は外部の認証基盤が担い、このサービスは
// 発行済みセッショントークンの検証のみを行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
