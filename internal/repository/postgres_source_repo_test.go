package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/unifeed/internal/model"
)

// PostgresSourceRepoはSourceRepositoryインターフェースを満たすことを検証
func TestPostgresSourceRepo_ImplementsInterface(t *testing.T) {
	var _ SourceRepository = (*PostgresSourceRepo)(nil)
}

// NewPostgresSourceRepoが正しく初期化されることを検証
func TestNewPostgresSourceRepo_Initializes(t *testing.T) {
	repo := NewPostgresSourceRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// Sourceモデルのフィールドが正しく構築されることを検証
func TestPostgresSourceRepo_SourceModel_Fields(t *testing.T) {
	now := time.Now()
	source := &model.Source{
		ID:           "source-id-1",
		UserID:       "user-1",
		Kind:         model.SourceKindYouTubeChannel,
		CanonicalURL: "https://www.youtube.com/channel/UCxxxx",
		FeedURL:      "https://www.youtube.com/feeds/videos.xml?channel_id=UCxxxx",
		Title:        "テストチャンネル",
		FetchStatus:  model.FetchStatusActive,
		NextFetchAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if source.Kind != model.SourceKindYouTubeChannel {
		t.Errorf("source.Kind = %q, want %q", source.Kind, model.SourceKindYouTubeChannel)
	}
	if source.CanonicalURL != "https://www.youtube.com/channel/UCxxxx" {
		t.Errorf("source.CanonicalURL = %q, want %q", source.CanonicalURL, "https://www.youtube.com/channel/UCxxxx")
	}
	if source.FetchStatus != model.FetchStatusActive {
		t.Errorf("source.FetchStatus = %q, want %q", source.FetchStatus, model.FetchStatusActive)
	}
}

// Sourceのアバターフィールドがnil許容であることを検証
func TestPostgresSourceRepo_SourceModel_NilAvatar(t *testing.T) {
	source := &model.Source{
		ID:           "source-id-2",
		UserID:       "user-1",
		Kind:         model.SourceKindRSS,
		CanonicalURL: "https://example.com",
		Title:        "テストソース",
	}

	if source.AvatarData != nil {
		t.Error("avatar_data should be nil by default")
	}
	if source.AvatarMime != "" {
		t.Error("avatar_mime should be empty by default")
	}
	if source.LastFetchedAt != nil {
		t.Error("last_fetched_at should be nil by default")
	}
}
