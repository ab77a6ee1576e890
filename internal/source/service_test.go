package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/unifeed/internal/model"
	"github.com/hitoshi/unifeed/internal/repository"
	"github.com/hitoshi/unifeed/internal/resolver"
)

// --- Service テスト用モック ---

// mockSourceRepo はテスト用のSourceRepositoryモック。
type mockSourceRepo struct {
	sources     map[string]*model.Source
	createCalls int
	deleteCalls int
	avatarCall  struct {
		sourceID   string
		avatarData []byte
		avatarMime string
	}
	listRows []repository.SourceWithUnreadCount
}

func newMockSourceRepo() *mockSourceRepo {
	return &mockSourceRepo{sources: make(map[string]*model.Source)}
}

func (m *mockSourceRepo) FindByUserAndID(_ context.Context, userID, id string) (*model.Source, error) {
	s, ok := m.sources[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	return s, nil
}

func (m *mockSourceRepo) FindByUserKindAndURL(_ context.Context, userID string, kind model.SourceKind, canonicalURL string) (*model.Source, error) {
	for _, s := range m.sources {
		if s.UserID == userID && s.Kind == kind && s.CanonicalURL == canonicalURL {
			return s, nil
		}
	}
	return nil, nil
}

func (m *mockSourceRepo) CountByUserID(_ context.Context, userID string) (int, error) {
	count := 0
	for _, s := range m.sources {
		if s.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *mockSourceRepo) Create(_ context.Context, source *model.Source) error {
	m.createCalls++
	m.sources[source.ID] = source
	return nil
}

func (m *mockSourceRepo) Update(_ context.Context, source *model.Source) error {
	m.sources[source.ID] = source
	return nil
}

func (m *mockSourceRepo) UpdateAvatar(_ context.Context, sourceID string, data []byte, mime string) error {
	m.avatarCall.sourceID = sourceID
	m.avatarCall.avatarData = data
	m.avatarCall.avatarMime = mime
	return nil
}

func (m *mockSourceRepo) ListByUserID(_ context.Context, _ string) ([]repository.SourceWithUnreadCount, error) {
	return m.listRows, nil
}

func (m *mockSourceRepo) ListDueForFetch(_ context.Context, _ int) ([]*model.Source, error) {
	return nil, nil
}

func (m *mockSourceRepo) UpdateFetchState(_ context.Context, source *model.Source) error {
	m.sources[source.ID] = source
	return nil
}

func (m *mockSourceRepo) Delete(_ context.Context, _, id string) error {
	m.deleteCalls++
	delete(m.sources, id)
	return nil
}

// mockItemStateRepo はテスト用のItemStateRepositoryモック。
type mockItemStateRepo struct {
	deleteBySourceCalls int
}

func (m *mockItemStateRepo) FindByUserAndItem(_ context.Context, _, _ string) (*model.ItemState, error) {
	return nil, nil
}

func (m *mockItemStateRepo) Upsert(_ context.Context, _, _ string, _, _, _ *bool) (*model.ItemState, error) {
	return nil, nil
}

func (m *mockItemStateRepo) DeleteByUserAndSource(_ context.Context, _, _ string) error {
	m.deleteBySourceCalls++
	return nil
}

// fakeHandler はテスト用のリゾルバーハンドラー。
// matchPrefixで始まるURLを担当し、固定の記述子またはエラーを返す。
type fakeHandler struct {
	kind        model.SourceKind
	matchPrefix string
	descriptor  *model.FeedDescriptor
	resolveErr  error
}

func (h *fakeHandler) Kind() model.SourceKind    { return h.kind }
func (h *fakeHandler) Kinds() []model.SourceKind { return []model.SourceKind{h.kind} }

func (h *fakeHandler) DetectURL(rawURL string) (bool, string) {
	if strings.HasPrefix(rawURL, h.matchPrefix) {
		return true, rawURL
	}
	return false, ""
}

func (h *fakeHandler) Resolve(_ context.Context, _ string) (*model.FeedDescriptor, error) {
	if h.resolveErr != nil {
		return nil, h.resolveErr
	}
	return h.descriptor, nil
}

// mockAvatarFetcher はテスト用のアバター取得モック。
type mockAvatarFetcher struct {
	data []byte
	mime string
	err  error
}

func (m *mockAvatarFetcher) FetchAvatar(_ context.Context, _, _ string) ([]byte, string, error) {
	return m.data, m.mime, m.err
}

func newTestService(repo *mockSourceRepo, stateRepo *mockItemStateRepo, registry *resolver.Registry, avatar resolver.AvatarFetcherService) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, stateRepo, registry, avatar, logger)
}

func apiErrorCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorになるはずが%T: %v", err, err)
	}
	return apiErr.Code
}

// --- Service テスト ---

// TestRegisterSource_新規登録 はURLの解決からソース保存、アバター取得までの
// 登録フロー全体が動作することを確認する。
func TestRegisterSource_新規登録(t *testing.T) {
	repo := newMockSourceRepo()
	registry := resolver.NewRegistry(&fakeHandler{
		kind:        model.SourceKindYouTubeChannel,
		matchPrefix: "https://www.youtube.com/",
		descriptor: &model.FeedDescriptor{
			Kind:      model.SourceKindYouTubeChannel,
			FeedURL:   "https://www.youtube.com/feeds/videos.xml?channel_id=UCabcdefghij1234567890-_",
			SiteURL:   "https://www.youtube.com/@creator",
			Title:     "クリエイターのチャンネル",
			AvatarURL: "https://yt3.ggpht.com/avatar.jpg",
			Metadata:  model.SourceMetadata{ChannelID: "UCabcdefghij1234567890-_"},
		},
	})
	avatar := &mockAvatarFetcher{data: []byte{0x89, 0x50, 0x4E, 0x47}, mime: "image/png"}
	svc := newTestService(repo, &mockItemStateRepo{}, registry, avatar)

	source, err := svc.RegisterSource(context.Background(), "user-1", "https://www.youtube.com/@creator")
	if err != nil {
		t.Fatalf("登録に失敗した: %v", err)
	}
	if source.Kind != model.SourceKindYouTubeChannel {
		t.Errorf("Kindがyoutube-channelになるはずが%s", source.Kind)
	}
	if source.CanonicalURL != "https://www.youtube.com/@creator" {
		t.Errorf("正規URLが解決後のサイトURLになるはずが%q", source.CanonicalURL)
	}
	if source.Title != "クリエイターのチャンネル" {
		t.Errorf("タイトルが記述子から設定されるはずが%q", source.Title)
	}
	if repo.createCalls != 1 {
		t.Errorf("Createが1回呼ばれるはずが%d回", repo.createCalls)
	}
	if repo.avatarCall.sourceID != source.ID {
		t.Error("アバターが保存されていない")
	}
	if repo.avatarCall.avatarMime != "image/png" {
		t.Errorf("アバターのMIMEがimage/pngになるはずが%q", repo.avatarCall.avatarMime)
	}
}

// TestRegisterSource_動画URLとチャンネルURLは同一ソースに収束する は入力の形が違っても
// 解決後の正規URLが同じなら重複として拒否されることを確認する。
func TestRegisterSource_動画URLとチャンネルURLは同一ソースに収束する(t *testing.T) {
	repo := newMockSourceRepo()
	descriptor := &model.FeedDescriptor{
		Kind:    model.SourceKindYouTubeChannel,
		FeedURL: "https://www.youtube.com/feeds/videos.xml?channel_id=UCabcdefghij1234567890-_",
		SiteURL: "https://www.youtube.com/@creator",
		Title:   "クリエイターのチャンネル",
	}
	registry := resolver.NewRegistry(&fakeHandler{
		kind:        model.SourceKindYouTubeChannel,
		matchPrefix: "https://www.youtube.com/",
		descriptor:  descriptor,
	})
	svc := newTestService(repo, &mockItemStateRepo{}, registry, nil)

	if _, err := svc.RegisterSource(context.Background(), "user-1", "https://www.youtube.com/@creator"); err != nil {
		t.Fatalf("1回目の登録に失敗した: %v", err)
	}

	// 同じチャンネルに解決される動画URLでの再登録
	_, err := svc.RegisterSource(context.Background(), "user-1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err == nil {
		t.Fatal("重複登録がエラーになるはず")
	}
	if code := apiErrorCode(t, err); code != model.ErrCodeDuplicateSource {
		t.Errorf("エラーコードがDUPLICATE_SOURCEになるはずが%s", code)
	}
	if repo.createCalls != 1 {
		t.Errorf("2回目のCreateが呼ばれてはいけない: %d回", repo.createCalls)
	}
}

// TestRegisterSource_登録上限 はソース数が上限に達している場合の拒否を確認する。
func TestRegisterSource_登録上限(t *testing.T) {
	repo := newMockSourceRepo()
	for i := 0; i < 100; i++ {
		source := &model.Source{
			ID:           fmt.Sprintf("src-%d", i),
			UserID:       "user-1",
			Kind:         model.SourceKindRSS,
			CanonicalURL: fmt.Sprintf("https://example.com/feed-%d", i),
		}
		repo.sources[source.ID] = source
	}
	registry := resolver.NewRegistry(&fakeHandler{
		kind:        model.SourceKindRSS,
		matchPrefix: "https://",
		descriptor:  &model.FeedDescriptor{Kind: model.SourceKindRSS, FeedURL: "https://example.com/feed"},
	})
	svc := newTestService(repo, &mockItemStateRepo{}, registry, nil)

	_, err := svc.RegisterSource(context.Background(), "user-1", "https://example.com/new")
	if err == nil {
		t.Fatal("上限超過がエラーになるはず")
	}
	if code := apiErrorCode(t, err); code != model.ErrCodeSourceLimit {
		t.Errorf("エラーコードがSOURCE_LIMITになるはずが%s", code)
	}
}

// TestRegisterSource_未対応URL はどのハンドラーにもマッチしないURLの拒否を確認する。
func TestRegisterSource_未対応URL(t *testing.T) {
	registry := resolver.NewRegistry(&fakeHandler{
		kind:        model.SourceKindRSS,
		matchPrefix: "https://matched.example.com/",
	})
	svc := newTestService(newMockSourceRepo(), &mockItemStateRepo{}, registry, nil)

	_, err := svc.RegisterSource(context.Background(), "user-1", "ftp://example.com")
	if err == nil {
		t.Fatal("未対応URLがエラーになるはず")
	}
	if code := apiErrorCode(t, err); code != model.ErrCodeInvalidURL {
		t.Errorf("エラーコードがINVALID_URLになるはずが%s", code)
	}
}

// TestRegisterSource_解決エラーの伝播 はリゾルバーのエラーが
// そのまま呼び出し元へ返されることを確認する。
func TestRegisterSource_解決エラーの伝播(t *testing.T) {
	repo := newMockSourceRepo()
	registry := resolver.NewRegistry(&fakeHandler{
		kind:        model.SourceKindPodcast,
		matchPrefix: "https://open.spotify.com/",
		resolveErr:  model.NewPlatformUnsupportedError("Spotify"),
	})
	svc := newTestService(repo, &mockItemStateRepo{}, registry, nil)

	_, err := svc.RegisterSource(context.Background(), "user-1", "https://open.spotify.com/show/abc")
	if err == nil {
		t.Fatal("解決エラーが伝播するはず")
	}
	if code := apiErrorCode(t, err); code != model.ErrCodePlatformUnsupported {
		t.Errorf("エラーコードがPLATFORM_UNSUPPORTEDになるはずが%s", code)
	}
	if repo.createCalls != 0 {
		t.Error("解決失敗時にCreateが呼ばれてはいけない")
	}
}

// TestGetSource_他ユーザーのソースは見つからない はユーザースコープの分離を確認する。
func TestGetSource_他ユーザーのソースは見つからない(t *testing.T) {
	repo := newMockSourceRepo()
	repo.sources["src-1"] = &model.Source{ID: "src-1", UserID: "user-1", Title: "ソース"}
	svc := newTestService(repo, &mockItemStateRepo{}, resolver.NewRegistry(), nil)

	_, err := svc.GetSource(context.Background(), "user-2", "src-1")
	if err == nil {
		t.Fatal("他ユーザーのソースは見つからないはず")
	}
	if code := apiErrorCode(t, err); code != model.ErrCodeSourceNotFound {
		t.Errorf("エラーコードがSOURCE_NOT_FOUNDになるはずが%s", code)
	}
}

// TestDeleteSource_状態とソースを削除する は削除フローを確認する。
func TestDeleteSource_状態とソースを削除する(t *testing.T) {
	repo := newMockSourceRepo()
	repo.sources["src-1"] = &model.Source{ID: "src-1", UserID: "user-1"}
	stateRepo := &mockItemStateRepo{}
	svc := newTestService(repo, stateRepo, resolver.NewRegistry(), nil)

	if err := svc.DeleteSource(context.Background(), "user-1", "src-1"); err != nil {
		t.Fatalf("削除に失敗した: %v", err)
	}
	if stateRepo.deleteBySourceCalls != 1 {
		t.Errorf("コンテンツ状態の削除が1回呼ばれるはずが%d回", stateRepo.deleteBySourceCalls)
	}
	if repo.deleteCalls != 1 {
		t.Errorf("ソースの削除が1回呼ばれるはずが%d回", repo.deleteCalls)
	}
}

// TestResumeFetch_停止中のソースのみ再開できる は再開の前提条件と状態リセットを確認する。
func TestResumeFetch_停止中のソースのみ再開できる(t *testing.T) {
	repo := newMockSourceRepo()
	repo.sources["active"] = &model.Source{ID: "active", UserID: "user-1", FetchStatus: model.FetchStatusActive}
	repo.sources["stopped"] = &model.Source{
		ID: "stopped", UserID: "user-1",
		FetchStatus:       model.FetchStatusStopped,
		ConsecutiveErrors: 5,
		ErrorMessage:      "HTTP 410 によりフェッチを停止しました",
	}
	svc := newTestService(repo, &mockItemStateRepo{}, resolver.NewRegistry(), nil)

	_, err := svc.ResumeFetch(context.Background(), "user-1", "active")
	if err == nil {
		t.Fatal("アクティブなソースの再開はエラーになるはず")
	}
	if code := apiErrorCode(t, err); code != model.ErrCodeSourceNotStopped {
		t.Errorf("エラーコードがSOURCE_NOT_STOPPEDになるはずが%s", code)
	}

	info, err := svc.ResumeFetch(context.Background(), "user-1", "stopped")
	if err != nil {
		t.Fatalf("停止中ソースの再開に失敗した: %v", err)
	}
	if info.FetchStatus != string(model.FetchStatusActive) {
		t.Errorf("FetchStatusがactiveに戻るはずが%s", info.FetchStatus)
	}
	if info.ErrorMessage != nil {
		t.Errorf("エラーメッセージがクリアされるはずが%q", *info.ErrorMessage)
	}
	if repo.sources["stopped"].ConsecutiveErrors != 0 {
		t.Errorf("連続エラー回数がリセットされるはずが%d", repo.sources["stopped"].ConsecutiveErrors)
	}
}

// TestListSources_アバターはdataURLに変換される は一覧取得時の
// アバターデータのインライン変換を確認する。
func TestListSources_アバターはdataURLに変換される(t *testing.T) {
	repo := newMockSourceRepo()
	repo.listRows = []repository.SourceWithUnreadCount{
		{
			Source: model.Source{
				ID: "src-1", Title: "アバターあり",
				AvatarData: []byte{0x89, 0x50}, AvatarMime: "image/png",
				CreatedAt: time.Now(),
			},
			UnreadCount: 3,
		},
		{
			Source: model.Source{ID: "src-2", Title: "アバターなし"},
		},
	}
	svc := newTestService(repo, &mockItemStateRepo{}, resolver.NewRegistry(), nil)

	infos, err := svc.ListSources(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("一覧取得に失敗した: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("2件返るはずが%d件", len(infos))
	}
	if infos[0].AvatarURL == nil || !strings.HasPrefix(*infos[0].AvatarURL, "data:image/png;base64,") {
		t.Error("アバターがdata URLに変換されていない")
	}
	if infos[0].UnreadCount != 3 {
		t.Errorf("未読数が3になるはずが%d", infos[0].UnreadCount)
	}
	if infos[1].AvatarURL != nil {
		t.Error("アバターなしのソースはnilになるはず")
	}
}
