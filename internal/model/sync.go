// Package model はドメインモデルを定義する。
package model

// SyncOutcome は1ソース1回の同期結果を表す。永続化はしない。
type SyncOutcome struct {
	SourceID     string
	Success      bool
	ItemsAdded   int
	ItemsUpdated int
	Message      string // 失敗時の人間可読な理由
}

// SyncSummary は複数ソースの同期結果を集計したものを表す。
type SyncSummary struct {
	TotalSources      int
	SuccessfulSyncs   int
	FailedSyncs       int
	TotalItemsAdded   int
	TotalItemsUpdated int
	Outcomes          []SyncOutcome
}

// Add は1件の同期結果を集計に加算する。
func (s *SyncSummary) Add(outcome SyncOutcome) {
	s.TotalSources++
	if outcome.Success {
		s.SuccessfulSyncs++
	} else {
		s.FailedSyncs++
	}
	s.TotalItemsAdded += outcome.ItemsAdded
	s.TotalItemsUpdated += outcome.ItemsUpdated
	s.Outcomes = append(s.Outcomes, outcome)
}

// FeedDescriptor はURL解決の結果を表す。永続化せず、Source作成に即時消費される。
type FeedDescriptor struct {
	Kind        SourceKind
	FeedURL     string // 定期同期に使用する正規フィードURL
	SiteURL     string // 元ページのURL（リダイレクト解決後）
	Title       string
	Description string
	AvatarURL   string
	Metadata    SourceMetadata
}
