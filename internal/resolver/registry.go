// Package resolver はユーザー入力URLを正規のフィード記述子へ解決する機能を提供する。
// プラットフォームごとのリゾルバー（YouTube、ポッドキャスト、汎用RSS）と、
// それらを優先順位付きで束ねるレジストリを含む。
package resolver

import (
	"context"

	"github.com/hitoshi/unifeed/internal/model"
)

// Handler は1プラットフォームファミリーの解決・同期ロジックを表す。
// レジストリへの登録順が分類の優先順位となる。
type Handler interface {
	// Kind はこのハンドラーが担当するソース種別を返す。
	Kind() model.SourceKind
	// Kinds はこのハンドラーが同期を担当する全ソース種別を返す。
	// 1つのハンドラーが複数の種別（例: rssとwebsite）を扱える。
	Kinds() []model.SourceKind
	// DetectURL はURLがこのハンドラーの担当かをネットワークI/Oなしで判定する。
	// 担当の場合、正規化済みURL（変換があれば）を返す。
	DetectURL(rawURL string) (matched bool, canonicalURL string)
	// Resolve はURLを正規のフィード記述子へ解決する。
	// 解決不能の場合はnilとエラーを返す（panicやエラー以外の伝播はしない）。
	Resolve(ctx context.Context, rawURL string) (*model.FeedDescriptor, error)
}

// Registry はソース種別からハンドラーへのマッピングを保持する。
// アプリケーション起動時に1回だけ構築し、参照渡しで注入する。
// import時の暗黙的な登録は行わず、登録順序を明示的に保つ。
type Registry struct {
	handlers []Handler
	byKind   map[model.SourceKind]Handler
}

// NewRegistry は指定順序でハンドラーを登録したレジストリを生成する。
// 特定プラットフォームのハンドラーを先に、汎用RSS/Websiteハンドラーを
// 最後に渡すこと（キャッチオールとして必ず最後に試行される）。
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{
		byKind: make(map[model.SourceKind]Handler),
	}
	for _, h := range handlers {
		r.register(h)
	}
	return r
}

// register はハンドラーを登録する。同一種別の再登録は先勝ち。
func (r *Registry) register(h Handler) {
	r.handlers = append(r.handlers, h)
	for _, kind := range h.Kinds() {
		if _, exists := r.byKind[kind]; !exists {
			r.byKind[kind] = h
		}
	}
}

// HandlerFor は永続化されたソース種別に対応するハンドラーを返す。
// 未登録の種別の場合はnilを返す。
func (r *Registry) HandlerFor(kind model.SourceKind) Handler {
	return r.byKind[kind]
}

// Detection はdetectSourceTypeの結果を表す。
type Detection struct {
	Kind         model.SourceKind
	CanonicalURL string
	Handler      Handler
}

// DetectSourceType はURL分類と各ハンドラーのDetectURLを合成し、
// 最初にマッチしたハンドラーの種別と変換済みURLを返す。
// 登録順に試行するため、特定ハンドラーが汎用フォールバックより常に優先される。
// 複数ハンドラーの並行試行は行わない。
func (r *Registry) DetectSourceType(rawURL string) (Detection, bool) {
	for _, h := range r.handlers {
		if matched, canonical := h.DetectURL(rawURL); matched {
			if canonical == "" {
				canonical = rawURL
			}
			return Detection{Kind: h.Kind(), CanonicalURL: canonical, Handler: h}, true
		}
	}
	return Detection{}, false
}
