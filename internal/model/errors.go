// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, source, sync, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeFetchFailed         = "FETCH_FAILED"
	ErrCodeParseFailed         = "PARSE_FAILED"
	ErrCodeFeedNotDetected     = "FEED_NOT_DETECTED"
	ErrCodeResolutionFailed    = "RESOLUTION_FAILED"
	ErrCodePlatformUnsupported = "PLATFORM_UNSUPPORTED"
	ErrCodeSourceNotFound      = "SOURCE_NOT_FOUND"
	ErrCodeItemNotFound        = "ITEM_NOT_FOUND"
	ErrCodeDuplicateSource     = "DUPLICATE_SOURCE"
	ErrCodeSourceLimit         = "SOURCE_LIMIT"
	ErrCodeInvalidFilter       = "INVALID_FILTER"
	ErrCodeSourceNotStopped    = "SOURCE_NOT_STOPPED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
)

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "source",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "フィードの解析に失敗しました。",
		Category: "source",
		Action:   "有効なRSS/Atomフィードかどうか確認してください。",
	}
}

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLからフィードを検出できませんでした: %s", url),
		Category: "source",
		Action:   "フィードのURLを直接入力するか、フィードが公開されているページのURLを確認してください。",
	}
}

// NewResolutionFailedError はプラットフォーム解決の失敗エラーを生成する。
// チャンネルIDが全戦略で抽出できなかった場合などに使用する。
func NewResolutionFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeResolutionFailed,
		Message:  fmt.Sprintf("ソースの解決に失敗しました: %s", reason),
		Category: "source",
		Action:   "フィードのURLを直接入力してみてください。ページ構造の変更により解決できない場合があります。",
	}
}

// NewPlatformUnsupportedError は構造的に自動解決できないプラットフォームのエラーを生成する。
// SpotifyやAmazon Musicのように公開フィードを持たないプラットフォームで使用する。
func NewPlatformUnsupportedError(platform string) *APIError {
	return &APIError{
		Code:     ErrCodePlatformUnsupported,
		Message:  fmt.Sprintf("%s は公開フィードを提供していないため、自動解決できません。", platform),
		Category: "source",
		Action:   "配信元のRSSフィードURLを直接入力してください。",
	}
}

// NewSourceNotFoundError はソース未検出エラーを生成する。
func NewSourceNotFoundError(sourceID string) *APIError {
	return &APIError{
		Code:     ErrCodeSourceNotFound,
		Message:  fmt.Sprintf("指定されたソースが見つかりません: %s", sourceID),
		Category: "source",
		Action:   "ソースIDを確認してください。",
	}
}

// NewItemNotFoundError はコンテンツ未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定されたコンテンツが見つかりません: %s", itemID),
		Category: "source",
		Action:   "コンテンツIDを確認してください。",
	}
}

// NewDuplicateSourceError は既に登録済みのソースを再度登録しようとした場合のエラーを生成する。
func NewDuplicateSourceError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateSource,
		Message:  "このソースは既に登録されています。",
		Category: "source",
		Action:   "ソース一覧から該当ソースを確認してください。",
	}
}

// NewSourceLimitError はソース登録上限エラーを生成する。
func NewSourceLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeSourceLimit,
		Message:  "ソースの登録数が上限（100件）に達しています。",
		Category: "source",
		Action:   "不要なソースを削除してから、新しいソースを登録してください。",
	}
}

// NewUnauthorizedError は未認証またはセッション切れのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証されていません。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewSourceNotStoppedError は停止していないソースのフェッチ再開を試みた場合のエラーを生成する。
func NewSourceNotStoppedError() *APIError {
	return &APIError{
		Code:     ErrCodeSourceNotStopped,
		Message:  "このソースは停止していません。",
		Category: "source",
		Action:   "停止中のソースに対してのみ再開を実行できます。",
	}
}

// NewInvalidFilterError は無効なフィルタエラーを生成する。
func NewInvalidFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効なフィルタです: %s", filter),
		Category: "validation",
		Action:   "フィルタには all、unread、starred、archived のいずれかを指定してください。",
	}
}
