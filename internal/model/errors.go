package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, moderation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeItemNotFound        = "ITEM_NOT_FOUND"
	ErrCodeReportNotFound      = "REPORT_NOT_FOUND"
	ErrCodePermissionDenied    = "PERMISSION_DENIED"
	ErrCodeAccessDenied        = "ACCESS_DENIED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidListing      = "INVALID_LISTING"
	ErrCodeInvalidImage        = "INVALID_IMAGE"
	ErrCodeTooManyImages       = "TOO_MANY_IMAGES"
	ErrCodeProfileIncomplete   = "PROFILE_INCOMPLETE"
	ErrCodeInvalidCategory     = "INVALID_CATEGORY"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeDomainNotAllowed    = "DOMAIN_NOT_ALLOWED"
	ErrCodeEmailAlreadyInUse   = "EMAIL_ALREADY_IN_USE"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewItemNotFoundError は出品未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定された出品が見つかりません: %s", itemID),
		Category: "listing",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewReportNotFoundError は通報未検出エラーを生成する。
func NewReportNotFoundError(reportID string) *APIError {
	return &APIError{
		Code:     ErrCodeReportNotFound,
		Message:  fmt.Sprintf("指定された通報が見つかりません: %s", reportID),
		Category: "moderation",
		Action:   "通報一覧を再読み込みしてください。",
	}
}

// NewPermissionDeniedError は書き込みが1行も反映されなかった場合のエラーを生成する。
// 対象が存在しないかアクセス制御で拒否されたことを示し、ストア障害とは区別される。
func NewPermissionDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  "Permission Denied: 対象が存在しないか、操作が許可されていません。",
		Category: "moderation",
		Action:   "管理者権限と対象の出品を確認してください。",
	}
}

// NewAccessDeniedError は管理者専用ページへの一般ユーザーのアクセスを拒否するエラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "Access Denied: このページは管理者のみ利用できます。",
		Category: "auth",
		Action:   "マーケットプレイスに戻ってください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "サインインしてください。",
	}
}

// NewInvalidListingError は出品内容の検証エラーを生成する。
func NewInvalidListingError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidListing,
		Message:  fmt.Sprintf("出品内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidImageError は画像形式エラーを生成する。
func NewInvalidImageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  fmt.Sprintf("画像をアップロードできません: %s", reason),
		Category: "validation",
		Action:   "JPEG、PNG、GIF、WebPのいずれかの画像を選択してください。",
	}
}

// NewTooManyImagesError は画像枚数超過エラーを生成する。
func NewTooManyImagesError(count int) *APIError {
	return &APIError{
		Code:     ErrCodeTooManyImages,
		Message:  fmt.Sprintf("画像は%d枚までです（%d枚指定されました）。", MaxItemImages, count),
		Category: "validation",
		Action:   "画像の枚数を減らしてください。",
	}
}

// NewProfileIncompleteError は氏名・電話番号未入力エラーを生成する。
func NewProfileIncompleteError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileIncomplete,
		Message:  "出品には氏名と電話番号が必要です。",
		Category: "validation",
		Action:   "氏名と電話番号を入力してください。",
	}
}

// NewInvalidCategoryError は無効なカテゴリエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", category),
		Category: "validation",
		Action:   "All、Textbooks、Tools、Stationery、Electronics、Lab Gear、Others のいずれかを指定してください。",
	}
}

// NewInvalidCredentialsError はパスワードログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDomainNotAllowedError は組織ドメイン外のアカウントによるログインを拒否するエラーを生成する。
func NewDomainNotAllowedError(domain string) *APIError {
	return &APIError{
		Code:     ErrCodeDomainNotAllowed,
		Message:  fmt.Sprintf("%s のアカウントのみ利用できます。", domain),
		Category: "auth",
		Action:   "組織のGoogleアカウントでログインしてください。",
	}
}

// NewEmailAlreadyInUseError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyInUse,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。しばらくしてから再度お試しください。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再試行してください。",
	}
}

// NewInternalError は内部エラーを生成する。原因はログにのみ記録し、メッセージには含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
