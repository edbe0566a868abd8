// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, project, task, comment, system
	Action   string // ユーザー向け対処方法

	// RetryAfter はレート制限超過時の再試行までの秒数。それ以外は0。
	RetryAfter int
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredential  = "INVALID_CREDENTIAL"
	ErrCodeAdmissionExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidInternalKey = "INVALID_INTERNAL_KEY"
	ErrCodeEmailConflict      = "EMAIL_ALREADY_REGISTERED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeProjectNotFound    = "PROJECT_NOT_FOUND"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
	ErrCodeCommentNotFound    = "COMMENT_NOT_FOUND"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidation         = "VALIDATION_FAILED"
)

// HasCode はerrがAPIErrorであり、指定コードを持つかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewInvalidCredentialError は認証情報が無効な場合のエラーを生成する。
// 署名不正・形式不正・期限切れ・トークン種別不一致を区別しない。
func NewInvalidCredentialError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "認証情報を検証できませんでした。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAdmissionExceededError はレート制限超過エラーを生成する。
func NewAdmissionExceededError(retryAfter int) *APIError {
	return &APIError{
		Code:       ErrCodeAdmissionExceeded,
		Message:    "リクエストが多すぎます。",
		Category:   "system",
		Action:     "指定された時間が経過してから再度お試しください。",
		RetryAfter: retryAfter,
	}
}

// NewForbiddenError は操作権限がない場合のエラーを生成する。
// リソースの存在がURLから自明な操作（コメント編集、本人のみの操作）でのみ使用する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "自分が作成したリソースのみ変更できます。",
	}
}

// NewInvalidInternalKeyError は内部APIキーが不正な場合のエラーを生成する。
func NewInvalidInternalKeyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInternalKey,
		Message:  "内部APIキーが無効です。",
		Category: "auth",
		Action:   "X-Internal-Keyヘッダーを確認してください。",
	}
}

// NewEmailConflictError はメールアドレスが既に登録済みの場合のエラーを生成する。
func NewEmailConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを指定するか、ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewProjectNotFoundError はプロジェクトが見つからない場合のエラーを生成する。
// 他ユーザーのプロジェクトも存在を隠すためこのエラーになる。
func NewProjectNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  "プロジェクトが見つかりません。",
		Category: "project",
		Action:   "プロジェクトIDを確認してください。",
	}
}

// NewTaskNotFoundError はタスクが見つからない場合のエラーを生成する。
func NewTaskNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  "タスクが見つかりません。",
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewCommentNotFoundError はコメントが見つからない場合のエラーを生成する。
func NewCommentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  "コメントが見つかりません。",
		Category: "comment",
		Action:   "コメントIDを確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析に失敗した場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値が不正な場合のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// 文字列項目の最大文字数。usersとprojectsとtasksのVARCHAR列に合わせる。
const (
	MaxTextLength   = 255
	MaxStatusLength = 32
)

// CheckLength はvalueの文字数がmaxを超える場合にValidationエラーを返す。
func CheckLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return NewValidationError(fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}
