// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はユーザーが入力したプロジェクト・タスク・コメントのテキストを
// 保存前にサニタイズする。bluemondayの許可リストベースのポリシーを使用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizer interface {
	// PlainText は全てのHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
	// プロジェクト名・説明、タスクのタイトル・説明に使用する。
	PlainText(raw string) string

	// RichText は限定的な書式タグのみを残したHTMLを返す。
	// コメント本文に使用する。
	RichText(raw string) string
}

// contentSanitizer はContentSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerの新しいインスタンスを生成する。
// RichTextのポリシー:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em
//   - script, style等の許可リスト外のタグとon*イベント属性は除去
//   - aタグ: 絶対URLのhrefのみ許可し、target="_blank" と rel="noopener noreferrer" を付与
func NewContentSanitizer() *contentSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowStandardURLs()
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   rich,
	}
}

// PlainText は全てのHTMLタグを除去したテキストを返す。
// StrictPolicyがエスケープした文字実体は元に戻す（レスポンスはJSONで返すため）。
func (s *contentSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}

// RichText は許可タグのみを残したHTMLを返す。
func (s *contentSanitizer) RichText(raw string) string {
	return s.rich.Sanitize(raw)
}

// PlainTextPtr はnilを許容するPlainText。
func PlainTextPtr(s ContentSanitizer, raw *string) *string {
	if raw == nil {
		return nil
	}
	v := s.PlainText(*raw)
	return &v
}
