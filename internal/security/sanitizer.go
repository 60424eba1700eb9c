// Package security はユーザー入力テキストのサニタイズを提供する。
//
// タスクのタイトルと差し戻し理由はプレーンテキストとしてすべてのタグを除去する。
// タスクの説明は簡単な書式タグのみを許可する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はタスク本文とレビューコメントのサニタイズ機能を定義する。
type TextSanitizer interface {
	// Text はすべてのHTMLタグを除去し、前後の空白を取り除く。
	Text(raw string) string
	// RichText は許可タグ（p, br, ul, ol, li, blockquote, pre, code, strong, em, a）のみを残す。
	RichText(raw string) string
}

// Sanitizer はbluemondayのポリシーを保持するTextSanitizerの実装。
// ポリシーは生成後に変更しないため、複数goroutineから安全に使える。
type Sanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
func NewSanitizer() *Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	// リンクは絶対URLのみ、新しいタブで開きリファラを送らない
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowStandardURLs()
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &Sanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   rich,
	}
}

// Text はすべてのHTMLタグを除去する。
func (s *Sanitizer) Text(raw string) string {
	return strings.TrimSpace(s.strict.Sanitize(raw))
}

// RichText は許可タグ以外を除去する。
func (s *Sanitizer) RichText(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

var _ TextSanitizer = (*Sanitizer)(nil)
