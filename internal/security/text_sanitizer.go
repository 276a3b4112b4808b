// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は利用者が入力したプレーンテキスト（出品タイトル・説明文・通報理由・氏名）から
// HTMLを取り除く。bluemondayのStrictPolicyでタグを全て除去したあと、
// エスケープされた実体参照を元の文字に戻してプレーンテキストとして保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト入力のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
	// scriptとstyleは中身ごと除去される。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// compile-time interface check
var _ TextSanitizer = (*textSanitizer)(nil)
