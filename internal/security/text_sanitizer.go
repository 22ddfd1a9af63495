// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はアカウント名やドキュメントタイトルなど、
// マークアップを含んではならない文字列からタグを取り除く。
// AvatarValidator はアバターとして受け付けるdata URIとURLを検証する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はすべてのタグを除去し、テキストをHTMLエスケープして返す。
	// scriptとstyleは中身ごと除去する。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はすべてのタグを除去したテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}

var plainText = NewTextSanitizer()

// PlainText はパッケージ共通のTextSanitizerでサニタイズした結果を返す。
// 結果はHTMLのテキストとしてそのまま埋め込める。
func PlainText(raw string) string {
	return plainText.Sanitize(raw)
}
