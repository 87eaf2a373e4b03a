package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はポータルが返すメッセージからHTMLを除去し、
// プレーンテキストの通知本文に埋め込める形にする。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを除去するポリシーでTextSanitizerを生成する。
// タグ除去箇所には空白を挿入し、前後の語が連結しないようにする。
func NewTextSanitizer() *TextSanitizer {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return &TextSanitizer{policy: p}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
// bluemondayがエスケープした文字実体は元の文字に戻す。
func (s *TextSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	cleaned := html.UnescapeString(s.policy.Sanitize(text))
	return strings.Join(strings.Fields(cleaned), " ")
}
