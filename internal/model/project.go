// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"
)

// PlaceholderName は名前が空のプロジェクトに使う既定の名前。
const PlaceholderName = "Untitled"

// Project はユーザーが作成するHTML/CSS/JavaScriptのひとまとまり（ファイル）を表す。
// 必ずひとつのアカウント（UserID）に属する。
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HTML      string    `json:"html"`
	CSS       string    `json:"css"`
	JS        string    `json:"js"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	UserID    string    `json:"userId"`
}

// SourceField はプロジェクトのソース断片の種別を表す。
type SourceField string

const (
	// SourceHTML はマークアップ断片。
	SourceHTML SourceField = "html"
	// SourceCSS はスタイル断片。
	SourceCSS SourceField = "css"
	// SourceJS はスクリプト断片。
	SourceJS SourceField = "js"
)

// ParseSourceField は文字列をSourceFieldに変換する。
func ParseSourceField(s string) (SourceField, error) {
	switch SourceField(s) {
	case SourceHTML, SourceCSS, SourceJS:
		return SourceField(s), nil
	default:
		return "", fmt.Errorf("unknown source field: %q", s)
	}
}

// NormalizeName は空白のみの名前をPlaceholderNameに置き換える。
func NormalizeName(name string) string {
	if strings.TrimSpace(name) == "" {
		return PlaceholderName
	}
	return name
}

// DisplayName は表示用の名前を返す。
func (p Project) DisplayName() string {
	return NormalizeName(p.Name)
}

// Source は指定フィールドのソース断片を返す。
func (p Project) Source(field SourceField) string {
	switch field {
	case SourceHTML:
		return p.HTML
	case SourceCSS:
		return p.CSS
	case SourceJS:
		return p.JS
	}
	return ""
}

// WithSource は指定フィールドを置き換えたコピーを返す。
func (p Project) WithSource(field SourceField, value string) Project {
	switch field {
	case SourceHTML:
		p.HTML = value
	case SourceCSS:
		p.CSS = value
	case SourceJS:
		p.JS = value
	}
	return p
}
