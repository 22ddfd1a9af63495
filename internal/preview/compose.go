// Package preview はプロジェクトの3つのソース断片をひとつのドキュメントに合成し、
// 隔離された描画先（フレーム）へ描画する。
package preview

import (
	"strings"

	"github.com/hitoshi/codepad/internal/model"
	"github.com/hitoshi/codepad/internal/security"
)

// ScriptErrorMessageType はプレビュー内のスクリプトエラーを
// 親ウィンドウへ通知するpostMessageのtype値。
const ScriptErrorMessageType = "codepad:script-error"

// Title はドキュメントの<title>に入れる安全なテキストを返す。
// タグは除去され、テキストはエスケープされる。
func Title(name string) string {
	title := security.PlainText(name)
	if strings.TrimSpace(title) == "" {
		return model.PlaceholderName
	}
	return title
}

// Compose はプロジェクトをひとつの実行可能なHTMLドキュメントに合成する。
// スタイル、マークアップ、スクリプトの各断片は加工せずにそのまま埋め込む。
// スクリプトはtry/catchで囲み、例外はコンソールと親ウィンドウに報告する。
// 同じプロジェクトに対しては常に同じ文字列を返す。
func Compose(p model.Project) string {
	var b strings.Builder
	b.Grow(len(p.HTML) + len(p.CSS) + len(p.JS) + 768)

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	b.WriteString("<title>")
	b.WriteString(Title(p.Name))
	b.WriteString("</title>\n")
	b.WriteString("<style type=\"text/css\">\n")
	b.WriteString(p.CSS)
	b.WriteString("\n</style>\n</head>\n<body>\n")
	b.WriteString(p.HTML)
	b.WriteString("\n<script>\ntry {\n")
	b.WriteString(p.JS)
	b.WriteString("\n} catch (error) {\n")
	b.WriteString("  console.error('JavaScript error:', error);\n")
	b.WriteString("  if (window.parent && window.parent !== window) {\n")
	b.WriteString("    window.parent.postMessage({ type: \"" + ScriptErrorMessageType + "\", message: String(error) }, \"*\");\n")
	b.WriteString("  }\n")
	b.WriteString("}\n</script>\n</body>\n</html>\n")

	return b.String()
}
