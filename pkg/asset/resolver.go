package asset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shouni/go-utils/urlpath"
)

const (
	// DefaultImageDir は生成された画像を格納するデフォルトのディレクトリ名です。
	DefaultImageDir = "images"
	// DefaultStoryboardJson は生成された台本のデフォルト JSON ファイル名です。
	DefaultStoryboardJson = "storyboard.json"
	// DefaultStoryboardName は生成された絵コンテのデフォルト Markdown ファイル名です。
	DefaultStoryboardName = "storyboard.md"
	// DefaultFrameFileName はフレーム画像の共通のベースファイル名です。
	DefaultFrameFileName = "frame.png"
	// DefaultStyleRefFileName はスタイル参照画像の共通のベースファイル名です。
	DefaultStyleRefFileName = "style_ref.png"
)

var (
	// FrameFileRegex はフレーム画像 (frame_1.png 等) に一致します
	FrameFileRegex = createIndexedRegex(DefaultFrameFileName)
	// StyleRefFileRegex はスタイル参照画像 (style_ref_1.png 等) に一致します
	StyleRefFileRegex = createIndexedRegex(DefaultStyleRefFileName)
)

// ResolveOutputPath は、ベースとなるディレクトリパスとファイル名から、
// GCS/ローカルを考慮した最終的な出力パスを生成します。
func ResolveOutputPath(baseDir, fileName string) (string, error) {
	return urlpath.ResolveOutputPath(baseDir, fileName)
}

// ResolveBaseURL は、入力パス（URLまたはローカルパス）から
// 親ディレクトリのパスを解決し、末尾がセパレータで終わるように正規化します。
func ResolveBaseURL(rawPath string) string {
	return urlpath.ResolveBaseURL(rawPath)
}

// GenerateIndexedPath は、指定されたベースパスの拡張子の前に連番を挿入し、
// 新しいパス文字列を生成します。index は1以上の整数である必要があります。
// 例: "path/to/image.png", 1 -> "path/to/image_1.png"
func GenerateIndexedPath(basePath string, index int) (string, error) {
	return urlpath.GenerateIndexedPath(basePath, index)
}

// createIndexedRegex は、ファイル名に基づきインデックス付きファイル用の正規表現を生成します。
// 例: "frame.png" -> ^frame_\d+\.png$
func createIndexedRegex(fileName string) *regexp.Regexp {
	ext := filepath.Ext(fileName)
	baseName := strings.TrimSuffix(fileName, ext)

	// baseName と ext の両方を QuoteMeta でエスケープすることで
	// ドットや特殊文字が含まれていても正しくリテラルとしてマッチします。
	pattern := fmt.Sprintf(`^%s_\d+%s$`, regexp.QuoteMeta(baseName), regexp.QuoteMeta(ext))
	return regexp.MustCompile(pattern)
}
