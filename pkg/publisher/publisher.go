package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/asset"
	"github.com/shouni/go-storyboard-kit/pkg/domain"

	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/shouni/go-text-format/pkg/md2htmlrunner"
)

// Options はパブリッシュ動作を制御する設定項目です。
type Options struct {
	OutputDir string
}

// PublishResult はパブリッシュ処理の結果として生成されたファイルの情報を保持します。
type PublishResult struct {
	MarkdownPath string   // 生成された storyboard.md のパス
	HTMLPath     string   // 生成された HTML のパス
	JSONPath     string   // 生成された storyboard.json のパス
	ImagePaths   []string // 保存された全フレーム画像のパスリスト
}

// StoryboardPublisher は成果物の永続化とフォーマット変換を担います。
type StoryboardPublisher struct {
	writer     remoteio.OutputWriter
	htmlRunner md2htmlrunner.Runner
}

// NewStoryboardPublisher は指定の writer と HTML ランナーを持つパブリッシャーを返します。
func NewStoryboardPublisher(writer remoteio.OutputWriter, htmlRunner md2htmlrunner.Runner) *StoryboardPublisher {
	return &StoryboardPublisher{
		writer:     writer,
		htmlRunner: htmlRunner,
	}
}

// Publish はフレーム画像の保存、Markdown/JSON の構築、HTML 変換を一括して実行するのだ！
func (p *StoryboardPublisher) Publish(ctx context.Context, script domain.StoryboardScript, frames domain.Frames, opts Options) (PublishResult, error) {
	result := PublishResult{}

	markdown, err := asset.ResolveOutputPath(opts.OutputDir, asset.DefaultStoryboardName)
	if err != nil {
		return result, err
	}
	result.MarkdownPath = markdown

	imgDir, err := asset.ResolveOutputPath(opts.OutputDir, asset.DefaultImageDir)
	if err != nil {
		return result, err
	}

	savedPaths, err := p.saveFrames(ctx, frames, imgDir)
	if err != nil {
		return result, fmt.Errorf("フレーム画像の書き込みに失敗しました: %w", err)
	}
	result.ImagePaths = savedPaths

	// Markdown からは images/ 配下への相対パスで参照する
	relativePaths := make([]string, 0, len(savedPaths))
	for _, pathStr := range savedPaths {
		relativePaths = append(relativePaths, path.Join(asset.DefaultImageDir, filepath.Base(pathStr)))
	}

	content := p.buildMarkdown(script, frames, relativePaths)
	if err := p.writer.Write(ctx, markdown, strings.NewReader(content), "text/markdown; charset=utf-8"); err != nil {
		return result, fmt.Errorf("markdownファイルの書き込みに失敗しました: %w", err)
	}

	jsonPath, err := p.saveScript(ctx, script, opts.OutputDir)
	if err != nil {
		return result, err
	}
	result.JSONPath = jsonPath

	if p.htmlRunner != nil {
		slog.Info("Converting storyboard to HTML", "title", script.Title)
		htmlBuffer, err := p.htmlRunner.Run(ctx, script.Title, []byte(content))
		if err != nil {
			return result, fmt.Errorf("HTMLの変換に失敗しました: %w", err)
		}

		htmlPath := strings.TrimSuffix(markdown, filepath.Ext(markdown)) + ".html"
		if err := p.writer.Write(ctx, htmlPath, htmlBuffer, "text/html; charset=utf-8"); err != nil {
			return result, fmt.Errorf("HTMLファイルの書き込みに失敗しました: %w", err)
		}
		result.HTMLPath = htmlPath
	}

	return result, nil
}

// saveFrames はフレーム画像を frame_N.png の連番で保存し、保存先パスを返します。
// 番号はフレームインデックスに一致させます。欠番は許容しません（パイプラインが
// 完走した時点で全フレームに画像が揃っている前提です）。
func (p *StoryboardPublisher) saveFrames(ctx context.Context, frames domain.Frames, baseDir string) ([]string, error) {
	paths := make([]string, 0, len(frames))
	for _, frame := range frames {
		if frame.Image.IsEmpty() {
			return nil, fmt.Errorf("フレーム %d の画像が空です", frame.Index)
		}

		base, err := asset.ResolveOutputPath(baseDir, asset.DefaultFrameFileName)
		if err != nil {
			return nil, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
		}
		fullPath, err := asset.GenerateIndexedPath(base, frame.Index)
		if err != nil {
			return nil, fmt.Errorf("連番パスの生成に失敗しました: %w", err)
		}

		mime := frame.Image.MimeType
		if mime == "" {
			mime = "image/png"
		}
		if err := p.writer.Write(ctx, fullPath, bytes.NewReader(frame.Image.Data), mime); err != nil {
			return nil, fmt.Errorf("画像の書き込みに失敗しました %s: %w", fullPath, err)
		}
		paths = append(paths, fullPath)
	}
	return paths, nil
}

// saveScript は台本を storyboard.json として保存します。再実行時に
// 画像生成フェーズだけをやり直すための入力になります。
func (p *StoryboardPublisher) saveScript(ctx context.Context, script domain.StoryboardScript, outputDir string) (string, error) {
	jsonPath, err := asset.ResolveOutputPath(outputDir, asset.DefaultStoryboardJson)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return "", fmt.Errorf("台本のJSON変換に失敗しました: %w", err)
	}
	if err := p.writer.Write(ctx, jsonPath, bytes.NewReader(data), "application/json; charset=utf-8"); err != nil {
		return "", fmt.Errorf("台本ファイルの書き込みに失敗しました: %w", err)
	}
	return jsonPath, nil
}

// buildMarkdown はフレームごとに画像・ナレーション・生成プロンプトを並べた Markdown を返します。
func (p *StoryboardPublisher) buildMarkdown(script domain.StoryboardScript, frames domain.Frames, imagePaths []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", script.Title))
	if script.Description != "" {
		sb.WriteString(script.Description + "\n\n")
	}

	for i, frame := range frames {
		sb.WriteString(fmt.Sprintf("## Frame %d\n\n", frame.Index))
		if i < len(imagePaths) {
			sb.WriteString(fmt.Sprintf("![Frame %d](%s)\n\n", frame.Index, imagePaths[i]))
		}
		if i < len(script.Scenes) && script.Scenes[i].Narration != "" {
			sb.WriteString(script.Scenes[i].Narration + "\n\n")
		}
		sb.WriteString(fmt.Sprintf("> %s\n\n", frame.Prompt))
	}
	return sb.String()
}
