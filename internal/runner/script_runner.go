// Package runner は、CLI コマンドから呼び出される実行単位（台本生成、
// ストーリーボード生成、公開）を提供するのだ。
package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/review"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/shouni/go-web-exact/v2/pkg/extract"
)

// ScriptRunner は、ソース文章からストーリーボードの台本（シーン分割とプロンプト）を生成する核となる構造体なのだ。
type ScriptRunner struct {
	cfg       config.Config          // 実行時のコマンドライン引数や設定
	extractor *extract.Extractor     // Webサイトから本文を抽出するエクストラクター
	aiClient  gemini.GenerativeModel // Gemini APIと通信するクライアント
	reader    remoteio.InputReader   // ローカルやGCSのファイルを読み込むリーダー
}

// NewScriptRunner は、ScriptRunnerの新しいインスタンスを生成して返すのだ。
func NewScriptRunner(
	cfg config.Config,
	ext *extract.Extractor,
	ai gemini.GenerativeModel,
	r remoteio.InputReader,
) *ScriptRunner {
	return &ScriptRunner{
		cfg:       cfg,
		extractor: ext,
		aiClient:  ai,
		reader:    r,
	}
}

// Run は、入力ソースの読み込み、プロンプト構築、AIによる生成、結果のパースを一気に行うのだ。
func (sr *ScriptRunner) Run(ctx context.Context) (domain.StoryboardScript, error) {
	// 1. 入力ソース（URL または ファイル）からテキストを読み込むのだ
	input, err := sr.readInputContent(ctx)
	if err != nil {
		return domain.StoryboardScript{}, err
	}

	sceneCount := sr.cfg.Options.SceneCount
	if sceneCount <= 0 {
		sceneCount = config.DefaultSceneCount
	}

	// 2. 読み取ったテキストを埋め込んで台本生成プロンプトを作るのだ
	promptContent := prompts.BuildScriptPrompt(string(input), sceneCount)

	// 3. Geminiを使って、台本（JSON形式を期待）を生成させるのだ
	resp, err := sr.aiClient.GenerateContent(ctx, promptContent, sr.cfg.GeminiModel)
	if err != nil {
		return domain.StoryboardScript{}, fmt.Errorf("台本の生成に失敗したのだ: %w", err)
	}

	// 4. AIが返したテキストからJSON部分を抽出し、構造体に変換するのだ
	rawJSON := review.ExtractJSON(resp.Text)
	script, err := domain.GetScript([]byte(rawJSON))
	if err != nil {
		return domain.StoryboardScript{}, fmt.Errorf("台本のパースに失敗したのだ: %w", err)
	}

	return script, nil
}

// readInputContent は、URLまたはパスの設定に基づいて適切な方法でソースデータを取得するのだ。
func (sr *ScriptRunner) readInputContent(ctx context.Context) ([]byte, error) {
	// URLが指定されている場合は、Webスクレイピングを実行するのだ
	if sr.cfg.Options.SourceURL != "" {
		text, _, err := sr.extractor.FetchAndExtractText(ctx, sr.cfg.Options.SourceURL)
		return []byte(text), err
	}
	// ファイルパスが指定されている場合は、リーダーを使って開くのだ（GCS等も対応！）
	rc, err := sr.reader.Open(ctx, sr.cfg.Options.SourceFile)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
