package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/pipeline"

	"github.com/spf13/cobra"
)

// scriptCmd は、台本の生成（JSON出力）のみを実行するのだ。
var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "台本（JSON）のみを生成して保存するのだ。",
	Long: `ソースとなる文章を解析し、ストーリーボードの構成案（タイトル、シーン、ナレーション、
画像プロンプト）をJSON形式で出力するのだ。画像生成は行わないのだよ。`,
	RunE: scriptCommand,
}

func scriptCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// 1. 入力ソースの必須チェック
	if opts.SourceURL == "" && opts.SourceFile == "" && !isStdin() {
		return fmt.Errorf("ソース（--source-url または --source-file）を指定してほしいのだ")
	}

	// 2. 設定のロード
	cfg := config.LoadConfig()
	cfg.Options = opts
	cfg.GeminiModel = opts.AIModel

	slog.Info("台本生成モードを起動するのだ！",
		"scenes", opts.SceneCount,
		"text_model", cfg.GeminiModel,
		"output", cfg.Options.OutputDir)

	// 3. 実行
	if err := pipeline.ExecuteScriptOnly(ctx, cfg); err != nil {
		return fmt.Errorf("台本生成中にエラーが発生したのだ: %w", err)
	}

	slog.Info("台本（JSON）の生成が完了したのだ！", "output_dir", opts.OutputDir)
	return nil
}
