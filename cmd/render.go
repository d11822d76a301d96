package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/pipeline"

	"github.com/spf13/cobra"
)

// renderCmd は、保存済みの台本（storyboard.json）から画像生成と公開のみを実行するのだ。
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "保存済みの台本から画像生成と公開だけをやり直すのだ。",
	Long: `scriptコマンドで出力した storyboard.json を読み込み、フレーム画像のバッチ生成・
連続性レビュー・公開処理（Phase 2 & 3）を実行するのだ。台本の作り直しはしないのだよ。`,
	RunE: renderCommand,
}

func renderCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if opts.SourceFile == "" {
		return fmt.Errorf("台本ファイル（--source-file）を指定してほしいのだ")
	}

	cfg := config.LoadConfig()
	cfg.GeminiModel = opts.AIModel
	cfg.GeminiImageModel = opts.ImageModel
	cfg.Options = opts

	slog.Info("レンダリングモードを起動するのだ！",
		"script", opts.SourceFile,
		"image_model", cfg.GeminiImageModel,
		"output", opts.OutputDir)

	if err := pipeline.ExecuteRenderOnly(ctx, cfg); err != nil {
		return fmt.Errorf("レンダリング中にエラーが発生したのだ: %w", err)
	}

	slog.Info("レンダリングが完了したのだ！")
	return nil
}
