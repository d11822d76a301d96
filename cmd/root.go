package cmd

import (
	"fmt"
	"os"

	"github.com/shouni/go-storyboard-kit/internal/config"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

// opts は各サブコマンドで共有する実行時パラメータなのだ。
var opts config.GenerateOptions

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- ソース入力関連 ---
	rootCmd.PersistentFlags().StringVarP(&opts.SourceURL, "source-url", "u", "", "Webページからソース文章を取得するためのURLなのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.SourceFile, "source-file", "f", "", "入力ファイルのパス（ローカル or gs://...）なのだ。")
	rootCmd.PersistentFlags().IntVarP(&opts.SceneCount, "scenes", "n", config.DefaultSceneCount, "台本に起こすシーン（フレーム）数なのだ。")

	// --- スタイル指定関連 ---
	rootCmd.PersistentFlags().StringVarP(&opts.StyleDescription, "style", "s", "", "全フレーム共通の画風指定なのだ。")
	rootCmd.PersistentFlags().StringArrayVar(&opts.StyleImagePaths, "style-image", nil, "スタイル参照画像のパス（複数指定可）なのだ。")

	// --- 生成結果の出力設定 ---
	rootCmd.PersistentFlags().StringVarP(&opts.OutputDir, "output-dir", "o", config.DefaultLocalOutputDir, "成果物の保存先ディレクトリ（ローカル or gs://...）なのだ。")

	// --- AIモデル・挙動設定 ---
	rootCmd.PersistentFlags().StringVar(&opts.AIModel, "model", config.DefaultModel, "判定・改訂・台本生成に使う Gemini モデル名なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ImageModel, "image-model", config.DefaultImageModel, "画像生成に使う Gemini モデル名なのだ。")
	rootCmd.PersistentFlags().DurationVar(&opts.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "Webリクエストのタイムアウトなのだ。")

	// --- パイプライン制御 ---
	rootCmd.PersistentFlags().IntVar(&opts.BatchSize, "batch-size", 0, "1バッチあたりのフレーム数（0でデフォルト）なのだ。")
	rootCmd.PersistentFlags().IntVar(&opts.OverlapSize, "overlap", -1, "次バッチへ引き継ぐスタイル文脈の枚数（負でデフォルト）なのだ。")
	rootCmd.PersistentFlags().IntVar(&opts.MaxBatchAttempts, "max-batch-attempts", 0, "バッチ生成・判定サイクルの試行上限（0でデフォルト）なのだ。")
	rootCmd.PersistentFlags().IntVar(&opts.MaxRedoCycles, "max-redo-cycles", 0, "連続性レビューのサイクル上限（0でデフォルト）なのだ。")
}

// preRunAppE は、コマンド実行前に環境変数などの必須チェックを行うのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	// Gemini APIを利用するため、APIキーの存在チェックは欠かせないのだ！
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
	}

	return nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	clibase.Execute(
		"storyboard-go",
		addAppFlags,
		preRunAppE,
		generateCmd,
		scriptCmd,
		renderCmd,
	)
}
