package config

import (
	"time"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultModel          = "gemini-3-flash-preview"
	DefaultImageModel     = "gemini-3-pro-image-preview"
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultSceneCount     = 8
	DefaultRateLimit      = 30 * time.Second
	DefaultLocalOutputDir = "output"             // パブリッシャーで使用するデフォルト保存先なのだ
	DefaultUploadWorkDir  = "output/.upload"     // File API へ渡す前の一時ステージング先なのだ
	DefaultNegativeSuffix = "text, watermark, signature, logo, extra fingers, deformed hands, blurry, low quality"
)

// Config はアプリケーション全体の環境設定（APIキーやクラウド設定）を保持する構造体なのだ。
type Config struct {
	ProjectID        string
	LocationID       string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string
	NegativePrompt   string

	Options GenerateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	cfg := &Config{
		ProjectID:        envutil.GetEnv("PROJECT_ID", ""),
		LocationID:       envutil.GetEnv("REGION", ""),
		GeminiAPIKey:     envutil.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:      envutil.GetEnv("GEMINI_MODEL", DefaultModel),
		GeminiImageModel: envutil.GetEnv("IMAGE_GEMINI_MODEL", DefaultImageModel),
		NegativePrompt:   envutil.GetEnv("NEGATIVE_PROMPT", DefaultNegativeSuffix),
	}
	return cfg
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// ソース入力関連
	SourceURL  string // --source-url
	SourceFile string // --source-file
	SceneCount int    // --scenes

	// スタイル指定関連
	StyleDescription string   // --style
	StyleImagePaths  []string // --style-image（複数指定可）

	// 出力関連
	OutputDir string // --output-dir

	// AI挙動設定
	AIModel    string // --model: 判定・改訂・台本生成用のGeminiモデル
	ImageModel string // --image-model: 画像生成用のGeminiモデル

	// パイプライン制御
	BatchSize        int // --batch-size
	OverlapSize      int // --overlap
	MaxBatchAttempts int // --max-batch-attempts
	MaxRedoCycles    int // --max-redo-cycles

	// 実行制御
	HTTPTimeout time.Duration // --http-timeout
}
