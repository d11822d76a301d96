package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/runner"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
	"github.com/shouni/go-storyboard-kit/pkg/review"
	"github.com/shouni/go-storyboard-kit/pkg/storyboard"

	"github.com/patrickmn/go-cache"
	imagekit "github.com/shouni/gemini-image-kit/pkg/generator"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	textbuilder "github.com/shouni/go-text-format/pkg/builder"
	"github.com/shouni/go-web-exact/v2/pkg/extract"
	"google.golang.org/genai"
)

const (
	defaultCacheExpiration = 5 * time.Minute
	cacheCleanupInterval   = 15 * time.Minute
	defaultTTL             = 5 * time.Minute
)

// InitializeAIClient は gemini クライアントを初期化します。
func InitializeAIClient(ctx context.Context, apiKey string) (gemini.GenerativeModel, error) {
	const defaultGeminiTemperature = float32(0.2)
	clientConfig := gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(defaultGeminiTemperature),
	}
	aiClient, err := gemini.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}

// BuildScriptRunner はソース文章からの台本生成を担当する Runner を構築します。
func BuildScriptRunner(appCtx *AppContext) *runner.ScriptRunner {
	return runner.NewScriptRunner(
		*appCtx.Config,
		extract.NewExtractor(appCtx.httpClient),
		appCtx.aiClient,
		appCtx.Reader,
	)
}

// BuildStoryboardRunner はバッチ生成と連続性レビューを束ねた Runner を構築します。
func BuildStoryboardRunner(appCtx *AppContext) (*runner.StoryboardRunner, error) {
	opts := pipelineOptions(appCtx.Options)

	generator, grader, adjudicator, reviser, err := buildCollaborators(appCtx)
	if err != nil {
		return nil, err
	}

	pipeline, err := storyboard.NewPipeline(generator, grader, adjudicator, reviser, opts)
	if err != nil {
		return nil, fmt.Errorf("パイプラインの構築に失敗しました: %w", err)
	}
	reviewer, err := storyboard.NewContinuityReviewer(grader, generator, opts)
	if err != nil {
		return nil, fmt.Errorf("連続性レビューアの構築に失敗しました: %w", err)
	}

	return runner.NewStoryboardRunner(pipeline, reviewer, appCtx.Reader, appCtx.Options), nil
}

// BuildPublishRunner はコンテンツ保存と変換を行う Runner を構築します。
func BuildPublishRunner(appCtx *AppContext) (*runner.PublishRunner, error) {
	builderConfig := textbuilder.BuilderConfig{
		EnableHardWraps: true,
		Mode:            "webtoon",
	}
	appBuilder, err := textbuilder.NewBuilder(builderConfig)
	if err != nil {
		return nil, fmt.Errorf("アプリケーションビルダーの初期化に失敗しました: %w", err)
	}

	md2htmlRunner, err := appBuilder.BuildRunner()
	if err != nil {
		return nil, fmt.Errorf("MarkdownToHtmlRunnerの初期化に失敗しました: %w", err)
	}

	pub := publisher.NewStoryboardPublisher(appCtx.Writer, md2htmlRunner)
	return runner.NewPublishRunner(appCtx.Options, pub), nil
}

// buildCollaborators はパイプラインに注入する4つの協調者をまとめて初期化します。
// 画像コアと File API キャッシュは全協調者で共有します。
func buildCollaborators(appCtx *AppContext) (review.Generator, review.Grader, review.Adjudicator, review.PromptReviser, error) {
	imgCache := cache.New(defaultCacheExpiration, cacheCleanupInterval)
	core, err := imagekit.NewGeminiImageCore(
		appCtx.aiClient,
		appCtx.Reader,
		appCtx.httpClient,
		imgCache,
		defaultTTL,
	)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("GeminiImageCore の初期化に失敗しました: %w", err)
	}

	imgGen, err := imagekit.NewGeminiGenerator(appCtx.Config.GeminiImageModel, core)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("画像ジェネレーターの初期化に失敗しました: %w", err)
	}

	assets := review.NewStyleAssetCache(core, appCtx.Writer, config.DefaultUploadWorkDir)

	generator := review.NewGeminiGenerator(imgGen, assets, config.DefaultRateLimit)
	grader := review.NewGeminiGrader(appCtx.aiClient, appCtx.Config.GeminiModel, assets)
	adjudicator := review.NewGeminiAdjudicator(appCtx.aiClient, appCtx.Config.GeminiModel, assets)
	reviser := review.NewGeminiPromptReviser(appCtx.aiClient, appCtx.Config.GeminiModel)

	return generator, grader, adjudicator, reviser, nil
}

// pipelineOptions はデフォルト設定に CLI フラグの上書きを適用します。
func pipelineOptions(opts config.GenerateOptions) storyboard.Options {
	pipelineOpts := storyboard.DefaultOptions()
	if opts.BatchSize > 0 {
		pipelineOpts.BatchSize = opts.BatchSize
	}
	if opts.OverlapSize >= 0 {
		pipelineOpts.OverlapSize = opts.OverlapSize
	}
	if opts.MaxBatchAttempts > 0 {
		pipelineOpts.MaxBatchAttempts = opts.MaxBatchAttempts
	}
	if opts.MaxRedoCycles > 0 {
		pipelineOpts.MaxStoryboardRedoCycles = opts.MaxRedoCycles
	}
	return pipelineOpts
}
