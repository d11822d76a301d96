package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/asset"
	"github.com/shouni/go-storyboard-kit/pkg/domain"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/gcsfactory"
)

// Execute は、台本生成から画像生成・連続性レビュー・公開までの全工程を実行するのだ。
func Execute(ctx context.Context, cfg *config.Config) error {
	appCtx, err := setupAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	// --- Phase 1: Script Phase (台本作成) ---
	script, err := runScriptStep(ctx, appCtx)
	if err != nil {
		return err
	}

	// --- Phase 2: Storyboard Phase (バッチ生成と連続性レビュー) ---
	frames, err := runStoryboardStep(ctx, appCtx, script)
	if err != nil {
		return err
	}

	// --- Phase 3: Publish Phase (公開/保存) ---
	if err := runPublishStep(ctx, appCtx, script, frames); err != nil {
		return err
	}

	slog.Info("ストーリーボードの生成と公開処理が完了したのだ！")
	return nil
}

// ExecuteScriptOnly は、台本（JSON）の生成と保存のみを実行するのだ。
func ExecuteScriptOnly(ctx context.Context, cfg *config.Config) error {
	appCtx, err := setupAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	script, err := runScriptStep(ctx, appCtx)
	if err != nil {
		return err
	}

	jsonPath, err := asset.ResolveOutputPath(cfg.Options.OutputDir, asset.DefaultStoryboardJson)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return fmt.Errorf("台本のJSON変換に失敗したのだ: %w", err)
	}
	if err := appCtx.Writer.Write(ctx, jsonPath, bytes.NewReader(data), "application/json; charset=utf-8"); err != nil {
		return fmt.Errorf("台本ファイルの保存に失敗したのだ: %w", err)
	}

	slog.Info("台本を保存したのだ", "path", jsonPath, "scenes", len(script.Scenes))
	return nil
}

// ExecuteRenderOnly は、保存済みの台本（storyboard.json）を読み込み、
// 画像生成と公開処理（Phase 2 & 3）だけを実行するのだ。
func ExecuteRenderOnly(ctx context.Context, cfg *config.Config) error {
	appCtx, err := setupAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	rc, err := appCtx.Reader.Open(ctx, cfg.Options.SourceFile)
	if err != nil {
		return fmt.Errorf("台本ファイル '%s' の読み込みに失敗したのだ: %w", cfg.Options.SourceFile, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	script, err := domain.GetScript(data)
	if err != nil {
		return fmt.Errorf("台本ファイル '%s' のデコードに失敗したのだ: %w", cfg.Options.SourceFile, err)
	}

	frames, err := runStoryboardStep(ctx, appCtx, script)
	if err != nil {
		return err
	}
	if err := runPublishStep(ctx, appCtx, script, frames); err != nil {
		return err
	}

	slog.Info("画像生成と公開処理が完了したのだ！")
	return nil
}

// setupAppContext は、提供された設定と共有コンポーネントを使用して、アプリケーションコンテキストを初期化して返すのだ。
func setupAppContext(ctx context.Context, cfg *config.Config) (*builder.AppContext, error) {
	httpClient := httpkit.New(config.DefaultHTTPTimeout)
	aiClient, err := builder.InitializeAIClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai client: %w", err)
	}

	gcsFactory, err := gcsfactory.NewGCSClientFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client factory: %w", err)
	}

	reader, err := gcsFactory.NewInputReader()
	if err != nil {
		return nil, err
	}
	writer, err := gcsFactory.NewOutputWriter()
	if err != nil {
		return nil, err
	}

	appCtx := builder.NewAppContext(cfg, httpClient, aiClient, reader, writer)
	return &appCtx, nil
}

// runScriptStep は ScriptRunner を使ってソース文章から台本を生成するのだ
func runScriptStep(ctx context.Context, appCtx *builder.AppContext) (domain.StoryboardScript, error) {
	slog.Info("Phase 1: 台本生成を開始するのだ...")
	scriptRunner := builder.BuildScriptRunner(appCtx)

	script, err := scriptRunner.Run(ctx)
	if err != nil {
		return domain.StoryboardScript{}, fmt.Errorf("台本生成に失敗したのだ: %w", err)
	}
	slog.Info("台本が完成したのだ", "title", script.Title, "scenes", len(script.Scenes))
	return script, nil
}

// runStoryboardStep は StoryboardRunner を使って全フレームを生成・審査するのだ
func runStoryboardStep(ctx context.Context, appCtx *builder.AppContext, script domain.StoryboardScript) (domain.Frames, error) {
	slog.Info("Phase 2: ストーリーボード生成を開始するのだ...", "scenes", len(script.Scenes))
	storyboardRunner, err := builder.BuildStoryboardRunner(appCtx)
	if err != nil {
		return nil, fmt.Errorf("StoryboardRunnerの構築に失敗したのだ: %w", err)
	}

	frames, err := storyboardRunner.Run(ctx, script)
	if err != nil {
		return nil, err
	}
	return frames, nil
}

// runPublishStep は PublishRunner を使って最終成果物を保存するのだ
func runPublishStep(ctx context.Context, appCtx *builder.AppContext, script domain.StoryboardScript, frames domain.Frames) error {
	slog.Info("Phase 3: 公開処理を開始するのだ...")
	publishRunner, err := builder.BuildPublishRunner(appCtx)
	if err != nil {
		return fmt.Errorf("PublishRunnerの構築に失敗したのだ: %w", err)
	}

	result, err := publishRunner.Run(ctx, script, frames)
	if err != nil {
		return fmt.Errorf("公開処理に失敗したのだ: %w", err)
	}
	slog.Info("成果物を保存したのだ", "markdown", result.MarkdownPath, "html", result.HTMLPath, "images", len(result.ImagePaths))
	return nil
}
