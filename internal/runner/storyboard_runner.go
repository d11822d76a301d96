package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/storyboard"

	"github.com/shouni/go-remote-io/pkg/remoteio"
)

// StoryboardRunner は、台本からのバッチ生成と最終的な連続性レビューを
// ひとつの実行単位として束ねるのだ。
type StoryboardRunner struct {
	pipeline *storyboard.Pipeline
	reviewer *storyboard.ContinuityReviewer
	reader   remoteio.InputReader
	options  config.GenerateOptions
}

// NewStoryboardRunner は StoryboardRunner の新しいインスタンスを返すのだ。
func NewStoryboardRunner(
	pipeline *storyboard.Pipeline,
	reviewer *storyboard.ContinuityReviewer,
	reader remoteio.InputReader,
	options config.GenerateOptions,
) *StoryboardRunner {
	return &StoryboardRunner{
		pipeline: pipeline,
		reviewer: reviewer,
		reader:   reader,
		options:  options,
	}
}

// Run は台本を入力に、全フレームが承認されたストーリーボードを返すのだ。
func (sr *StoryboardRunner) Run(ctx context.Context, script domain.StoryboardScript) (domain.Frames, error) {
	styleImages, err := sr.loadStyleImages(ctx)
	if err != nil {
		return nil, err
	}

	styleDescription := sr.options.StyleDescription
	if styleDescription == "" {
		styleDescription = script.StyleDescription
	}

	frames, err := sr.pipeline.Run(ctx, storyboard.RunInput{
		StyleDescription: styleDescription,
		StyleImages:      styleImages,
		Prompts:          script.Prompts(),
		Narration:        script.NarrationByIndex(),
	})
	if err != nil {
		return nil, fmt.Errorf("ストーリーボード生成に失敗したのだ: %w", err)
	}

	slog.Info("全バッチの生成が完了、連続性レビューへ進むのだ", "frames", len(frames))

	frames, err = sr.reviewer.Review(ctx, styleDescription, styleImages, frames)
	if err != nil {
		return frames, fmt.Errorf("連続性レビューに失敗したのだ: %w", err)
	}

	return frames, nil
}

// loadStyleImages は --style-image で指定されたパス群を読み込むのだ。
// 指定がなければスタイル参照なしで生成する。
func (sr *StoryboardRunner) loadStyleImages(ctx context.Context) ([]domain.Image, error) {
	if len(sr.options.StyleImagePaths) == 0 {
		return nil, nil
	}

	images := make([]domain.Image, 0, len(sr.options.StyleImagePaths))
	for _, path := range sr.options.StyleImagePaths {
		img, err := sr.loadOne(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("スタイル参照画像 '%s' の読み込みに失敗したのだ: %w", path, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func (sr *StoryboardRunner) loadOne(ctx context.Context, path string) (domain.Image, error) {
	rc, err := sr.reader.Open(ctx, path)
	if err != nil {
		return domain.Image{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.Image{}, err
	}
	return domain.Image{Data: data, MimeType: "image/png"}, nil
}
