package runner

import (
	"context"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
)

// PublishRunner は pkg/publisher を利用した保存処理の実行単位です。
type PublishRunner struct {
	options   config.GenerateOptions
	publisher *publisher.StoryboardPublisher
}

func NewPublishRunner(options config.GenerateOptions, pub *publisher.StoryboardPublisher) *PublishRunner {
	return &PublishRunner{
		options:   options,
		publisher: pub,
	}
}

func (pr *PublishRunner) Run(ctx context.Context, script domain.StoryboardScript, frames domain.Frames) (publisher.PublishResult, error) {
	// internal/config の値を pkg/publisher 用の構造体に詰め替えます。
	opts := publisher.Options{
		OutputDir: pr.options.OutputDir,
	}
	return pr.publisher.Publish(ctx, script, frames, opts)
}
