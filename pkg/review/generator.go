package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"

	imagedom "github.com/shouni/gemini-image-kit/pkg/domain"
	imagekit "github.com/shouni/gemini-image-kit/pkg/generator"
	"golang.org/x/time/rate"
)

const (
	// DefaultFrameAspectRatio はストーリーボードフレームの推奨アスペクト比です。
	DefaultFrameAspectRatio = "16:9"

	// DefaultNegativePrompt は不自然な描画を防ぐための標準ネガティブプロンプトです。
	DefaultNegativePrompt = "deformed faces, mismatched eyes, low-quality faces, blurry facial features, extra limbs, distorted anatomy, text, watermark, signatures"
)

// GeminiGenerator は Gemini Image Kit を使った Generator 実装です。
// プロンプトは1件ずつ順番に生成し、スタイル参照画像を ReferenceURLs として毎回添付します。
type GeminiGenerator struct {
	imgGen      imagekit.ImageGenerator
	assets      *StyleAssetCache
	limiter     *rate.Limiter
	aspectRatio string
}

// NewGeminiGenerator は新しい GeminiGenerator を生成します。
// interval が 0 以下の場合はレート制限を行いません。
func NewGeminiGenerator(imgGen imagekit.ImageGenerator, assets *StyleAssetCache, interval time.Duration) *GeminiGenerator {
	var limiter *rate.Limiter
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &GeminiGenerator{
		imgGen:      imgGen,
		assets:      assets,
		limiter:     limiter,
		aspectRatio: DefaultFrameAspectRatio,
	}
}

// Generate はプロンプト列から画像列を生成します。
// あるプロンプトが内部リトライを使い切った場合、そこまでの成功分だけを返します
// （契約上、要求数より少ない応答は許されており、呼び出し側が枚数を検査します）。
func (g *GeminiGenerator) Generate(ctx context.Context, req GenerationRequest) ([]domain.Image, error) {
	refURIs, err := g.assets.PrepareAll(ctx, req.StyleImages)
	if err != nil {
		return nil, fmt.Errorf("スタイル参照画像の準備に失敗しました: %w", err)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	images := make([]domain.Image, 0, len(req.Prompts))
	for i, prompt := range req.Prompts {
		img, err := g.generateOne(ctx, prompt, req.StyleDescription, refURIs, maxAttempts)
		if err != nil {
			if ctx.Err() != nil {
				return images, ctx.Err()
			}
			slog.Warn("Frame generation gave up, returning short batch",
				"prompt_index", i+1,
				"generated", len(images),
				"requested", len(req.Prompts),
				"error", err)
			return images, nil
		}
		images = append(images, img)
	}
	return images, nil
}

// generateOne は1プロンプト分を、内部リトライ付きで生成します。
func (g *GeminiGenerator) generateOne(ctx context.Context, prompt, styleDescription string, refURIs []string, maxAttempts int) (domain.Image, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return domain.Image{}, err
			}
		}

		startTime := time.Now()
		resp, err := g.imgGen.GenerateMangaPage(ctx, imagedom.ImagePageRequest{
			Prompt:         prompt,
			SystemPrompt:   buildGenerationSystemPrompt(styleDescription),
			NegativePrompt: DefaultNegativePrompt,
			AspectRatio:    g.aspectRatio,
			ReferenceURLs:  refURIs,
		})
		if err != nil {
			lastErr = err
			slog.Warn("Image generation attempt failed",
				"attempt", attempt, "max_attempts", maxAttempts, "error", err)
			continue
		}
		if resp == nil || len(resp.Data) == 0 {
			lastErr = fmt.Errorf("画像生成応答が空でした")
			continue
		}

		slog.Debug("Frame generation completed",
			"duration", time.Since(startTime).Round(time.Millisecond),
			"reference_count", len(refURIs))
		return domain.Image{Data: resp.Data, MimeType: resp.MimeType}, nil
	}
	return domain.Image{}, fmt.Errorf("画像生成が %d 回の試行で成功しませんでした: %w", maxAttempts, lastErr)
}

// buildGenerationSystemPrompt は、全フレーム共通の画風指示を構築します。
func buildGenerationSystemPrompt(styleDescription string) string {
	var sb strings.Builder
	sb.WriteString("You are a professional storyboard illustrator. Create a single high-quality cinematic scene.\n\n")
	sb.WriteString("### GLOBAL VISUAL STYLE ###\n")
	if styleDescription != "" {
		sb.WriteString(fmt.Sprintf("- STYLE: %s\n", styleDescription))
	}
	sb.WriteString("- RENDERING: Sharp clean lineart, vibrant colors, no blurring, high contrast, cinematic lighting.\n")
	sb.WriteString("- CONSISTENCY: The attached reference images define the style and recurring subjects. Match them.")
	return sb.String()
}
