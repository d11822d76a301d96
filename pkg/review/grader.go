package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"

	"github.com/shouni/go-gemini-client/pkg/gemini"
)

// GeminiGrader は Gemini のテキストモデルを使った Grader 実装です。
// フレーム画像とスタイル参照を File API へアップロードし、URI 参照付きの指示文で判定させます。
type GeminiGrader struct {
	aiClient gemini.GenerativeModel
	model    string
	assets   *StyleAssetCache
}

// NewGeminiGrader は新しい GeminiGrader を生成します。
func NewGeminiGrader(aiClient gemini.GenerativeModel, model string, assets *StyleAssetCache) *GeminiGrader {
	return &GeminiGrader{
		aiClient: aiClient,
		model:    model,
		assets:   assets,
	}
}

// Grade はフレーム群の構造化判定を返します。
// 応答のスキーマ不一致はエラーとして返し、呼び出し側の試行予算で扱われます。
func (g *GeminiGrader) Grade(ctx context.Context, req GradeRequest) (domain.GradeResult, error) {
	styleURIs, err := g.assets.PrepareAll(ctx, req.StyleImages)
	if err != nil {
		return domain.GradeResult{}, fmt.Errorf("スタイル参照画像の準備に失敗しました: %w", err)
	}

	frameRefs, err := g.prepareFrameRefs(ctx, req.Frames)
	if err != nil {
		return domain.GradeResult{}, err
	}
	contextRefs, err := g.prepareFrameRefs(ctx, req.ContextFrames)
	if err != nil {
		return domain.GradeResult{}, err
	}

	promptText := prompts.BuildGradePrompt(req.StyleDescription, styleURIs, frameRefs, contextRefs, req.CheckNewOnly)

	slog.Info("Calling grader", "model", g.model, "frames", len(req.Frames), "context_frames", len(req.ContextFrames))
	resp, err := g.aiClient.GenerateContent(ctx, promptText, g.model)
	if err != nil {
		return domain.GradeResult{}, fmt.Errorf("グレーダー呼び出しに失敗しました: %w", err)
	}

	return parseGradeResult(resp.Text)
}

// prepareFrameRefs はフレーム画像をアップロードし、指示文用の参照に変換します。
func (g *GeminiGrader) prepareFrameRefs(ctx context.Context, frames []FramePayload) ([]prompts.FrameRef, error) {
	refs := make([]prompts.FrameRef, 0, len(frames))
	for _, f := range frames {
		uri, err := g.assets.Prepare(ctx, f.Image)
		if err != nil {
			return nil, fmt.Errorf("フレーム %d の画像アップロードに失敗しました: %w", f.Index, err)
		}
		refs = append(refs, prompts.FrameRef{Index: f.Index, Prompt: f.Prompt, FileURI: uri})
	}
	return refs, nil
}

// parseGradeResult は AI 応答を GradeResult へ変換します。
func parseGradeResult(raw string) (domain.GradeResult, error) {
	rawJSON := ExtractJSON(raw)

	var result domain.GradeResult
	if err := json.Unmarshal([]byte(rawJSON), &result); err != nil {
		return domain.GradeResult{}, fmt.Errorf("グレーダー応答のJSON解析に失敗しました (応答抜粋: %q): %w", truncateString(raw, 200), err)
	}
	if !result.Outcome.Valid() {
		return domain.GradeResult{}, fmt.Errorf("グレーダー応答の outcome が不正です: %q", result.Outcome)
	}
	return result, nil
}
