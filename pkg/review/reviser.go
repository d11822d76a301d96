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

// GeminiPromptReviser は Gemini のテキストモデルを使った PromptReviser 実装です。
type GeminiPromptReviser struct {
	aiClient gemini.GenerativeModel
	model    string
}

// NewGeminiPromptReviser は新しい GeminiPromptReviser を生成します。
func NewGeminiPromptReviser(aiClient gemini.GenerativeModel, model string) *GeminiPromptReviser {
	return &GeminiPromptReviser{
		aiClient: aiClient,
		model:    model,
	}
}

// Revise はバッチのプロンプト書き換え案を返します。
// この工程はベストエフォートであり、失敗の扱い（ログして続行）は呼び出し側が決めます。
func (r *GeminiPromptReviser) Revise(ctx context.Context, req RevisionRequest) (domain.RevisionResult, error) {
	targets := make([]prompts.RevisionTarget, 0, len(req.Prompts))
	for _, p := range req.Prompts {
		targets = append(targets, prompts.RevisionTarget{
			FrameIndex: p.FrameIndex,
			Prompt:     p.Prompt,
			Narration:  req.Narration[p.FrameIndex],
		})
	}

	promptText := prompts.BuildRevisionPrompt(targets, req.FailureSummaries)

	slog.Info("Calling prompt reviser", "model", r.model, "prompts", len(targets), "failures", len(req.FailureSummaries))
	resp, err := r.aiClient.GenerateContent(ctx, promptText, r.model)
	if err != nil {
		return domain.RevisionResult{}, fmt.Errorf("プロンプト改訂の呼び出しに失敗しました: %w", err)
	}

	return parseRevisionResult(resp.Text)
}

// parseRevisionResult は AI 応答を RevisionResult へ変換します。
func parseRevisionResult(raw string) (domain.RevisionResult, error) {
	rawJSON := ExtractJSON(raw)

	var result domain.RevisionResult
	if err := json.Unmarshal([]byte(rawJSON), &result); err != nil {
		return domain.RevisionResult{}, fmt.Errorf("プロンプト改訂応答のJSON解析に失敗しました (応答抜粋: %q): %w", truncateString(raw, 200), err)
	}
	return result, nil
}
