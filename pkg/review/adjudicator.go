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

// GeminiAdjudicator は Gemini のテキストモデルを使った Adjudicator 実装です。
type GeminiAdjudicator struct {
	aiClient gemini.GenerativeModel
	model    string
	assets   *StyleAssetCache
}

// NewGeminiAdjudicator は新しい GeminiAdjudicator を生成します。
func NewGeminiAdjudicator(aiClient gemini.GenerativeModel, model string, assets *StyleAssetCache) *GeminiAdjudicator {
	return &GeminiAdjudicator{
		aiClient: aiClient,
		model:    model,
		assets:   assets,
	}
}

// Adjudicate は2候補の勝敗判定を返します。候補は必ず2つで、
// 候補1が前回の画像、候補2が最新の再生成結果です。
func (a *GeminiAdjudicator) Adjudicate(ctx context.Context, req AdjudicationRequest) (domain.AdjudicationResult, error) {
	if req.Previous.IsEmpty() || req.Latest.IsEmpty() {
		return domain.AdjudicationResult{}, fmt.Errorf("2候補比較には両方の候補画像が必要です")
	}

	previousURI, err := a.assets.Prepare(ctx, req.Previous)
	if err != nil {
		return domain.AdjudicationResult{}, fmt.Errorf("前回候補のアップロードに失敗しました: %w", err)
	}
	latestURI, err := a.assets.Prepare(ctx, req.Latest)
	if err != nil {
		return domain.AdjudicationResult{}, fmt.Errorf("最新候補のアップロードに失敗しました: %w", err)
	}

	promptText := prompts.BuildAdjudicationPrompt(req.Prompt, previousURI, latestURI)

	slog.Info("Calling adjudicator", "model", a.model)
	resp, err := a.aiClient.GenerateContent(ctx, promptText, a.model)
	if err != nil {
		return domain.AdjudicationResult{}, fmt.Errorf("2候補比較の呼び出しに失敗しました: %w", err)
	}

	return parseAdjudicationResult(resp.Text)
}

// parseAdjudicationResult は AI 応答を AdjudicationResult へ変換します。
func parseAdjudicationResult(raw string) (domain.AdjudicationResult, error) {
	rawJSON := ExtractJSON(raw)

	var result domain.AdjudicationResult
	if err := json.Unmarshal([]byte(rawJSON), &result); err != nil {
		return domain.AdjudicationResult{}, fmt.Errorf("2候補比較応答のJSON解析に失敗しました (応答抜粋: %q): %w", truncateString(raw, 200), err)
	}
	if result.WinnerIndex != 1 && result.WinnerIndex != 2 {
		return domain.AdjudicationResult{}, fmt.Errorf("2候補比較応答の winner_index が不正です: %d", result.WinnerIndex)
	}
	return result, nil
}
