// Package review は、ストーリーボードパイプラインが外部協調者として利用する
// 画像生成・品質判定・2候補比較・プロンプト改訂のインターフェースと、
// その Gemini 実装を提供します。
package review

import (
	"context"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// GenerationRequest は画像生成呼び出しの入力です。
type GenerationRequest struct {
	StyleDescription string
	StyleImages      []domain.Image
	Prompts          []string
	// MaxAttempts はプロンプト1件あたりの内部リトライ上限です。
	MaxAttempts int
}

// FramePayload はグレーディングに渡す (インデックス, プロンプト, 画像) の組です。
type FramePayload struct {
	Index  int
	Prompt string
	Image  domain.Image
}

// GradeRequest はグレーディング呼び出しの入力です。
// Frames は判定対象、ContextFrames は文脈としてのみ提示する承認済みフレームで、
// ContextFrames への指摘は契約違反です。
type GradeRequest struct {
	StyleDescription string
	StyleImages      []domain.Image
	Frames           []FramePayload
	ContextFrames    []FramePayload

	// CheckNewOnly は2バッチ目以降で、新規提出フレームのみを判定対象とする指示です。
	CheckNewOnly bool
}

// AdjudicationRequest は同一フレームの2候補比較の入力です。
// Previous が前回候補（候補1）、Latest が最新候補（候補2）です。
type AdjudicationRequest struct {
	Prompt   string
	Previous domain.Image
	Latest   domain.Image
}

// IndexedPrompt はフレームインデックス付きのプロンプトです。
type IndexedPrompt struct {
	FrameIndex int
	Prompt     string
}

// RevisionRequest はプロンプト改訂呼び出しの入力です。
type RevisionRequest struct {
	Prompts          []IndexedPrompt
	FailureSummaries []string
	Narration        map[int]string
}

// Generator はプロンプト列とスタイル文脈から画像列を生成します。
// 返される画像はプロンプト順に対応しますが、要求数より少ないことがあります
// （多いことはありません）。呼び出し側は必ず枚数を検査してください。
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) ([]domain.Image, error)
}

// Grader はフレーム群に対する構造化判定を返します。
type Grader interface {
	Grade(ctx context.Context, req GradeRequest) (domain.GradeResult, error)
}

// Adjudicator は2候補からの勝者選択を返します。
type Adjudicator interface {
	Adjudicate(ctx context.Context, req AdjudicationRequest) (domain.AdjudicationResult, error)
}

// PromptReviser は失敗フィードバックを踏まえたプロンプトの書き換え案を返します。
type PromptReviser interface {
	Revise(ctx context.Context, req RevisionRequest) (domain.RevisionResult, error)
}
