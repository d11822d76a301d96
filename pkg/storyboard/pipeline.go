package storyboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/review"
)

// Pipeline は、プロンプト列をバッチ単位で生成・判定し、
// やり直し・2候補比較・プロンプト改訂を有限回の試行の中で駆動する司令塔です。
// バッチは厳密に順番に処理され、協調者の呼び出しは直列です。
type Pipeline struct {
	generator   review.Generator
	grader      review.Grader
	adjudicator review.Adjudicator
	reviser     review.PromptReviser // nil の場合は改訂工程をスキップ
	opts        Options
}

// NewPipeline は各協調者を注入して Pipeline を生成します。reviser は nil を許容します。
func NewPipeline(generator review.Generator, grader review.Grader, adjudicator review.Adjudicator, reviser review.PromptReviser, opts Options) (*Pipeline, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator は必須です")
	}
	if grader == nil {
		return nil, fmt.Errorf("grader は必須です")
	}
	if adjudicator == nil {
		return nil, fmt.Errorf("adjudicator は必須です")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("パイプライン設定が不正です: %w", err)
	}
	return &Pipeline{
		generator:   generator,
		grader:      grader,
		adjudicator: adjudicator,
		reviser:     reviser,
		opts:        opts,
	}, nil
}

// RunInput は1回のストーリーボード生成の入力です。
type RunInput struct {
	StyleDescription string
	// StyleImages はすべてのバッチに共通で渡す基本スタイル参照です。
	StyleImages []domain.Image
	Prompts     []string
	// Narration はプロンプト改訂に文脈として渡す、フレームインデックスごとのナレーションです。
	Narration map[int]string
}

// runState はパイプライン実行中の共有状態です。
// バッチ・フレーム・ストーリーボードの各配列はパイプラインが排他的に所有し、
// 協調者呼び出しの合間にのみ書き換えます。
type runState struct {
	frames     domain.Frames
	store      *domain.PromptStore
	candidates *domain.CandidateLog
	narration  map[int]string

	styleDescription string
	baseStyle        []domain.Image
}

// Run はプロンプト列から、バッチ承認まで完了したフレーム列を返します。
// 成功時は必ずプロンプト数と同数・同順のフレームを返します。部分的な成功はありません。
// 連続性レビューは ContinuityReviewer が担います。
func (p *Pipeline) Run(ctx context.Context, in RunInput) (domain.Frames, error) {
	if len(in.Prompts) == 0 {
		return nil, fmt.Errorf("プロンプトが1件もありません")
	}

	st := &runState{
		frames:           make(domain.Frames, len(in.Prompts)),
		store:            domain.NewPromptStore(in.Prompts),
		candidates:       domain.NewCandidateLog(),
		narration:        in.Narration,
		styleDescription: in.StyleDescription,
		baseStyle:        in.StyleImages,
	}
	for i, prompt := range in.Prompts {
		st.frames[i] = domain.Frame{Index: i + 1, Prompt: prompt}
	}

	batchCount := (len(in.Prompts) + p.opts.BatchSize - 1) / p.opts.BatchSize
	slog.Info("Starting storyboard pipeline",
		"frames", len(in.Prompts),
		"batches", batchCount,
		"batch_size", p.opts.BatchSize,
		"overlap", p.opts.OverlapSize)

	for batchIndex := 0; batchIndex < batchCount; batchIndex++ {
		first := batchIndex*p.opts.BatchSize + 1
		last := first + p.opts.BatchSize - 1
		if last > len(in.Prompts) {
			last = len(in.Prompts)
		}
		if err := p.runBatch(ctx, st, batchIndex, first, last); err != nil {
			return nil, err
		}
	}

	return st.frames, nil
}

// batchContext は処理中バッチの作業領域です。working の画像は承認まで frames へ書き戻しません。
type batchContext struct {
	batchIndex  int
	first, last int // 1始まり・両端含む
	styleImages []domain.Image
	prompts     []string
	working     map[int]domain.Image
}

// payloads は判定対象の (インデックス, プロンプト, 画像) の組を返します。
func (bc *batchContext) payloads(indices []int) []review.FramePayload {
	payloads := make([]review.FramePayload, 0, len(indices))
	for _, idx := range indices {
		payloads = append(payloads, review.FramePayload{
			Index:  idx,
			Prompt: bc.prompts[idx-bc.first],
			Image:  bc.working[idx],
		})
	}
	return payloads
}

// indices はこのバッチが担当する全フレームインデックスを返します。
func (bc *batchContext) indices() []int {
	indices := make([]int, 0, bc.last-bc.first+1)
	for idx := bc.first; idx <= bc.last; idx++ {
		indices = append(indices, idx)
	}
	return indices
}

// runBatch は1バッチ分の生成・判定・やり直しサイクルを、試行上限まで駆動します。
func (p *Pipeline) runBatch(ctx context.Context, st *runState, batchIndex, first, last int) error {
	var failureSummaries []string
	redoBatchCount := 0
	revisionApplied := false

	for attempt := 1; attempt <= p.opts.MaxBatchAttempts; attempt++ {
		prompts, err := st.store.Slice(first, last)
		if err != nil {
			return err
		}

		bc := &batchContext{
			batchIndex:  batchIndex,
			first:       first,
			last:        last,
			styleImages: p.batchStyleImages(st, first),
			prompts:     prompts,
			working:     make(map[int]domain.Image, last-first+1),
		}

		logger := slog.With("batch", batchIndex, "attempt", attempt, "frames", last-first+1)
		logger.Info("Generating batch")

		// 候補履歴はバッチ試行ごとに仕切り直す
		for idx := first; idx <= last; idx++ {
			st.candidates.Reset(idx)
		}

		images, err := p.generator.Generate(ctx, review.GenerationRequest{
			StyleDescription: st.styleDescription,
			StyleImages:      bc.styleImages,
			Prompts:          prompts,
			MaxAttempts:      p.opts.GenerationAttempts,
		})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			failureSummaries = append(failureSummaries, fmt.Sprintf("生成呼び出しが失敗しました: %v", err))
			logger.Warn("Generator call failed", "error", err)
			continue
		}
		if len(images) < len(prompts) {
			failureSummaries = append(failureSummaries, fmt.Sprintf("生成枚数が不足しました (%d/%d)", len(images), len(prompts)))
			logger.Warn("Generator returned short batch", "generated", len(images), "requested", len(prompts))
			continue
		}

		for i, idx := 0, first; idx <= last; i, idx = i+1, idx+1 {
			bc.working[idx] = images[i]
			st.candidates.Append(idx, images[i])
		}

		// バッチ0は全数判定、以降のバッチは新規提出分のみ判定させる
		grade, err := p.grader.Grade(ctx, review.GradeRequest{
			StyleDescription: st.styleDescription,
			StyleImages:      bc.styleImages,
			Frames:           bc.payloads(bc.indices()),
			CheckNewOnly:     batchIndex > 0,
		})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			failureSummaries = append(failureSummaries, fmt.Sprintf("判定呼び出しが失敗しました: %v", err))
			logger.Warn("Grader call failed", "error", err)
			continue
		}
		if err := validateFindings("batch_grade", grade.Findings, bc.indices()); err != nil {
			return err
		}

		switch grade.Outcome {
		case domain.OutcomeAccept:
			p.commitBatch(st, bc)
			logger.Info("Batch accepted", "summary", grade.Summary)
			return nil

		case domain.OutcomeRedoFrames:
			converged, reason, err := p.redoFrames(ctx, st, bc, grade.Findings)
			if err != nil {
				return err
			}
			if converged {
				p.commitBatch(st, bc)
				logger.Info("Batch accepted after frame redo")
				return nil
			}
			redoBatchCount++
			failureSummaries = append(failureSummaries, reason)
			logger.Warn("Frame redo escalated to batch rejection", "reason", reason)

		case domain.OutcomeRedoBatch:
			redoBatchCount++
			reason := grade.BatchReason
			if reason == "" {
				reason = grade.Summary
			}
			failureSummaries = append(failureSummaries, reason)
			logger.Warn("Batch rejected wholesale", "reason", reason)
		}

		if redoBatchCount >= p.opts.RevisionThreshold && !revisionApplied && p.reviser != nil {
			p.applyPromptRevision(ctx, st, first, last, failureSummaries)
			revisionApplied = true
		}
	}

	return &ExhaustionError{
		Stage:      "batch",
		BatchIndex: batchIndex,
		Attempts:   p.opts.MaxBatchAttempts,
		Reasons:    failureSummaries,
	}
}

// batchStyleImages は、基本スタイル参照に直前までの承認済みフレームの
// 末尾 O 枚を連結した、このバッチ用のスタイル文脈を返します。
// このオーバーラップウィンドウが、履歴全体を送り直さずにバッチ間の画風と
// 登場物の連続性を保つ仕組みです。
func (p *Pipeline) batchStyleImages(st *runState, first int) []domain.Image {
	styleImages := make([]domain.Image, 0, len(st.baseStyle)+p.opts.OverlapSize)
	styleImages = append(styleImages, st.baseStyle...)
	styleImages = append(styleImages, st.frames[:first-1].TrailingImages(p.opts.OverlapSize)...)
	return styleImages
}

// commitBatch は作業領域の画像を出力配列へ確定します。
// 確定したフレームの承認ビットは必ず倒し、候補履歴は破棄します。
func (p *Pipeline) commitBatch(st *runState, bc *batchContext) {
	for idx := bc.first; idx <= bc.last; idx++ {
		frame := st.frames.At(idx)
		frame.Image = bc.working[idx]
		frame.Prompt = bc.prompts[idx-bc.first]
		frame.Accepted = false
		st.candidates.Reset(idx)
	}
}

// applyPromptRevision はプロンプト改訂をベストエフォートで適用します。
// 改訂の失敗は致命ではないため、エラーはログに残して続行します。
func (p *Pipeline) applyPromptRevision(ctx context.Context, st *runState, first, last int, failureSummaries []string) {
	prompts, err := st.store.Slice(first, last)
	if err != nil {
		slog.Warn("Prompt revision skipped", "error", err)
		return
	}

	indexed := make([]review.IndexedPrompt, 0, len(prompts))
	for i, prompt := range prompts {
		indexed = append(indexed, review.IndexedPrompt{FrameIndex: first + i, Prompt: prompt})
	}

	result, err := p.reviser.Revise(ctx, review.RevisionRequest{
		Prompts:          indexed,
		FailureSummaries: failureSummaries,
		Narration:        st.narration,
	})
	if err != nil {
		slog.Warn("Prompt revision failed, retrying with original prompts", "error", err)
		return
	}

	applied := 0
	for _, rep := range result.Replacements {
		if rep.FrameIndex < first || rep.FrameIndex > last {
			// 改訂者は信用できない外部出力なので、バッチ外への置換は無視する
			slog.Warn("Ignoring revision for frame outside current batch",
				"frame", rep.FrameIndex, "batch_first", first, "batch_last", last)
			continue
		}
		if rep.UpdatedPrompt == "" {
			slog.Warn("Ignoring empty revision", "frame", rep.FrameIndex)
			continue
		}
		if err := st.store.Apply(rep.FrameIndex, rep.UpdatedPrompt); err != nil {
			slog.Warn("Failed to apply revision", "frame", rep.FrameIndex, "error", err)
			continue
		}
		st.frames.At(rep.FrameIndex).Prompt = rep.UpdatedPrompt
		applied++
		slog.Info("Prompt revised", "frame", rep.FrameIndex, "rationale", rep.Rationale)
	}
	slog.Info("Prompt revision applied", "replacements", applied, "summary", result.Summary)
}

// validateFindings は、指摘が判定対象のインデックス集合に収まっているかを検査します。
// 逸脱は協調者のインデックス混乱を意味し、リトライ可能な失敗ではなく契約違反として扱います。
func validateFindings(stage string, findings []domain.Finding, allowed []int) error {
	allowedSet := make(map[int]struct{}, len(allowed))
	for _, idx := range allowed {
		allowedSet[idx] = struct{}{}
	}
	for _, f := range findings {
		if _, ok := allowedSet[f.FrameIndex]; !ok {
			return &ProtocolViolationError{
				Stage:   stage,
				Detail:  fmt.Sprintf("判定対象外のフレーム %d への指摘 (%s)", f.FrameIndex, f.Reason),
				Allowed: allowed,
			}
		}
	}
	return nil
}
