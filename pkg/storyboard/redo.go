package storyboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/review"
)

// redoFrames は redo_frames 判定を受けたバッチを、指摘されたフレームだけの
// 再生成と再判定で収束させようとします。反復回数が AdjudicationThreshold に
// 達した時点で、再生成の無限往復を断ち切るために直近2候補の比較採決へ
// 切り替えます。
//
// 戻り値の converged が true のとき bc.working は承認可能な状態です。
// false のときはバッチ全体のやり直しへ格上げし、reason にその理由を返します。
// err は契約違反とコンテキスト打ち切りにのみ使います。
func (p *Pipeline) redoFrames(ctx context.Context, st *runState, bc *batchContext, findings []domain.Finding) (converged bool, reason string, err error) {
	if len(findings) == 0 {
		return false, "", &ProtocolViolationError{
			Stage:   "batch_grade",
			Detail:  "redo_frames 判定なのに指摘が空です",
			Allowed: bc.indices(),
		}
	}

	for iteration := 1; iteration <= p.opts.MaxFrameRedoIterations; iteration++ {
		flagged := flaggedIndices(findings)
		logger := slog.With("batch", bc.batchIndex, "redo_iteration", iteration, "flagged", flagged)

		if iteration >= p.opts.AdjudicationThreshold {
			logger.Info("Falling back to candidate adjudication")
			return p.adjudicateFlagged(ctx, st, bc, findings)
		}

		logger.Info("Regenerating flagged frames")

		prompts := make([]string, 0, len(flagged))
		for _, idx := range flagged {
			prompts = append(prompts, bc.prompts[idx-bc.first])
		}

		// 指摘されなかった同バッチの画像もスタイル文脈へ加え、
		// 再生成分だけが画風から浮かないようにする
		styleImages := bc.styleImages
		for idx := bc.first; idx <= bc.last; idx++ {
			if !containsIndex(flagged, idx) {
				styleImages = append(styleImages, bc.working[idx])
			}
		}

		images, genErr := p.generator.Generate(ctx, review.GenerationRequest{
			StyleDescription: st.styleDescription,
			StyleImages:      styleImages,
			Prompts:          prompts,
			MaxAttempts:      p.opts.GenerationAttempts,
		})
		if genErr != nil {
			if ctx.Err() != nil {
				return false, "", genErr
			}
			return false, fmt.Sprintf("フレーム再生成が失敗しました: %v", genErr), nil
		}
		if len(images) < len(flagged) {
			return false, fmt.Sprintf("フレーム再生成の枚数が不足しました (%d/%d)", len(images), len(flagged)), nil
		}

		for i, idx := range flagged {
			bc.working[idx] = images[i]
			st.candidates.Append(idx, images[i])
		}

		// 再判定の対象は再生成分のみ。残りは承認済みの文脈として渡す
		var contextPayloads []review.FramePayload
		for idx := bc.first; idx <= bc.last; idx++ {
			if !containsIndex(flagged, idx) {
				contextPayloads = append(contextPayloads, review.FramePayload{
					Index:  idx,
					Prompt: bc.prompts[idx-bc.first],
					Image:  bc.working[idx],
				})
			}
		}

		grade, gradeErr := p.grader.Grade(ctx, review.GradeRequest{
			StyleDescription: st.styleDescription,
			StyleImages:      bc.styleImages,
			Frames:           bc.payloads(flagged),
			ContextFrames:    contextPayloads,
			CheckNewOnly:     true,
		})
		if gradeErr != nil {
			if ctx.Err() != nil {
				return false, "", gradeErr
			}
			return false, fmt.Sprintf("再判定の呼び出しが失敗しました: %v", gradeErr), nil
		}
		if err := validateFindings("frame_redo_grade", grade.Findings, flagged); err != nil {
			return false, "", err
		}

		switch grade.Outcome {
		case domain.OutcomeAccept:
			logger.Info("Flagged frames converged", "summary", grade.Summary)
			return true, "", nil

		case domain.OutcomeRedoFrames:
			if len(grade.Findings) == 0 {
				return false, "", &ProtocolViolationError{
					Stage:   "frame_redo_grade",
					Detail:  "redo_frames 判定なのに指摘が空です",
					Allowed: flagged,
				}
			}
			findings = grade.Findings

		case domain.OutcomeRedoBatch:
			reason := grade.BatchReason
			if reason == "" {
				reason = grade.Summary
			}
			return false, fmt.Sprintf("再判定でバッチ全体が棄却されました: %s", reason), nil
		}
	}

	return false, fmt.Sprintf("フレームやり直しが収束しませんでした: %s", summarizeFindings(findings)), nil
}

// adjudicateFlagged は指摘が残る各フレームについて直近2候補を比較採決し、
// 勝者を作業領域へ確定します。採決は必ず決着するため、この経路に入った
// バッチは(採決自体が失敗しない限り)収束します。
func (p *Pipeline) adjudicateFlagged(ctx context.Context, st *runState, bc *batchContext, findings []domain.Finding) (bool, string, error) {
	for _, idx := range flaggedIndices(findings) {
		previous, latest, ok := st.candidates.LastTwo(idx)
		if !ok {
			return false, fmt.Sprintf("フレーム %d の比較候補が2件に満たないため採決できません", idx), nil
		}

		result, err := p.adjudicator.Adjudicate(ctx, review.AdjudicationRequest{
			Prompt:   bc.prompts[idx-bc.first],
			Previous: previous,
			Latest:   latest,
		})
		if err != nil {
			if ctx.Err() != nil {
				return false, "", err
			}
			return false, fmt.Sprintf("フレーム %d の採決呼び出しが失敗しました: %v", idx, err), nil
		}
		if len(result.CatastrophicCandidates) >= 2 {
			return false, fmt.Sprintf("フレーム %d は両候補とも致命的と採決されました: %s", idx, result.Reasoning), nil
		}

		winner := latest
		if result.WinnerIndex == 1 {
			winner = previous
		}
		bc.working[idx] = winner

		slog.Info("Adjudication resolved frame",
			"frame", idx,
			"winner", result.WinnerIndex,
			"reasoning", result.Reasoning)
	}
	return true, "", nil
}

func flaggedIndices(findings []domain.Finding) []int {
	seen := make(map[int]struct{}, len(findings))
	indices := make([]int, 0, len(findings))
	for _, f := range findings {
		if _, ok := seen[f.FrameIndex]; ok {
			continue
		}
		seen[f.FrameIndex] = struct{}{}
		indices = append(indices, f.FrameIndex)
	}
	return indices
}

func containsIndex(indices []int, idx int) bool {
	for _, v := range indices {
		if v == idx {
			return true
		}
	}
	return false
}

func summarizeFindings(findings []domain.Finding) string {
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, fmt.Sprintf("フレーム %d: %s", f.FrameIndex, f.Reason))
	}
	return strings.Join(parts, " / ")
}
