package storyboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/review"
)

// ContinuityReviewer は完成したフレーム列を俯瞰し、隣接バッチの境界を越えた
// 画風・登場物の不整合を洗い出して局所的に再生成させる最終工程です。
//
// 一度承認されたフレームはロックされ、以降のサイクルでは判定対象から外れます。
// レビュー対象は単調に縮小するため、サイクル上限と合わせて停止が保証されます。
type ContinuityReviewer struct {
	grader    review.Grader
	generator review.Generator
	opts      Options
}

// NewContinuityReviewer は連続性レビューの駆動係を生成します。
func NewContinuityReviewer(grader review.Grader, generator review.Generator, opts Options) (*ContinuityReviewer, error) {
	if grader == nil {
		return nil, fmt.Errorf("grader は必須です")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator は必須です")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("レビュー設定が不正です: %w", err)
	}
	return &ContinuityReviewer{grader: grader, generator: generator, opts: opts}, nil
}

// Review はフレーム列全体をサイクル上限まで審査し、全フレームの承認を目指します。
// フレームの承認ビットと画像はその場で書き換えられ、同じスライスが返ります。
// 上限までに承認しきれなかった場合は、最後の指摘を添えた ExhaustionError を返します。
func (r *ContinuityReviewer) Review(ctx context.Context, styleDescription string, styleImages []domain.Image, frames domain.Frames) (domain.Frames, error) {
	if len(frames) == 0 {
		return frames, nil
	}

	var lastReasons []string
	var lastFindings []domain.Finding

	for cycle := 1; ; cycle++ {
		if cycle > r.opts.MaxStoryboardRedoCycles {
			return frames, &ExhaustionError{
				Stage:    "storyboard",
				Attempts: r.opts.MaxStoryboardRedoCycles,
				Reasons:  lastReasons,
				Findings: lastFindings,
			}
		}

		reviewTargets := frames.ReviewTargets()
		if len(reviewTargets) == 0 {
			return frames, nil
		}

		logger := slog.With("cycle", cycle, "under_review", len(reviewTargets))
		logger.Info("Reviewing storyboard continuity")

		findings, err := r.reviewCycle(ctx, styleDescription, styleImages, frames, reviewTargets)
		if err != nil {
			if ctx.Err() != nil {
				return frames, err
			}
			if _, ok := err.(*ProtocolViolationError); ok {
				return frames, err
			}
			// 判定の一時的な失敗はサイクルを1つ消費して再挑戦する
			lastReasons = append(lastReasons, fmt.Sprintf("連続性判定が失敗しました: %v", err))
			logger.Warn("Continuity grading failed", "error", err)
			continue
		}

		// 指摘のなかったレビュー対象は承認してロックする
		flagged := flaggedIndices(findings)
		for _, idx := range reviewTargets {
			if !containsIndex(flagged, idx) {
				frames.At(idx).Accepted = true
			}
		}

		if len(findings) == 0 {
			logger.Info("Storyboard accepted")
			return frames, nil
		}

		lastFindings = findings
		lastReasons = appendFindingReasons(lastReasons, findings)
		logger.Warn("Continuity findings", "flagged", flagged)

		r.regenerateFlagged(ctx, styleDescription, styleImages, frames, flagged)
		if ctx.Err() != nil {
			return frames, ctx.Err()
		}
	}
}

// reviewCycle は未承認フレームを判定対象、承認済みフレームを文脈として審査し、
// 残った指摘を返します。指摘がロック済みフレームや範囲外に触れていれば契約違反です。
func (r *ContinuityReviewer) reviewCycle(ctx context.Context, styleDescription string, styleImages []domain.Image, frames domain.Frames, reviewTargets []int) ([]domain.Finding, error) {
	payloads := make([]review.FramePayload, 0, len(reviewTargets))
	for _, idx := range reviewTargets {
		frame := frames.At(idx)
		payloads = append(payloads, review.FramePayload{Index: idx, Prompt: frame.Prompt, Image: frame.Image})
	}

	var contextPayloads []review.FramePayload
	for _, idx := range frames.LockedTargets() {
		frame := frames.At(idx)
		contextPayloads = append(contextPayloads, review.FramePayload{Index: idx, Prompt: frame.Prompt, Image: frame.Image})
	}

	grade, err := r.grader.Grade(ctx, review.GradeRequest{
		StyleDescription: styleDescription,
		StyleImages:      styleImages,
		Frames:           payloads,
		ContextFrames:    contextPayloads,
		CheckNewOnly:     true,
	})
	if err != nil {
		return nil, err
	}
	if err := validateFindings("continuity_review", grade.Findings, reviewTargets); err != nil {
		return nil, err
	}

	switch grade.Outcome {
	case domain.OutcomeAccept:
		return nil, nil
	case domain.OutcomeRedoFrames:
		if len(grade.Findings) == 0 {
			return nil, &ProtocolViolationError{
				Stage:   "continuity_review",
				Detail:  "redo_frames 判定なのに指摘が空です",
				Allowed: reviewTargets,
			}
		}
		return grade.Findings, nil
	default:
		// 全面やり直しの指示は、未承認フレーム全件への指摘として扱う
		reason := grade.BatchReason
		if reason == "" {
			reason = grade.Summary
		}
		findings := make([]domain.Finding, 0, len(reviewTargets))
		for _, idx := range reviewTargets {
			findings = append(findings, domain.Finding{FrameIndex: idx, Reason: reason})
		}
		return findings, nil
	}
}

// regenerateFlagged は指摘されたフレームを1枚ずつ、現在の配列上の直前フレームを
// スタイル文脈にして再生成します。元のバッチウィンドウではなく現在の配列を使うのは、
// 先行フレーム自体がすでに差し替わっている可能性があるためです。
// 生成の失敗は次サイクルの判定に委ねて続行します。
func (r *ContinuityReviewer) regenerateFlagged(ctx context.Context, styleDescription string, styleImages []domain.Image, frames domain.Frames, flagged []int) {
	for _, idx := range flagged {
		frame := frames.At(idx)
		if frame == nil {
			continue
		}

		images, err := r.generator.Generate(ctx, review.GenerationRequest{
			StyleDescription: styleDescription,
			StyleImages:      append(append([]domain.Image{}, styleImages...), r.precedingImages(frames, idx)...),
			Prompts:          []string{frame.Prompt},
			MaxAttempts:      r.opts.GenerationAttempts,
		})
		if err != nil || len(images) == 0 {
			slog.Warn("Continuity regeneration failed, keeping current image", "frame", idx, "error", err)
			continue
		}
		frame.Image = images[0]
	}
}

// precedingImages は対象フレームの直前 OverlapSize 枚の画像を、現在の配列から返します。
func (r *ContinuityReviewer) precedingImages(frames domain.Frames, idx int) []domain.Image {
	var images []domain.Image
	for n := idx - r.opts.OverlapSize; n < idx; n++ {
		frame := frames.At(n)
		if frame == nil || frame.Image.IsEmpty() {
			continue
		}
		images = append(images, frame.Image)
	}
	return images
}

func appendFindingReasons(reasons []string, findings []domain.Finding) []string {
	for _, f := range findings {
		reasons = append(reasons, fmt.Sprintf("フレーム %d: %s", f.FrameIndex, f.Reason))
	}
	return reasons
}
