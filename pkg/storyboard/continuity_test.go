package storyboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/review"
)

func testFrames(n int) domain.Frames {
	frames := make(domain.Frames, n)
	for i := range frames {
		frames[i] = domain.Frame{
			Index:  i + 1,
			Prompt: fmt.Sprintf("p%d", i+1),
			Image:  domain.Image{Data: []byte(fmt.Sprintf("img%d", i+1)), MimeType: "image/png"},
		}
	}
	return frames
}

func newTestReviewer(t *testing.T, grader review.Grader, gen review.Generator, opts Options) *ContinuityReviewer {
	t.Helper()
	r, err := NewContinuityReviewer(grader, gen, opts)
	if err != nil {
		t.Fatalf("レビューアの生成に失敗したのだ: %v", err)
	}
	return r
}

func TestContinuityReviewer_Review_AllAccepted(t *testing.T) {
	t.Run("指摘なしなら1サイクルで全フレームがロックされるのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		grader := &scriptedGrader{}
		r := newTestReviewer(t, grader, gen, testOptions())

		frames, err := r.Review(context.Background(), "水彩のタッチ", nil, testFrames(4))
		if err != nil {
			t.Fatalf("承認されるはずなのだ: %v", err)
		}

		for _, f := range frames {
			if !f.Accepted {
				t.Errorf("フレーム %d がロックされていないのだ", f.Index)
			}
		}
		if len(grader.calls) != 1 {
			t.Errorf("判定は1回のはずなのだ: %d", len(grader.calls))
		}
		if len(gen.calls) != 0 {
			t.Errorf("指摘がないのに再生成しているのだ: %d", len(gen.calls))
		}
	})
}

func TestContinuityReviewer_Review_LocalRegeneration(t *testing.T) {
	t.Run("指摘フレームだけを近傍文脈で作り直し、ロック済みは二度と審査しないのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		grader := &scriptedGrader{fn: func(call int, req review.GradeRequest) (domain.GradeResult, error) {
			if call == 0 {
				return domain.GradeResult{
					Outcome:  domain.OutcomeRedoFrames,
					Findings: []domain.Finding{{FrameIndex: 3, Reason: "隣のコマと光源が逆"}},
				}, nil
			}
			return domain.GradeResult{Outcome: domain.OutcomeAccept}, nil
		}}
		r := newTestReviewer(t, grader, gen, testOptions())

		frames, err := r.Review(context.Background(), "", nil, testFrames(4))
		if err != nil {
			t.Fatalf("2サイクル目で収束するはずなのだ: %v", err)
		}

		if len(gen.calls) != 1 {
			t.Fatalf("再生成は指摘された1フレーム分だけのはずなのだ: %d", len(gen.calls))
		}
		if got := gen.calls[0].Prompts; len(got) != 1 || got[0] != "p3" {
			t.Errorf("フレーム3のプロンプトで再生成するはずなのだ: %v", got)
		}
		// OverlapSize=1 なので直前のフレーム2が文脈に入る
		refs := gen.calls[0].StyleImages
		if len(refs) != 1 || string(refs[0].Data) != "img2" {
			t.Errorf("直前フレームがスタイル文脈になっていないのだ: %+v", refs)
		}

		// 2サイクル目の審査対象はフレーム3のみ。1,2,4はロック済みの文脈になる
		second := grader.calls[1]
		if len(second.Frames) != 1 || second.Frames[0].Index != 3 {
			t.Errorf("ロック済みフレームが審査対象に戻っているのだ: %+v", second.Frames)
		}
		if len(second.ContextFrames) != 3 {
			t.Errorf("ロック済みフレームが文脈として渡っていないのだ: %+v", second.ContextFrames)
		}

		for _, f := range frames {
			if !f.Accepted {
				t.Errorf("最終的に全フレームがロックされるはずなのだ: フレーム %d", f.Index)
			}
		}
		if string(frames.At(3).Image.Data) != "p3#call0" {
			t.Errorf("フレーム3が再生成画像に差し替わっていないのだ: %q", frames.At(3).Image.Data)
		}
		if string(frames.At(2).Image.Data) != "img2" {
			t.Errorf("指摘されていないフレーム2まで差し替わっているのだ: %q", frames.At(2).Image.Data)
		}
	})
}

func TestContinuityReviewer_Review_CyclesAreBounded(t *testing.T) {
	t.Run("同じフレームが直り続けなければサイクル上限で打ち切るのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		grader := &scriptedGrader{fn: func(_ int, _ review.GradeRequest) (domain.GradeResult, error) {
			return domain.GradeResult{
				Outcome:  domain.OutcomeRedoFrames,
				Findings: []domain.Finding{{FrameIndex: 3, Reason: "光源が直らない"}},
			}, nil
		}}
		opts := testOptions()
		opts.MaxStoryboardRedoCycles = 2
		r := newTestReviewer(t, grader, gen, opts)

		frames, err := r.Review(context.Background(), "", nil, testFrames(4))

		var exhausted *ExhaustionError
		if !errors.As(err, &exhausted) {
			t.Fatalf("ExhaustionError が返るはずなのだ: %v", err)
		}
		if exhausted.Stage != "storyboard" || exhausted.Attempts != 2 {
			t.Errorf("責任箇所の記録が違うのだ: %+v", exhausted)
		}
		if len(exhausted.Findings) != 1 || exhausted.Findings[0].FrameIndex != 3 {
			t.Errorf("未解決フレームがエラーに残っていないのだ: %+v", exhausted.Findings)
		}
		if !strings.Contains(exhausted.Error(), "3") {
			t.Errorf("エラーメッセージが問題フレームを名指ししていないのだ: %s", exhausted.Error())
		}

		if len(gen.calls) != 2 {
			t.Errorf("再生成はサイクル上限と同じ2回のはずなのだ: %d", len(gen.calls))
		}
		// 2サイクル目はフレーム3だけ審査する（他はサイクル1でロック済み）
		if len(grader.calls) != 2 {
			t.Fatalf("審査はサイクルごとに1回のはずなのだ: %d", len(grader.calls))
		}
		if got := grader.calls[1].Frames; len(got) != 1 || got[0].Index != 3 {
			t.Errorf("ロックが審査対象を縮小させていないのだ: %+v", got)
		}

		// 打ち切り後もロック済みの承認ビットは保たれる
		for _, idx := range []int{1, 2, 4} {
			if !frames.At(idx).Accepted {
				t.Errorf("フレーム %d のロックが失われているのだ", idx)
			}
		}
		if frames.At(3).Accepted {
			t.Error("未解決のフレーム3が承認されているのだ")
		}
	})
}

func TestContinuityReviewer_Review_LockedFrameFlagIsViolation(t *testing.T) {
	t.Run("ロック済みフレームへの指摘は契約違反なのだ", func(t *testing.T) {
		grader := &scriptedGrader{fn: func(_ int, _ review.GradeRequest) (domain.GradeResult, error) {
			return domain.GradeResult{
				Outcome:  domain.OutcomeRedoFrames,
				Findings: []domain.Finding{{FrameIndex: 1, Reason: "やっぱり気になる"}},
			}, nil
		}}
		r := newTestReviewer(t, grader, &scriptedGenerator{}, testOptions())

		frames := testFrames(4)
		frames.At(1).Accepted = true

		_, err := r.Review(context.Background(), "", nil, frames)

		var violation *ProtocolViolationError
		if !errors.As(err, &violation) {
			t.Fatalf("ProtocolViolationError が返るはずなのだ: %v", err)
		}
		if violation.Stage != "continuity_review" {
			t.Errorf("違反の検出工程が違うのだ: %s", violation.Stage)
		}
	})
}

func TestContinuityReviewer_Review_RedoBatchFlagsWholeReviewSet(t *testing.T) {
	t.Run("全面やり直し指示は未承認フレーム全件の指摘として扱うのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		grader := &scriptedGrader{fn: func(call int, _ review.GradeRequest) (domain.GradeResult, error) {
			if call == 0 {
				return domain.GradeResult{Outcome: domain.OutcomeRedoBatch, BatchReason: "全体の色調が不揃い"}, nil
			}
			return domain.GradeResult{Outcome: domain.OutcomeAccept}, nil
		}}
		r := newTestReviewer(t, grader, gen, testOptions())

		frames, err := r.Review(context.Background(), "", nil, testFrames(3))
		if err != nil {
			t.Fatalf("2サイクル目で収束するはずなのだ: %v", err)
		}
		if len(gen.calls) != 3 {
			t.Errorf("未承認の3フレーム全部を作り直すはずなのだ: %d", len(gen.calls))
		}
		for _, f := range frames {
			if !f.Accepted {
				t.Errorf("フレーム %d がロックされていないのだ", f.Index)
			}
		}
	})
}
