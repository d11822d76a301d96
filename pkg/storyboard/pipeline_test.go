package storyboard

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/review"
)

// --- スクリプト式モック ---

type scriptedGenerator struct {
	calls []review.GenerationRequest
	fn    func(call int, req review.GenerationRequest) ([]domain.Image, error)
}

func (g *scriptedGenerator) Generate(_ context.Context, req review.GenerationRequest) ([]domain.Image, error) {
	call := len(g.calls)
	g.calls = append(g.calls, req)
	if g.fn == nil {
		return imagesFor(req.Prompts, fmt.Sprintf("call%d", call)), nil
	}
	return g.fn(call, req)
}

type scriptedGrader struct {
	calls []review.GradeRequest
	fn    func(call int, req review.GradeRequest) (domain.GradeResult, error)
}

func (g *scriptedGrader) Grade(_ context.Context, req review.GradeRequest) (domain.GradeResult, error) {
	call := len(g.calls)
	g.calls = append(g.calls, req)
	if g.fn == nil {
		return domain.GradeResult{Outcome: domain.OutcomeAccept}, nil
	}
	return g.fn(call, req)
}

type scriptedAdjudicator struct {
	calls []review.AdjudicationRequest
	fn    func(call int, req review.AdjudicationRequest) (domain.AdjudicationResult, error)
}

func (a *scriptedAdjudicator) Adjudicate(_ context.Context, req review.AdjudicationRequest) (domain.AdjudicationResult, error) {
	call := len(a.calls)
	a.calls = append(a.calls, req)
	if a.fn == nil {
		return domain.AdjudicationResult{WinnerIndex: 2}, nil
	}
	return a.fn(call, req)
}

type scriptedReviser struct {
	calls []review.RevisionRequest
	fn    func(call int, req review.RevisionRequest) (domain.RevisionResult, error)
}

func (r *scriptedReviser) Revise(_ context.Context, req review.RevisionRequest) (domain.RevisionResult, error) {
	call := len(r.calls)
	r.calls = append(r.calls, req)
	if r.fn == nil {
		return domain.RevisionResult{}, nil
	}
	return r.fn(call, req)
}

func imagesFor(prompts []string, tag string) []domain.Image {
	images := make([]domain.Image, len(prompts))
	for i, p := range prompts {
		images[i] = domain.Image{Data: []byte(p + "#" + tag), MimeType: "image/png"}
	}
	return images
}

func prompts(n int) []string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("p%d", i+1)
	}
	return ps
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BatchSize = 4
	opts.OverlapSize = 1
	return opts
}

func newTestPipeline(t *testing.T, gen review.Generator, grader review.Grader, adj review.Adjudicator, rev review.PromptReviser, opts Options) *Pipeline {
	t.Helper()
	p, err := NewPipeline(gen, grader, adj, rev, opts)
	if err != nil {
		t.Fatalf("パイプラインの生成に失敗したのだ: %v", err)
	}
	return p
}

func TestPipeline_Run_AllAccepted(t *testing.T) {
	t.Run("全バッチが一発承認なら入力と同数同順のフレームが返るのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		grader := &scriptedGrader{}
		p := newTestPipeline(t, gen, grader, &scriptedAdjudicator{}, &scriptedReviser{}, testOptions())

		styleRef := domain.Image{Data: []byte("style"), MimeType: "image/png"}
		frames, err := p.Run(context.Background(), RunInput{
			StyleDescription: "水彩のタッチ",
			StyleImages:      []domain.Image{styleRef},
			Prompts:          prompts(8),
		})
		if err != nil {
			t.Fatalf("成功するはずなのにエラーが返ったのだ: %v", err)
		}

		if len(frames) != 8 {
			t.Fatalf("フレーム数が入力と一致しないのだ: %d", len(frames))
		}
		for i, f := range frames {
			if f.Index != i+1 {
				t.Errorf("インデックスがずれているのだ: %d番目が %d", i, f.Index)
			}
			if f.Prompt != fmt.Sprintf("p%d", i+1) {
				t.Errorf("プロンプトの対応が崩れているのだ: %s", f.Prompt)
			}
			if f.Image.IsEmpty() {
				t.Errorf("フレーム %d の画像が空なのだ", f.Index)
			}
			if f.Accepted {
				t.Errorf("承認ビットはレビューア以外が立ててはいけないのだ: フレーム %d", f.Index)
			}
		}

		if len(gen.calls) != 2 {
			t.Fatalf("生成はバッチごとに1回のはずなのだ: %d", len(gen.calls))
		}
		// 2バッチ目は基本スタイル1枚 + 前バッチ末尾1枚のオーバーラップを受け取る
		if got := len(gen.calls[1].StyleImages); got != 2 {
			t.Errorf("2バッチ目のスタイル文脈が %d 枚なのだ（2枚のはず）", got)
		}
		if string(gen.calls[1].StyleImages[1].Data) != "p4#call0" {
			t.Errorf("オーバーラップが前バッチの末尾フレームではないのだ: %q", gen.calls[1].StyleImages[1].Data)
		}

		if len(grader.calls) != 2 {
			t.Fatalf("判定はバッチごとに1回のはずなのだ: %d", len(grader.calls))
		}
		if grader.calls[0].CheckNewOnly {
			t.Error("最初のバッチは全数判定のはずなのだ")
		}
		if !grader.calls[1].CheckNewOnly {
			t.Error("2バッチ目以降は新規提出分のみの判定指示が要るのだ")
		}
	})
}

func TestPipeline_Run_BatchRetriesAreBounded(t *testing.T) {
	t.Run("バッチ丸ごと却下が続いたら試行上限ちょうどで打ち切るのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		grader := &scriptedGrader{fn: func(_ int, _ review.GradeRequest) (domain.GradeResult, error) {
			return domain.GradeResult{Outcome: domain.OutcomeRedoBatch, BatchReason: "構図が全滅"}, nil
		}}
		opts := testOptions()
		opts.MaxBatchAttempts = 3
		p := newTestPipeline(t, gen, grader, &scriptedAdjudicator{}, nil, opts)

		_, err := p.Run(context.Background(), RunInput{Prompts: prompts(4)})

		var exhausted *ExhaustionError
		if !errors.As(err, &exhausted) {
			t.Fatalf("ExhaustionError が返るはずなのだ: %v", err)
		}
		if exhausted.Stage != "batch" || exhausted.BatchIndex != 0 || exhausted.Attempts != 3 {
			t.Errorf("失敗の責任箇所が正しく記録されていないのだ: %+v", exhausted)
		}
		if len(exhausted.Reasons) != 3 {
			t.Errorf("試行ごとの理由が揃っていないのだ: %v", exhausted.Reasons)
		}
		if len(gen.calls) != 3 {
			t.Errorf("生成回数が試行上限と一致しないのだ: %d", len(gen.calls))
		}
	})
}

func TestPipeline_Run_TransientFailuresConsumeAttempts(t *testing.T) {
	t.Run("生成の一時失敗と枚数不足は試行を1つずつ消費するのだ", func(t *testing.T) {
		gen := &scriptedGenerator{fn: func(call int, req review.GenerationRequest) ([]domain.Image, error) {
			switch call {
			case 0:
				return nil, errors.New("API がタイムアウト")
			case 1:
				return imagesFor(req.Prompts[:2], "short"), nil
			default:
				return imagesFor(req.Prompts, "ok"), nil
			}
		}}
		grader := &scriptedGrader{}
		p := newTestPipeline(t, gen, grader, &scriptedAdjudicator{}, nil, testOptions())

		frames, err := p.Run(context.Background(), RunInput{Prompts: prompts(4)})
		if err != nil {
			t.Fatalf("3回目の試行で成功するはずなのだ: %v", err)
		}
		if len(gen.calls) != 3 {
			t.Errorf("生成呼び出し回数が想定と違うのだ: %d", len(gen.calls))
		}
		if len(grader.calls) != 1 {
			t.Errorf("失敗した試行で判定を呼んではいけないのだ: %d", len(grader.calls))
		}
		if string(frames.At(1).Image.Data) != "p1#ok" {
			t.Errorf("最終試行の画像が確定していないのだ: %q", frames.At(1).Image.Data)
		}
	})
}

func TestPipeline_Run_ProtocolViolations(t *testing.T) {
	t.Run("判定対象外のフレームへの指摘は即座に契約違反なのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		grader := &scriptedGrader{fn: func(_ int, _ review.GradeRequest) (domain.GradeResult, error) {
			return domain.GradeResult{
				Outcome:  domain.OutcomeRedoFrames,
				Findings: []domain.Finding{{FrameIndex: 99, Reason: "存在しないフレーム"}},
			}, nil
		}}
		p := newTestPipeline(t, gen, grader, &scriptedAdjudicator{}, nil, testOptions())

		_, err := p.Run(context.Background(), RunInput{Prompts: prompts(4)})

		var violation *ProtocolViolationError
		if !errors.As(err, &violation) {
			t.Fatalf("ProtocolViolationError が返るはずなのだ: %v", err)
		}
		if violation.Stage != "batch_grade" {
			t.Errorf("違反の検出工程が違うのだ: %s", violation.Stage)
		}
		if len(gen.calls) != 1 {
			t.Errorf("契約違反をリトライしてはいけないのだ: 生成 %d 回", len(gen.calls))
		}
	})

	t.Run("指摘なしの redo_frames も契約違反なのだ", func(t *testing.T) {
		grader := &scriptedGrader{fn: func(_ int, _ review.GradeRequest) (domain.GradeResult, error) {
			return domain.GradeResult{Outcome: domain.OutcomeRedoFrames}, nil
		}}
		p := newTestPipeline(t, &scriptedGenerator{}, grader, &scriptedAdjudicator{}, nil, testOptions())

		_, err := p.Run(context.Background(), RunInput{Prompts: prompts(4)})

		var violation *ProtocolViolationError
		if !errors.As(err, &violation) {
			t.Fatalf("ProtocolViolationError が返るはずなのだ: %v", err)
		}
	})
}

func TestPipeline_Run_FrameRedoScenario(t *testing.T) {
	t.Run("8フレーム2バッチでフレーム6だけやり直して完走するのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		grader := &scriptedGrader{fn: func(call int, req review.GradeRequest) (domain.GradeResult, error) {
			if call == 1 {
				// 2バッチ目の初回判定だけフレーム6を指摘する
				return domain.GradeResult{
					Outcome:  domain.OutcomeRedoFrames,
					Findings: []domain.Finding{{FrameIndex: 6, Reason: "主人公の服装が違う"}},
				}, nil
			}
			return domain.GradeResult{Outcome: domain.OutcomeAccept}, nil
		}}
		p := newTestPipeline(t, gen, grader, &scriptedAdjudicator{}, nil, testOptions())

		frames, err := p.Run(context.Background(), RunInput{
			StyleImages: []domain.Image{{Data: []byte("style")}},
			Prompts:     prompts(8),
		})
		if err != nil {
			t.Fatalf("完走するはずなのだ: %v", err)
		}

		if len(gen.calls) != 3 {
			t.Fatalf("生成呼び出しは バッチ1 + バッチ2 + 狙い撃ち再生成 の3回のはずなのだ: %d", len(gen.calls))
		}
		if got := gen.calls[2].Prompts; len(got) != 1 || got[0] != "p6" {
			t.Errorf("再生成はフレーム6だけを対象にするはずなのだ: %v", got)
		}
		// 再生成のスタイル文脈 = バッチ用2枚(基本+オーバーラップ) + 指摘されなかった同バッチ3枚
		if got := len(gen.calls[2].StyleImages); got != 5 {
			t.Errorf("再生成のスタイル文脈が %d 枚なのだ（5枚のはず）", got)
		}

		if len(grader.calls) != 3 {
			t.Fatalf("判定は バッチ1 + バッチ2 + 再判定 の3回のはずなのだ: %d", len(grader.calls))
		}
		regrade := grader.calls[2]
		if len(regrade.Frames) != 1 || regrade.Frames[0].Index != 6 {
			t.Errorf("再判定の対象は再生成分だけのはずなのだ: %+v", regrade.Frames)
		}
		wantContext := []int{5, 7, 8}
		if len(regrade.ContextFrames) != len(wantContext) {
			t.Fatalf("再判定の文脈フレームが揃っていないのだ: %+v", regrade.ContextFrames)
		}
		for i, idx := range wantContext {
			if regrade.ContextFrames[i].Index != idx {
				t.Errorf("文脈フレームの %d 番目が %d なのだ（%d のはず）", i, regrade.ContextFrames[i].Index, idx)
			}
		}

		if len(frames) != 8 {
			t.Fatalf("最終フレーム数が8ではないのだ: %d", len(frames))
		}
		if string(frames.At(6).Image.Data) != "p6#call2" {
			t.Errorf("フレーム6が再生成画像で確定していないのだ: %q", frames.At(6).Image.Data)
		}
		if string(frames.At(5).Image.Data) != "p5#call1" {
			t.Errorf("指摘されなかったフレーム5まで差し替わっているのだ: %q", frames.At(5).Image.Data)
		}
	})
}

func TestPipeline_Run_AdjudicationBreaksRedoLoop(t *testing.T) {
	t.Run("やり直しが往復したら直近2候補の採決で決着するのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		flagFrame2 := domain.GradeResult{
			Outcome:  domain.OutcomeRedoFrames,
			Findings: []domain.Finding{{FrameIndex: 2, Reason: "手の形が崩れている"}},
		}
		grader := &scriptedGrader{fn: func(_ int, _ review.GradeRequest) (domain.GradeResult, error) {
			return flagFrame2, nil
		}}
		adj := &scriptedAdjudicator{fn: func(_ int, _ review.AdjudicationRequest) (domain.AdjudicationResult, error) {
			return domain.AdjudicationResult{WinnerIndex: 1, Reasoning: "初回候補の方が破綻が少ない"}, nil
		}}
		p := newTestPipeline(t, gen, grader, adj, nil, testOptions())

		frames, err := p.Run(context.Background(), RunInput{Prompts: prompts(4)})
		if err != nil {
			t.Fatalf("採決で必ず決着するはずなのだ: %v", err)
		}

		// 生成 = バッチ初回 + 反復1の再生成。反復2はしきい値到達で採決に切り替わる
		if len(gen.calls) != 2 {
			t.Errorf("生成呼び出し回数が想定と違うのだ: %d", len(gen.calls))
		}
		if len(adj.calls) != 1 {
			t.Fatalf("採決は指摘フレーム1件につき1回のはずなのだ: %d", len(adj.calls))
		}
		if string(adj.calls[0].Previous.Data) != "p2#call0" || string(adj.calls[0].Latest.Data) != "p2#call1" {
			t.Errorf("採決に渡す候補の順序が違うのだ: previous=%q latest=%q",
				adj.calls[0].Previous.Data, adj.calls[0].Latest.Data)
		}
		if string(frames.At(2).Image.Data) != "p2#call0" {
			t.Errorf("採決の勝者（候補1=前回）が確定していないのだ: %q", frames.At(2).Image.Data)
		}
	})

	t.Run("両候補とも致命的ならバッチ試行へ格上げするのだ", func(t *testing.T) {
		flagFrame1 := domain.GradeResult{
			Outcome:  domain.OutcomeRedoFrames,
			Findings: []domain.Finding{{FrameIndex: 1, Reason: "崩壊"}},
		}
		grader := &scriptedGrader{fn: func(_ int, _ review.GradeRequest) (domain.GradeResult, error) {
			return flagFrame1, nil
		}}
		adj := &scriptedAdjudicator{fn: func(_ int, _ review.AdjudicationRequest) (domain.AdjudicationResult, error) {
			return domain.AdjudicationResult{CatastrophicCandidates: []int{1, 2}}, nil
		}}
		opts := testOptions()
		opts.MaxBatchAttempts = 2
		p := newTestPipeline(t, &scriptedGenerator{}, grader, adj, nil, opts)

		_, err := p.Run(context.Background(), RunInput{Prompts: prompts(2)})

		var exhausted *ExhaustionError
		if !errors.As(err, &exhausted) {
			t.Fatalf("バッチ試行の使い切りとして終わるはずなのだ: %v", err)
		}
		if len(adj.calls) != 2 {
			t.Errorf("採決はバッチ試行ごとに1回ずつ走るはずなのだ: %d", len(adj.calls))
		}
	})
}

func TestPipeline_Run_PromptRevision(t *testing.T) {
	t.Run("連続却下でプロンプト改訂がバッチにつき一度だけ走るのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		grader := &scriptedGrader{fn: func(call int, _ review.GradeRequest) (domain.GradeResult, error) {
			if call < 2 {
				return domain.GradeResult{Outcome: domain.OutcomeRedoBatch, BatchReason: "画風が毎回違う"}, nil
			}
			return domain.GradeResult{Outcome: domain.OutcomeAccept}, nil
		}}
		rev := &scriptedReviser{fn: func(_ int, _ review.RevisionRequest) (domain.RevisionResult, error) {
			return domain.RevisionResult{
				Summary: "スタイル指定を明示化",
				Replacements: []domain.PromptReplacement{
					{FrameIndex: 2, UpdatedPrompt: "p2 (水彩で統一)", Rationale: "画風の明示"},
					{FrameIndex: 99, UpdatedPrompt: "無関係", Rationale: "バッチ外"},
					{FrameIndex: 3, UpdatedPrompt: "", Rationale: "空の置換"},
				},
			}, nil
		}}
		opts := testOptions()
		opts.MaxBatchAttempts = 4
		p := newTestPipeline(t, gen, grader, &scriptedAdjudicator{}, rev, opts)

		frames, err := p.Run(context.Background(), RunInput{
			Prompts:   prompts(4),
			Narration: map[int]string{2: "主人公が振り返る"},
		})
		if err != nil {
			t.Fatalf("改訂後の試行で承認されるはずなのだ: %v", err)
		}

		if len(rev.calls) != 1 {
			t.Fatalf("改訂はバッチにつき一度だけのはずなのだ: %d", len(rev.calls))
		}
		if len(rev.calls[0].FailureSummaries) != 2 {
			t.Errorf("それまでの失敗理由を全部渡すはずなのだ: %v", rev.calls[0].FailureSummaries)
		}
		if rev.calls[0].Narration[2] != "主人公が振り返る" {
			t.Error("ナレーション文脈が改訂者へ渡っていないのだ")
		}

		// 3回目の試行はフレーム2だけ改訂済みプロンプトで生成する
		third := gen.calls[2].Prompts
		if third[1] != "p2 (水彩で統一)" {
			t.Errorf("改訂が次の試行へ反映されていないのだ: %q", third[1])
		}
		if third[0] != "p1" || third[2] != "p3" || third[3] != "p4" {
			t.Errorf("バッチ外・空の置換まで適用されているのだ: %v", third)
		}
		if frames.At(2).Prompt != "p2 (水彩で統一)" {
			t.Errorf("最終フレームのプロンプトが改訂後の値ではないのだ: %q", frames.At(2).Prompt)
		}
	})

	t.Run("改訂の失敗は握りつぶして元のプロンプトで続行するのだ", func(t *testing.T) {
		gen := &scriptedGenerator{}
		grader := &scriptedGrader{fn: func(call int, _ review.GradeRequest) (domain.GradeResult, error) {
			if call < 2 {
				return domain.GradeResult{Outcome: domain.OutcomeRedoBatch, BatchReason: "却下"}, nil
			}
			return domain.GradeResult{Outcome: domain.OutcomeAccept}, nil
		}}
		rev := &scriptedReviser{fn: func(_ int, _ review.RevisionRequest) (domain.RevisionResult, error) {
			return domain.RevisionResult{}, errors.New("改訂モデルが応答しない")
		}}
		opts := testOptions()
		opts.MaxBatchAttempts = 3
		p := newTestPipeline(t, gen, grader, &scriptedAdjudicator{}, rev, opts)

		frames, err := p.Run(context.Background(), RunInput{Prompts: prompts(4)})
		if err != nil {
			t.Fatalf("改訂失敗は致命ではないはずなのだ: %v", err)
		}
		if len(rev.calls) != 1 {
			t.Errorf("失敗しても再改訂はしないのだ: %d", len(rev.calls))
		}
		if frames.At(2).Prompt != "p2" {
			t.Errorf("プロンプトが勝手に書き換わっているのだ: %q", frames.At(2).Prompt)
		}
	})
}
