package domain

// Outcome はグレーダーが下す三値の判定結果です。
type Outcome string

const (
	// OutcomeAccept はバッチ全体の採用を意味します。
	OutcomeAccept Outcome = "accept"
	// OutcomeRedoBatch はバッチ全体の破棄・再生成を意味します。
	OutcomeRedoBatch Outcome = "redo_batch"
	// OutcomeRedoFrames は指摘されたフレームのみの再生成を意味します。
	OutcomeRedoFrames Outcome = "redo_frames"
)

// Valid は既知の判定値かどうかを返します。
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAccept, OutcomeRedoBatch, OutcomeRedoFrames:
		return true
	}
	return false
}

// Finding はグレーダーが特定した欠陥（フレームインデックスと理由）です。
type Finding struct {
	FrameIndex int    `json:"frame_index"`
	Reason     string `json:"reason"`
}

// GradeResult は1回のグレーディング呼び出しが返す判定の全体です。
// 呼び出しごとに新しく生成され、対象フレームについては常に直前の判定を上書きします。
type GradeResult struct {
	Outcome     Outcome   `json:"outcome"`
	Findings    []Finding `json:"findings"`
	Summary     string    `json:"summary"`
	BatchReason string    `json:"batch_reason,omitempty"`
}

// FlaggedIndices は指摘されたフレームインデックスを順序通り返します。
func (g GradeResult) FlaggedIndices() []int {
	indices := make([]int, 0, len(g.Findings))
	for _, f := range g.Findings {
		indices = append(indices, f.FrameIndex)
	}
	return indices
}

// AdjudicationResult は2候補比較の勝敗判定です。
// WinnerIndex は 1 が前回候補、2 が最新候補を指します。
type AdjudicationResult struct {
	WinnerIndex            int    `json:"winner_index"`
	Reasoning              string `json:"reasoning"`
	CatastrophicCandidates []int  `json:"catastrophic_candidates,omitempty"`
}

// PromptReplacement はプロンプト改訂の1件分（対象フレームと新プロンプト）です。
type PromptReplacement struct {
	FrameIndex    int    `json:"frame_index"`
	UpdatedPrompt string `json:"updated_prompt"`
	Rationale     string `json:"rationale"`
}

// RevisionResult はプロンプト改訂呼び出しの応答全体です。
type RevisionResult struct {
	Summary      string              `json:"summary,omitempty"`
	Replacements []PromptReplacement `json:"replacements"`
}
