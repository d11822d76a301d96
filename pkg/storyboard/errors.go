package storyboard

import (
	"fmt"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// ProtocolViolationError は、協調者の応答がパイプラインの前提を破ったことを示します。
// 例: 判定対象に含まれないフレームインデックスへの指摘、指摘なしの redo_frames 判定。
// この種のエラーはリトライせず即座に送出します。応答の意味が信用できない状態で
// 処理を続けると、無関係なフレームを壊す恐れがあるためです。
type ProtocolViolationError struct {
	// Stage は違反が検出された工程です（batch_grade / frame_redo_grade / continuity_review）。
	Stage string
	// Detail は違反内容の説明です。
	Detail string
	// Allowed は指摘が許されていたフレームインデックスです。
	Allowed []int
}

func (e *ProtocolViolationError) Error() string {
	msg := fmt.Sprintf("協調者の応答が契約に違反しました (%s): %s", e.Stage, e.Detail)
	if len(e.Allowed) > 0 {
		msg += fmt.Sprintf(" (許容インデックス: %v)", e.Allowed)
	}
	return msg
}

// ExhaustionError は試行上限（バッチ・フレームやり直し・連続性サイクル）の使い切りを示します。
// これはパイプラインの終端的な失敗であり、責任箇所と直近の理由を必ず含みます。
type ExhaustionError struct {
	// Stage は使い切った予算の種類です（batch / storyboard）。
	Stage string
	// BatchIndex は Stage が batch のときの 0 始まりバッチ番号です。
	BatchIndex int
	// Attempts は消費した試行回数です。
	Attempts int
	// Reasons は各試行で記録された失敗理由です。
	Reasons []string
	// Findings は Stage が storyboard のときの、最後に残った指摘です。
	Findings []domain.Finding
}

func (e *ExhaustionError) Error() string {
	var sb strings.Builder
	switch e.Stage {
	case "storyboard":
		sb.WriteString(fmt.Sprintf("連続性レビューが %d サイクルで収束しませんでした", e.Attempts))
		if len(e.Findings) > 0 {
			sb.WriteString(": 未解決のフレーム:")
			for _, f := range e.Findings {
				sb.WriteString(fmt.Sprintf(" [%d: %s]", f.FrameIndex, f.Reason))
			}
		}
	default:
		sb.WriteString(fmt.Sprintf("バッチ %d が %d 回の試行で承認されませんでした", e.BatchIndex, e.Attempts))
		if len(e.Reasons) > 0 {
			sb.WriteString(fmt.Sprintf(": 直近の理由: %s", strings.Join(e.Reasons, "; ")))
		}
	}
	return sb.String()
}
