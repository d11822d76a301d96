// Package storyboard は、信頼できない画像生成・品質判定の呼び出しを、
// 有限回の試行で必ず停止する決定的なストーリーボード生成パイプラインへ束ねます。
package storyboard

import "fmt"

// デフォルト値の定義
const (
	DefaultBatchSize               = 4
	DefaultOverlapSize             = 1
	DefaultMaxBatchAttempts        = 3
	DefaultMaxFrameRedoIterations  = 3
	DefaultMaxStoryboardRedoCycles = 3
	DefaultGenerationAttempts      = 2
	DefaultAdjudicationThreshold   = 2
	DefaultRevisionThreshold       = 2
)

// Options はパイプライン全体の試行上限としきい値です。
// しきい値（AdjudicationThreshold / RevisionThreshold）は経験的に調整された値であり、
// 正しさの要件ではないため設定可能にしています。
type Options struct {
	// BatchSize は1バッチあたりのフレーム数です（B > 0）。
	BatchSize int
	// OverlapSize は直前までに承認されたフレームから次バッチへ引き継ぐスタイル文脈の枚数です（O >= 0）。
	OverlapSize int

	// MaxBatchAttempts はバッチ丸ごとの生成・判定サイクルの上限です。
	MaxBatchAttempts int
	// MaxFrameRedoIterations はフレーム単位やり直しループの反復上限です。
	MaxFrameRedoIterations int
	// MaxStoryboardRedoCycles は連続性レビューのやり直しサイクル上限です。
	MaxStoryboardRedoCycles int
	// GenerationAttempts はジェネレーターへ指示するプロンプト1件あたりの内部リトライ上限です。
	GenerationAttempts int

	// AdjudicationThreshold は、この反復回数に達したフレームやり直しを
	// 再生成ではなく2候補比較へ切り替えるしきい値です。
	AdjudicationThreshold int
	// RevisionThreshold は、バッチ丸ごと却下がこの回数に達したときに
	// プロンプト改訂を（バッチにつき1回だけ）起動するしきい値です。
	RevisionThreshold int
}

// DefaultOptions は推奨されるデフォルト設定を返します。
func DefaultOptions() Options {
	return Options{
		BatchSize:               DefaultBatchSize,
		OverlapSize:             DefaultOverlapSize,
		MaxBatchAttempts:        DefaultMaxBatchAttempts,
		MaxFrameRedoIterations:  DefaultMaxFrameRedoIterations,
		MaxStoryboardRedoCycles: DefaultMaxStoryboardRedoCycles,
		GenerationAttempts:      DefaultGenerationAttempts,
		AdjudicationThreshold:   DefaultAdjudicationThreshold,
		RevisionThreshold:       DefaultRevisionThreshold,
	}
}

// Validate は設定値の整合性を検査します。
func (o Options) Validate() error {
	if o.BatchSize < 1 {
		return fmt.Errorf("BatchSize は 1 以上である必要があります: %d", o.BatchSize)
	}
	if o.OverlapSize < 0 {
		return fmt.Errorf("OverlapSize は 0 以上である必要があります: %d", o.OverlapSize)
	}
	if o.MaxBatchAttempts < 1 {
		return fmt.Errorf("MaxBatchAttempts は 1 以上である必要があります: %d", o.MaxBatchAttempts)
	}
	if o.MaxFrameRedoIterations < 1 {
		return fmt.Errorf("MaxFrameRedoIterations は 1 以上である必要があります: %d", o.MaxFrameRedoIterations)
	}
	if o.MaxStoryboardRedoCycles < 1 {
		return fmt.Errorf("MaxStoryboardRedoCycles は 1 以上である必要があります: %d", o.MaxStoryboardRedoCycles)
	}
	if o.GenerationAttempts < 1 {
		return fmt.Errorf("GenerationAttempts は 1 以上である必要があります: %d", o.GenerationAttempts)
	}
	if o.AdjudicationThreshold < 2 {
		return fmt.Errorf("AdjudicationThreshold は 2 以上である必要があります（初回は必ず再生成するため）: %d", o.AdjudicationThreshold)
	}
	if o.RevisionThreshold < 1 {
		return fmt.Errorf("RevisionThreshold は 1 以上である必要があります: %d", o.RevisionThreshold)
	}
	return nil
}
