package domain

// CandidateLog はフレームごとの候補画像の追記専用ログです。
// バッチ処理中のやり直しで生成された画像を順番に記録し、
// 再生成が収束しない場合の2候補比較（前回候補 vs 最新候補）に使います。
// フレームが採用された時点でリセットされます。
type CandidateLog struct {
	candidates map[int][]Image
}

// NewCandidateLog は空のログを生成します。
func NewCandidateLog() *CandidateLog {
	return &CandidateLog{candidates: make(map[int][]Image)}
}

// Append は指定フレームの候補履歴に画像を追記します。
func (cl *CandidateLog) Append(frameIndex int, img Image) {
	cl.candidates[frameIndex] = append(cl.candidates[frameIndex], img)
}

// Count は指定フレームの候補数を返します。
func (cl *CandidateLog) Count(frameIndex int) int {
	return len(cl.candidates[frameIndex])
}

// LastTwo は指定フレームの直近2候補を (前回, 最新) の順で返します。
// 候補が2つ未満の場合は ok=false です。
func (cl *CandidateLog) LastTwo(frameIndex int) (previous, latest Image, ok bool) {
	history := cl.candidates[frameIndex]
	if len(history) < 2 {
		return Image{}, Image{}, false
	}
	return history[len(history)-2], history[len(history)-1], true
}

// Reset は指定フレームの履歴を破棄します。
func (cl *CandidateLog) Reset(frameIndex int) {
	delete(cl.candidates, frameIndex)
}

// ResetAll は全フレームの履歴を破棄します。バッチ採用時に呼びます。
func (cl *CandidateLog) ResetAll() {
	cl.candidates = make(map[int][]Image)
}
