package domain

import "fmt"

// Image は生成された画像データとMIMEタイプを保持します。
type Image struct {
	Data     []byte
	MimeType string
}

// IsEmpty は画像データが空かどうかを返します。
func (img Image) IsEmpty() bool {
	return len(img.Data) == 0
}

// Frame はストーリーボードの1コマを表します。
// 生成開始後は常にプロンプト数と同じ数のフレームが存在し、
// 再生成（バッチやり直し・フレームやり直し・連続性修正）では画像をその場で差し替えます。
type Frame struct {
	// Index はストーリーボード全体での 1 始まりの位置です。
	Index  int
	Prompt string
	Image  Image

	// Accepted は連続性レビューアの承認ビットです。
	// 再生成されたフレームは必ず false に戻ります。
	Accepted bool
}

// Frames はストーリーボード全体のフレーム列です。
type Frames []Frame

// ReviewTargets は承認ビットが立っていないフレームのインデックス（1始まり）を順序通り返します。
func (fs Frames) ReviewTargets() []int {
	var targets []int
	for _, f := range fs {
		if !f.Accepted {
			targets = append(targets, f.Index)
		}
	}
	return targets
}

// LockedTargets は承認済みフレームのインデックス（1始まり）を順序通り返します。
func (fs Frames) LockedTargets() []int {
	var locked []int
	for _, f := range fs {
		if f.Accepted {
			locked = append(locked, f.Index)
		}
	}
	return locked
}

// TrailingImages は末尾から最大 n 枚の画像を元の順序で返します。
// オーバーラップウィンドウ（直前バッチの承認済みフレームをスタイル文脈として引き継ぐ仕組み）に使います。
func (fs Frames) TrailingImages(n int) []Image {
	if n <= 0 || len(fs) == 0 {
		return nil
	}
	start := len(fs) - n
	if start < 0 {
		start = 0
	}
	images := make([]Image, 0, len(fs)-start)
	for _, f := range fs[start:] {
		if !f.Image.IsEmpty() {
			images = append(images, f.Image)
		}
	}
	return images
}

// At は 1 始まりのインデックスでフレームへのポインタを返します。範囲外は nil です。
func (fs Frames) At(index int) *Frame {
	if index < 1 || index > len(fs) {
		return nil
	}
	return &fs[index-1]
}

// String はデバッグ用の要約を返します。
func (f Frame) String() string {
	return fmt.Sprintf("frame %d (accepted=%t, %d bytes)", f.Index, f.Accepted, len(f.Image.Data))
}
