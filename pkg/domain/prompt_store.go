package domain

import "fmt"

// PromptStore はストーリーボード全体のプロンプト表です。
// プロンプト改訂による書き換えは必ず Apply を通すため、
// バッチの作業用ビューと後続のオーバーラップ／連続性レビューが常に同じ内容を参照します。
type PromptStore struct {
	prompts []string
}

// NewPromptStore はプロンプト列から新しいストアを生成します。スライスは防御的にコピーします。
func NewPromptStore(prompts []string) *PromptStore {
	copied := make([]string, len(prompts))
	copy(copied, prompts)
	return &PromptStore{prompts: copied}
}

// Len は登録されているプロンプト数を返します。
func (ps *PromptStore) Len() int {
	return len(ps.prompts)
}

// Get は 1 始まりのインデックスでプロンプトを返します。
func (ps *PromptStore) Get(index int) (string, error) {
	if index < 1 || index > len(ps.prompts) {
		return "", fmt.Errorf("プロンプトインデックス %d は範囲外です (1..%d)", index, len(ps.prompts))
	}
	return ps.prompts[index-1], nil
}

// Slice は 1 始まりの区間 [from, to] のプロンプトをコピーして返します。
func (ps *PromptStore) Slice(from, to int) ([]string, error) {
	if from < 1 || to > len(ps.prompts) || from > to {
		return nil, fmt.Errorf("プロンプト区間 [%d, %d] は範囲外です (1..%d)", from, to, len(ps.prompts))
	}
	copied := make([]string, to-from+1)
	copy(copied, ps.prompts[from-1:to])
	return copied, nil
}

// Apply はプロンプト改訂を適用する唯一の書き換え操作です。
func (ps *PromptStore) Apply(index int, updatedPrompt string) error {
	if index < 1 || index > len(ps.prompts) {
		return fmt.Errorf("プロンプトインデックス %d は範囲外です (1..%d)", index, len(ps.prompts))
	}
	ps.prompts[index-1] = updatedPrompt
	return nil
}
