package domain

import (
	"encoding/json"
	"fmt"
)

// Scene はストーリーボード上の1フレーム分の台本（描画指示とナレーション）です。
type Scene struct {
	Prompt    string `json:"prompt"`
	Narration string `json:"narration,omitempty"`
}

// StoryboardScript は AI モデルから返される台本全体の構造です。
type StoryboardScript struct {
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	StyleDescription string  `json:"style_description,omitempty"`
	Scenes           []Scene `json:"scenes"`
}

// Prompts は各シーンの描画プロンプトを順序通り抽出します。
func (s StoryboardScript) Prompts() []string {
	prompts := make([]string, 0, len(s.Scenes))
	for _, scene := range s.Scenes {
		prompts = append(prompts, scene.Prompt)
	}
	return prompts
}

// NarrationByIndex はフレームインデックス（1始まり）からナレーションへの表を返します。
// ナレーションのないシーンは含めません。
func (s StoryboardScript) NarrationByIndex() map[int]string {
	narration := make(map[int]string)
	for i, scene := range s.Scenes {
		if scene.Narration != "" {
			narration[i+1] = scene.Narration
		}
	}
	return narration
}

// GetScript はJSONバイト列から台本をパースして返します。
func GetScript(scriptJSON []byte) (StoryboardScript, error) {
	var script StoryboardScript
	if err := json.Unmarshal(scriptJSON, &script); err != nil {
		return StoryboardScript{}, fmt.Errorf("台本JSONのパースに失敗しました: %w", err)
	}
	if len(script.Scenes) == 0 {
		return StoryboardScript{}, fmt.Errorf("台本にシーンが含まれていません")
	}
	for i, scene := range script.Scenes {
		if scene.Prompt == "" {
			return StoryboardScript{}, fmt.Errorf("シーン %d のプロンプトが空です", i+1)
		}
	}
	return script, nil
}
