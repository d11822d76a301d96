package review

import (
	"strings"
	"testing"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

func TestExtractJSON(t *testing.T) {
	t.Run("jsonコードフェンスから本体を取り出せるのだ", func(t *testing.T) {
		raw := "説明文なのだ。\n```json\n{\"outcome\": \"accept\"}\n```\n以上なのだ。"
		got := ExtractJSON(raw)
		if got != `{"outcome": "accept"}` {
			t.Errorf("フェンス内のJSONが取り出せていないのだ: %q", got)
		}
	})

	t.Run("言語指定なしのフェンスでも取り出せるのだ", func(t *testing.T) {
		raw := "```\n{\"outcome\": \"accept\"}\n```"
		got := ExtractJSON(raw)
		if got != `{"outcome": "accept"}` {
			t.Errorf("取り出し結果が違うのだ: %q", got)
		}
	})

	t.Run("フェンスがなければ最外の波括弧で切り出すのだ", func(t *testing.T) {
		raw := `判定結果は {"outcome": "accept", "findings": []} です。`
		got := ExtractJSON(raw)
		if !strings.HasPrefix(got, "{") || !strings.HasSuffix(got, "}") {
			t.Errorf("波括弧フォールバックが効いていないのだ: %q", got)
		}
	})

	t.Run("波括弧もなければ全体をそのまま返すのだ", func(t *testing.T) {
		raw := "  plain text  "
		if got := ExtractJSON(raw); got != "plain text" {
			t.Errorf("全体フォールバックが効いていないのだ: %q", got)
		}
	})
}

func TestParseGradeResult(t *testing.T) {
	t.Run("フェンス付き応答をGradeResultにできるのだ", func(t *testing.T) {
		raw := "```json\n" + `{
			"outcome": "redo_frames",
			"findings": [{"frame_index": 6, "reason": "服装が違う"}],
			"summary": "概ね良好"
		}` + "\n```"

		result, err := parseGradeResult(raw)
		if err != nil {
			t.Fatalf("パース失敗なのだ: %v", err)
		}
		if result.Outcome != domain.OutcomeRedoFrames {
			t.Errorf("outcome が違うのだ: %s", result.Outcome)
		}
		if len(result.Findings) != 1 || result.Findings[0].FrameIndex != 6 {
			t.Errorf("findings が正しくパースされていないのだ: %+v", result.Findings)
		}
	})

	t.Run("未知のoutcomeはエラーなのだ", func(t *testing.T) {
		if _, err := parseGradeResult(`{"outcome": "maybe"}`); err == nil {
			t.Error("不正な outcome を受理してはいけないのだ")
		}
	})

	t.Run("JSONでない応答はエラーなのだ", func(t *testing.T) {
		if _, err := parseGradeResult("すべて良好でした！"); err == nil {
			t.Error("非JSON応答を受理してはいけないのだ")
		}
	})
}

func TestParseAdjudicationResult(t *testing.T) {
	t.Run("勝者インデックスを取り出せるのだ", func(t *testing.T) {
		result, err := parseAdjudicationResult(`{"winner_index": 2, "reasoning": "最新候補の方が指の破綻がない"}`)
		if err != nil {
			t.Fatalf("パース失敗なのだ: %v", err)
		}
		if result.WinnerIndex != 2 {
			t.Errorf("winner_index が違うのだ: %d", result.WinnerIndex)
		}
	})

	t.Run("1でも2でもない勝者はエラーなのだ", func(t *testing.T) {
		if _, err := parseAdjudicationResult(`{"winner_index": 3}`); err == nil {
			t.Error("不正な winner_index を受理してはいけないのだ")
		}
		if _, err := parseAdjudicationResult(`{"reasoning": "決められない"}`); err == nil {
			t.Error("勝者なしの応答を受理してはいけないのだ")
		}
	})
}

func TestParseRevisionResult(t *testing.T) {
	t.Run("置換リストを取り出せるのだ", func(t *testing.T) {
		raw := `{
			"summary": "画風指定を明示",
			"replacements": [
				{"frame_index": 2, "updated_prompt": "p2 (水彩で統一)", "rationale": "画風の明示"}
			]
		}`
		result, err := parseRevisionResult(raw)
		if err != nil {
			t.Fatalf("パース失敗なのだ: %v", err)
		}
		if len(result.Replacements) != 1 || result.Replacements[0].FrameIndex != 2 {
			t.Errorf("replacements が正しくパースされていないのだ: %+v", result.Replacements)
		}
	})
}
