package prompts

import (
	"fmt"
	"strings"
)

// BuildScriptPrompt は、ソース文章からストーリーボード台本を生成させる指示文を構築します。
// sceneCount が 0 以下の場合はシーン数をモデルに委ねます。
func BuildScriptPrompt(sourceText string, sceneCount int) string {
	var sb strings.Builder
	sb.WriteString(ScriptSystemInstruction)
	sb.WriteString("\n\n")

	sb.WriteString("### SOURCE TEXT ###\n")
	sb.WriteString(sourceText)
	sb.WriteString("\n\n")

	sb.WriteString("### TASK ###\n")
	if sceneCount > 0 {
		sb.WriteString(fmt.Sprintf("- Produce exactly %d scenes covering the source text in order.\n", sceneCount))
	} else {
		sb.WriteString("- Produce as many scenes as the story naturally needs, in order.\n")
	}
	sb.WriteString("- Every scene prompt must be self-contained: a stranger should be able to draw it without reading the others.\n")
	sb.WriteString("- style_description must hold for every frame of the storyboard.\n\n")

	sb.WriteString(ScriptResponseSchema)
	return sb.String()
}
