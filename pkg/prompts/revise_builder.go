package prompts

import (
	"fmt"
	"strings"
)

// RevisionTarget は改訂対象のプロンプト1件です。
type RevisionTarget struct {
	FrameIndex int
	Prompt     string
	Narration  string
}

// BuildRevisionPrompt はプロンプト改訂の指示文を構築します。
// failureSummaries には、そのバッチが丸ごと却下されたときの理由の蓄積を渡します。
func BuildRevisionPrompt(targets []RevisionTarget, failureSummaries []string) string {
	var sb strings.Builder
	sb.WriteString(ReviserSystemInstruction)
	sb.WriteString("\n\n")

	sb.WriteString("### CURRENT PROMPTS ###\n")
	for _, t := range targets {
		sb.WriteString(fmt.Sprintf("- FRAME %d: %s\n", t.FrameIndex, t.Prompt))
		if t.Narration != "" {
			sb.WriteString(fmt.Sprintf("  (narration context: %s)\n", t.Narration))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("### ACCUMULATED FAILURE FEEDBACK ###\n")
	for i, summary := range failureSummaries {
		sb.WriteString(fmt.Sprintf("- ATTEMPT %d: %s\n", i+1, summary))
	}
	sb.WriteString("\n")

	sb.WriteString("### TASK ###\n")
	sb.WriteString("- Rewrite the prompts most likely responsible for the repeated rejections.\n")
	sb.WriteString("- Keep the scene's meaning; change composition, framing, or phrasing that misleads the image model.\n")
	sb.WriteString("- Return replacements only for frames you actually changed. Returning none is acceptable.\n\n")

	sb.WriteString(RevisionResponseSchema)
	return sb.String()
}
