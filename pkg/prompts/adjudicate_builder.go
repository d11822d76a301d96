package prompts

import (
	"fmt"
	"strings"
)

// BuildAdjudicationPrompt は2候補比較の指示文を構築します。
// 候補1が前回の画像、候補2が最新の再生成結果です。
func BuildAdjudicationPrompt(framePrompt, previousURI, latestURI string) string {
	var sb strings.Builder
	sb.WriteString(AdjudicatorSystemInstruction)
	sb.WriteString("\n\n")

	sb.WriteString("### FRAME PROMPT ###\n")
	sb.WriteString(framePrompt)
	sb.WriteString("\n\n")

	sb.WriteString("### CANDIDATES ###\n")
	sb.WriteString(fmt.Sprintf("- CANDIDATE 1 (previous attempt): %s\n", previousURI))
	sb.WriteString(fmt.Sprintf("- CANDIDATE 2 (latest attempt): %s\n\n", latestURI))

	sb.WriteString("### TASK ###\n")
	sb.WriteString("- Pick exactly one winner. Prefer the candidate a reader would not notice as flawed.\n")
	sb.WriteString("- List a candidate in catastrophic_candidates only if it is unusable on its own.\n\n")

	sb.WriteString(AdjudicationResponseSchema)
	return sb.String()
}
