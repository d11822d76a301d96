package prompts

import (
	"fmt"
	"strings"
)

// FrameRef はプロンプト本文に埋め込むフレーム参照（File API URI 付き）です。
type FrameRef struct {
	Index   int
	Prompt  string
	FileURI string
}

// BuildGradePrompt はグレーディング指示文を構築します。
// contextFrames は文脈としてのみ提示し、指摘対象から明示的に除外します。
func BuildGradePrompt(styleDescription string, styleURIs []string, frames, contextFrames []FrameRef, checkNewOnly bool) string {
	var sb strings.Builder
	sb.WriteString(GraderSystemInstruction)
	sb.WriteString("\n\n")

	writeStyleSection(&sb, styleDescription, styleURIs)

	if len(contextFrames) > 0 {
		sb.WriteString("### CONTEXT FRAMES (ALREADY ACCEPTED - DO NOT FLAG, DO NOT MENTION IN FINDINGS) ###\n")
		for _, f := range contextFrames {
			sb.WriteString(fmt.Sprintf("- FRAME %d: %s (image: %s)\n", f.Index, f.Prompt, f.FileURI))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("### FRAMES UNDER REVIEW ###\n")
	for _, f := range frames {
		sb.WriteString(fmt.Sprintf("- FRAME %d: %s (image: %s)\n", f.Index, f.Prompt, f.FileURI))
	}
	sb.WriteString("\n")

	sb.WriteString("### TASK ###\n")
	if checkNewOnly {
		sb.WriteString("- Judge ONLY the frames under review. Context frames are reference material for style and continuity.\n")
	} else {
		sb.WriteString("- Judge every frame under review as a coherent set.\n")
	}
	sb.WriteString("- outcome \"accept\": the set is publishable as-is.\n")
	sb.WriteString("- outcome \"redo_frames\": only the listed findings are catastrophically flawed; the rest is fine.\n")
	sb.WriteString("- outcome \"redo_batch\": the whole set must be discarded (state why in batch_reason).\n")
	sb.WriteString("- findings may ONLY reference frame indices listed under FRAMES UNDER REVIEW.\n\n")

	sb.WriteString(GradeResponseSchema)
	return sb.String()
}

func writeStyleSection(sb *strings.Builder, styleDescription string, styleURIs []string) {
	sb.WriteString("### TARGET STYLE ###\n")
	if styleDescription != "" {
		sb.WriteString(fmt.Sprintf("- DESCRIPTION: %s\n", styleDescription))
	}
	for i, uri := range styleURIs {
		sb.WriteString(fmt.Sprintf("- STYLE REFERENCE %d: %s\n", i+1, uri))
	}
	sb.WriteString("\n")
}
