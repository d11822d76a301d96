// Package prompts は、各協調者（グレーダー・2候補比較・プロンプト改訂・台本生成）へ渡す
// 指示文を構築します。応答はすべて JSON スキーマ付きで要求します。
package prompts

const (
	// GraderSystemInstruction はグレーダーの役割を固定する前置きです。
	GraderSystemInstruction = "You are a strict art director reviewing storyboard frames for visual quality and style consistency."

	// AdjudicatorSystemInstruction は2候補比較の役割を固定する前置きです。
	AdjudicatorSystemInstruction = "You are a strict art director choosing the better of two candidate images for the same storyboard frame."

	// ReviserSystemInstruction はプロンプト改訂の役割を固定する前置きです。
	ReviserSystemInstruction = "You are a prompt engineer rewriting image prompts that repeatedly failed review."

	// ScriptSystemInstruction は台本生成の役割を固定する前置きです。
	ScriptSystemInstruction = "You are a storyboard writer who turns prose into an ordered list of illustration scenes."
)

const (
	// GradeResponseSchema はグレーダー応答の必須 JSON 形式です。
	GradeResponseSchema = `### RESPONSE FORMAT (STRICT JSON, NO PROSE) ###
{
  "outcome": "accept" | "redo_batch" | "redo_frames",
  "findings": [{"frame_index": <int>, "reason": "<catastrophic flaw>"}],
  "summary": "<one paragraph>",
  "batch_reason": "<required when outcome is redo_batch>"
}`

	// AdjudicationResponseSchema は2候補比較応答の必須 JSON 形式です。
	AdjudicationResponseSchema = `### RESPONSE FORMAT (STRICT JSON, NO PROSE) ###
{
  "winner_index": 1 | 2,
  "reasoning": "<why the winner is the safer choice>",
  "catastrophic_candidates": [<1 and/or 2 if unusable>]
}`

	// RevisionResponseSchema はプロンプト改訂応答の必須 JSON 形式です。
	RevisionResponseSchema = `### RESPONSE FORMAT (STRICT JSON, NO PROSE) ###
{
  "summary": "<what was changed and why>",
  "replacements": [{"frame_index": <int>, "updated_prompt": "<full rewritten prompt>", "rationale": "<reason>"}]
}`

	// ScriptResponseSchema は台本生成応答の必須 JSON 形式です。
	ScriptResponseSchema = `### RESPONSE FORMAT (STRICT JSON, NO PROSE) ###
{
  "title": "<storyboard title>",
  "style_description": "<one consistent visual style for every frame>",
  "scenes": [{"prompt": "<self-contained illustration prompt>", "narration": "<optional narration line>"}]
}`
)
