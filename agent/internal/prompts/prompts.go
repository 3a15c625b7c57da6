package prompts

import (
	_ "embed"
	"strings"
)

//go:embed act.md
var actPromptTemplate string

//go:embed act_react.md
var actReactPromptTemplate string

//go:embed extract.md
var extractPrompt string

//go:embed extract_system.md
var extractSystemPrompt string

// Variant selects the act prompt family.
type Variant string

const (
	VariantOpenAI Variant = "openai"
	// VariantQwenVL uses the Obs/Thought/Action format local Qwen-VL models follow better.
	VariantQwenVL Variant = "qwen_vl"
)

// ActSystemPrompt returns the act-mode system prompt with the task appended.
func ActSystemPrompt(variant Variant, task string) string {
	prompt := actPromptTemplate
	if variant == VariantQwenVL {
		prompt = actReactPromptTemplate
	}
	section := ""
	if task != "" {
		section = "\nTask Instruction: " + task + "\n"
	}
	return strings.Replace(prompt, "{{TASK}}", section, 1)
}

// ExtractPrompt returns the fixed extraction instruction.
func ExtractPrompt() string {
	return strings.TrimSpace(extractPrompt)
}

// ExtractSystemPrompt returns the system prompt for extraction calls.
func ExtractSystemPrompt() string {
	return strings.TrimSpace(extractSystemPrompt)
}
