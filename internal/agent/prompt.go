package agent

import "strings"

// Terminal-answer delimiters. The assembler advertises them in the
// system prompt and the loop's completion detector checks for them
// through ExtractAnswer, so the convention cannot drift.
const (
	answerOpenTag  = "<answer>"
	answerCloseTag = "</answer>"
)

const basePromptTemplate = `You are a deep research assistant. Your core function is to conduct thorough, multi-source investigations into any topic. You must handle both broad, open-domain inquiries and queries within specialized academic fields. For every request, synthesize information from credible, diverse sources to deliver a comprehensive, accurate, and objective response.

When you have gathered sufficient information and are ready to provide the definitive response, you must enclose the entire final answer within ` + answerOpenTag + answerCloseTag + ` tags. Do not use the tags for intermediate reasoning, partial findings, or status updates. Anything outside the tags is treated as working notes, not as your answer.`

const toolGuidance = `

You may call the provided tools to gather information. Issue tool calls whenever external facts are needed; do not fabricate sources. Multiple tool calls in one turn run in parallel, so batch independent lookups together.`

// PromptBundle is the deterministic output of one assembly: the system
// prompt plus the specs of the enabled tools in catalog order.
type PromptBundle struct {
	SystemPrompt string
	ToolSpecs    []ToolSpec
}

// PromptAssembler builds the system prompt and tool-spec block from a
// single source of truth. Identical inputs always produce identical
// output; no timestamps or other ambient state are embedded.
type PromptAssembler struct {
	registry *ToolRegistry
}

// NewPromptAssembler creates an assembler over the given tool catalog.
func NewPromptAssembler(registry *ToolRegistry) *PromptAssembler {
	return &PromptAssembler{registry: registry}
}

// Build returns the system prompt and tool specs for the enabled tool
// subset. Custom instructions are included verbatim, never reinterpreted.
func (a *PromptAssembler) Build(enabledTools []string, customInstructions string) PromptBundle {
	specs := a.registry.ListSpecs(enabledTools)

	var sb strings.Builder
	sb.WriteString(basePromptTemplate)

	if len(specs) > 0 {
		sb.WriteString(toolGuidance)
	}

	if custom := strings.TrimSpace(customInstructions); custom != "" {
		sb.WriteString("\n\n## Additional Instructions\n\n")
		sb.WriteString(custom)
	}

	return PromptBundle{
		SystemPrompt: sb.String(),
		ToolSpecs:    specs,
	}
}

// ExtractAnswer returns the text between the terminal-answer delimiters
// and true when content matches the convention. Free text without both
// delimiters is not a terminal answer.
func ExtractAnswer(content string) (string, bool) {
	open := strings.Index(content, answerOpenTag)
	if open < 0 {
		return "", false
	}
	rest := content[open+len(answerOpenTag):]
	end := strings.LastIndex(rest, answerCloseTag)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
