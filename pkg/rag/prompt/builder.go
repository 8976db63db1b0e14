package prompt

import (
	"fmt"
	"strings"

	"repoinsight/pkg/backend"
)

// MaxContextItems caps how many retrieved snippets go into one prompt.
const MaxContextItems = 5

const SystemPrompt = "You are a code analysis assistant. You answer questions about a software repository using only the code context you are given."

// CodeContextBuilder builds the answer prompt for retrieved repository context
type CodeContextBuilder struct {
	question string
	items    []backend.ContextItem
}

func NewCodeContextBuilder(question string, items []backend.ContextItem) *CodeContextBuilder {
	if len(items) > MaxContextItems {
		items = items[:MaxContextItems]
	}
	return &CodeContextBuilder{question: question, items: items}
}

func (b *CodeContextBuilder) Build() string {
	var prompt strings.Builder

	b.writeContext(&prompt)
	b.writeGuidelines(&prompt)
	b.writeQuestion(&prompt)

	return prompt.String()
}

func (b *CodeContextBuilder) writeContext(prompt *strings.Builder) {
	prompt.WriteString("<code_context>\n")
	for i, item := range b.items {
		if i > 0 {
			prompt.WriteString("\n\n")
		}
		fmt.Fprintf(prompt, "File: %s\nContent:\n%s", filePath(item), item.Content)
	}
	prompt.WriteString("\n</code_context>\n\n")
}

func (b *CodeContextBuilder) writeGuidelines(prompt *strings.Builder) {
	prompt.WriteString("<guidelines>\n")
	prompt.WriteString("1. Answer accurately and in detail based on the code context above\n")
	prompt.WriteString("2. Refer to files by their path when you use them\n")
	prompt.WriteString("3. If the context does not contain enough information, say so\n")
	prompt.WriteString("</guidelines>\n\n")
}

func (b *CodeContextBuilder) writeQuestion(prompt *strings.Builder) {
	prompt.WriteString("<question>\n")
	prompt.WriteString(b.question)
	prompt.WriteString("\n</question>")
}

func filePath(item backend.ContextItem) string {
	if item.FilePath == "" {
		return "Unknown"
	}
	return item.FilePath
}
