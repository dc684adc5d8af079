// Package prompt assembles retrieved chunks and a question into a grounded prompt.
package prompt

import (
	"strings"

	"groundedrag/internal/domain"
)

const (
	DefaultInstruction = "Use the following pieces of context to answer the question at the end."
	DefaultSeparator   = "\n\n"
	answerMarker       = "Answer:"
)

// Assembler builds prompts of the form
//
//	<instruction>
//
//	<context>
//
//	Question: <query>
//	Answer:
type Assembler struct {
	instruction string
	separator   string
}

type Option func(*Assembler)

// WithInstruction replaces the leading instruction line.
func WithInstruction(s string) Option {
	return func(a *Assembler) {
		if s != "" {
			a.instruction = s
		}
	}
}

// WithSeparator sets the text placed between chunks in the context section.
func WithSeparator(s string) Option {
	return func(a *Assembler) { a.separator = s }
}

func New(opts ...Option) *Assembler {
	a := &Assembler{instruction: DefaultInstruction, separator: DefaultSeparator}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble joins the chunk texts in the given order. An empty result set
// yields the same template with an empty context section.
func (a *Assembler) Assemble(results []domain.SearchResult, query string) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}

	var b strings.Builder
	b.WriteString(a.instruction)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(texts, a.separator))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n")
	b.WriteString(answerMarker)
	return b.String()
}
