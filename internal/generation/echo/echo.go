// Package echo provides a Generator that returns the prompt unchanged.
// It needs no network access and is used for demos and tests.
package echo

import (
	"context"
	"unicode/utf8"

	"groundedrag/internal/domain"
)

type Generator struct{}

func New() *Generator { return &Generator{} }

func (*Generator) Name() string { return "echo" }

// Generate returns prompt as the generated text. Token counts are rune counts.
func (*Generator) Generate(ctx context.Context, prompt string) (*domain.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := utf8.RuneCountInString(prompt)
	return &domain.Generation{
		Text:       prompt,
		Model:      "echo",
		StopReason: "stop",
		Usage:      domain.Usage{InputTokens: n, OutputTokens: n, TotalTokens: 2 * n},
	}, nil
}
