package echo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Run("Returns the prompt", func(t *testing.T) {
		gen, err := New().Generate(context.Background(), "Question: why?\nAnswer:")
		require.NoError(t, err)
		assert.Equal(t, "Question: why?\nAnswer:", gen.Text)
		assert.Equal(t, "stop", gen.StopReason)
		assert.Equal(t, 22, gen.Usage.InputTokens)
		assert.Equal(t, 44, gen.Usage.TotalTokens)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New().Generate(ctx, "prompt")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
