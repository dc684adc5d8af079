package tfidf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []string{
	"The sky is blue.",
	"The grass is green.",
	"Water is wet.",
}

func TestPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("Builds a sorted vocabulary", func(t *testing.T) {
		e := NewEmbedder()
		require.NoError(t, e.Prepare(ctx, corpus))

		// blue, grass, green, sky, water, wet
		assert.Equal(t, 6, e.Dimension())
		assert.Equal(t, 0, e.vocabulary["blue"])
		assert.Equal(t, 5, e.vocabulary["wet"])
	})

	t.Run("Empty corpus", func(t *testing.T) {
		e := NewEmbedder()
		assert.Error(t, e.Prepare(ctx, nil))
	})

	t.Run("Corpus of stopwords only", func(t *testing.T) {
		e := NewEmbedder()
		err := e.Prepare(ctx, []string{"the and or", "is it"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no tokens")
	})
}

func TestEmbed(t *testing.T) {
	ctx := context.Background()

	t.Run("Fails before prepare", func(t *testing.T) {
		_, err := NewEmbedder().Embed(ctx, "sky")
		assert.Error(t, err)
	})

	t.Run("Vectors are unit length", func(t *testing.T) {
		e := NewEmbedder()
		require.NoError(t, e.Prepare(ctx, corpus))

		v, err := e.Embed(ctx, "What color is the sky?")
		require.NoError(t, err)
		require.Len(t, v, 6)

		sum := 0.0
		for _, x := range v {
			sum += x * x
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		assert.Greater(t, v[e.vocabulary["sky"]], 0.0)
	})

	t.Run("Unknown terms give the zero vector", func(t *testing.T) {
		e := NewEmbedder()
		require.NoError(t, e.Prepare(ctx, corpus))

		v, err := e.Embed(ctx, "completely unrelated")
		require.NoError(t, err)
		for _, x := range v {
			assert.Zero(t, x)
		}
	})

	t.Run("Same corpus yields the same space", func(t *testing.T) {
		a, b := NewEmbedder(), NewEmbedder()
		require.NoError(t, a.Prepare(ctx, corpus))
		require.NoError(t, b.Prepare(ctx, corpus))

		va, err := a.Embed(ctx, "green grass")
		require.NoError(t, err)
		vb, err := b.Embed(ctx, "green grass")
		require.NoError(t, err)
		assert.Equal(t, va, vb)
	})
}
