package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	t.Run("Drops stopwords and lower-cases", func(t *testing.T) {
		assert.Equal(t, []string{"sky", "blue"}, Tokenize("The Sky is BLUE."))
	})

	t.Run("Keeps apostrophes inside words", func(t *testing.T) {
		assert.Equal(t, []string{"dog's", "cute"}, Tokenize("The dog's so cute"))
	})

	t.Run("Empty text", func(t *testing.T) {
		assert.Nil(t, Tokenize("  ... "))
	})

	t.Run("Words keeps stopwords", func(t *testing.T) {
		assert.Equal(t, []string{"the", "sky", "is", "blue"}, Words("The sky is blue."))
	})
}

func TestTokenSet(t *testing.T) {
	set := TokenSet("Water is wet, water is cold")
	assert.Len(t, set, 4)
	assert.Contains(t, set, "water")
	assert.Contains(t, set, "cold")
}

func TestSentences(t *testing.T) {
	t.Run("Splits on terminal punctuation", func(t *testing.T) {
		got := Sentences("One thing. Another thing! A question?")
		assert.Equal(t, []string{"One thing.", "Another thing!", "A question?"}, got)
	})

	t.Run("No punctuation yields one sentence", func(t *testing.T) {
		assert.Equal(t, []string{"no punctuation here"}, Sentences("  no punctuation here "))
	})

	t.Run("Trailing text is kept", func(t *testing.T) {
		assert.Equal(t, []string{"A.", "B.", "tail"}, Sentences("A. B. tail"))
	})

	t.Run("Blank text", func(t *testing.T) {
		assert.Nil(t, Sentences(" \n\t "))
	})
}
