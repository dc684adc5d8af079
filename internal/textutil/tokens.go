// Package textutil holds the tokenizer, stopword list and sentence splitter
// shared by the embedder, summarizer, chunker and TUI.
package textutil

import (
	"regexp"
	"strings"
)

var (
	wordRe     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	stopwords  = buildStopwords()
)

// Words returns the lower-cased word tokens of text, stopwords included.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// Tokenize returns the lower-cased word tokens of text without stopwords.
func Tokenize(text string) []string {
	raw := Words(text)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TokenSet returns the distinct words of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Words(text)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// IsStopword reports whether the lower-cased token is an English stopword.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// Sentences splits text on terminal punctuation. Any text after the last
// terminator, or the whole text when there is none, is kept as a final
// sentence; blank text yields nil.
func Sentences(text string) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	end := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		add(text[end:loc[1]])
		end = loc[1]
	}
	add(text[end:])
	return out
}

func buildStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
