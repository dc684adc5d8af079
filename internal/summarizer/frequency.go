package summarizer

import (
	"math"
	"slices"
	"strings"

	"groundedrag/internal/textutil"
)

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered).
type FrequencySummarizer struct{}

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{}
}

// Summarize returns up to maxSentences of the highest scoring sentences in
// their original order. A non-positive maxSentences means 5.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return "", nil
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range textutil.Tokenize(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		words := textutil.Words(sent)
		sscore := 0.0
		for _, tok := range words {
			sscore += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(words)); l > 0 {
			sscore /= math.Sqrt(l)
		}
		scores[i] = pair{i, sscore}
	}
	slices.SortStableFunc(scores, func(a, b pair) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	// Keep original order among selected
	selected := make([]int, min(maxSentences, len(scores)))
	for i := range selected {
		selected[i] = scores[i].idx
	}
	slices.Sort(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// BestSentence returns the sentence of text sharing the most words with
// query, scored with the Ochiai coefficient |A∩B| / sqrt(|A||B|). The first
// sentence wins ties; an empty string is returned for blank text.
func BestSentence(text, query string) string {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return ""
	}
	qset := map[string]struct{}{}
	for _, t := range textutil.Tokenize(query) {
		qset[t] = struct{}{}
	}
	best, bestScore := sentences[0], 0.0
	for _, sent := range sentences {
		if score := ochiai(qset, sent); score > bestScore {
			best, bestScore = sent, score
		}
	}
	return best
}

func ochiai(qset map[string]struct{}, text string) float64 {
	seen := map[string]struct{}{}
	inter := 0
	for _, t := range textutil.Tokenize(text) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
