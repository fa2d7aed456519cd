package cluster

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// stopwords covers the function words of the two languages the corpus mixes.
var stopwords = map[string]bool{
	// russian
	"это": true, "как": true, "что": true, "или": true, "для": true,
	"при": true, "его": true, "все": true, "так": true, "уже": true,
	"они": true, "она": true, "оно": true, "был": true, "была": true,
	"были": true, "было": true, "есть": true, "еще": true, "ещё": true,
	"если": true, "чтобы": true, "только": true, "также": true, "очень": true,
	"может": true, "быть": true, "будет": true, "этот": true, "эта": true,
	"этой": true, "того": true, "тоже": true, "там": true, "нас": true,
	"вас": true, "них": true, "под": true, "над": true, "про": true,
	"после": true, "перед": true, "между": true, "который": true, "которые": true,
	// english
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"with": true, "this": true, "that": true, "have": true, "has": true,
	"not": true, "but": true, "from": true, "they": true, "will": true,
	"been": true, "were": true, "their": true, "which": true, "would": true,
	"there": true, "about": true, "when": true, "what": true, "your": true,
	"more": true, "can": true, "all": true,
}

// tokenize lowercases the text and keeps alphanumeric runs of three or more
// characters that are not stopwords or pure numbers.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := cur.String()
		cur.Reset()
		if len([]rune(tok)) < 3 || stopwords[tok] {
			return
		}
		numeric := true
		for _, r := range tok {
			if !unicode.IsDigit(r) {
				numeric = false
				break
			}
		}
		if numeric {
			return
		}
		tokens = append(tokens, tok)
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// corpusIDF computes inverse document frequencies over the whole corpus, so
// per-topic keyword scores penalize terms common everywhere.
func corpusIDF(docs []Doc) map[string]float64 {
	df := map[string]int{}
	for _, d := range docs {
		seen := map[string]bool{}
		for _, tok := range tokenize(d.Text) {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}
	idf := make(map[string]float64, len(df))
	n := float64(len(docs))
	for tok, count := range df {
		idf[tok] = math.Log((n + 1) / (float64(count) + 1))
	}
	return idf
}

// topKeywords scores the topic's terms by frequency weighted with corpus IDF
// and returns the n best, ties broken alphabetically.
func topKeywords(texts []string, idf map[string]float64, n int) []string {
	tf := map[string]int{}
	for _, t := range texts {
		for _, tok := range tokenize(t) {
			tf[tok]++
		}
	}

	type scored struct {
		tok   string
		score float64
	}
	all := make([]scored, 0, len(tf))
	for tok, count := range tf {
		weight := idf[tok]
		if weight == 0 {
			weight = 1
		}
		all = append(all, scored{tok: tok, score: float64(count) * weight})
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].score != all[b].score {
			return all[a].score > all[b].score
		}
		return all[a].tok < all[b].tok
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make([]string, 0, len(all))
	for _, s := range all {
		out = append(out, s.tok)
	}
	return out
}
