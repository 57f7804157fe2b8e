package index

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// MoreLikeThis ranks documents by the terms they share with a set of seed documents.
//
// Terms are drawn from the seeds' Fields. A term is kept when it appears at least MinTermFreq
// times across the seeds and in at least MinDocFreq documents; the MaxQueryTerms terms with the
// highest tf-idf form the query. Seeds are never returned.
type MoreLikeThis struct {
	Fields        []Field
	Like          []int64
	MinTermFreq   int
	MaxQueryTerms int
	MinDocFreq    int
}

type queryTerm struct {
	field  Field
	term   string
	weight float64
}

func (q MoreLikeThis) prepare(c *corpus) (matcher, error) {
	if len(q.Fields) == 0 {
		return nil, fmt.Errorf("%w: more-like-this needs at least one field", shared.ErrInvalidInput)
	}
	for _, f := range q.Fields {
		if err := f.validateKeyword(); err != nil {
			return nil, err
		}
	}

	terms := q.selectTerms(c)
	seeds := make(map[int64]bool, len(q.Like))
	for _, id := range q.Like {
		seeds[id] = true
	}

	return func(d models.SongDoc) (float64, bool) {
		if seeds[d.SongID] {
			return 0, false
		}
		var score float64
		for _, t := range terms {
			if c.tokens(d.SongID, t.field)[t.term] {
				score += c.idf(t.field, t.term)
			}
		}
		return score, score > 0
	}, nil
}

// selectTerms picks the query terms from the seed documents present in the corpus.
func (q MoreLikeThis) selectTerms(c *corpus) []queryTerm {
	minTF := max(q.MinTermFreq, 1)
	minDF := max(q.MinDocFreq, 1)
	maxTerms := q.MaxQueryTerms
	if maxTerms <= 0 {
		maxTerms = 25
	}

	type key struct {
		field Field
		term  string
	}
	tf := make(map[key]int)
	for _, id := range q.Like {
		d, ok := c.byID[id]
		if !ok {
			continue
		}
		for _, f := range q.Fields {
			for _, t := range tokenize(keyword(d, f)) {
				tf[key{f, t}]++
			}
		}
	}

	terms := make([]queryTerm, 0, len(tf))
	for k, freq := range tf {
		if freq < minTF || c.df[k.field][k.term] < minDF {
			continue
		}
		terms = append(terms, queryTerm{field: k.field, term: k.term, weight: float64(freq) * c.idf(k.field, k.term)})
	}

	slices.SortFunc(terms, func(a, b queryTerm) int {
		switch {
		case a.weight > b.weight:
			return -1
		case a.weight < b.weight:
			return 1
		}
		if c := strings.Compare(string(a.field), string(b.field)); c != 0 {
			return c
		}
		return strings.Compare(a.term, b.term)
	})

	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}
	return terms
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func uniqueTokens(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range tokenize(s) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
