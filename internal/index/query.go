package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// Clause is one query predicate. Clauses score the documents they match.
//
// prepare compiles the clause for the SQLite backend; source renders it as Elasticsearch query DSL.
type Clause interface {
	prepare(c *corpus) (matcher, error)
	source(songs string) (body, error)
}

type matcher func(d models.SongDoc) (score float64, ok bool)

// Bool combines clauses. A document matches when every Must and Filter clause matches and at
// least MinimumShouldMatch Should clauses match. With no Must or Filter clauses, at least one
// Should clause must match. An empty Bool matches every document.
//
// Filter clauses never contribute to the score.
type Bool struct {
	Must               []Clause
	Should             []Clause
	Filter             []Clause
	MinimumShouldMatch int
}

func (b Bool) prepare(c *corpus) (matcher, error) {
	must, err := prepareAll(c, b.Must)
	if err != nil {
		return nil, err
	}
	should, err := prepareAll(c, b.Should)
	if err != nil {
		return nil, err
	}
	filter, err := prepareAll(c, b.Filter)
	if err != nil {
		return nil, err
	}

	minShould := b.MinimumShouldMatch
	if minShould == 0 && len(must) == 0 && len(filter) == 0 && len(should) > 0 {
		minShould = 1
	}
	scoring := len(must) > 0 || len(should) > 0

	return func(d models.SongDoc) (float64, bool) {
		var score float64
		for _, m := range filter {
			if _, ok := m(d); !ok {
				return 0, false
			}
		}
		for _, m := range must {
			s, ok := m(d)
			if !ok {
				return 0, false
			}
			score += s
		}

		matched := 0
		for _, m := range should {
			if s, ok := m(d); ok {
				matched++
				score += s
			}
		}
		if matched < minShould {
			return 0, false
		}

		if !scoring {
			score = 1
		}
		return score, true
	}, nil
}

func prepareAll(c *corpus, clauses []Clause) ([]matcher, error) {
	out := make([]matcher, 0, len(clauses))
	for _, clause := range clauses {
		m, err := clause.prepare(c)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Term matches documents whose keyword field equals Value exactly.
type Term struct {
	Field Field
	Value string
}

func (t Term) prepare(*corpus) (matcher, error) {
	if err := t.Field.validateKeyword(); err != nil {
		return nil, err
	}
	return func(d models.SongDoc) (float64, bool) {
		return 1, keyword(d, t.Field) == t.Value
	}, nil
}

// Terms matches documents whose keyword field equals any of Values.
type Terms struct {
	Field  Field
	Values []string
}

func (t Terms) prepare(*corpus) (matcher, error) {
	if err := t.Field.validateKeyword(); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(t.Values))
	for _, v := range t.Values {
		set[v] = true
	}
	return func(d models.SongDoc) (float64, bool) {
		return 1, set[keyword(d, t.Field)]
	}, nil
}

// Match tokenizes Text and matches documents sharing at least one token with the field.
// Scores sum the inverse document frequency of the shared tokens.
type Match struct {
	Field Field
	Text  string
}

func (m Match) prepare(c *corpus) (matcher, error) {
	if err := m.Field.validateKeyword(); err != nil {
		return nil, err
	}
	terms := uniqueTokens(m.Text)
	return func(d models.SongDoc) (float64, bool) {
		have := c.tokens(d.SongID, m.Field)
		var score float64
		for _, t := range terms {
			if have[t] {
				score += c.idf(m.Field, t)
			}
		}
		return score, score > 0
	}, nil
}

// newCorpus indexes docs for term statistics.
func newCorpus(docs []models.SongDoc) *corpus {
	c := &corpus{
		docs:  docs,
		byID:  make(map[int64]models.SongDoc, len(docs)),
		terms: make(map[int64]map[Field]map[string]bool, len(docs)),
		df:    make(map[Field]map[string]int),
	}
	for _, d := range docs {
		c.byID[d.SongID] = d
		perField := make(map[Field]map[string]bool, 4)
		for _, f := range []Field{FieldTitle, FieldArtistName, FieldAlbumTitle, FieldGenreName} {
			set := make(map[string]bool)
			for _, t := range tokenize(keyword(d, f)) {
				set[t] = true
			}
			perField[f] = set
			if c.df[f] == nil {
				c.df[f] = make(map[string]int)
			}
			for t := range set {
				c.df[f][t]++
			}
		}
		c.terms[d.SongID] = perField
	}
	return c
}

// corpus is the document set one query runs against, with per-field term statistics.
type corpus struct {
	docs  []models.SongDoc
	byID  map[int64]models.SongDoc
	terms map[int64]map[Field]map[string]bool
	df    map[Field]map[string]int
}

func (c *corpus) tokens(songID int64, f Field) map[string]bool {
	return c.terms[songID][f]
}

// idf is the BM25 inverse document frequency of a term in a field.
func (c *corpus) idf(f Field, term string) float64 {
	n := float64(len(c.docs))
	df := float64(c.df[f][term])
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// run evaluates a request against the corpus.
func (c *corpus) run(req SearchRequest) ([]Hit, error) {
	m, err := req.Query.prepare(c)
	if err != nil {
		return nil, err
	}
	for _, s := range req.Sort {
		if !s.Field.Numeric() {
			return nil, fmt.Errorf("%w: cannot sort on %q", shared.ErrInvalidInput, s.Field)
		}
	}

	hits := make([]Hit, 0)
	for _, d := range c.docs {
		score, ok := m(d)
		if !ok {
			continue
		}
		if req.RandomScore != nil {
			score = randomScore(req.RandomScore.Seed, d.SongID)
		}
		hits = append(hits, Hit{Doc: d, Score: score})
	}

	sortHits(hits, req.Sort)
	if req.Size > 0 && len(hits) > req.Size {
		hits = hits[:req.Size]
	}
	return hits, nil
}

// sortHits orders by the sort specs, then score descending, then song id ascending.
func sortHits(hits []Hit, specs []SortSpec) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		for _, s := range specs {
			av, bv := numeric(a.Doc, s.Field), numeric(b.Doc, s.Field)
			if av == bv {
				continue
			}
			if s.Desc {
				return av > bv
			}
			return av < bv
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Doc.SongID < b.Doc.SongID
	})
}

// randomScore maps (seed, id) to [0, 1).
func randomScore(seed, songID int64) float64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(seed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(songID))
	return float64(xxhash.Sum64(buf[:])>>11) / (1 << 53)
}

// aggregate groups matching docs by a keyword field.
func (c *corpus) aggregate(agg TermsAggregation) ([]Bucket, map[string][]Hit, error) {
	if err := agg.Field.validateKeyword(); err != nil {
		return nil, nil, err
	}

	hits, err := c.run(SearchRequest{Query: agg.Query})
	if err != nil {
		return nil, nil, err
	}

	grouped := make(map[string][]Hit)
	for _, h := range hits {
		key := keyword(h.Doc, agg.Field)
		grouped[key] = append(grouped[key], h)
	}

	minCount := max(agg.MinDocCount, 1)
	buckets := make([]Bucket, 0, len(grouped))
	for key, group := range grouped {
		if len(group) >= minCount {
			buckets = append(buckets, Bucket{Key: key, DocCount: len(group)})
		}
	}

	slices.SortFunc(buckets, func(a, b Bucket) int {
		if a.DocCount != b.DocCount {
			return b.DocCount - a.DocCount
		}
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})

	if agg.Size > 0 && len(buckets) > agg.Size {
		buckets = buckets[:agg.Size]
	}
	return buckets, grouped, nil
}

func (c *corpus) topHits(agg TopHitsAggregation) ([]BucketHits, error) {
	for _, s := range agg.Sort {
		if !s.Field.Numeric() {
			return nil, fmt.Errorf("%w: cannot sort on %q", shared.ErrInvalidInput, s.Field)
		}
	}

	buckets, grouped, err := c.aggregate(agg.TermsAggregation)
	if err != nil {
		return nil, err
	}

	out := make([]BucketHits, 0, len(buckets))
	for _, b := range buckets {
		group := slices.Clone(grouped[b.Key])
		sortHits(group, agg.Sort)
		if agg.PerBucket > 0 && len(group) > agg.PerBucket {
			group = group[:agg.PerBucket]
		}
		out = append(out, BucketHits{Bucket: b, Hits: group})
	}
	return out, nil
}
