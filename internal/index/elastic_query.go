package index

import (
	"fmt"
	"strconv"

	"github.com/desertthunder/tunedex/internal/shared"
)

// maxResultWindow is the Elasticsearch default cap on from+size. Unbounded requests are clamped to it.
const maxResultWindow = 10000

// body is a JSON object in the Elasticsearch query DSL.
type body = map[string]any

// exact names the keyword subfield used for term lookups and aggregations.
func exact(f Field) string {
	if f.Keyword() {
		return string(f) + ".keyword"
	}
	return string(f)
}

func (b Bool) source(songs string) (body, error) {
	if len(b.Must) == 0 && len(b.Should) == 0 && len(b.Filter) == 0 {
		return body{"match_all": body{}}, nil
	}

	inner := body{}
	for name, clauses := range map[string][]Clause{"must": b.Must, "should": b.Should, "filter": b.Filter} {
		if len(clauses) == 0 {
			continue
		}
		list := make([]any, 0, len(clauses))
		for _, c := range clauses {
			src, err := c.source(songs)
			if err != nil {
				return nil, err
			}
			list = append(list, src)
		}
		inner[name] = list
	}
	if b.MinimumShouldMatch > 0 {
		inner["minimum_should_match"] = b.MinimumShouldMatch
	}
	return body{"bool": inner}, nil
}

func (t Term) source(string) (body, error) {
	if err := t.Field.validateKeyword(); err != nil {
		return nil, err
	}
	return body{"term": body{exact(t.Field): t.Value}}, nil
}

func (t Terms) source(string) (body, error) {
	if err := t.Field.validateKeyword(); err != nil {
		return nil, err
	}
	values := t.Values
	if values == nil {
		values = []string{}
	}
	return body{"terms": body{exact(t.Field): values}}, nil
}

func (m Match) source(string) (body, error) {
	if err := m.Field.validateKeyword(); err != nil {
		return nil, err
	}
	return body{"match": body{string(m.Field): m.Text}}, nil
}

func (q MoreLikeThis) source(songs string) (body, error) {
	if len(q.Fields) == 0 {
		return nil, fmt.Errorf("%w: more-like-this needs at least one field", shared.ErrInvalidInput)
	}
	fields := make([]string, 0, len(q.Fields))
	for _, f := range q.Fields {
		if err := f.validateKeyword(); err != nil {
			return nil, err
		}
		fields = append(fields, string(f))
	}

	like := make([]any, 0, len(q.Like))
	for _, id := range q.Like {
		like = append(like, body{"_index": songs, "_id": strconv.FormatInt(id, 10)})
	}

	mlt := body{
		"fields":        fields,
		"like":          like,
		"min_term_freq": max(q.MinTermFreq, 1),
		"min_doc_freq":  max(q.MinDocFreq, 1),
	}
	if q.MaxQueryTerms > 0 {
		mlt["max_query_terms"] = q.MaxQueryTerms
	}
	return body{"more_like_this": mlt}, nil
}

// sortSource renders specs followed by the score and song id tie-breakers.
func sortSource(specs []SortSpec) ([]any, error) {
	out := make([]any, 0, len(specs)+2)
	for _, s := range specs {
		if !s.Field.Numeric() {
			return nil, fmt.Errorf("%w: cannot sort on %q", shared.ErrInvalidInput, s.Field)
		}
		order := "asc"
		if s.Desc {
			order = "desc"
		}
		out = append(out, body{string(s.Field): body{"order": order}})
	}
	return append(out,
		body{"_score": body{"order": "desc"}},
		body{string(FieldSongID): body{"order": "asc"}},
	), nil
}

// searchSource renders a [SearchRequest] as a _search body.
func searchSource(req SearchRequest, songs string) (body, error) {
	query, err := req.Query.source(songs)
	if err != nil {
		return nil, err
	}
	if req.RandomScore != nil {
		query = body{"function_score": body{
			"query": query,
			"functions": []any{
				body{"random_score": body{"seed": req.RandomScore.Seed, "field": string(FieldSongID)}},
			},
			"boost_mode": "replace",
		}}
	}

	sort, err := sortSource(req.Sort)
	if err != nil {
		return nil, err
	}

	size := req.Size
	if size <= 0 || size > maxResultWindow {
		size = maxResultWindow
	}
	return body{"query": query, "size": size, "sort": sort}, nil
}

// termsSource renders the terms aggregation of agg under the name "groups".
func termsSource(agg TermsAggregation) body {
	size := agg.Size
	if size <= 0 {
		size = maxResultWindow
	}
	return body{
		"field":         exact(agg.Field),
		"size":          size,
		"min_doc_count": max(agg.MinDocCount, 1),
		"order":         []any{body{"_count": "desc"}, body{"_key": "asc"}},
	}
}

func aggregationSource(agg TermsAggregation, songs string, sub body) (body, error) {
	if err := agg.Field.validateKeyword(); err != nil {
		return nil, err
	}
	query, err := agg.Query.source(songs)
	if err != nil {
		return nil, err
	}

	groups := body{"terms": termsSource(agg)}
	if sub != nil {
		groups["aggs"] = sub
	}
	return body{"size": 0, "query": query, "aggs": body{"groups": groups}}, nil
}

func topHitsSource(agg TopHitsAggregation, songs string) (body, error) {
	sort, err := sortSource(agg.Sort)
	if err != nil {
		return nil, err
	}
	per := agg.PerBucket
	if per <= 0 {
		per = 100
	}
	return aggregationSource(agg.TermsAggregation, songs, body{
		"top": body{"top_hits": body{"size": per, "sort": sort}},
	})
}
