package index

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goccy/go-json"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

const idPageSize = 1000

// ElasticOptions configures [OpenElastic].
type ElasticOptions struct {
	Addresses []string
	Username  string
	Password  string
	SongIndex string // defaults to "songs_"
	UserIndex string // defaults to "users_"
	Refresh   string // refresh policy for writes, defaults to "wait_for"
	Transport http.RoundTripper
}

// Elastic stores documents in an Elasticsearch cluster and runs every query there.
//
// Keyword fields are mapped as text with a .keyword subfield: match and more-like-this run on the
// analyzed text, term lookups and aggregations on the keyword.
type Elastic struct {
	client  *elasticsearch.Client
	songs   string
	users   string
	refresh string
}

var songMapping = body{
	"mappings": body{"properties": body{
		"song_id":              body{"type": "long"},
		"title":                textKeyword,
		"artist_name":          textKeyword,
		"album_title":          textKeyword,
		"genre_name":           textKeyword,
		"rating":               body{"type": "double"},
		"recommendation_count": body{"type": "integer"},
	}},
}

var userMapping = body{
	"mappings": body{"properties": body{
		"user_id":         body{"type": "long"},
		"username":        textKeyword,
		"credential_hash": body{"type": "keyword", "index": false},
		"playlists":       body{"type": "object"},
	}},
}

var textKeyword = body{
	"type":   "text",
	"fields": body{"keyword": body{"type": "keyword", "ignore_above": 256}},
}

// OpenElastic connects to the cluster and creates the song and user indices when missing.
func OpenElastic(ctx context.Context, opts ElasticOptions) (*Elastic, error) {
	if len(opts.Addresses) == 0 {
		return nil, fmt.Errorf("%w: elasticsearch needs at least one address", shared.ErrInvalidConfig)
	}
	if opts.SongIndex == "" {
		opts.SongIndex = "songs_"
	}
	if opts.UserIndex == "" {
		opts.UserIndex = "users_"
	}
	if opts.Refresh == "" {
		opts.Refresh = "wait_for"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		Transport: opts.Transport,
		// [Resilient] owns retries and backoff
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	e := &Elastic{client: client, songs: opts.SongIndex, users: opts.UserIndex, refresh: opts.Refresh}
	if err := e.ensureIndex(ctx, e.songs, songMapping); err != nil {
		return nil, err
	}
	if err := e.ensureIndex(ctx, e.users, userMapping); err != nil {
		return nil, err
	}
	return e, nil
}

// Close is a no-op; the client holds no resources beyond its HTTP transport.
func (e *Elastic) Close() error {
	return nil
}

func (e *Elastic) ensureIndex(ctx context.Context, name string, mapping body) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{name}}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	buf, err := encode(mapping)
	if err != nil {
		return err
	}
	res, err = esapi.IndicesCreateRequest{Index: name, Body: buf}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

func (e *Elastic) UpsertSong(ctx context.Context, doc models.SongDoc) error {
	return e.put(ctx, e.songs, doc.SongID, doc)
}

func (e *Elastic) UpsertUser(ctx context.Context, doc models.UserDoc) error {
	if doc.Playlists == nil {
		doc.Playlists = []models.PlaylistDoc{}
	}
	return e.put(ctx, e.users, doc.UserID, doc)
}

func (e *Elastic) put(ctx context.Context, index string, id int64, doc any) error {
	buf, err := encode(doc)
	if err != nil {
		return err
	}
	res, err := esapi.IndexRequest{
		Index:      index,
		DocumentID: strconv.FormatInt(id, 10),
		Body:       buf,
		Refresh:    e.refresh,
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("index %s/%d: %w", index, id, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return fmt.Errorf("index %s/%d: %w", index, id, err)
	}
	return nil
}

// PatchSong sends a partial document update. A missing document is [shared.ErrNotFound].
func (e *Elastic) PatchSong(ctx context.Context, songID int64, patch SongPatch) error {
	if patch.Empty() {
		return nil
	}

	doc := body{}
	if patch.Rating != nil {
		doc[string(FieldRating)] = *patch.Rating
	}
	if patch.RecommendationCount != nil {
		doc[string(FieldRecommendationCount)] = *patch.RecommendationCount
	}
	buf, err := encode(body{"doc": doc})
	if err != nil {
		return err
	}

	retries := 3
	res, err := esapi.UpdateRequest{
		Index:           e.songs,
		DocumentID:      strconv.FormatInt(songID, 10),
		Body:            buf,
		Refresh:         e.refresh,
		RetryOnConflict: &retries,
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("patch song document %d: %w", songID, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return fmt.Errorf("patch song document %d: %w", songID, err)
	}
	return nil
}

func (e *Elastic) DeleteSong(ctx context.Context, songID int64) error {
	return e.delete(ctx, e.songs, songID)
}

func (e *Elastic) DeleteUser(ctx context.Context, userID int64) error {
	return e.delete(ctx, e.users, userID)
}

// delete treats a missing document as already deleted.
func (e *Elastic) delete(ctx context.Context, index string, id int64) error {
	res, err := esapi.DeleteRequest{
		Index:      index,
		DocumentID: strconv.FormatInt(id, 10),
		Refresh:    e.refresh,
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", index, id, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if err := responseError(res); err != nil {
		return fmt.Errorf("delete %s/%d: %w", index, id, err)
	}
	return nil
}

func (e *Elastic) GetSong(ctx context.Context, songID int64) (*models.SongDoc, error) {
	var doc models.SongDoc
	if err := e.get(ctx, e.songs, songID, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (e *Elastic) GetUser(ctx context.Context, userID int64) (*models.UserDoc, error) {
	var doc models.UserDoc
	if err := e.get(ctx, e.users, userID, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (e *Elastic) get(ctx context.Context, index string, id int64, dest any) error {
	res, err := esapi.GetRequest{Index: index, DocumentID: strconv.FormatInt(id, 10)}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("get %s/%d: %w", index, id, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return fmt.Errorf("get %s/%d: %w", index, id, err)
	}

	var got struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		return fmt.Errorf("get %s/%d: decode json: %w", index, id, err)
	}
	if !got.Found {
		return fmt.Errorf("%w: %s document %d", shared.ErrNotFound, index, id)
	}
	if err := json.Unmarshal(got.Source, dest); err != nil {
		return fmt.Errorf("get %s/%d: decode source: %w", index, id, err)
	}
	return nil
}

// Search runs req as a single _search call.
func (e *Elastic) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	src, err := searchSource(req, e.songs)
	if err != nil {
		return nil, err
	}
	src["track_scores"] = true

	var sr searchResponse
	if err := e.search(ctx, e.songs, src, &sr); err != nil {
		return nil, fmt.Errorf("song search: %w", err)
	}
	return sr.Hits.toHits()
}

// Terms runs a terms aggregation with no hits.
func (e *Elastic) Terms(ctx context.Context, agg TermsAggregation) ([]Bucket, error) {
	src, err := aggregationSource(agg, e.songs, nil)
	if err != nil {
		return nil, err
	}

	var ar aggregationResponse
	if err := e.search(ctx, e.songs, src, &ar); err != nil {
		return nil, fmt.Errorf("terms aggregation: %w", err)
	}

	buckets := make([]Bucket, 0, len(ar.Aggregations.Groups.Buckets))
	for _, b := range ar.Aggregations.Groups.Buckets {
		buckets = append(buckets, Bucket{Key: b.Key, DocCount: b.DocCount})
	}
	return buckets, nil
}

// TopHits runs a terms aggregation with a top_hits sub-aggregation per bucket.
func (e *Elastic) TopHits(ctx context.Context, agg TopHitsAggregation) ([]BucketHits, error) {
	src, err := topHitsSource(agg, e.songs)
	if err != nil {
		return nil, err
	}

	var ar aggregationResponse
	if err := e.search(ctx, e.songs, src, &ar); err != nil {
		return nil, fmt.Errorf("top hits aggregation: %w", err)
	}

	out := make([]BucketHits, 0, len(ar.Aggregations.Groups.Buckets))
	for _, b := range ar.Aggregations.Groups.Buckets {
		hits, err := b.Top.Hits.toHits()
		if err != nil {
			return nil, err
		}
		out = append(out, BucketHits{Bucket: Bucket{Key: b.Key, DocCount: b.DocCount}, Hits: hits})
	}
	return out, nil
}

// Stats counts documents in both indices.
func (e *Elastic) Stats(ctx context.Context) (Stats, error) {
	songs, err := e.count(ctx, e.songs)
	if err != nil {
		return Stats{}, err
	}
	users, err := e.count(ctx, e.users)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Songs: songs, Users: users}, nil
}

func (e *Elastic) count(ctx context.Context, index string) (int, error) {
	res, err := esapi.CountRequest{Index: []string{index}}.Do(ctx, e.client)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}

	var cr struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("count %s: decode json: %w", index, err)
	}
	return cr.Count, nil
}

// DocumentIDs pages through both indices with search_after.
func (e *Elastic) DocumentIDs(ctx context.Context) (DocumentIDs, error) {
	songs, err := e.ids(ctx, e.songs, "song_id")
	if err != nil {
		return DocumentIDs{}, err
	}
	users, err := e.ids(ctx, e.users, "user_id")
	if err != nil {
		return DocumentIDs{}, err
	}
	return DocumentIDs{Songs: songs, Users: users}, nil
}

func (e *Elastic) ids(ctx context.Context, index, field string) ([]int64, error) {
	ids := make([]int64, 0)
	var after []any
	for {
		src := body{
			"query":   body{"match_all": body{}},
			"_source": false,
			"size":    idPageSize,
			"sort":    []any{body{field: body{"order": "asc"}}},
		}
		if after != nil {
			src["search_after"] = after
		}

		var sr searchResponse
		if err := e.search(ctx, index, src, &sr); err != nil {
			return nil, fmt.Errorf("list %s ids: %w", index, err)
		}
		for _, h := range sr.Hits.Hits {
			id, err := strconv.ParseInt(h.ID, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("list %s ids: bad document id %q", index, h.ID)
			}
			ids = append(ids, id)
		}
		if len(sr.Hits.Hits) < idPageSize {
			return ids, nil
		}
		after = sr.Hits.Hits[len(sr.Hits.Hits)-1].Sort
	}
}

func (e *Elastic) search(ctx context.Context, index string, src body, dest any) error {
	buf, err := encode(src)
	if err != nil {
		return err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(buf),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return err
	}

	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

type searchResponse struct {
	Hits hitList `json:"hits"`
}

type hitList struct {
	Hits []hit `json:"hits"`
}

type hit struct {
	ID     string          `json:"_id"`
	Score  *float64        `json:"_score"`
	Source json.RawMessage `json:"_source"`
	Sort   []any           `json:"sort"`
}

func (l hitList) toHits() ([]Hit, error) {
	out := make([]Hit, 0, len(l.Hits))
	for i, h := range l.Hits {
		var doc models.SongDoc
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return nil, fmt.Errorf("hit %d: decode source: %w", i, err)
		}
		var score float64
		if h.Score != nil {
			score = *h.Score
		}
		out = append(out, Hit{Doc: doc, Score: score})
	}
	return out, nil
}

type aggregationResponse struct {
	Aggregations struct {
		Groups struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int    `json:"doc_count"`
				Top      struct {
					Hits hitList `json:"hits"`
				} `json:"top"`
			} `json:"buckets"`
		} `json:"groups"`
	} `json:"aggregations"`
}

// responseError maps an error response onto the shared error kinds.
//
// Bad requests and missing documents are permanent; anything else is left for the caller to retry.
func responseError(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}

	var parsed struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(res.Body)
	reason := string(raw)
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Type != "" {
		reason = parsed.Error.Type + ": " + parsed.Error.Reason
	}

	switch res.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrNotFound, reason)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, reason)
	}
	return fmt.Errorf("elasticsearch returned %d: %s", res.StatusCode, reason)
}

func encode(v any) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return &buf, nil
}
