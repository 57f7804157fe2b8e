package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/desertthunder/tunedex/internal/metrics"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// ResilientOptions configures [NewResilient].
type ResilientOptions struct {
	Policy           shared.RetryPolicy
	WriteConcurrency int64
	Logger           *log.Logger
}

// Resilient wraps an [Index] with bounded retries and a cap on concurrent writes.
//
// Transient failures that outlive the retry policy are returned wrapped in [shared.ErrIndexUnavailable].
// Permanent failures such as [shared.ErrNotFound] pass through unchanged.
type Resilient struct {
	next   Index
	policy shared.RetryPolicy
	writes *semaphore.Weighted
	logger *log.Logger
}

// NewResilient wraps next. Zero options fall back to [shared.DefaultRetryPolicy] and four concurrent writes.
func NewResilient(next Index, opts ResilientOptions) *Resilient {
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = shared.DefaultRetryPolicy
	}
	if opts.WriteConcurrency <= 0 {
		opts.WriteConcurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Resilient{
		next:   next,
		policy: opts.Policy,
		writes: semaphore.NewWeighted(opts.WriteConcurrency),
		logger: shared.WithLogger(opts.Logger, "component", "index"),
	}
}

func (r *Resilient) do(ctx context.Context, op string, fn func() error) error {
	err := shared.Retry(ctx, r.policy, fn, func(err error, wait time.Duration) {
		metrics.IndexRetries.WithLabelValues(op).Inc()
		r.logger.Warn("retrying index operation", "op", op, "wait", wait, "error", err)
	})
	if err == nil || shared.IsPermanent(err) {
		return err
	}

	metrics.IndexFailures.WithLabelValues(op).Inc()
	r.logger.Error("index operation failed", "op", op, "error", err)
	if errors.Is(err, shared.ErrIndexUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", shared.ErrIndexUnavailable, op, err)
}

func (r *Resilient) write(ctx context.Context, op string, fn func() error) error {
	if err := r.writes.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.writes.Release(1)
	return r.do(ctx, op, fn)
}

func (r *Resilient) UpsertSong(ctx context.Context, doc models.SongDoc) error {
	return r.write(ctx, "upsert_song", func() error { return r.next.UpsertSong(ctx, doc) })
}

func (r *Resilient) PatchSong(ctx context.Context, songID int64, patch SongPatch) error {
	return r.write(ctx, "patch_song", func() error { return r.next.PatchSong(ctx, songID, patch) })
}

func (r *Resilient) DeleteSong(ctx context.Context, songID int64) error {
	return r.write(ctx, "delete_song", func() error { return r.next.DeleteSong(ctx, songID) })
}

func (r *Resilient) UpsertUser(ctx context.Context, doc models.UserDoc) error {
	return r.write(ctx, "upsert_user", func() error { return r.next.UpsertUser(ctx, doc) })
}

func (r *Resilient) DeleteUser(ctx context.Context, userID int64) error {
	return r.write(ctx, "delete_user", func() error { return r.next.DeleteUser(ctx, userID) })
}

func (r *Resilient) GetSong(ctx context.Context, songID int64) (doc *models.SongDoc, err error) {
	err = r.do(ctx, "get_song", func() (e error) {
		doc, e = r.next.GetSong(ctx, songID)
		return e
	})
	return doc, err
}

func (r *Resilient) GetUser(ctx context.Context, userID int64) (doc *models.UserDoc, err error) {
	err = r.do(ctx, "get_user", func() (e error) {
		doc, e = r.next.GetUser(ctx, userID)
		return e
	})
	return doc, err
}

func (r *Resilient) Search(ctx context.Context, req SearchRequest) (hits []Hit, err error) {
	err = r.do(ctx, "search", func() (e error) {
		hits, e = r.next.Search(ctx, req)
		return e
	})
	return hits, err
}

func (r *Resilient) Terms(ctx context.Context, agg TermsAggregation) (buckets []Bucket, err error) {
	err = r.do(ctx, "terms", func() (e error) {
		buckets, e = r.next.Terms(ctx, agg)
		return e
	})
	return buckets, err
}

func (r *Resilient) TopHits(ctx context.Context, agg TopHitsAggregation) (buckets []BucketHits, err error) {
	err = r.do(ctx, "top_hits", func() (e error) {
		buckets, e = r.next.TopHits(ctx, agg)
		return e
	})
	return buckets, err
}

func (r *Resilient) Stats(ctx context.Context) (st Stats, err error) {
	err = r.do(ctx, "stats", func() (e error) {
		st, e = r.next.Stats(ctx)
		return e
	})
	return st, err
}

func (r *Resilient) DocumentIDs(ctx context.Context) (ids DocumentIDs, err error) {
	err = r.do(ctx, "document_ids", func() (e error) {
		ids, e = r.next.DocumentIDs(ctx)
		return e
	})
	return ids, err
}

func (r *Resilient) Close() error {
	return r.next.Close()
}
