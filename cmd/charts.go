package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/recommend"
	"github.com/desertthunder/tunedex/internal/shared"
	"github.com/urfave/cli/v3"
)

// recommendRequest builds a [recommend.Request] from flags, validating filter and sort before any I/O.
func recommendRequest(cmd *cli.Command) (recommend.Request, error) {
	req := recommend.Request{UserID: cmd.Int64("user"), Size: cmd.Int("size")}

	field, value := cmd.String("filter-field"), cmd.String("filter-value")
	switch {
	case field != "":
		filter, err := models.ParseFilter(field, value)
		if err != nil {
			return req, err
		}
		req.Filter = filter
	case value != "":
		return req, fmt.Errorf("%w: --filter-value needs --filter-field", shared.ErrMissingArgument)
	}

	sort, err := models.ParseSort(cmd.String("sort"))
	if err != nil {
		return req, err
	}
	req.Sort = sort
	return req, nil
}

// Recommend prints recommendations for a user.
func (r *Runner) Recommend(ctx context.Context, cmd *cli.Command) error {
	req, err := recommendRequest(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	result, err := r.engine.Recommend(ctx, req)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("Recommendations for user #%d", req.UserID)
	if result.Path == recommend.NoHistory {
		title += " (popular picks)"
	}
	if req.Filter != nil {
		title += " where " + req.Filter.String()
	}
	return r.writeSongs(cmd, title, result.Songs)
}

// TopRated prints the two highest rated songs of each of the largest genres.
func (r *Runner) TopRated(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	songs, err := r.charts.TopRated(ctx, cmd.Int("genres"))
	if err != nil {
		return err
	}
	return r.writeSongs(cmd, "Top rated", songs)
}

// TopRecommended prints the two most shared songs of each of the largest genres.
func (r *Runner) TopRecommended(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	songs, err := r.charts.TopRecommended(ctx, cmd.Int("genres"))
	if err != nil {
		return err
	}
	return r.writeSongs(cmd, "Top recommended", songs)
}

// Trending prints the most shared songs.
func (r *Runner) Trending(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	songs, err := r.charts.Trending(ctx, cmd.Int("size"))
	if err != nil {
		return err
	}
	return r.writeSongs(cmd, "Trending", songs)
}

// Search prints songs whose title shares a word with the query.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	songs, err := r.charts.SearchTitle(ctx, query, cmd.Int("size"))
	if err != nil {
		return err
	}
	return r.writeSongs(cmd, fmt.Sprintf("Songs matching %q", query), songs)
}
