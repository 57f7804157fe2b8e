package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
	"github.com/desertthunder/tunedex/internal/tasks"
	"github.com/urfave/cli/v3"
)

func parseVisibility(cmd *cli.Command) (models.Visibility, error) {
	vis, err := models.ParseVisibility(cmd.String("visibility"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return vis, nil
}

func (r *Runner) writePlaylist(verb string, p *models.Playlist) {
	r.writePlain("✓ %s playlist %q (#%d): %d songs, %s\n", verb, p.Name, p.ID, len(p.SongIDs), p.Visibility)
}

// Rate records a user's rating for a song.
func (r *Runner) Rate(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	userID, songID, value := cmd.Int64("user"), cmd.Int64("song"), cmd.Int("value")
	out, err := r.library.RateSong(ctx, userID, songID, value)
	if err != nil {
		return err
	}

	r.writePlain("✓ User #%d rated song #%d: %d\n", userID, songID, value)
	r.reportOutcome(out)
	return nil
}

// PlaylistSave creates or replaces a playlist from titles and song ids.
func (r *Runner) PlaylistSave(ctx context.Context, cmd *cli.Command) error {
	vis, err := parseVisibility(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	p, out, err := r.library.SavePlaylist(ctx, tasks.SavePlaylistInput{
		OwnerID:    cmd.Int64("user"),
		Name:       cmd.String("name"),
		Titles:     cmd.StringSlice("title"),
		SongIDs:    cmd.Int64Slice("song"),
		Visibility: vis,
	})
	if err != nil {
		return err
	}

	r.writePlaylist("Saved", p)
	r.reportOutcome(out)
	return nil
}

// PlaylistAdd appends songs to a playlist.
func (r *Runner) PlaylistAdd(ctx context.Context, cmd *cli.Command) error {
	return r.editPlaylist(ctx, cmd, tasks.EditAdd)
}

// PlaylistRemove removes songs from a playlist.
func (r *Runner) PlaylistRemove(ctx context.Context, cmd *cli.Command) error {
	return r.editPlaylist(ctx, cmd, tasks.EditRemove)
}

func (r *Runner) editPlaylist(ctx context.Context, cmd *cli.Command, action tasks.EditAction) error {
	titles, ids := cmd.StringSlice("title"), cmd.Int64Slice("song")
	if len(titles) == 0 && len(ids) == 0 {
		return fmt.Errorf("%w: --title or --song", shared.ErrMissingArgument)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	p, out, err := r.library.EditPlaylist(ctx, tasks.EditPlaylistInput{
		OwnerID: cmd.Int64("user"),
		Name:    cmd.String("name"),
		Action:  action,
		Titles:  titles,
		SongIDs: ids,
	})
	if err != nil {
		return err
	}

	r.writePlaylist("Updated", p)
	r.reportOutcome(out)
	return nil
}

// PlaylistDelete deletes a playlist by name.
func (r *Runner) PlaylistDelete(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	name := cmd.String("name")
	out, err := r.library.DeletePlaylist(ctx, cmd.Int64("user"), name)
	if err != nil {
		return err
	}

	r.writePlain("✓ Deleted playlist %q\n", name)
	r.reportOutcome(out)
	return nil
}

// PlaylistAuto builds a playlist from indexed songs matching each artist and genre combination.
func (r *Runner) PlaylistAuto(ctx context.Context, cmd *cli.Command) error {
	vis, err := parseVisibility(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	p, out, err := r.library.AutoPlaylist(ctx, tasks.AutoPlaylistInput{
		OwnerID:    cmd.Int64("user"),
		Name:       cmd.String("name"),
		Visibility: vis,
		Artists:    cmd.StringSlice("artist"),
		Genres:     cmd.StringSlice("genre"),
	})
	if err != nil {
		return err
	}

	r.writePlaylist("Saved", p)
	r.reportOutcome(out)
	return nil
}

// Share records a share and bumps the recommendation count of every song under the target.
func (r *Runner) Share(ctx context.Context, cmd *cli.Command) error {
	target, err := models.ParseTargetType(cmd.String("target"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidTarget, err)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	res, err := r.library.RecordShare(ctx, cmd.Int64("from"), cmd.Int64("to"), target, cmd.Int64("id"))
	if err != nil {
		return err
	}

	r.writePlain("✓ Shared %s #%d with user #%d: %d songs recommended\n",
		target, res.Share.TargetID, res.Share.ReceiverID, len(res.SongIDs))
	r.reportOutcome(res.Outcome)
	return nil
}
