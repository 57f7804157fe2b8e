package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunedex/internal/formatter"
	"github.com/desertthunder/tunedex/internal/shared"
	"github.com/desertthunder/tunedex/internal/tasks"
	"github.com/urfave/cli/v3"
)

// CatalogAddSong inserts a song and projects it.
func (r *Runner) CatalogAddSong(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	song, out, err := r.library.AddSong(ctx, tasks.AddSongInput{
		Title:  cmd.String("title"),
		Artist: cmd.String("artist"),
		Album:  cmd.String("album"),
		Genre:  cmd.String("genre"),
	})
	if err != nil {
		return err
	}

	r.writePlain("✓ Added song #%d: %s\n", song.ID, song.Title)
	r.reportOutcome(out)
	return nil
}

// UserAdd inserts a user.
func (r *Runner) UserAdd(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	user, out, err := r.library.AddUser(ctx, cmd.String("username"), cmd.String("credential-hash"))
	if err != nil {
		return err
	}

	r.writePlain("✓ Added user #%d: %s\n", user.ID, user.Username)
	r.reportOutcome(out)
	return nil
}

// UserShow prints the projected document of a user selected by --user or --username.
func (r *Runner) UserShow(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	userID := cmd.Int64("user")
	if userID == 0 {
		username := cmd.String("username")
		if username == "" {
			return fmt.Errorf("%w: --user or --username", shared.ErrMissingArgument)
		}
		user, err := r.library.LookupUser(ctx, username)
		if err != nil {
			return err
		}
		userID = user.ID
	}

	doc, err := r.library.GetUserDoc(ctx, userID)
	if err != nil {
		return err
	}

	data, err := formatter.RenderUser(doc, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// UserDelete soft-deletes a user and removes their document.
func (r *Runner) UserDelete(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	userID := cmd.Int64("user")
	out, err := r.library.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}

	r.writePlain("✓ Deleted user #%d\n", userID)
	r.reportOutcome(out)
	return nil
}
