// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// songListFlags control how song lists are printed.
func songListFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: json, csv, markdown or text",
			Value:   "text",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write to this file instead of stdout",
		},
	}
}

func userFlag(usage string) *cli.Int64Flag {
	return &cli.Int64Flag{Name: "user", Aliases: []string{"u"}, Usage: usage, Required: true}
}

// setupCommand handles setup operations for the catalog database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, initialize the catalog and index, run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// catalogCommand handles direct catalog entry.
func catalogCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Catalog entry",
		Commands: []*cli.Command{
			{
				Name:  "add-song",
				Usage: "Add a song, creating its artist, album and genre by name when needed",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "Song title", Required: true},
					&cli.StringFlag{Name: "artist", Usage: "Artist name", Required: true},
					&cli.StringFlag{Name: "album", Usage: "Album title", Required: true},
					&cli.StringFlag{Name: "genre", Usage: "Genre name", Required: true},
				},
				Action: r.CatalogAddSong,
			},
		},
	}
}

// userCommand handles user accounts and their projected documents.
func userCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "User operations",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Usage: "Unique username", Required: true},
					&cli.StringFlag{Name: "credential-hash", Usage: "Stored credential hash", Required: true},
				},
				Action: r.UserAdd,
			},
			{
				Name:  "show",
				Usage: "Show a user's projected document",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "user", Aliases: []string{"u"}, Usage: "User ID"},
					&cli.StringFlag{Name: "username", Usage: "Username, when no ID is given"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: json, csv, markdown or text", Value: "text"},
				},
				Action: r.UserShow,
			},
			{
				Name:   "delete",
				Usage:  "Delete a user and its document",
				Flags:  []cli.Flag{userFlag("User ID")},
				Action: r.UserDelete,
			},
		},
	}
}

// projectCommand runs projections directly, bypassing the outbox.
func projectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "project",
		Usage: "Project catalog rows into index documents",
		Commands: []*cli.Command{
			{
				Name:   "users",
				Usage:  "Project every user",
				Action: r.ProjectUsers,
			},
			{
				Name:   "user",
				Usage:  "Project one user",
				Flags:  []cli.Flag{&cli.Int64Flag{Name: "id", Usage: "User ID", Required: true}},
				Action: r.ProjectUser,
			},
			{
				Name:   "songs",
				Usage:  "Project every song",
				Action: r.ProjectSongs,
			},
			{
				Name:  "song",
				Usage: "Project one song",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id", Usage: "Song ID", Required: true},
					&cli.StringFlag{Name: "field", Usage: "full, rating or recommendation_count", Value: "full"},
				},
				Action: r.ProjectSong,
			},
		},
	}
}

// rebuildCommand re-projects the whole catalog with progress output.
func rebuildCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "Re-project every song and user, then drain the outbox",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Usage: "Concurrent projections (default from config)"},
			&cli.FloatFlag{Name: "rate-limit", Usage: "Documents per second, 0 for unlimited (default from config)"},
		},
		Action: r.Rebuild,
	}
}

// recommendCommand answers a recommendation request.
func recommendCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "recommend",
		Usage: "Recommend songs for a user",
		Flags: append([]cli.Flag{
			userFlag("User ID"),
			&cli.IntFlag{Name: "size", Aliases: []string{"n"}, Usage: "Number of songs (default from config)"},
			&cli.StringFlag{Name: "filter-field", Usage: "title, artist_name, album_title or genre_name"},
			&cli.StringFlag{Name: "filter-value", Usage: "Exact value the filter field must hold"},
			&cli.StringFlag{Name: "sort", Usage: "relevance, rating or recommendation_count", Value: "relevance"},
		}, songListFlags()...),
		Action: r.Recommend,
	}
}

// topCommand lists the best songs per popular genre.
func topCommand(r *Runner) *cli.Command {
	flags := func() []cli.Flag {
		return append([]cli.Flag{
			&cli.IntFlag{Name: "genres", Aliases: []string{"n"}, Usage: "Number of genres, two songs each", Value: 10},
		}, songListFlags()...)
	}

	return &cli.Command{
		Name:  "top",
		Usage: "Top songs of the largest genres",
		Commands: []*cli.Command{
			{
				Name:   "rated",
				Usage:  "Highest rated songs per genre",
				Flags:  flags(),
				Action: r.TopRated,
			},
			{
				Name:   "recommended",
				Usage:  "Most shared songs per genre",
				Flags:  flags(),
				Action: r.TopRecommended,
			},
		},
	}
}

// trendingCommand lists the most shared songs overall.
func trendingCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "trending",
		Usage: "Most shared songs",
		Flags: append([]cli.Flag{
			&cli.IntFlag{Name: "size", Aliases: []string{"n"}, Usage: "Number of songs", Value: 10},
		}, songListFlags()...),
		Action: r.Trending,
	}
}

// searchCommand matches song titles.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search songs by title",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "query",
			},
		},
		Flags: append([]cli.Flag{
			&cli.IntFlag{Name: "size", Aliases: []string{"n"}, Usage: "Number of songs", Value: 10},
		}, songListFlags()...),
		Action: r.Search,
	}
}

// rateCommand records a rating.
func rateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "rate",
		Usage: "Rate a song from 1 to 5",
		Flags: []cli.Flag{
			userFlag("Rating user ID"),
			&cli.Int64Flag{Name: "song", Aliases: []string{"s"}, Usage: "Song ID", Required: true},
			&cli.IntFlag{Name: "value", Usage: "Rating from 1 to 5", Required: true},
		},
		Action: r.Rate,
	}
}

// playlistCommand handles playlist operations.
func playlistCommand(r *Runner) *cli.Command {
	songFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringSliceFlag{Name: "title", Aliases: []string{"t"}, Usage: "Song title, every song with it is used (repeatable)"},
			&cli.Int64SliceFlag{Name: "song", Aliases: []string{"s"}, Usage: "Song ID (repeatable)"},
		}
	}
	nameFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "name", Usage: "Playlist name", Required: true}
	}
	visibilityFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "visibility", Usage: "public or private", Value: "public"}
	}

	return &cli.Command{
		Name:  "playlist",
		Usage: "Playlist operations",
		Commands: []*cli.Command{
			{
				Name:   "save",
				Usage:  "Create a playlist, or replace one with the same name",
				Flags:  append([]cli.Flag{userFlag("Owner ID"), nameFlag(), visibilityFlag()}, songFlags()...),
				Action: r.PlaylistSave,
			},
			{
				Name:   "add",
				Usage:  "Append songs to a playlist",
				Flags:  append([]cli.Flag{userFlag("Owner ID"), nameFlag()}, songFlags()...),
				Action: r.PlaylistAdd,
			},
			{
				Name:   "remove",
				Usage:  "Remove songs from a playlist",
				Flags:  append([]cli.Flag{userFlag("Owner ID"), nameFlag()}, songFlags()...),
				Action: r.PlaylistRemove,
			},
			{
				Name:   "delete",
				Usage:  "Delete a playlist",
				Flags:  []cli.Flag{userFlag("Owner ID"), nameFlag()},
				Action: r.PlaylistDelete,
			},
			{
				Name:  "auto",
				Usage: "Build a playlist from every artist and genre combination",
				Flags: []cli.Flag{
					userFlag("Owner ID"),
					nameFlag(),
					visibilityFlag(),
					&cli.StringSliceFlag{Name: "artist", Aliases: []string{"a"}, Usage: "Artist name (repeatable)", Required: true},
					&cli.StringSliceFlag{Name: "genre", Aliases: []string{"g"}, Usage: "Genre name (repeatable)", Required: true},
				},
				Action: r.PlaylistAuto,
			},
		},
	}
}

// shareCommand records a share between users.
func shareCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "share",
		Usage: "Share a song, artist, album or genre with another user",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "from", Usage: "Sender user ID", Required: true},
			&cli.Int64Flag{Name: "to", Usage: "Receiver user ID", Required: true},
			&cli.StringFlag{Name: "target", Usage: "song, artist, album or genre", Required: true},
			&cli.Int64Flag{Name: "id", Usage: "Target ID", Required: true},
		},
		Action: r.Share,
	}
}

// outboxCommand inspects and drains pending projections.
func outboxCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "outbox",
		Usage: "Pending index updates",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show how many changes await projection",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "list", Aliases: []string{"l"}, Usage: "Also list up to this many pending entries"},
				},
				Action: r.OutboxStatus,
			},
			{
				Name:  "drain",
				Usage: "Project every pending change",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep draining at this interval until interrupted"},
				},
				Action: r.OutboxDrain,
			},
		},
	}
}

// metricsCommand prints the process counters.
func metricsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Print projection, index and outbox counters",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Metrics,
	}
}

// tuiCommand returns the top-level TUI command for browsing charts and recommendations.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for charts and recommendations",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "user", Aliases: []string{"u"}, Usage: "User ID to recommend for, 0 hides recommendations"},
			&cli.IntFlag{Name: "size", Aliases: []string{"n"}, Usage: "Songs per chart", Value: 10},
			&cli.BoolFlag{Name: "rebuild", Usage: "Offer a full rebuild from the menu"},
		},
		Action: r.TUI,
	}
}
