package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/tunedex/internal/models"
)

var (
	_ list.Item = menuItem{}
	_ list.Item = songItem{}
)

// menuItem is one entry of the chart menu.
type menuItem struct {
	chart Chart
	desc  string
}

func (i menuItem) FilterValue() string { return i.chart.String() }
func (i menuItem) Title() string       { return i.chart.String() }
func (i menuItem) Description() string { return i.desc }

// songItem wraps [models.SongDoc] to implement [list.Item].
type songItem struct {
	song models.SongDoc
}

func (i songItem) FilterValue() string { return i.song.Title }
func (i songItem) Title() string       { return i.song.Title }
func (i songItem) Description() string {
	desc := i.song.ArtistName
	if i.song.AlbumTitle != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.song.AlbumTitle)
	}
	return fmt.Sprintf("%s • %s • %.1f★ • %d shares", desc, i.song.GenreName, i.song.Rating, i.song.RecommendationCount)
}
