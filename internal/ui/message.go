package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSongsFetched MsgKind = iota
	MsgProgressUpdate
	MsgRebuildComplete
)

type songsFetched struct {
	chart Chart
	label string
	songs []models.SongDoc
	err   error
}

type rebuildComplete struct {
	result *tasks.RebuildResult
	err    error
}

// songsFetchedMsg is the constructor for [MsgSongsFetched]
func songsFetchedMsg(chart Chart, label string, songs []models.SongDoc, err error) Msg {
	return Msg{kind: MsgSongsFetched, data: songsFetched{chart: chart, label: label, songs: songs, err: err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// rebuildCompleteMsg is the constructor for [MsgRebuildComplete]
func rebuildCompleteMsg(result *tasks.RebuildResult, err error) Msg {
	return Msg{kind: MsgRebuildComplete, data: rebuildComplete{result: result, err: err}}
}
