// Package ui implements an interactive terminal browser using bubbletea's Elm architecture.
//
// The TUI is a small multi-view workflow over the index:
//  1. [MenuView] : pick a chart (recommendations, trending, top rated, top recommended) or a rebuild
//  2. [SongListView] : browse the chart's songs
//  3. [SongView] : inspect one song document
//  4. [ConfirmView] : confirm a full index rebuild
//  5. [RebuildView] : follow rebuild progress
//  6. [ResultView] : rebuild totals
//
// The (view) [Model] implements Init/Update/View and receives data through the [Msg] union.
// Rebuild progress flows through a channel from [tasks.Library.Rebuild].
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with help from charmbracelet/bubbles/help.
package ui
