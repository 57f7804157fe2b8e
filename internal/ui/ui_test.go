package ui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/projector"
	"github.com/desertthunder/tunedex/internal/recommend"
	"github.com/desertthunder/tunedex/internal/shared"
	"github.com/desertthunder/tunedex/internal/tasks"
)

type fakeRecommender struct {
	result      *recommend.Result
	err         error
	invalidated int
}

func (f *fakeRecommender) Recommend(context.Context, recommend.Request) (*recommend.Result, error) {
	return f.result, f.err
}

func (f *fakeRecommender) Invalidate() { f.invalidated++ }

type fakeCharts struct {
	songs []models.SongDoc
	sizes []int
}

func (f *fakeCharts) Trending(_ context.Context, n int) ([]models.SongDoc, error) {
	f.sizes = append(f.sizes, n)
	return f.songs, nil
}

func (f *fakeCharts) TopRated(_ context.Context, n int) ([]models.SongDoc, error) {
	f.sizes = append(f.sizes, n)
	return f.songs, nil
}

func (f *fakeCharts) TopRecommended(_ context.Context, n int) ([]models.SongDoc, error) {
	f.sizes = append(f.sizes, n)
	return f.songs, nil
}

type fakeRebuilder struct{}

func (fakeRebuilder) Rebuild(_ context.Context, prog chan<- tasks.ProgressUpdate, _ tasks.RebuildOpts) (*tasks.RebuildResult, error) {
	prog <- tasks.ProgressUpdate{Phase: tasks.ProjectSongs, Step: 1, Total: 1, Message: "[1/1] ✓ Hey"}
	return &tasks.RebuildResult{Songs: projector.Report{Projected: 1}}, nil
}

var songs = []models.SongDoc{
	{SongID: 1, Title: "Hey", ArtistName: "Pixies", AlbumTitle: "Doolittle", GenreName: "Rock", Rating: 4.5, RecommendationCount: 2},
	{SongID: 2, Title: "So What", ArtistName: "Miles Davis", GenreName: "Jazz"},
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func newTestModel(deps Deps) *Model {
	m := NewModel(context.Background(), deps)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

// run executes cmd and feeds resulting messages back into the model until none remain.
func run(m *Model, cmd tea.Cmd) {
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			return
		}
		_, cmd = m.Update(msg)
	}
}

func TestMenuItems(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
		want int
	}{
		{name: "charts only", deps: Deps{Charts: &fakeCharts{}}, want: 3},
		{name: "with user", deps: Deps{Charts: &fakeCharts{}, Recommender: &fakeRecommender{}, UserID: 1}, want: 4},
		{name: "everything", deps: Deps{Charts: &fakeCharts{}, Recommender: &fakeRecommender{}, UserID: 1, Rebuilder: fakeRebuilder{}}, want: 5},
		{name: "recommender without user", deps: Deps{Recommender: &fakeRecommender{}}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(tt.deps)
			if got := len(m.menu.Items()); got != tt.want {
				t.Errorf("got %d menu items, want %d", got, tt.want)
			}
		})
	}
}

func TestBrowseChart(t *testing.T) {
	m := newTestModel(Deps{Charts: &fakeCharts{songs: songs}})

	_, cmd := m.Update(keyPress("enter"))
	run(m, cmd)

	if m.view != SongListView {
		t.Fatalf("expected song list view, got %d", m.view)
	}
	if m.songList.Title != "Trending" {
		t.Errorf("unexpected title %q", m.songList.Title)
	}
	if got := len(m.songList.Items()); got != 2 {
		t.Errorf("got %d songs, want 2", got)
	}

	m.Update(keyPress("enter"))
	if m.view != SongView || m.selected == nil || m.selected.SongID != 1 {
		t.Fatalf("expected details of song 1, got view %d", m.view)
	}
	view := m.View()
	for _, want := range []string{"Hey", "Pixies", "Doolittle", "★★★★★ 4.50"} {
		if !strings.Contains(view, want) {
			t.Errorf("song view missing %q:\n%s", want, view)
		}
	}

	m.Update(keyPress("esc"))
	if m.view != SongListView {
		t.Errorf("esc should return to the list, got %d", m.view)
	}
	m.Update(keyPress("esc"))
	if m.view != MenuView {
		t.Errorf("esc should return to the menu, got %d", m.view)
	}
}

func TestChartControls(t *testing.T) {
	t.Run("more and fewer resize the chart", func(t *testing.T) {
		charts := &fakeCharts{songs: songs}
		m := newTestModel(Deps{Charts: charts, Size: 7})

		_, cmd := m.Update(keyPress("enter"))
		run(m, cmd)
		_, cmd = m.Update(keyPress("+"))
		run(m, cmd)
		_, cmd = m.Update(keyPress("-"))
		run(m, cmd)
		_, cmd = m.Update(keyPress("-"))
		run(m, cmd)
		_, cmd = m.Update(keyPress("-"))
		run(m, cmd)

		want := []int{7, 12, 7, 2, 1}
		if len(charts.sizes) != len(want) {
			t.Fatalf("got sizes %v, want %v", charts.sizes, want)
		}
		for i := range want {
			if charts.sizes[i] != want[i] {
				t.Errorf("fetch %d asked for %d songs, want %d", i, charts.sizes[i], want[i])
			}
		}
	})

	t.Run("tab cycles charts and skips rebuild", func(t *testing.T) {
		m := newTestModel(Deps{Charts: &fakeCharts{songs: songs}, Rebuilder: fakeRebuilder{}})

		_, cmd := m.Update(keyPress("enter"))
		run(m, cmd)

		for _, want := range []string{"Top rated by genre", "Most shared by genre", "Trending"} {
			_, cmd = m.Update(keyPress("tab"))
			run(m, cmd)
			if m.songList.Title != want {
				t.Errorf("tab: got %q, want %q", m.songList.Title, want)
			}
		}

		_, cmd = m.Update(keyPress("shift+tab"))
		run(m, cmd)
		if m.songList.Title != "Most shared by genre" {
			t.Errorf("shift+tab: got %q, want Most shared by genre", m.songList.Title)
		}
		if m.view != SongListView {
			t.Errorf("cycling should stay on the song list, got %d", m.view)
		}
	})

	t.Run("reload drops cached popularity", func(t *testing.T) {
		rec := &fakeRecommender{result: &recommend.Result{Path: recommend.HasHistory, Songs: songs}}
		m := newTestModel(Deps{Recommender: rec, UserID: 1})

		_, cmd := m.Update(keyPress("enter"))
		run(m, cmd)
		_, cmd = m.Update(keyPress("r"))
		run(m, cmd)

		if rec.invalidated != 1 {
			t.Errorf("got %d invalidations, want 1", rec.invalidated)
		}
	})
}

func TestRecommendationChart(t *testing.T) {
	t.Run("cold start is labelled", func(t *testing.T) {
		rec := &fakeRecommender{result: &recommend.Result{Path: recommend.NoHistory, Songs: songs}}
		m := newTestModel(Deps{Recommender: rec, UserID: 3})

		_, cmd := m.Update(keyPress("enter"))
		run(m, cmd)
		if !strings.HasSuffix(m.songList.Title, "(popular picks)") {
			t.Errorf("unexpected title %q", m.songList.Title)
		}
	})

	t.Run("nothing to recommend", func(t *testing.T) {
		rec := &fakeRecommender{err: shared.ErrNoSongsToRecommend}
		m := newTestModel(Deps{Recommender: rec, UserID: 3})

		_, cmd := m.Update(keyPress("enter"))
		run(m, cmd)
		if m.view != MenuView || m.err == nil {
			t.Fatalf("expected error on the menu, got view %d err %v", m.view, m.err)
		}
		if !strings.Contains(m.View(), "no songs to recommend from") {
			t.Errorf("unexpected view:\n%s", m.View())
		}

		m.Update(keyPress("esc"))
		if m.err != nil {
			t.Errorf("esc should clear the error")
		}
	})
}

func TestRebuildFlow(t *testing.T) {
	m := newTestModel(Deps{Rebuilder: fakeRebuilder{}})

	m.Update(keyPress("enter"))
	if m.view != ConfirmView {
		t.Fatalf("expected confirm view, got %d", m.view)
	}

	m.Update(keyPress("n"))
	if m.view != MenuView {
		t.Fatalf("n should cancel, got %d", m.view)
	}

	m.Update(keyPress("enter"))
	_, cmd := m.Update(keyPress("y"))
	if m.view != RebuildView {
		t.Fatalf("expected rebuild view, got %d", m.view)
	}
	run(m, cmd)

	if m.view != ResultView {
		t.Fatalf("expected result view, got %d", m.view)
	}
	if m.err != nil {
		t.Fatalf("unexpected error: %v", m.err)
	}
	if !strings.Contains(m.View(), "Songs: 1 projected, 0 skipped, 0 removed") {
		t.Errorf("unexpected result view:\n%s", m.View())
	}
}

func TestRebuildInvalidatesRecommender(t *testing.T) {
	rec := &fakeRecommender{}
	m := newTestModel(Deps{Rebuilder: fakeRebuilder{}})
	m.deps.Recommender = rec

	m.Update(keyPress("enter"))
	_, cmd := m.Update(keyPress("y"))
	run(m, cmd)

	if m.view != ResultView {
		t.Fatalf("expected result view, got %d", m.view)
	}
	if rec.invalidated != 1 {
		t.Errorf("got %d invalidations, want 1", rec.invalidated)
	}
}
