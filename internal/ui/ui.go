package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/recommend"
	"github.com/desertthunder/tunedex/internal/shared"
	"github.com/desertthunder/tunedex/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	MenuView ViewState = iota
	SongListView
	SongView
	ConfirmView
	RebuildView
	ResultView
)

// Chart is a song list the menu can open.
type Chart int

const (
	ChartRecommended Chart = iota
	ChartTrending
	ChartTopRated
	ChartTopRecommended
	ChartRebuild
)

func (c Chart) String() string {
	switch c {
	case ChartRecommended:
		return "Recommended for you"
	case ChartTrending:
		return "Trending"
	case ChartTopRated:
		return "Top rated by genre"
	case ChartTopRecommended:
		return "Most shared by genre"
	case ChartRebuild:
		return "Rebuild index"
	default:
		return ""
	}
}

// Recommender is the subset of [recommend.Engine] the TUI reads.
//
// Invalidate drops cached popularity data so the next cold-start request sees the current index.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Result, error)
	Invalidate()
}

// Charts is the subset of [popularity.Aggregator] the TUI reads.
type Charts interface {
	Trending(ctx context.Context, n int) ([]models.SongDoc, error)
	TopRated(ctx context.Context, n int) ([]models.SongDoc, error)
	TopRecommended(ctx context.Context, n int) ([]models.SongDoc, error)
}

// Rebuilder re-projects the whole catalog.
type Rebuilder interface {
	Rebuild(ctx context.Context, prog chan<- tasks.ProgressUpdate, opts tasks.RebuildOpts) (*tasks.RebuildResult, error)
}

// Deps are the services behind the TUI. Rebuilder may be nil to hide the rebuild entry.
type Deps struct {
	Recommender Recommender
	Charts      Charts
	Rebuilder   Rebuilder
	UserID      int64 // 0 hides the recommendation entry
	Size        int   // songs per chart
	Rebuild     tasks.RebuildOpts
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	deps         Deps
	view         ViewState
	width        int
	height       int
	menu         list.Model
	songList     list.Model
	hasSongs     bool
	chart        Chart
	selected     *models.SongDoc
	progressChan <-chan tasks.ProgressUpdate
	done         <-chan rebuildComplete
	progress     tasks.ProgressUpdate
	result       *tasks.RebuildResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, deps Deps) *Model {
	if deps.Size <= 0 {
		deps.Size = 10
	}

	var items []list.Item
	if deps.UserID != 0 && deps.Recommender != nil {
		items = append(items, menuItem{chart: ChartRecommended, desc: fmt.Sprintf("%d songs picked from user #%d's playlists", deps.Size, deps.UserID)})
	}
	if deps.Charts != nil {
		items = append(items,
			menuItem{chart: ChartTrending, desc: "Most shared songs overall"},
			menuItem{chart: ChartTopRated, desc: "Two best rated songs per genre"},
			menuItem{chart: ChartTopRecommended, desc: "Two most shared songs per genre"},
		)
	}
	if deps.Rebuilder != nil {
		items = append(items, menuItem{chart: ChartRebuild, desc: "Re-project every song and user"})
	}

	menu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	menu.Title = "tunedex"

	return &Model{
		ctx:   ctx,
		deps:  deps,
		view:  MenuView,
		menu:  menu,
		help:  help.New(),
		keys:  newKeyMap(),
		chart: ChartTrending,
	}
}

// Init has nothing to fetch until a chart is chosen.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.menu.SetSize(msg.Width-4, msg.Height-8)
		if m.hasSongs {
			m.songList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case MenuView:
			return m.handleMenuKeys(msg)
		case SongListView:
			return m.handleSongListKeys(msg)
		case SongView:
			return m.handleSongKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		case RebuildView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSongsFetched:
		data := msg.data.(songsFetched)
		m.err = data.err
		if data.err != nil {
			m.view = MenuView
			return m, nil
		}
		items := make([]list.Item, len(data.songs))
		for i, s := range data.songs {
			items[i] = songItem{song: s}
		}
		m.chart = data.chart
		m.songList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.songList.Title = data.label
		m.songList.SetSize(m.width-4, m.height-8)
		m.hasSongs = true
		m.view = SongListView
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgRebuildComplete:
		data := msg.data.(rebuildComplete)
		if m.deps.Recommender != nil {
			m.deps.Recommender.Invalidate()
		}
		m.result = data.result
		m.err = data.err
		m.progressChan, m.done = nil, nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress esc to go back, q to quit", m.err))
	}

	switch m.view {
	case MenuView:
		return m.renderMenu()
	case SongListView:
		return m.renderSongList()
	case SongView:
		return m.renderSong()
	case ConfirmView:
		return m.renderConfirm()
	case RebuildView:
		return m.renderRebuild()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleMenuKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.err != nil && key.Matches(msg, m.keys.back) {
		m.err = nil
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.open):
		if item, ok := m.menu.SelectedItem().(menuItem); ok {
			if item.chart == ChartRebuild {
				m.view = ConfirmView
				return m, nil
			}
			return m, m.fetchChart(item.chart)
		}
	}

	var cmd tea.Cmd
	m.menu, cmd = m.menu.Update(msg)
	return m, cmd
}

func (m *Model) handleSongListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.songList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.songList, cmd = m.songList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = MenuView
		return m, nil
	case key.Matches(msg, m.keys.reload):
		if m.deps.Recommender != nil {
			m.deps.Recommender.Invalidate()
		}
		return m, m.fetchChart(m.chart)
	case key.Matches(msg, m.keys.more):
		m.deps.Size += sizeStep
		return m, m.fetchChart(m.chart)
	case key.Matches(msg, m.keys.fewer):
		m.deps.Size = max(1, m.deps.Size-sizeStep)
		return m, m.fetchChart(m.chart)
	case key.Matches(msg, m.keys.nextChart):
		return m, m.fetchChart(m.cycleChart(1))
	case key.Matches(msg, m.keys.prevChart):
		return m, m.fetchChart(m.cycleChart(-1))
	case key.Matches(msg, m.keys.open):
		if item, ok := m.songList.SelectedItem().(songItem); ok {
			song := item.song
			m.selected = &song
			m.view = SongView
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.songList, cmd = m.songList.Update(msg)
	return m, cmd
}

func (m *Model) handleSongKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.open):
		m.view = SongListView
		m.selected = nil
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.cancel), key.Matches(msg, m.keys.back):
		m.view = MenuView
		return m, nil
	case key.Matches(msg, m.keys.confirm):
		m.view = RebuildView
		return m, m.startRebuild()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.open):
		m.view = MenuView
		m.result = nil
		m.err = nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case MenuView:
		m.menu, cmd = m.menu.Update(msg)
	case SongListView:
		m.songList, cmd = m.songList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchChart(chart Chart) tea.Cmd {
	ctx, deps := m.ctx, m.deps
	return func() tea.Msg {
		label := chart.String()
		var (
			songs []models.SongDoc
			err   error
		)
		switch chart {
		case ChartRecommended:
			var res *recommend.Result
			res, err = deps.Recommender.Recommend(ctx, recommend.Request{UserID: deps.UserID, Size: deps.Size})
			if res != nil {
				songs = res.Songs
				if res.Path == recommend.NoHistory {
					label += " (popular picks)"
				}
			}
			if errors.Is(err, shared.ErrNoSongsToRecommend) {
				err = fmt.Errorf("no songs to recommend from: add songs to a playlist first")
			}
		case ChartTrending:
			songs, err = deps.Charts.Trending(ctx, deps.Size)
		case ChartTopRated:
			songs, err = deps.Charts.TopRated(ctx, deps.Size)
		case ChartTopRecommended:
			songs, err = deps.Charts.TopRecommended(ctx, deps.Size)
		default:
			err = fmt.Errorf("%w: chart %d", shared.ErrInvalidArgument, chart)
		}
		return songsFetchedMsg(chart, label, songs, err)
	}
}

// cycleChart returns the chart step places away from the current one among the menu's charts.
func (m *Model) cycleChart(step int) Chart {
	var charts []Chart
	for _, it := range m.menu.Items() {
		if item, ok := it.(menuItem); ok && item.chart != ChartRebuild {
			charts = append(charts, item.chart)
		}
	}
	if len(charts) == 0 {
		return m.chart
	}

	i := 0
	for j, c := range charts {
		if c == m.chart {
			i = j
		}
	}
	n := len(charts)
	return charts[((i+step)%n+n)%n]
}

func (m *Model) startRebuild() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan rebuildComplete, 1)
	m.progressChan, m.done = progress, done
	m.progress = tasks.ProgressUpdate{}

	rebuilder, ctx, opts := m.deps.Rebuilder, m.ctx, m.deps.Rebuild
	go func() {
		result, err := rebuilder.Rebuild(ctx, progress, opts)
		done <- rebuildComplete{result: result, err: err}
		close(progress)
	}()

	return m.waitForProgress()
}

// waitForProgress relays updates until the channel closes, then reports the rebuild outcome.
func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.done
	if progress == nil {
		return nil
	}
	return func() tea.Msg {
		if update, ok := <-progress; ok {
			return progressUpdateMsg(update)
		}
		res := <-done
		return rebuildCompleteMsg(res.result, res.err)
	}
}

func (m *Model) renderMenu() string {
	helpKeys := []key.Binding{m.keys.open, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.menu.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderSongList() string {
	return fmt.Sprintf("%s\n\n%s", m.songList.View(), m.help.ShortHelpView(m.keys.chartKeys()))
}

func (m *Model) renderSong() string {
	if m.selected == nil {
		return ""
	}
	s := m.selected

	var b strings.Builder
	b.WriteString(styles.title.Render(s.Title))
	b.WriteString("\n")
	for _, row := range [][2]string{
		{"Artist", s.ArtistName},
		{"Album", s.AlbumTitle},
		{"Genre", s.GenreName},
		{"Rating", stars(s.Rating)},
		{"Shares", fmt.Sprintf("%d", s.RecommendationCount)},
		{"Song ID", fmt.Sprintf("%d", s.SongID)},
	} {
		b.WriteString(styles.label.Render(row[0]))
		b.WriteString(row[1])
		b.WriteString("\n")
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s", b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Rebuild the index?")
	info := styles.warn.Render("Every song and user document is re-projected from the catalog.")

	helpKeys := []key.Binding{m.keys.confirm, m.keys.cancel, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderRebuild() string {
	title := styles.title.Render("Rebuilding Index")

	var phase string
	switch m.progress.Phase {
	case tasks.LoadCatalog:
		phase = "Loading catalog..."
	case tasks.ProjectSongs:
		phase = fmt.Sprintf("Projecting songs (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.ProjectUsers:
		phase = fmt.Sprintf("Projecting users (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.DrainOutbox:
		phase = "Draining outbox..."
	default:
		phase = "Processing..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, m.progress.Message)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})

	if m.result == nil {
		msg := "No result available"
		if m.err != nil {
			msg = fmt.Sprintf("Rebuild failed: %v", m.err)
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), helpView)
	}

	title := styles.ok.Render("✓ Rebuild Complete!")
	if m.err != nil {
		title = styles.warn.Render("Rebuild finished with errors")
	}
	info := fmt.Sprintf(
		"\nSongs: %d projected, %d skipped, %d removed\nUsers: %d projected, %d removed\nOutbox: %d processed, %d failed",
		m.result.Songs.Projected,
		m.result.Songs.Skipped,
		m.result.Songs.Deleted,
		m.result.Users.Projected,
		m.result.Users.Deleted,
		m.result.Drain.Processed,
		m.result.Drain.Failed,
	)

	var failed string
	if m.result.Failed > 0 {
		failed = "\n\n" + styles.err.Render(fmt.Sprintf("%d documents failed to project:", m.result.Failed))
		if m.err != nil {
			for _, line := range strings.Split(m.err.Error(), "\n") {
				failed += fmt.Sprintf("\n  • %s", line)
			}
		}
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed, helpView)
}
