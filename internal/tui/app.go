package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AbbuRehan-SD/news-summarizer/internal/browser"
	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
)

// Source produces the article views the browser pages through.
type Source interface {
	Label() string
	Regional(ctx context.Context, page int) []news.Article
	Headlines(ctx context.Context, page int) []news.Article
	Search(ctx context.Context, term string, page int) []news.Article
}

type focusPane int

const (
	focusList focusPane = iota
	focusPreview
)

type mode int

const (
	modeNormal mode = iota
	modeSearch
	modeHelp
)

type App struct {
	source   Source
	timeout  time.Duration
	articles []news.Article
	cursor   int
	focus    focusPane
	mode     mode

	view  view
	query string
	page  int

	width  int
	height int

	searchInput textinput.Model
	spinner     spinner.Model

	loading       bool
	seq           int
	previewScroll int
	currentDate   string
	err           error
}

// RunOpts holds all parameters for launching the TUI.
type RunOpts struct {
	Source Source
	// Timeout bounds one page load, enrichment included.
	Timeout time.Duration
}

func NewApp(opts RunOpts) *App {
	ti := textinput.New()
	ti.Placeholder = "Search news..."
	ti.Prompt = searchPromptStyle.Render("/ ")
	ti.CharLimit = 100

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &App{
		source:      opts.Source,
		timeout:     timeout,
		searchInput: ti,
		spinner:     sp,
		page:        1,
		currentDate: time.Now().Format("Jan 2"),
	}
}

func (a *App) Init() tea.Cmd {
	return a.loadCmd()
}

// loadCmd captures the current view, query and page into the closure so a
// later keypress cannot change what this request fetches.
func (a *App) loadCmd() tea.Cmd {
	a.seq++
	a.loading = true
	a.err = nil

	seq, v, query, page := a.seq, a.view, a.query, a.page
	src, timeout := a.source, a.timeout
	fetch := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return pageLoadedMsg{seq: seq, articles: fetchPage(ctx, src, v, query, page)}
	}
	return tea.Batch(fetch, a.spinner.Tick)
}

func fetchPage(ctx context.Context, src Source, v view, query string, page int) []news.Article {
	switch v {
	case viewHeadlines:
		return src.Headlines(ctx, page)
	case viewSearch:
		return src.Search(ctx, query, page)
	default:
		return src.Regional(ctx, page)
	}
}

func openBrowserCmd(url string) tea.Cmd {
	return func() tea.Msg {
		if err := browser.Open(url); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		// Clear sticky error on any keypress
		a.err = nil
		return a.handleKey(msg)

	case pageLoadedMsg:
		if msg.seq != a.seq {
			return a, nil
		}
		a.loading = false
		a.articles = msg.articles
		a.cursor = 0
		a.previewScroll = 0
		return a, nil

	case errMsg:
		a.err = msg.err
		return a, nil

	case spinner.TickMsg:
		if a.loading {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}

	switch a.mode {
	case modeSearch:
		return a.handleSearchKey(msg)
	case modeHelp:
		if msg.String() == "?" || msg.String() == "esc" || msg.String() == "q" {
			a.mode = modeNormal
		}
		return a, nil
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "j", "down":
		if a.focus == focusList && a.cursor < len(a.articles)-1 {
			a.cursor++
			a.previewScroll = 0
		} else if a.focus == focusPreview {
			a.previewScroll++
		}
		return a, nil
	case "k", "up":
		if a.focus == focusList && a.cursor > 0 {
			a.cursor--
			a.previewScroll = 0
		} else if a.focus == focusPreview && a.previewScroll > 0 {
			a.previewScroll--
		}
		return a, nil
	case "tab":
		if a.focus == focusList {
			a.focus = focusPreview
		} else {
			a.focus = focusList
		}
		return a, nil
	case "o", "enter":
		if len(a.articles) > 0 && a.cursor < len(a.articles) {
			return a, openBrowserCmd(a.articles[a.cursor].URL)
		}
		return a, nil
	case "1":
		return a, a.switchView(viewRegional)
	case "2":
		return a, a.switchView(viewHeadlines)
	case "3":
		if a.query != "" {
			return a, a.switchView(viewSearch)
		}
		return a, nil
	case "n", "right":
		a.page++
		return a, a.loadCmd()
	case "p", "left":
		if a.page > 1 {
			a.page--
			return a, a.loadCmd()
		}
		return a, nil
	case "r":
		return a, a.loadCmd()
	case "/":
		a.mode = modeSearch
		a.searchInput.SetValue(a.query)
		a.searchInput.Focus()
		return a, textinput.Blink
	case "?":
		a.mode = modeHelp
		return a, nil
	}

	return a, nil
}

func (a *App) switchView(v view) tea.Cmd {
	if a.view == v {
		return nil
	}
	a.view = v
	a.page = 1
	return a.loadCmd()
}

func (a *App) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = modeNormal
		a.searchInput.Blur()
		return a, nil
	case "enter":
		a.mode = modeNormal
		a.searchInput.Blur()
		term := strings.TrimSpace(a.searchInput.Value())
		if term == "" {
			return a, nil
		}
		a.query = term
		a.view = viewSearch
		a.page = 1
		return a, a.loadCmd()
	}

	var cmd tea.Cmd
	a.searchInput, cmd = a.searchInput.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	if a.width == 0 {
		return lipgloss.NewStyle().Foreground(colorAccent).Render("  news-summarizer")
	}

	if a.mode == modeHelp {
		return a.renderHelp()
	}

	headerHeight := 1
	tabsHeight := 1
	statusHeight := 1
	contentHeight := a.height - headerHeight - tabsHeight - statusHeight - 4 // borders

	listWidth := int(float64(a.width) * 0.35)
	previewWidth := a.width - listWidth - 1 // gap

	if contentHeight < 3 {
		contentHeight = 3
	}

	headerLeft := headerStyle.Render("news-summarizer")
	headerRight := headerDateStyle.Render(a.currentDate)
	headerGap := a.width - lipgloss.Width(headerLeft) - lipgloss.Width(headerRight)
	if headerGap < 0 {
		headerGap = 0
	}
	header := headerLeft + fmt.Sprintf("%*s", headerGap, "") + headerRight

	tabs := renderTabs(a.source.Label(), a.view, a.query, a.width)
	if a.mode == modeSearch {
		tabs = a.searchInput.View()
	}

	innerListW := listWidth - 4 // border + padding
	listContent := renderList(a.articles, a.cursor, contentHeight, innerListW)

	listStyle := listPaneStyle
	if a.focus == focusList {
		listStyle = listPaneActiveStyle
	}
	listPane := listStyle.Width(listWidth - 2).Height(contentHeight).Render(listContent)

	var selected *news.Article
	if len(a.articles) > 0 && a.cursor < len(a.articles) {
		selected = &a.articles[a.cursor]
	}
	innerPreviewW := previewWidth - 4
	previewContent := renderPreview(selected, innerPreviewW, contentHeight, a.previewScroll)

	previewStyle := previewPaneStyle
	if a.focus == focusPreview {
		previewStyle = previewPaneActiveStyle
	}
	previewPane := previewStyle.Width(previewWidth - 2).Height(contentHeight).Render(previewContent)

	content := lipgloss.JoinHorizontal(lipgloss.Top, listPane, previewPane)

	status := renderStatusBar(len(a.articles), a.page, a.width, a.mode == modeSearch, a.loading)
	if a.loading {
		status = a.spinner.View() + " " + status
	}
	if a.err != nil {
		status = lipgloss.NewStyle().Foreground(colorAccent).Render(a.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, tabs, content, status)
}

func (a *App) renderHelp() string {
	title := lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Render("news-summarizer")
	dim := helpDimStyle

	help := title + dim.Render(" · Keyboard Shortcuts") + "\n\n" +
		dim.Render("Navigation") + "\n" +
		"  j/k, ↑/↓     Navigate article list\n" +
		"  tab           Switch focus between list and preview\n" +
		"  n/p, →/←     Next / previous page\n\n" +
		dim.Render("Views") + "\n" +
		"  1             " + a.source.Label() + " digest\n" +
		"  2             Top headlines\n" +
		"  3             Last search\n" +
		"  /             Search news\n\n" +
		dim.Render("Actions") + "\n" +
		"  o, enter      Open article in browser\n" +
		"  r             Reload page\n\n" +
		dim.Render("General") + "\n" +
		"  ?             Toggle this help\n" +
		"  q, ctrl+c    Quit"

	card := helpCardStyle.Render(help)

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, card)
}

// Run starts the TUI application.
func Run(opts RunOpts) error {
	app := NewApp(opts)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
