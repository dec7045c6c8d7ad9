// Package browse is an interactive terminal view over the listing store: a
// scrollable list of everything stored, a summary pane fed by the aggregate
// engine, and a per-listing detail view.
package browse

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"jobtally/internal/model"
	"jobtally/internal/query"
)

// Lines per listing item in the list view (title + subtitle + blank separator).
const listingItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	listingTitleStyle = lipgloss.NewStyle().
				Bold(true)

	listingSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")). // bright white
				Background(lipgloss.Color("24"))  // dark blue bg

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	summaryHeadingStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	summaryCountStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(14)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	bodyDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	bodyHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	bodyTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

// browseData is everything the TUI renders, loaded up front.
type browseData struct {
	listings     []model.JobListing
	topCompanies []query.Entry
	topTags      []query.Entry
	total        int
}

type browseModel struct {
	data          browseData
	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int // 0=listings, 1=summary
	cursor        int
	width         int
	height        int
	ready         bool

	view           viewState
	detailListing  model.JobListing
	detailViewport viewport.Model
	showBody       bool
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m browseModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		if m.activePane == 0 {
			m.cursor = clamp(m.cursor-1, 0, max(len(m.data.listings)-1, 0))
			m.recalcContent()
			m.ensureCursorVisible()
			return m, nil
		}
	case "down", "j":
		if m.activePane == 0 {
			m.cursor = clamp(m.cursor+1, 0, max(len(m.data.listings)-1, 0))
			m.recalcContent()
			m.ensureCursorVisible()
			return m, nil
		}
	case "enter":
		if m.activePane == 0 {
			return m.openDetailView()
		}
		return m, nil
	}

	// Forward other keys (pgup/pgdn/home/end, and up/down on the summary
	// pane) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m browseModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if m.detailListing.URL != "" {
			openURL(m.detailListing.URL)
		}
		return m, nil
	case "r":
		if m.detailListing.RawBody != "" {
			m.showBody = !m.showBody
			m.detailViewport.SetContent(m.renderDetail())
			m.detailViewport.SetYOffset(0)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *browseModel) ensureCursorVisible() {
	vp := &m.leftViewport

	cursorTop := m.cursor * listingItemHeight
	cursorBottom := cursorTop + listingItemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m browseModel) openDetailView() (tea.Model, tea.Cmd) {
	if len(m.data.listings) == 0 {
		return m, nil
	}

	m.view = viewDetail
	m.detailListing = m.data.listings[m.cursor]
	m.showBody = false
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())
	return m, nil
}

func (m *browseModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *browseModel) recalcContent() {
	m.leftViewport.SetContent(renderListings(m.data.listings, m.cursor, m.activePane == 0))
	m.rightViewport.SetContent(renderSummary(m.data))
}

func (m browseModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.view == viewDetail {
		return m.viewDetail()
	}

	return m.viewList()
}

func (m browseModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" Listings (%d)", len(m.data.listings))
	rightHeader := " Aggregates"

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	leftPane := leftBorder.Render(m.leftViewport.View())
	rightPane := rightBorder.Render(m.rightViewport.View())

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, " ", rightPane)

	statusText := fmt.Sprintf(" %d listings stored    ←/→/Tab switch  ↑/↓ cursor  Enter detail  q quit",
		m.data.total)
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m browseModel) viewDetail() string {
	title := detailTitleStyle.Render("Listing Details")

	border := activeBorderStyle.Width(m.width - 2)
	content := border.Render(m.detailViewport.View())

	statusText := " o open URL  esc/backspace back  ↑/↓ scroll  q quit"
	if m.detailListing.RawBody != "" {
		statusText = " o open URL  r description  esc/backspace back  ↑/↓ scroll  q quit"
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m browseModel) renderDetail() string {
	l := m.detailListing
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Title", l.DisplayTitle)
	addField("Company", l.DisplayCompany)
	addField("Location", l.Location)
	addField("Source", l.Source)
	if len(l.Tags) > 0 {
		addField("Tags", strings.Join(l.Tags, ", "))
	}

	b.WriteByte('\n')

	if l.DatePosted != nil {
		addField("Posted", l.DatePosted.UTC().Format("2006-01-02"))
	} else {
		addField("Posted", "unknown")
	}
	addField("First Seen", l.FirstSeen.UTC().Format("2006-01-02 15:04 MST"))
	addField("Last Seen", l.LastSeen.UTC().Format("2006-01-02 15:04 MST"))

	b.WriteByte('\n')
	addField("URL", l.URL)
	addField("Fingerprint", l.Fingerprint)

	if l.RawBody != "" {
		wrapWidth := max(m.width-8, 20)
		b.WriteByte('\n')
		if m.showBody {
			label := "── Description "
			fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
			b.WriteString(bodyDividerStyle.Render(label+fill) + "\n\n")
			b.WriteString(bodyTextStyle.Render(wordWrap(l.RawBody, wrapWidth)) + "\n")
		} else {
			b.WriteString(bodyHintStyle.Render("  press r to read the description") + "\n")
		}
	}

	return b.String()
}

func renderListings(listings []model.JobListing, cursor int, isActive bool) string {
	if len(listings) == 0 {
		return "  (no listings stored, run an ingestion first)"
	}

	var b strings.Builder
	for i, l := range listings {
		isSelected := isActive && i == cursor

		titleSt := listingTitleStyle
		subtitleSt := listingSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(l.DisplayTitle))
		b.WriteByte('\n')

		posted := "n/a"
		if l.DatePosted != nil {
			posted = l.DatePosted.UTC().Format("2006-01-02")
		}
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s · %s", l.DisplayCompany, l.Source, posted)))
		b.WriteByte('\n')

		if i < len(listings)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func renderSummary(data browseData) string {
	var b strings.Builder

	section := func(heading string, entries []query.Entry) {
		b.WriteString(summaryHeadingStyle.Render(" "+heading) + "\n")
		if len(entries) == 0 {
			b.WriteString("  (none)\n")
		}
		for _, e := range entries {
			b.WriteString(fmt.Sprintf("  %-24s %s\n",
				e.Key, summaryCountStyle.Render(fmt.Sprintf("%d", e.Count))))
		}
		b.WriteByte('\n')
	}

	section("Top Companies", data.topCompanies)
	section("Top Tags", data.topTags)
	return b.String()
}

// sortByDate orders newest first; undated listings fall back to first_seen so
// they keep a stable place instead of sinking to the bottom.
func sortByDate(listings []model.JobListing) {
	at := func(l model.JobListing) int64 {
		if l.DatePosted != nil {
			return l.DatePosted.Unix()
		}
		return l.FirstSeen.Unix()
	}
	sort.Slice(listings, func(i, j int) bool {
		ti, tj := at(listings[i]), at(listings[j])
		if ti != tj {
			return ti > tj
		}
		return listings[i].Fingerprint < listings[j].Fingerprint
	})
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

const summaryTopN = 10

// Run loads everything from the store and engine behind a spinner, then
// launches the full-screen browser.
func Run(store model.ListingStore, engine *query.Engine) error {
	data, err := runLoader("stored listings", func(ctx context.Context) (browseData, error) {
		var d browseData
		if err := store.ForEach(ctx, func(l model.JobListing) error {
			d.listings = append(d.listings, l)
			return nil
		}); err != nil {
			return d, err
		}
		d.total = len(d.listings)

		var err error
		if d.topCompanies, err = engine.TopBy(ctx, query.ByCompany, summaryTopN); err != nil {
			return d, err
		}
		if d.topTags, err = engine.TopBy(ctx, query.ByTag, summaryTopN); err != nil {
			return d, err
		}
		return d, nil
	})
	if err != nil {
		return err
	}

	sortByDate(data.listings)

	m := browseModel{data: data}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
