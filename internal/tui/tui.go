// Package tui provides a terminal user interface over the task store.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskflow/backend"
	"taskflow/internal/cache"
	"taskflow/internal/notification"
	"taskflow/internal/taskstore"
)

// SearchLimit is the number of semantic search hits requested.
const SearchLimit = 10

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeEdit
	ModeFilter
	ModeSearch
	ModeResults
	ModeHelp
	ModeConfirmDelete
)

// Model represents the TUI state
type Model struct {
	store *taskstore.Store
	ctx   context.Context

	// Data
	tasks []backend.Task // current derived view
	hits  []backend.ScoredTask
	query string

	cursor    int
	hitCursor int

	// Mode and input
	mode      Mode
	textInput textinput.Model
	draft     *taskstore.Draft

	// UI dimensions
	width  int
	height int

	// Styles
	paneStyle      lipgloss.Style
	selectedStyle  lipgloss.Style
	completedStyle lipgloss.Style
	progressStyle  lipgloss.Style
	helpStyle      lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
	warnStyle      lipgloss.Style
	errorStyle     lipgloss.Style
}

// Message types
type loadedMsg struct {
	err error
}

type mutatedMsg struct {
	task *backend.Task
	err  error
}

// draftSentMsg carries the remote outcome of a draft commit back to Update,
// which owns the draft.
type draftSentMsg struct {
	task *backend.Task
	err  error
}

type searchMsg struct {
	query string
	hits  []backend.ScoredTask
	err   error
}

// New creates a new TUI model over store
func New(ctx context.Context, store *taskstore.Store) *Model {
	ti := textinput.New()
	ti.Placeholder = "Enter text..."
	ti.CharLimit = 200

	return &Model{
		store:     store,
		ctx:       ctx,
		textInput: ti,
		draft:     taskstore.NewDraft(),
		mode:      ModeNormal,
		paneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		progressStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
	}
}

// Init starts the standard load
func (m *Model) Init() tea.Cmd {
	return m.load(false)
}

func (m *Model) load(refresh bool) tea.Cmd {
	return func() tea.Msg {
		if refresh {
			return loadedMsg{m.store.Refresh(m.ctx)}
		}
		return loadedMsg{m.store.Load(m.ctx, false)}
	}
}

func (m *Model) createTask(title string) tea.Cmd {
	return func() tea.Msg {
		task, err := m.store.Create(m.ctx, backend.CreateTaskRequest{Title: title})
		return mutatedMsg{task, err}
	}
}

func (m *Model) updateStatus(id int64, status backend.TaskStatus) tea.Cmd {
	return func() tea.Msg {
		task, err := m.store.Update(m.ctx, id, backend.TaskPatch{Status: &status})
		return mutatedMsg{task, err}
	}
}

func (m *Model) deleteTask(id int64) tea.Cmd {
	return func() tea.Msg {
		task, err := m.store.Delete(m.ctx, id)
		return mutatedMsg{task, err}
	}
}

// commitDraft validates the draft on the update loop and sends only the
// remote update from the command.
func (m *Model) commitDraft() tea.Cmd {
	patch, err := m.draft.Commit()
	if err != nil {
		return m.startInput(ModeEdit, "Task title...", m.draft.Working().Title)
	}
	original := m.draft.Original()
	return func() tea.Msg {
		task, err := m.store.SendDraft(m.ctx, original, patch)
		return draftSentMsg{task, err}
	}
}

func (m *Model) search(query string) tea.Cmd {
	return func() tea.Msg {
		hits, err := m.store.Search(m.ctx, query, SearchLimit)
		return searchMsg{query, hits, err}
	}
}

// sync recomputes the derived view from the store.
func (m *Model) sync() {
	m.tasks = m.store.View()
	if m.cursor >= len(m.tasks) {
		m.cursor = max(len(m.tasks)-1, 0)
	}
}

func (m *Model) selected() (backend.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return backend.Task{}, false
	}
	return m.tasks[m.cursor], true
}

func (m *Model) startInput(mode Mode, placeholder, value string) tea.Cmd {
	m.mode = mode
	m.textInput.Reset()
	m.textInput.Placeholder = placeholder
	m.textInput.SetValue(value)
	m.textInput.Focus()
	return textinput.Blink
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		m.sync()
		return m, nil

	case draftSentMsg:
		_ = m.draft.Finish(msg.err)
		if msg.err != nil {
			// Reopen the editor with the kept draft.
			return m, m.startInput(ModeEdit, "Task title...", m.draft.Working().Title)
		}
		return m.Update(mutatedMsg{task: msg.task})

	case mutatedMsg:
		m.sync()
		if msg.task != nil {
			for i, t := range m.tasks {
				if t.ID == msg.task.ID {
					m.cursor = i
					break
				}
			}
		}
		return m, nil

	case searchMsg:
		if msg.err != nil {
			m.mode = ModeNormal
			return m, nil
		}
		m.query = msg.query
		m.hits = msg.hits
		m.hitCursor = 0
		m.mode = ModeResults
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeAdd, ModeEdit, ModeFilter, ModeSearch:
			return m.handleInputMode(msg)
		case ModeResults:
			return m.handleResultsMode(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	return m, nil
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}

	case "r":
		return m, m.load(true)

	case "a":
		return m, m.startInput(ModeAdd, "New task title...", "")

	case "e":
		if task, ok := m.selected(); ok {
			if err := m.draft.Begin(task); err != nil {
				return m, nil
			}
			return m, m.startInput(ModeEdit, "Task title...", task.Title)
		}

	case "c":
		if task, ok := m.selected(); ok {
			return m, m.updateStatus(task.ID, task.Status.Next())
		}

	case "d":
		if _, ok := m.selected(); ok {
			m.mode = ModeConfirmDelete
		}

	case "/":
		return m, m.startInput(ModeFilter, "Filter...", m.store.Options().Search)

	case "S":
		return m, m.startInput(ModeSearch, "Semantic search...", "")

	case "f":
		m.store.SetStatusFilter(m.store.Options().Status.Next())
		m.sync()

	case "s":
		m.store.SetSort(m.store.Options().Sort.Next())
		m.sync()

	case "x":
		m.store.Notifications().DismissLatest()

	case "?":
		m.mode = ModeHelp
	}
	return m, nil
}

func (m *Model) handleInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		value := strings.TrimSpace(m.textInput.Value())
		mode := m.mode
		m.mode = ModeNormal
		m.textInput.Blur()
		switch mode {
		case ModeAdd:
			if value != "" {
				return m, m.createTask(value)
			}
		case ModeEdit:
			if err := m.draft.SetTitle(value); err != nil {
				return m, nil
			}
			return m, m.commitDraft()
		case ModeFilter:
			m.store.SetSearch(value)
			m.sync()
		case ModeSearch:
			if value != "" {
				return m, m.search(value)
			}
		}
		return m, nil

	case tea.KeyEsc:
		if m.mode == ModeEdit {
			_ = m.draft.Cancel()
		}
		if m.mode == ModeFilter {
			m.store.SetSearch("")
			m.sync()
		}
		m.mode = ModeNormal
		m.textInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleResultsMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.mode = ModeNormal
	case "up", "k":
		if m.hitCursor > 0 {
			m.hitCursor--
		}
	case "down", "j":
		if m.hitCursor < len(m.hits)-1 {
			m.hitCursor++
		}
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		if task, ok := m.selected(); ok {
			return m, m.deleteTask(task.ID)
		}
	case "n", "N", "esc":
		m.mode = ModeNormal
	}
	return m, nil
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd:
		return m.renderInputDialog("Add New Task", "Enter: confirm  Esc: cancel")
	case ModeEdit:
		return m.renderInputDialog("Edit: "+m.draft.Original().Title, "Enter: save  Esc: cancel")
	case ModeFilter:
		return m.renderInputDialog("Filter Tasks", "Enter: filter  Esc: clear")
	case ModeSearch:
		return m.renderInputDialog("Semantic Search", "Enter: search  Esc: cancel")
	case ModeHelp:
		return m.centerDialog(m.dialogStyle.Render(helpText))
	case ModeConfirmDelete:
		return m.centerDialog(m.dialogStyle.Render(
			"Delete selected task?\n\n" + m.helpStyle.Render("y: yes  n: no"),
		))
	}

	var content string
	if m.mode == ModeResults {
		content = m.renderResults(m.width - 6)
	} else {
		content = m.renderTasks(m.width - 6)
	}
	pane := m.paneStyle.Width(m.width - 2).Height(m.height - 5).Render(content)

	var b strings.Builder
	b.WriteString(pane)
	b.WriteString("\n")
	b.WriteString(m.renderNotification())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderTasks(width int) string {
	var b strings.Builder
	b.WriteString("Tasks\n")
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	if len(m.tasks) == 0 {
		if m.store.Loading() {
			b.WriteString("Loading...\n")
		} else {
			b.WriteString("No tasks\n")
		}
		return b.String()
	}

	for i, task := range m.tasks {
		cursor := " "
		title := task.Title
		switch {
		case task.Status == backend.StatusDone:
			title = m.completedStyle.Render(title)
		case i == m.cursor:
			title = m.selectedStyle.Render(title)
		case task.Status == backend.StatusInProgress:
			title = m.progressStyle.Render(title)
		}
		if i == m.cursor {
			cursor = ">"
		}
		b.WriteString(cursor + " " + statusIcon(task.Status) + " " + title + "\n")
	}
	return b.String()
}

func (m *Model) renderResults(width int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Search: %s\n", m.query))
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	if len(m.hits) == 0 {
		b.WriteString("No matches\n")
		return b.String()
	}
	for i, hit := range m.hits {
		cursor := " "
		title := hit.Title
		if i == m.hitCursor {
			cursor = ">"
			title = m.selectedStyle.Render(title)
		}
		b.WriteString(fmt.Sprintf("%s %3.0f%% %s %s\n", cursor, hit.Similarity*100, statusIcon(hit.Status), title))
	}
	b.WriteString("\n" + m.helpStyle.Render("Esc: back to tasks"))
	return b.String()
}

func statusIcon(status backend.TaskStatus) string {
	switch status {
	case backend.StatusDone:
		return "[✓]"
	case backend.StatusInProgress:
		return "[~]"
	default:
		return "[ ]"
	}
}

func (m *Model) renderNotification() string {
	n, ok := m.store.Notifications().Latest()
	if !ok {
		return ""
	}
	text := n.Message
	if count := m.store.Notifications().Count(); count > 1 {
		text = fmt.Sprintf("%s (+%d more)", text, count-1)
	}
	text += "  " + m.helpStyle.Render("x:dismiss")
	switch n.Level {
	case notification.LevelError:
		return m.errorStyle.Render("✗ ") + text
	case notification.LevelWarning:
		return m.warnStyle.Render("! ") + text
	}
	return "i " + text
}

func (m *Model) renderStatusBar() string {
	status := m.store.Status()
	opts := m.store.Options()

	left := "Source: " + status.Label()
	if status == cache.StatusFallbackToCache {
		left = m.warnStyle.Render(left)
	}
	right := fmt.Sprintf("%d tasks  filter:%s  sort:%s", len(m.tasks), opts.Status, opts.Sort)
	if opts.Search != "" {
		right = fmt.Sprintf("\"%s\"  %s", opts.Search, right)
	}
	right += "  ?:help"

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderInputDialog(title, hint string) string {
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.textInput.View() + "\n\n" +
			m.helpStyle.Render(hint),
	)
	return m.centerDialog(dialog)
}

const helpText = `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up

Actions:
  a      Add new task
  e      Edit selected task title
  c      Cycle task status
  d      Delete task (with confirm)
  r      Refresh from server

View:
  /      Filter by text
  f      Cycle status filter
  s      Cycle sort order
  S      Semantic search
  x      Dismiss notification

General:
  ?      Show this help
  q      Quit

Press any key to close`

func (m *Model) centerDialog(dialog string) string {
	dialogWidth := lipgloss.Width(dialog)
	dialogHeight := lipgloss.Height(dialog)

	topPad := max((m.height-dialogHeight)/2, 0)
	leftPad := max((m.width-dialogWidth)/2, 0)

	var b strings.Builder
	b.WriteString(strings.Repeat("\n", topPad))
	for _, line := range strings.Split(dialog, "\n") {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

