package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"tabscope/config"
	"tabscope/log"
	"tabscope/session"
	"tabscope/session/git"
	"tabscope/stream"
	"tabscope/ui"
)

// frameInterval redraws running-command durations and expires toasts.
const frameInterval = 500 * time.Millisecond

// toastDuration is how long a snapshot toast stays on screen.
const toastDuration = 4 * time.Second

// Run is the main entrypoint into the application.
func Run(ctx context.Context, program string, path string) error {
	cfg := config.LoadConfig()
	if program != "" {
		cfg.DefaultProgram = program
	}
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		path = wd
	}

	manager := session.NewManager(cfg)
	appState := config.LoadState()
	storage, err := session.NewStorage(appState)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	h := newHome(ctx, cfg, manager, storage, path)

	p := tea.NewProgram(h, tea.WithAltScreen())
	bridge := &teaBridge{program: p}
	manager.Subscribe(bridge)

	_, err = p.Run()
	return err
}

// teaBridge forwards Manager events into the bubbletea message loop.
type teaBridge struct {
	program *tea.Program
}

func (b *teaBridge) OnBlockEvent(tabID string, ev stream.BlockEvent) {
	b.program.Send(blockEventMsg{tabID: tabID, ev: ev})
}

func (b *teaBridge) OnStatusChange(tabID string, status stream.TabStatus, cmd *stream.CommandInfo) {
	b.program.Send(statusChangeMsg{tabID: tabID, status: status, cmd: cmd})
}

func (b *teaBridge) OnRiskyDetection(tabID string, det stream.RiskyDetection) {
	b.program.Send(riskyMsg{tabID: tabID, det: det})
}

func (b *teaBridge) OnSnapshotResult(tabID string, snap *git.Snapshot, err error) {
	b.program.Send(snapshotMsg{tabID: tabID, snap: snap, err: err})
}

type blockEventMsg struct {
	tabID string
	ev    stream.BlockEvent
}

type statusChangeMsg struct {
	tabID  string
	status stream.TabStatus
	cmd    *stream.CommandInfo
}

type riskyMsg struct {
	tabID string
	det   stream.RiskyDetection
}

type snapshotMsg struct {
	tabID string
	snap  *git.Snapshot
	err   error
}

// frameMsg drives periodic redraws.
type frameMsg time.Time

func frameTick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

type home struct {
	ctx context.Context

	cfg     *config.Config
	manager *session.Manager
	storage *session.Storage
	// path is the project directory new tabs open in.
	path string

	// active is the index of the focused tab within manager.Tabs().
	active int

	width  int
	height int

	blockList *ui.BlockList
	statusBar *ui.StatusBar
	banner    *ui.RiskyBanner

	// input feeds typed commands to the active tab's pty.
	input     textinput.Model
	inputting bool

	toast        string
	toastExpires time.Time

	errText string

	quitting bool
}

func newHome(ctx context.Context, cfg *config.Config, manager *session.Manager, storage *session.Storage, path string) *home {
	ti := textinput.New()
	ti.Placeholder = "command for the agent..."
	ti.Prompt = "> "

	return &home{
		input:     ti,
		ctx:       ctx,
		cfg:       cfg,
		manager:   manager,
		storage:   storage,
		path:      path,
		blockList: ui.NewBlockList(),
		statusBar: ui.NewStatusBar(),
		banner:    ui.NewRiskyBanner(),
	}
}

// ptySize returns the pty dimensions for new tabs from the real terminal,
// falling back to 80x24 when stdout is not a terminal.
func ptySize() (rows, cols uint16) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 24, 80
	}
	return uint16(h), uint16(w)
}

func (m *home) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return restoreTabsMsg{} },
		frameTick(),
	)
}

type restoreTabsMsg struct{}

// restoreTabs reopens the tabs stored on the previous run, or opens a fresh
// one in the launch directory when nothing was stored.
func (m *home) restoreTabs() {
	stored, err := m.storage.LoadTabs()
	if err != nil {
		log.WarningLog.Printf("failed to load stored tabs: %v", err)
	}

	rows, cols := ptySize()
	opened := 0
	for _, data := range stored {
		tab, err := m.manager.Open(data.Options())
		if err != nil {
			log.WarningLog.Printf("failed to reopen tab %q: %v", data.Title, err)
			continue
		}
		if err := tab.Start(rows, cols); err != nil {
			log.WarningLog.Printf("failed to start tab %q: %v", tab.Title, err)
			_ = m.manager.CloseTab(tab.ID)
			continue
		}
		opened++
	}

	if opened == 0 {
		m.openTab()
	}
}

func (m *home) openTab() {
	tab, err := m.manager.Open(session.TabOptions{Path: m.path})
	if err != nil {
		m.errText = err.Error()
		return
	}
	rows, cols := ptySize()
	if err := tab.Start(rows, cols); err != nil {
		m.errText = err.Error()
		_ = m.manager.CloseTab(tab.ID)
		return
	}
	m.active = len(m.manager.Tabs()) - 1
}

func (m *home) activeTab() *session.Tab {
	tabs := m.manager.Tabs()
	if len(tabs) == 0 {
		return nil
	}
	if m.active >= len(tabs) {
		m.active = len(tabs) - 1
	}
	return tabs[m.active]
}

func (m *home) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.blockList.SetSize(msg.Width, msg.Height-4)
		m.statusBar.SetWidth(msg.Width)
		m.banner.SetWidth(msg.Width)
		m.input.Width = msg.Width - 4
		return m, nil

	case restoreTabsMsg:
		m.restoreTabs()
		return m, nil

	case frameMsg:
		if m.toast != "" && time.Now().After(m.toastExpires) {
			m.toast = ""
		}
		return m, frameTick()

	case blockEventMsg, statusChangeMsg, riskyMsg:
		// State already lives on the tab; the message only triggers a redraw.
		return m, nil

	case snapshotMsg:
		m.toast = ui.SnapshotToast(msg.snap, msg.err)
		m.toastExpires = time.Now().Add(toastDuration)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	return m, nil
}

func (m *home) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.inputting {
		return m.handleInputKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m.handleQuit()

	case "i", "enter":
		if m.activeTab() != nil {
			m.inputting = true
			return m, m.input.Focus()
		}

	case "tab":
		if n := len(m.manager.Tabs()); n > 0 {
			m.active = (m.active + 1) % n
		}
	case "shift+tab":
		if n := len(m.manager.Tabs()); n > 0 {
			m.active = (m.active - 1 + n) % n
		}

	case "n":
		m.openTab()

	case "w":
		if tab := m.activeTab(); tab != nil {
			if err := m.manager.CloseTab(tab.ID); err != nil {
				m.errText = err.Error()
			}
			if m.active > 0 {
				m.active--
			}
		}

	case "j", "down":
		if tab := m.activeTab(); tab != nil {
			m.blockList.MoveSelection(1, tab.Store().Len())
		}
	case "k", "up":
		if tab := m.activeTab(); tab != nil {
			m.blockList.MoveSelection(-1, tab.Store().Len())
		}

	case "c":
		if tab := m.activeTab(); tab != nil {
			if b, ok := selectedBlock(tab, m.blockList.Selected()); ok {
				tab.Store().ToggleCollapsed(b.ID)
			}
		}
	case "p":
		if tab := m.activeTab(); tab != nil {
			if b, ok := selectedBlock(tab, m.blockList.Selected()); ok {
				tab.Store().TogglePinned(b.ID)
			}
		}

	case "C":
		if tab := m.activeTab(); tab != nil {
			tab.Store().CollapseAll()
		}
	case "E":
		if tab := m.activeTab(); tab != nil {
			tab.Store().ExpandAll()
		}
	case "x":
		if tab := m.activeTab(); tab != nil {
			tab.Store().Clear()
			m.blockList.MoveSelection(0, tab.Store().Len())
		}

	case "d":
		if tab := m.activeTab(); tab != nil {
			m.manager.Dismiss(tab.ID)
		}

	case "s":
		if tab := m.activeTab(); tab != nil {
			return m, m.snapshotCmd(tab.ID)
		}
	}

	return m, nil
}

// handleInputKey routes keys while the command input is focused. Enter sends
// the line to the active tab's pty; it passes through Tab.Write so the
// lifecycle and risky detectors see the input before the program echoes it.
func (m *home) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.handleQuit()

	case "esc":
		m.inputting = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil

	case "enter":
		line := m.input.Value()
		m.input.SetValue("")
		tab := m.activeTab()
		if tab == nil {
			m.inputting = false
			m.input.Blur()
			return m, nil
		}
		if _, err := tab.Write([]byte(line + "\n")); err != nil {
			m.errText = err.Error()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func selectedBlock(tab *session.Tab, idx int) (stream.StoredBlock, bool) {
	blocks := tab.Store().Blocks()
	if idx < 0 || idx >= len(blocks) {
		return stream.StoredBlock{}, false
	}
	return blocks[idx], true
}

// snapshotCmd records a manual snapshot off the UI goroutine.
func (m *home) snapshotCmd(tabID string) tea.Cmd {
	return func() tea.Msg {
		snap, err := m.manager.CreateSnapshot(tabID, "manual snapshot")
		return snapshotMsg{tabID: tabID, snap: snap, err: err}
	}
}

func (m *home) handleQuit() (tea.Model, tea.Cmd) {
	m.quitting = true

	if err := m.storage.SaveTabs(m.manager.Tabs()); err != nil {
		log.WarningLog.Printf("failed to save tabs: %v", err)
	}
	if err := m.manager.CloseAll(); err != nil {
		log.ErrorLog.Printf("failed to close tabs: %v", err)
	}

	return m, tea.Quit
}

var helpLine = lipgloss.NewStyle().Faint(true).
	Render("i:input  tab:switch  n:new  w:close  j/k:move  c:collapse  p:pin  C/E:all  x:clear  d:dismiss  s:snapshot  q:quit")

var inputHelpLine = lipgloss.NewStyle().Faint(true).
	Render("enter:send  esc:back")

func (m *home) View() string {
	if m.quitting {
		return ""
	}

	tab := m.activeTab()
	if tab == nil {
		return "\n  no open tabs, press n to open one\n\n" + helpLine
	}

	var sections []string
	sections = append(sections,
		m.statusBar.String(m.tabLabel(tab), tab.Status(), tab.CurrentCommand(), time.Now()))

	if banner := m.banner.String(tab.Risky()); banner != "" {
		sections = append(sections, banner)
	}

	sections = append(sections, m.blockList.String(tab.Store().Blocks()))

	if m.toast != "" {
		sections = append(sections, m.toast)
	}
	if m.errText != "" {
		sections = append(sections, ui.StatusStyles.Error.Render(m.errText))
	}
	if m.inputting {
		sections = append(sections, m.input.View(), inputHelpLine)
	} else {
		sections = append(sections, helpLine)
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// tabLabel shows the tab title plus its position, e.g. "calm-harbor [2/3]".
func (m *home) tabLabel(tab *session.Tab) string {
	n := len(m.manager.Tabs())
	if n <= 1 {
		return tab.Title
	}
	return fmt.Sprintf("%s [%d/%d]", tab.Title, m.active+1, n)
}
