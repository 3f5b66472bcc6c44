package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vantage/internal/config"
	"vantage/internal/feed"
	"vantage/internal/logging"
	"vantage/internal/types"
)

const (
	topLoadThreshold = 3
	minViewportWidth = 20
	minContentHeight = 6
	inputHeight      = 3
)

var (
	styleStatus    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleStatusErr = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleHeader    = lipgloss.NewStyle().Bold(true)
	styleNewBelow  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

type uiMode int

const (
	uiModeSessions uiMode = iota
	uiModeChat
)

type Model struct {
	api     SessionAPI
	history feed.HistoryStore
	cfg     config.Config
	log     logging.Logger

	mode   uiMode
	width  int
	height int

	sessionList list.Model
	sessions    []*types.Session

	// per-session-view state, reset on open/close
	session      *types.Session
	engine       *feed.Engine
	poller       *feed.Poller
	proc         *feed.AsyncProcessor
	viewCtx      context.Context
	viewCancel   context.CancelFunc
	viewport     viewport.Model
	input        textarea.Model
	loader       spinner.Model
	loading      bool
	loadErr      string
	loadingOlder bool
	sending      bool
	newBelow     bool
	status       string
	statusIsErr  bool
	planPrompt   bool
	planID       string
	lastTop      int
	lastLines    int
}

type sessionItem struct {
	session *types.Session
}

func (i sessionItem) FilterValue() string { return i.session.Title + " " + i.session.ID }
func (i sessionItem) Title() string {
	title := strings.TrimSpace(i.session.Title)
	if title == "" {
		title = i.session.ID
	}
	return title
}
func (i sessionItem) Description() string {
	return fmt.Sprintf("%s · %s", i.session.State, i.session.CreatedAt.Local().Format("2006-01-02 15:04"))
}

func NewModel(api SessionAPI, history feed.HistoryStore, cfg config.Config, log logging.Logger) Model {
	if log == nil {
		log = logging.Nop()
	}
	delegate := list.NewDefaultDelegate()
	sessionList := list.New([]list.Item{}, delegate, minViewportWidth, minContentHeight)
	sessionList.Title = "Sessions"
	sessionList.SetShowHelp(true)

	vp := viewport.New(minViewportWidth, minContentHeight)

	input := textarea.New()
	input.Placeholder = "Message the agent…"
	input.SetHeight(inputHeight - 1)
	input.ShowLineNumbers = false
	input.CharLimit = 0

	loader := spinner.New()
	loader.Spinner = spinner.Line

	return Model{
		api:         api,
		history:     history,
		cfg:         cfg,
		log:         log,
		mode:        uiModeSessions,
		sessionList: sessionList,
		viewport:    vp,
		input:       input,
		loader:      loader,
	}
}

func Run(api SessionAPI, history feed.HistoryStore, cfg config.Config, log logging.Logger) error {
	model := NewModel(api, history, cfg, log)
	p := tea.NewProgram(&model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(fetchSessionsCmd(m.api), m.loader.Tick)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.applyLayout()
		if m.mode == uiModeChat {
			m.refreshChat(false)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionsMsg:
		if msg.err != nil {
			m.setError("sessions: " + msg.err.Error())
			return m, nil
		}
		m.sessions = msg.sessions
		items := make([]list.Item, 0, len(msg.sessions))
		for _, s := range msg.sessions {
			items = append(items, sessionItem{session: s})
		}
		m.sessionList.SetItems(items)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		return m, cmd

	case positionedMsg:
		if !m.onActiveSession(msg.sessionID) {
			return m, nil
		}
		if msg.err != nil {
			m.loading = false
			m.loadErr = msg.err.Error()
			return m, nil
		}
		m.loading = false
		m.loadErr = ""
		m.refreshChat(true)
		m.poller.Start()
		return m, nil

	case feedUpdatedMsg:
		if !m.onActiveSession(msg.sessionID) {
			return m, nil
		}
		m.refreshChat(false)
		return m, waitForFeedCmd(m.viewCtx, m.engine, msg.sessionID)

	case caughtUpMsg:
		if !m.onActiveSession(msg.sessionID) {
			return m, nil
		}
		if msg.err != nil && !errors.Is(msg.err, feed.ErrOperationInFlight) {
			m.setError("catch-up: " + msg.err.Error())
		}
		return m, nil

	case olderLoadedMsg:
		if !m.onActiveSession(msg.sessionID) {
			return m, nil
		}
		m.loadingOlder = false
		if msg.err != nil {
			if !errors.Is(msg.err, feed.ErrOperationInFlight) {
				m.setError("older history: " + msg.err.Error())
			}
			return m, nil
		}
		m.refreshChat(false)
		// Keep filling until the window covers the viewport.
		snap := m.engine.Snapshot()
		if snap.MoreHistory && m.lastLines <= m.viewport.Height {
			return m, m.triggerLoadOlder()
		}
		return m, nil

	case sentMsg:
		if !m.onActiveSession(msg.sessionID) {
			return m, nil
		}
		m.sending = false
		if msg.err != nil {
			m.setError("send: " + msg.err.Error())
			return m, nil
		}
		m.setInfo("sent")
		return m, catchUpCmd(m.viewCtx, m.engine, msg.sessionID)

	case planApprovedMsg:
		if !m.onActiveSession(msg.sessionID) {
			return m, nil
		}
		if msg.err != nil {
			m.setError("approve: " + msg.err.Error())
			return m, nil
		}
		m.setInfo("plan approved")
		return m, catchUpCmd(m.viewCtx, m.engine, msg.sessionID)

	case clipboardResultMsg:
		if msg.err != nil {
			m.setError("copy failed: " + msg.err.Error())
		} else {
			m.setInfo(msg.success)
		}
		return m, nil
	}

	return m.updateFocusedComponent(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == uiModeSessions {
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if item, ok := m.sessionList.SelectedItem().(sessionItem); ok {
				return m, m.openSession(item.session)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.sessionList, cmd = m.sessionList.Update(msg)
		return m, cmd
	}

	// Chat mode.
	if msg.String() == "ctrl+c" {
		m.closeSession()
		return m, tea.Quit
	}
	if m.planPrompt {
		switch msg.String() {
		case "y":
			m.planPrompt = false
			return m, approvePlanCmd(m.api, m.session.ID, m.planID)
		case "n", "esc":
			m.planPrompt = false
			return m, nil
		}
		return m, nil
	}
	if m.input.Focused() {
		switch msg.String() {
		case "esc":
			m.input.Blur()
			return m, nil
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.sending {
				return m, nil
			}
			m.sending = true
			m.input.Reset()
			return m, sendMessageCmd(m.api, m.session.ID, text)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "esc":
		m.closeSession()
		m.mode = uiModeSessions
		return m, fetchSessionsCmd(m.api)
	case "i", "tab":
		return m, m.input.Focus()
	case "r":
		if m.loadErr != "" && m.engine != nil {
			m.loading = true
			m.loadErr = ""
			return m, positionCmd(m.viewCtx, m.engine, m.session.ID)
		}
		return m, catchUpCmd(m.viewCtx, m.engine, m.session.ID)
	case "a":
		if m.planID != "" {
			m.planPrompt = true
		}
		return m, nil
	case "y":
		if m.engine == nil {
			return m, nil
		}
		if text, ok := lastAgentMessage(m.engine.Snapshot().Window); ok {
			return m, copyToClipboardCmd(text, "copied last agent message")
		}
		return m, nil
	case "G":
		m.viewport.GotoBottom()
		m.newBelow = false
		return m, nil
	case "g":
		m.viewport.GotoTop()
		return m, m.maybeLoadOlder()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, m.maybeLoadOlder())
}

func (m *Model) updateFocusedComponent(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.mode == uiModeSessions {
		var cmd tea.Cmd
		m.sessionList, cmd = m.sessionList.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, m.maybeLoadOlder())
}

// openSession wires a fresh traversal engine, poller and processor scoped
// to this session view.
func (m *Model) openSession(session *types.Session) tea.Cmd {
	m.closeSession()

	m.mode = uiModeChat
	m.session = session
	m.loading = true
	m.loadErr = ""
	m.newBelow = false
	m.status = ""
	m.lastTop = -1
	m.lastLines = 0

	var processor feed.Processor = feed.Passthrough()
	if m.cfg.TruncateEnabled() {
		m.proc = feed.NewAsyncProcessor(feed.NewTruncateProcessor(m.cfg.MaxArtifactBytes()))
		processor = m.proc
	}

	m.engine = feed.NewEngine(feed.Options{
		SessionID: session.ID,
		PageSize:  m.cfg.PageSize(),
		Fetcher:   apiFetcher{api: m.api},
		History:   m.history,
		Processor: processor,
		Logger:    m.log,
	})
	m.viewCtx, m.viewCancel = context.WithCancel(context.Background())
	m.poller = feed.NewPoller(m.engine, sessionStatusFunc(m.api, session.ID), m.cfg.PollInterval(), m.log)
	m.applyLayout()

	return tea.Batch(
		positionCmd(m.viewCtx, m.engine, session.ID),
		waitForFeedCmd(m.viewCtx, m.engine, session.ID),
		m.loader.Tick,
	)
}

// closeSession tears the view down: the poller stops, the view ctx cancels
// so in-flight loops cannot touch state for a view that no longer exists.
func (m *Model) closeSession() {
	if m.poller != nil {
		m.poller.Stop()
		m.poller = nil
	}
	if m.viewCancel != nil {
		m.viewCancel()
		m.viewCancel = nil
		m.viewCtx = nil
	}
	if m.proc != nil {
		m.proc.Close()
		m.proc = nil
	}
	m.engine = nil
	m.session = nil
	m.input.Blur()
	m.input.Reset()
	m.planPrompt = false
	m.planID = ""
	m.loadingOlder = false
	m.sending = false
}

func (m *Model) onActiveSession(sessionID string) bool {
	return m.mode == uiModeChat && m.session != nil && m.session.ID == sessionID && m.engine != nil
}

// refreshChat re-renders the engine window into the viewport, preserving
// the reading position when history is prepended and following the bottom
// when the user was already there.
func (m *Model) refreshChat(gotoBottom bool) {
	if m.engine == nil {
		return
	}
	snap := m.engine.Snapshot()
	if snap.Positioned {
		m.loading = false
	}
	m.planID, _ = pendingPlan(snap.Window)

	wasAtBottom := m.viewport.AtBottom()
	prevOffset := m.viewport.YOffset
	content := renderActivities(snap.Window, m.viewport.Width)
	lines := lipgloss.Height(content)
	m.viewport.SetContent(content)

	switch {
	case gotoBottom:
		m.viewport.GotoBottom()
		m.newBelow = false
	case m.lastTop >= 0 && snap.TopIndex < m.lastTop:
		// Content grew above the fold; hold the visual position.
		m.viewport.SetYOffset(prevOffset + lines - m.lastLines)
	case wasAtBottom:
		m.viewport.GotoBottom()
		m.newBelow = false
	default:
		if lines > m.lastLines {
			m.newBelow = true
		}
	}
	m.lastTop = snap.TopIndex
	m.lastLines = lines
}

func (m *Model) maybeLoadOlder() tea.Cmd {
	if m.engine == nil || m.loading || m.loadingOlder {
		return nil
	}
	if m.viewport.YOffset > topLoadThreshold {
		return nil
	}
	snap := m.engine.Snapshot()
	if !snap.Positioned || !snap.MoreHistory {
		return nil
	}
	return m.triggerLoadOlder()
}

func (m *Model) triggerLoadOlder() tea.Cmd {
	m.loadingOlder = true
	return loadOlderCmd(m.viewCtx, m.engine, m.session.ID)
}

func (m *Model) applyLayout() {
	width := m.width
	if width < minViewportWidth {
		width = minViewportWidth
	}
	height := m.height
	if height < minContentHeight {
		height = minContentHeight
	}
	m.sessionList.SetSize(width, height)
	m.viewport.Width = width
	m.viewport.Height = height - inputHeight - 2
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	m.input.SetWidth(width)
}

func (m *Model) setError(text string) {
	m.status = text
	m.statusIsErr = true
}

func (m *Model) setInfo(text string) {
	m.status = text
	m.statusIsErr = false
}

func (m *Model) View() string {
	if m.mode == uiModeSessions {
		return m.sessionList.View()
	}
	return m.chatView()
}

func (m *Model) chatView() string {
	title := "session"
	if m.session != nil {
		if t := strings.TrimSpace(m.session.Title); t != "" {
			title = t
		} else {
			title = m.session.ID
		}
	}
	header := styleHeader.Render(title)

	var body string
	switch {
	case m.loading:
		body = m.loader.View() + " loading session…"
	case m.loadErr != "":
		body = styleStatusErr.Render("failed to load: "+m.loadErr) + "\n" + styleStatus.Render("press r to retry, esc to go back")
	default:
		body = m.viewport.View()
	}

	statusLine := m.statusLine()
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.input.View(), statusLine)
}

func (m *Model) statusLine() string {
	if m.planPrompt {
		return stylePlanLabel.Render("approve plan? (y/n)")
	}
	parts := []string{}
	if m.sending {
		parts = append(parts, m.loader.View()+" sending")
	}
	if m.loadingOlder {
		parts = append(parts, m.loader.View()+" loading older history")
	}
	if m.newBelow {
		parts = append(parts, styleNewBelow.Render("new activity below · G"))
	}
	if m.planID != "" && !m.planPrompt {
		parts = append(parts, stylePlanLabel.Render("plan awaiting approval · a"))
	}
	if m.status != "" {
		if m.statusIsErr {
			parts = append(parts, styleStatusErr.Render(m.status))
		} else {
			parts = append(parts, styleStatus.Render(m.status))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, styleStatus.Render("i: write · a: approve · y: copy · esc: back"))
	}
	return strings.Join(parts, "  ")
}
