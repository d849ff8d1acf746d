package ui

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"chatbridge/pkg/ai"
	"chatbridge/pkg/config"

	"github.com/charmbracelet/bubbles/v2/textarea"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"github.com/mattn/go-runewidth"
)

const (
	inputHeight     = 3
	chatFooterLabel = "Enter Send | Up/Down Scroll | Ctrl+Y Copy Reply | Esc Cancel | Ctrl+C Quit"
	workingLabel    = "working..."
)

var (
	colorAccent = lipgloss.Color("141")
	colorMuted  = lipgloss.Color("245")
	colorError  = lipgloss.Color("196")

	titleStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)
	roleUserStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)
	roleAssistantStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42")).
				Bold(true)
	workingStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)
	errorStyle = lipgloss.NewStyle().
			Foreground(colorError)
	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

// chatEntry is one rendered turn of the conversation.
type chatEntry struct {
	role string
	text string
}

// streamEventMsg carries one StreamEvent into the update loop.
type streamEventMsg StreamEvent

// streamClosedMsg signals that the event channel drained without a
// terminal event, which happens after a cancelled exchange.
type streamClosedMsg struct{}

// ChatModel is the full-screen conversation surface.
type ChatModel struct {
	start StartFunc
	title string

	width  int
	height int

	input    textarea.Model
	entries  []chatEntry
	scrollY  int
	follow   bool
	lastErr  string
	quitting bool

	// In-flight exchange state. working is true from submission until
	// the first fragment arrives.
	streaming bool
	working   bool
	events    <-chan StreamEvent
	cancel    func()
}

// NewChatModel builds the interactive chat surface.
func NewChatModel(cfg config.Config, start StartFunc) ChatModel {
	ta := textarea.New()
	ta.Placeholder = "Type your message..."
	ta.SetHeight(inputHeight)
	ta.Focus()

	title := fmt.Sprintf("chatbridge (%s)", cfg.LLMProvider)

	return ChatModel{
		start:  start,
		title:  title,
		input:  ta,
		follow: true,
	}
}

func (m ChatModel) Init() tea.Cmd {
	return nil
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width - 2)
		m.clampScroll()
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case streamEventMsg:
		return m.handleStreamEvent(StreamEvent(msg))

	case streamClosedMsg:
		m.endExchange()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ChatModel) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.cancel != nil {
			m.cancel()
		}
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.streaming {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case "enter":
		return m.submit()

	case "up", "down", "pgup", "pgdown":
		m.scroll(msg.String())
		return m, nil

	case "ctrl+y":
		return m, m.copyLastReply()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ChatModel) submit() (tea.Model, tea.Cmd) {
	if m.streaming {
		return m, nil
	}
	prompt := strings.TrimSpace(m.input.Value())
	if prompt == "" {
		return m, nil
	}

	m.entries = append(m.entries, chatEntry{role: "user", text: prompt})
	m.input.Reset()
	m.lastErr = ""
	m.follow = true

	events, cancel, err := m.start(m.history())
	if err != nil {
		m.lastErr = err.Error()
		slog.Error("chat_submit_failed", "error", err)
		return m, nil
	}

	m.streaming = true
	m.working = true
	m.events = events
	m.cancel = cancel
	m.entries = append(m.entries, chatEntry{role: "assistant"})
	m.clampScroll()
	return m, waitForEvent(events)
}

func (m ChatModel) handleStreamEvent(ev StreamEvent) (tea.Model, tea.Cmd) {
	if !m.streaming {
		return m, nil
	}

	if ev.Err != nil {
		m.lastErr = ev.Err.Error()
	}
	if ev.Delta != "" {
		m.working = false
		last := len(m.entries) - 1
		m.entries[last].text += ev.Delta
		m.clampScroll()
	}
	if ev.Done {
		m.endExchange()
		return m, nil
	}
	return m, waitForEvent(m.events)
}

func (m *ChatModel) endExchange() {
	if m.cancel != nil {
		m.cancel()
	}
	m.streaming = false
	m.working = false
	m.events = nil
	m.cancel = nil

	// Drop an assistant turn that never produced content.
	if n := len(m.entries); n > 0 {
		last := m.entries[n-1]
		if last.role == "assistant" && last.text == "" {
			m.entries = m.entries[:n-1]
		}
	}
	m.clampScroll()
}

// history converts the transcript into provider messages.
func (m ChatModel) history() []ai.Message {
	messages := make([]ai.Message, 0, len(m.entries))
	for _, e := range m.entries {
		if e.text == "" {
			continue
		}
		messages = append(messages, ai.Message{Role: e.role, Content: e.text})
	}
	return messages
}

func (m ChatModel) copyLastReply() tea.Cmd {
	text := ""
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].role == "assistant" && m.entries[i].text != "" {
			text = m.entries[i].text
			break
		}
	}
	if text == "" {
		return nil
	}
	return func() tea.Msg {
		_, _ = fmt.Fprint(os.Stdout, osc52.New(text))
		return nil
	}
}

func (m *ChatModel) scroll(key string) {
	maxScroll := m.maxScroll()
	switch key {
	case "up":
		if m.scrollY > 0 {
			m.scrollY--
		}
		m.follow = false
	case "down":
		if m.scrollY < maxScroll {
			m.scrollY++
		}
		m.follow = m.scrollY >= maxScroll
	case "pgup":
		m.scrollY -= 10
		if m.scrollY < 0 {
			m.scrollY = 0
		}
		m.follow = false
	case "pgdown":
		m.scrollY += 10
		if m.scrollY > maxScroll {
			m.scrollY = maxScroll
		}
		m.follow = m.scrollY >= maxScroll
	}
}

func (m *ChatModel) clampScroll() {
	maxScroll := m.maxScroll()
	if m.follow || m.scrollY > maxScroll {
		m.scrollY = maxScroll
	}
	if m.scrollY < 0 {
		m.scrollY = 0
	}
}

func (m ChatModel) maxScroll() int {
	n := len(m.transcriptLines()) - m.transcriptHeight()
	if n < 0 {
		return 0
	}
	return n
}

func (m ChatModel) transcriptHeight() int {
	// Header, status line, input box, footer.
	h := m.height - 1 - 1 - inputHeight - 1
	if h < 1 {
		return 1
	}
	return h
}

func (m ChatModel) contentWidth() int {
	if m.width <= 2 {
		return 78
	}
	return m.width - 2
}

func (m ChatModel) transcriptLines() []string {
	width := m.contentWidth()
	var lines []string
	for _, e := range m.entries {
		label := roleUserStyle.Render("You")
		if e.role == "assistant" {
			label = roleAssistantStyle.Render("Assistant")
		}
		lines = append(lines, label)
		for _, para := range strings.Split(e.text, "\n") {
			lines = append(lines, wrapToWidth(para, width)...)
		}
		lines = append(lines, "")
	}
	return lines
}

func (m ChatModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	lines := m.transcriptLines()
	height := m.transcriptHeight()
	start := m.scrollY
	if start > len(lines) {
		start = len(lines)
	}
	end := start + height
	if end > len(lines) {
		end = len(lines)
	}
	for _, line := range lines[start:end] {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for i := end - start; i < height; i++ {
		b.WriteString("\n")
	}

	switch {
	case m.lastErr != "":
		b.WriteString(errorStyle.Render(truncateToWidth("error: "+m.lastErr, m.contentWidth())))
	case m.working:
		b.WriteString(workingStyle.Render(workingLabel))
	}
	b.WriteString("\n")

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(chatFooterLabel))
	return b.String()
}

// waitForEvent reads the next stream event as a command.
func waitForEvent(events <-chan StreamEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return streamEventMsg(ev)
	}
}

// wrapToWidth breaks text into display lines no wider than width,
// counting cells with go-runewidth so wide runes wrap correctly.
func wrapToWidth(text string, width int) []string {
	if width <= 0 || runewidth.StringWidth(text) <= width {
		return []string{text}
	}

	var parts []string
	var sb strings.Builder
	currentWidth := 0
	for _, r := range text {
		runeWidth := runewidth.RuneWidth(r)
		if currentWidth+runeWidth > width && currentWidth > 0 {
			parts = append(parts, sb.String())
			sb.Reset()
			currentWidth = 0
		}
		sb.WriteRune(r)
		currentWidth += runeWidth
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}
	if len(parts) == 0 {
		return []string{""}
	}
	return parts
}

func truncateToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	var sb strings.Builder
	currentWidth := 0
	for _, r := range text {
		runeWidth := runewidth.RuneWidth(r)
		if currentWidth+runeWidth > width-3 {
			break
		}
		sb.WriteRune(r)
		currentWidth += runeWidth
	}
	return sb.String() + "..."
}

// Run starts the interactive chat program on the current terminal.
func Run(cfg config.Config) error {
	model := NewChatModel(cfg, NewStarter(cfg))
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
