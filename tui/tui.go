// Package tui renders the terminal UI. Screens map one to one onto the
// session states: auth, contact list, chat. All chat state lives in the
// session controller; the model here holds only input buffers and cursors.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/edgeee/pinchat/chat"
)

type screen int

const (
	screenAuth screen = iota
	screenContacts
	screenChat
)

// authField indexes the focusable auth inputs.
type authField int

const (
	fieldPIN authField = iota
	fieldPassword
	fieldTTL
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	ownMsgStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cursorStyle = lipgloss.NewStyle().Reverse(true)
)

// messagesMsg carries a live channel snapshot into the update loop.
type messagesMsg []chat.Message

// Model is the bubbletea model for the whole client.
type Model struct {
	session *chat.Session
	cache   *chat.SessionCache
	logger  *slog.Logger

	screen screen
	width  int
	height int
	errMsg string

	// Auth screen.
	signupMode bool
	focus      authField
	pinInput   string
	passInput  string
	ttlNever   bool

	// Contacts screen.
	chatPinInput  string
	contactCursor int

	// Chat screen.
	inputBuffer string
	msgCursor   int
	msgs        []chat.Message

	updates chan []chat.Message
}

// New builds the model. If the session is already authenticated (resumed
// from the token cache) the contact list is shown first.
func New(session *chat.Session, cache *chat.SessionCache, logger *slog.Logger) *Model {
	m := &Model{
		session: session,
		cache:   cache,
		logger:  logger,
		width:   80,
		height:  24,
		updates: make(chan []chat.Message, 1),
	}
	if session.State() != chat.StateUnauthenticated {
		m.screen = screenContacts
	}

	session.OnMessages(func(msgs []chat.Message) {
		// Keep only the freshest snapshot; the callback must not block.
		for {
			select {
			case m.updates <- msgs:
				return
			default:
				select {
				case <-m.updates:
				default:
				}
			}
		}
	})
	return m
}

// Run drives the program until quit.
func Run(m *Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return m.waitForMessages()
}

func (m *Model) waitForMessages() tea.Cmd {
	return func() tea.Msg {
		return messagesMsg(<-m.updates)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case messagesMsg:
		m.msgs = msg
		if m.msgCursor >= len(m.msgs) {
			m.msgCursor = max(0, len(m.msgs)-1)
		}
		return m, m.waitForMessages()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.screen {
		case screenAuth:
			return m.updateAuth(msg)
		case screenContacts:
			return m.updateContacts(msg)
		case screenChat:
			return m.updateChat(msg)
		}
	}
	return m, nil
}

func (m *Model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		m.focus++
		if m.focus > fieldTTL || (!m.signupMode && m.focus > fieldPassword) {
			m.focus = fieldPIN
		}
	case "shift+tab", "up":
		if m.focus == fieldPIN {
			m.focus = fieldPassword
			if m.signupMode {
				m.focus = fieldTTL
			}
		} else {
			m.focus--
		}
	case "ctrl+s":
		m.signupMode = !m.signupMode
		m.focus = fieldPIN
		m.errMsg = ""
	case "backspace":
		switch m.focus {
		case fieldPIN:
			m.pinInput = trimLast(m.pinInput)
		case fieldPassword:
			m.passInput = trimLast(m.passInput)
		}
	case "enter":
		m.submitAuth()
	case " ":
		if m.focus == fieldTTL {
			m.ttlNever = !m.ttlNever
		}
	default:
		if len(msg.Runes) == 0 {
			break
		}
		switch m.focus {
		case fieldPIN:
			for _, r := range msg.Runes {
				if r >= '0' && r <= '9' && len(m.pinInput) < 6 {
					m.pinInput += string(r)
				}
			}
		case fieldPassword:
			m.passInput += string(msg.Runes)
		}
	}
	return m, nil
}

func (m *Model) submitAuth() {
	ctx := context.Background()
	m.errMsg = ""

	var err error
	if m.signupMode {
		ttl := chat.TTLDay
		if m.ttlNever {
			ttl = chat.TTLNever
		}
		err = m.session.Signup(ctx, m.pinInput, m.passInput, ttl)
	} else {
		err = m.session.Login(ctx, m.pinInput, m.passInput)
	}
	if err != nil {
		m.errMsg = err.Error()
		return
	}

	if err := m.cache.Save(m.session.CurrentAccount()); err != nil {
		m.logger.Error("Could not cache session", "error", err.Error())
	}
	m.screen = screenContacts
	m.passInput = ""
}

func (m *Model) updateContacts(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	contacts := m.session.RecentContacts()

	switch msg.String() {
	case "ctrl+l":
		m.logout()
	case "ctrl+r":
		if err := m.session.RefreshContacts(context.Background()); err != nil {
			m.errMsg = err.Error()
		}
	case "up":
		if m.contactCursor > 0 {
			m.contactCursor--
		}
	case "down":
		if m.contactCursor < len(contacts)-1 {
			m.contactCursor++
		}
	case "backspace":
		m.chatPinInput = trimLast(m.chatPinInput)
	case "enter":
		target := m.chatPinInput
		if target == "" && m.contactCursor < len(contacts) {
			target = contacts[m.contactCursor]
		}
		m.openChat(target)
	default:
		for _, r := range msg.Runes {
			if r >= '0' && r <= '9' && len(m.chatPinInput) < 6 {
				m.chatPinInput += string(r)
			}
		}
	}
	return m, nil
}

func (m *Model) openChat(target string) {
	m.errMsg = ""
	if err := m.session.SelectContact(context.Background(), target); err != nil {
		m.errMsg = err.Error()
		return
	}
	m.screen = screenChat
	m.chatPinInput = ""
	m.inputBuffer = ""
	m.msgs = m.session.ActiveMessages()
	m.msgCursor = max(0, len(m.msgs)-1)
}

func (m *Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.session.ReplyTarget() != "" {
			m.session.ClearReply()
			return m, nil
		}
		m.session.Back()
		m.screen = screenContacts
		m.msgs = nil
		if err := m.session.RefreshContacts(context.Background()); err != nil {
			m.logger.Error("Could not refresh contacts", "error", err.Error())
		}
	case "ctrl+l":
		m.logout()
	case "up":
		if m.msgCursor > 0 {
			m.msgCursor--
		}
	case "down":
		if m.msgCursor < len(m.msgs)-1 {
			m.msgCursor++
		}
	case "ctrl+p":
		if m.msgCursor < len(m.msgs) {
			m.session.SetReply(m.msgs[m.msgCursor].ID)
		}
	case "ctrl+t":
		if m.msgCursor < len(m.msgs) {
			if err := m.session.React(context.Background(), m.msgs[m.msgCursor].ID, "❤️"); err != nil {
				m.errMsg = err.Error()
			}
		}
	case "backspace":
		m.inputBuffer = trimLast(m.inputBuffer)
	case "enter":
		m.errMsg = ""
		if err := m.session.SendMessage(context.Background(), m.inputBuffer); err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.inputBuffer = ""
	default:
		if len(msg.Runes) > 0 {
			m.inputBuffer += string(msg.Runes)
		}
	}
	return m, nil
}

func (m *Model) logout() {
	m.session.Logout()
	if err := m.cache.Clear(); err != nil {
		m.logger.Error("Could not clear session cache", "error", err.Error())
	}
	m.screen = screenAuth
	m.pinInput = ""
	m.passInput = ""
	m.chatPinInput = ""
	m.inputBuffer = ""
	m.msgs = nil
	m.errMsg = ""
}

func (m *Model) View() string {
	var b strings.Builder
	switch m.screen {
	case screenAuth:
		m.viewAuth(&b)
	case screenContacts:
		m.viewContacts(&b)
	case screenChat:
		m.viewChat(&b)
	}
	if m.errMsg != "" {
		b.WriteString("\n" + errorStyle.Render(m.errMsg) + "\n")
	}
	return b.String()
}

func (m *Model) viewAuth(b *strings.Builder) {
	mode := "Login"
	if m.signupMode {
		mode = "Create Account"
	}
	b.WriteString(titleStyle.Render("pinchat") + "  " + subtleStyle.Render(mode) + "\n\n")

	b.WriteString(field("6-Digit PIN", m.pinInput, m.focus == fieldPIN) + "\n")
	b.WriteString(field("Password", strings.Repeat("•", len(m.passInput)), m.focus == fieldPassword) + "\n")
	if m.signupMode {
		ttl := "expire in 24h"
		if m.ttlNever {
			ttl = "keep forever"
		}
		b.WriteString(field("Messages", ttl+" (space toggles)", m.focus == fieldTTL) + "\n")
	}

	b.WriteString("\n" + subtleStyle.Render("enter submit · tab next field · ctrl+s switch login/signup · ctrl+c quit") + "\n")
}

func (m *Model) viewContacts(b *strings.Builder) {
	account := m.session.CurrentAccount()
	b.WriteString(titleStyle.Render("Your PIN: "+account.PIN) + "\n")
	lifetime := "expire in " + account.TTL
	if account.TTL == chat.TTLNever {
		lifetime = "kept forever"
	}
	b.WriteString(subtleStyle.Render("Messages "+lifetime) + "\n\n")

	b.WriteString("Start a chat: " + field("PIN", m.chatPinInput, true) + "\n\n")

	contacts := m.session.RecentContacts()
	if len(contacts) > 0 {
		b.WriteString("Recent chats:\n")
		for i, contact := range contacts {
			line := "  PIN " + contact
			if i == m.contactCursor && m.chatPinInput == "" {
				line = cursorStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\n" + subtleStyle.Render("enter chat · ctrl+r refresh · ctrl+l logout · ctrl+c quit") + "\n")
}

func (m *Model) viewChat(b *strings.Builder) {
	account := m.session.CurrentAccount()
	b.WriteString(titleStyle.Render("PIN "+m.session.ActivePeer()) + "\n\n")

	visible := m.msgs
	maxLines := max(3, m.height-8)
	if len(visible) > maxLines {
		visible = visible[len(visible)-maxLines:]
	}
	offset := len(m.msgs) - len(visible)

	byID := make(map[string]chat.Message, len(m.msgs))
	for _, msg := range m.msgs {
		byID[msg.ID] = msg
	}

	for i, msg := range visible {
		line := m.renderMessage(msg, account.PIN, byID)
		if offset+i == m.msgCursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	if target := m.session.ReplyTarget(); target != "" {
		if replied, ok := byID[target]; ok {
			b.WriteString(subtleStyle.Render("Replying to: "+clip(replied.Text, 40)) + "\n")
		}
	}
	b.WriteString("\n> " + m.inputBuffer + "\n")
	b.WriteString(subtleStyle.Render("enter send · ↑/↓ select · ctrl+p reply · ctrl+t ❤️ · esc back · ctrl+l logout") + "\n")
}

func (m *Model) renderMessage(msg chat.Message, ownPIN string, byID map[string]chat.Message) string {
	var parts []string
	if msg.ReplyTo != "" {
		if replied, ok := byID[msg.ReplyTo]; ok {
			parts = append(parts, subtleStyle.Render("↩ "+clip(replied.Text, 24)))
		}
	}
	prefix := msg.From
	parts = append(parts, fmt.Sprintf("%s %s: %s", msg.Timestamp.Format("15:04"), prefix, msg.Text))
	if len(msg.Reactions) > 0 {
		var emojis []string
		for _, emoji := range msg.Reactions {
			emojis = append(emojis, emoji)
		}
		parts = append(parts, strings.Join(emojis, ""))
	}
	parts = append(parts, subtleStyle.Render(timeLeft(msg.ExpiresAt, time.Now())))

	line := strings.Join(parts, "  ")
	if msg.From == ownPIN {
		return ownMsgStyle.Render(line)
	}
	return line
}

// timeLeft mirrors the expiry hint shown next to each message. Lifetimes are
// rounded up to the next minute or hour; a message past its expiry that the
// sweeper has not removed yet reads "expired".
func timeLeft(expiresAt *time.Time, now time.Time) string {
	if expiresAt == nil {
		return "forever"
	}
	left := expiresAt.Sub(now)
	switch {
	case left <= 0:
		return "expired"
	case left < time.Hour:
		return fmt.Sprintf("%dm left", int((left+time.Minute-1)/time.Minute))
	default:
		return fmt.Sprintf("%dh left", int((left+time.Hour-1)/time.Hour))
	}
}

func field(label, value string, focused bool) string {
	text := fmt.Sprintf("%s: %s", label, value)
	if focused {
		return focusStyle.Render("▸ " + text)
	}
	return "  " + text
}

func trimLast(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	return string(runes[:len(runes)-1])
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
