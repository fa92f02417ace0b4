// Package tui is a terminal chat client for Talk2Me, adapted from the
// teacher's bubbletea TUI. Talk2Me's wire protocol is synchronous
// request/response (unlike the teacher's live-broadcast protocol), so
// there is no background fan-in goroutine: each operation is one blocking
// round trip issued from a tea.Cmd, and new messages are picked up by
// polling `recvmsg` on a tick. The teacher's search/history screens are
// dropped — Talk2Me has no search operation, and history is returned
// directly by `login{chatname}`.
package tui

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"talk2me/internal/codec"
	"talk2me/internal/cryptoenv"
)

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	green  = lipgloss.Color("82")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purple).
			Padding(0, 2)

	labelStyle        = lipgloss.NewStyle().Foreground(gray).Width(10)
	focusedLabelStyle = lipgloss.NewStyle().Foreground(cyan).Width(10)
	hintStyle         = lipgloss.NewStyle().Foreground(gray).Italic(true)

	errorStyle  = lipgloss.NewStyle().Foreground(red)
	sysStyle    = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	tsStyle     = lipgloss.NewStyle().Foreground(gray)
	myNameStyle = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(blue)
)

const pollInterval = 2 * time.Second

// Run dials addr and runs the terminal UI, encrypting requests under
// baseKeyB64 until a login reply swaps in a per-session key, until the user
// quits or the connection drops.
func Run(addr, baseKeyB64 string) error {
	baseKey, err := cryptoenv.ParseKey(baseKeyB64)
	if err != nil {
		return fmt.Errorf("tui: parse base key: %w", err)
	}
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("tui: dial %s: %w", addr, err)
	}
	defer conn.Close()

	m := newModel(conn, baseKey)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

type appState int

const (
	stateLogin appState = iota
	stateChat
)

type wireMessage struct {
	Sender string `json:"sender"`
	Msg    string `json:"msg"`
	Time   string `json:"time"`
}

type reply struct {
	Rpl           string        `json:"rpl"`
	Feedback      string        `json:"feedback"`
	Token         string        `json:"token"`
	EncryptionKey string        `json:"encryption_key"`
	Messages      []wireMessage `json:"messages"`
	Redirect      string        `json:"redirect"`
}

type model struct {
	conn  net.Conn
	fconn *codec.Conn
	key   cryptoenv.Key

	state appState
	me    string
	token string
	chat  string

	loginFocus  int
	loginFields [3]textinput.Model // username, password, chatname

	ready     bool
	viewport  viewport.Model
	chatInput textinput.Model
	chatLines []string

	statusMsg string
	width     int
	height    int
}

func newModel(conn net.Conn, baseKey cryptoenv.Key) model {
	labels := []string{"username", "password", "chatname"}
	var fields [3]textinput.Model
	for i, ph := range labels {
		f := textinput.New()
		f.Placeholder = ph
		f.CharLimit = 64
		f.Width = 32
		if ph == "password" {
			f.EchoMode = textinput.EchoPassword
			f.EchoCharacter = '•'
		}
		fields[i] = f
	}
	fields[0].Focus()

	ci := textinput.New()
	ci.Placeholder = "Type a message…"
	ci.CharLimit = 500

	return model{
		conn:        conn,
		fconn:       codec.NewConn(conn),
		key:         baseKey,
		loginFields: fields,
		chatInput:   ci,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

type replyMsg struct {
	r   reply
	err error
}

type tickMsg struct{}

// callMu serializes round trips on the shared connection: Bubble Tea runs
// each tea.Cmd in its own goroutine, so a poll tick and a send can overlap.
var callMu sync.Mutex

// call issues req synchronously under m.key and returns the decoded reply.
// Talk2Me's protocol is one request per round trip, so this blocking call
// inside a tea.Cmd is the natural shape; callMu keeps each write paired with
// its reply read when commands overlap.
func (m model) call(req map[string]any) tea.Cmd {
	return func() tea.Msg {
		callMu.Lock()
		defer callMu.Unlock()
		plaintext, err := json.Marshal(req)
		if err != nil {
			return replyMsg{err: err}
		}
		if err := m.fconn.WriteJSON(m.key, plaintext); err != nil {
			return replyMsg{err: err}
		}
		raw, err := m.fconn.ReadJSON(m.key)
		if err != nil {
			return replyMsg{err: err}
		}
		var r reply
		if err := json.Unmarshal(raw, &r); err != nil {
			return replyMsg{err: err}
		}
		return replyMsg{r: r}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.chatInput.Width = msg.Width - 4
		return m, nil

	case replyMsg:
		return m.handleReply(msg)

	case tickMsg:
		if m.state != stateChat {
			return m, nil
		}
		return m, tea.Batch(m.call(map[string]any{
			"operation": "recvmsg", "token": m.token, "chatname": m.chat,
		}), tick())

	case tea.KeyMsg:
		switch m.state {
		case stateLogin:
			return m.handleLoginKey(msg)
		case stateChat:
			return m.handleChatKey(msg)
		}
	}
	return m, nil
}

func (m model) vpHeight() int {
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

func (m model) handleLoginKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyTab, tea.KeyShiftTab:
		delta := 1
		if msg.Type == tea.KeyShiftTab {
			delta = 2
		}
		m.loginFocus = (m.loginFocus + delta) % 3
		for i := range m.loginFields {
			if i == m.loginFocus {
				m.loginFields[i].Focus()
			} else {
				m.loginFields[i].Blur()
			}
		}
		return m, textinput.Blink

	case tea.KeyEnter:
		user := strings.TrimSpace(m.loginFields[0].Value())
		pass := m.loginFields[1].Value()
		chat := strings.TrimSpace(m.loginFields[2].Value())
		if user == "" || pass == "" {
			m.statusMsg = "username and password are required"
			return m, nil
		}
		req := map[string]any{"operation": "login", "username": user, "password": pass}
		if chat != "" {
			req["chatname"] = chat
		}
		m.me = user
		m.chat = chat
		m.statusMsg = "Logging in…"
		return m, m.call(req)
	}

	var cmd tea.Cmd
	m.loginFields[m.loginFocus], cmd = m.loginFields[m.loginFocus].Update(msg)
	return m, cmd
}

func (m model) handleChatKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlQ:
		return m, tea.Quit

	case tea.KeyEnter:
		content := strings.TrimSpace(m.chatInput.Value())
		if content == "" {
			return m, nil
		}
		m.chatInput.Reset()
		return m, m.call(map[string]any{
			"operation": "sendmsg", "token": m.token, "chatname": m.chat, "msg": content,
		})

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

func (m model) handleReply(rm replyMsg) (model, tea.Cmd) {
	if rm.err != nil {
		m.statusMsg = rm.err.Error()
		return m, tea.Quit
	}
	r := rm.r

	if r.Redirect != "" {
		m.statusMsg = "chat delegated to " + r.Redirect + "; reconnect there"
		return m, nil
	}

	if r.Rpl != "Success" {
		if m.state == stateLogin {
			m.statusMsg = r.Feedback
		} else {
			m.appendChat(errorStyle.Render("⚠ " + r.Feedback))
		}
		return m, nil
	}

	// Login success: a token always comes with a fresh per-connection key.
	if r.Token != "" {
		m.token = r.Token
		if r.EncryptionKey != "" {
			if key, err := cryptoenv.ParseKey(r.EncryptionKey); err == nil {
				m.key = key
			}
		}
		if m.chat == "" {
			m.statusMsg = "logged in; no chatname given, nothing to display"
			return m, nil
		}
		m.state = stateChat
		m.chatInput.Focus()
		m.appendChat(sysStyle.Render(fmt.Sprintf("⚡ joined %s", m.chat)))
		for _, wm := range r.Messages {
			m.appendChat(renderLine(wm, m.me))
		}
		return m, tick()
	}

	// recvmsg reply.
	for _, wm := range r.Messages {
		m.appendChat(renderLine(wm, m.me))
	}
	return m, nil
}

func renderLine(wm wireMessage, me string) string {
	ts := tsStyle.Render("[" + wm.Time + "]")
	name := peerStyle.Render(wm.Sender)
	if wm.Sender == me {
		name = myNameStyle.Render(wm.Sender)
	}
	return ts + " " + name + ": " + wm.Msg
}

func (m *model) appendChat(line string) {
	m.chatLines = append(m.chatLines, line)
	m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	switch m.state {
	case stateChat:
		return m.viewChat()
	default:
		return m.viewLogin()
	}
}

func (m model) viewLogin() string {
	if m.width == 0 {
		return "\n  Connecting to server…"
	}

	title := titleStyle.Render("  Talk2Me  ")

	renderField := func(label string, f textinput.Model, focused bool) string {
		lbl := labelStyle.Render(label)
		if focused {
			lbl = focusedLabelStyle.Render(label)
		}
		return lbl + "  " + f.View()
	}

	form := lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		renderField("Username", m.loginFields[0], m.loginFocus == 0),
		renderField("Password", m.loginFields[1], m.loginFocus == 1),
		renderField("Chat", m.loginFields[2], m.loginFocus == 2),
		"",
		hintStyle.Render("Tab: switch field   Enter: login   Ctrl+C: quit"),
		"",
		m.renderStatus(),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}
	hdr := headerStyle.Width(m.width).Render(
		fmt.Sprintf(" Talk2Me  ·  %s  ·  %s  ·  PgUp/Dn: Scroll  Ctrl+C: Quit", m.me, m.chat))
	footer := footerBorderStyle.Width(m.width - 2).Render(m.chatInput.View())
	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

func (m model) renderStatus() string {
	if m.statusMsg == "" {
		return ""
	}
	if strings.Contains(m.statusMsg, "Logging in") {
		return hintStyle.Render(m.statusMsg)
	}
	return errorStyle.Render(m.statusMsg)
}
