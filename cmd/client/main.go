// Relay TUI client.
//
// A background goroutine consumes the relay's event stream; the Bubbletea
// event loop receives one message at a time via waitForMsg (a tea.Cmd) and
// queues the next read after each message is rendered. Enter publishes the
// input line to the chosen room.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Tyrowin/relay/internal/relayclient"
)

var (
	purple = lipgloss.Color("99")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")
	red    = lipgloss.Color("196")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	roomStyle   = lipgloss.NewStyle().Foreground(gray)
	myNameStyle = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(blue)
	errorStyle  = lipgloss.NewStyle().Foreground(red)
)

type relayMsg relayclient.Message
type streamErrMsg struct{ err error }
type publishErrMsg struct{ err error }

type model struct {
	client *relayclient.Client
	msgs   <-chan relayclient.Message
	errs   <-chan error

	room, user string

	ready    bool
	viewport viewport.Model
	input    textinput.Model
	lines    []string
	status   string

	width, height int
}

func newModel(client *relayclient.Client, msgs <-chan relayclient.Message, errs <-chan error, room, user string) model {
	ti := textinput.New()
	ti.Placeholder = "Type a message…"
	ti.Focus()
	ti.CharLimit = 500

	return model{
		client: client,
		msgs:   msgs,
		errs:   errs,
		room:   room,
		user:   user,
		input:  ti,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForMsg(m.msgs, m.errs))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			// Lines can arrive before the first size message.
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.viewport.GotoBottom()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.input.Width = msg.Width - 4
		return m, nil

	case relayMsg:
		m.appendLine(m.render(relayclient.Message(msg)))
		return m, waitForMsg(m.msgs, m.errs)

	case streamErrMsg:
		m.status = "disconnected: " + msg.err.Error()
		return m, tea.Quit

	case publishErrMsg:
		m.appendLine(errorStyle.Render("send failed: " + msg.err.Error()))
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			return m, publish(m.client, relayclient.Message{Room: m.room, Username: m.user, Message: text})

		case tea.KeyPgUp:
			m.viewport.HalfViewUp()
			return m, nil

		case tea.KeyPgDown:
			m.viewport.HalfViewDown()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// vpHeight returns the number of lines available for the message viewport.
func (m model) vpHeight() int {
	// header (1) + footer border (1) + footer input (1)
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

func (m model) render(msg relayclient.Message) string {
	name := peerStyle.Render(msg.Username)
	if msg.Username == m.user {
		name = myNameStyle.Render(msg.Username)
	}
	return roomStyle.Render("["+msg.Room+"]") + " " + name + ": " + msg.Message
}

func (m *model) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "\n  Connecting…"
	}

	hdr := headerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" Relay  ·  %s in %s  ·  PgUp/Dn: Scroll  Esc: Quit", m.user, m.room))

	footer := footerBorderStyle.
		Width(m.width - 2).
		Render(m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

// waitForMsg blocks until the next relayed message or a stream error.
func waitForMsg(msgs <-chan relayclient.Message, errs <-chan error) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-msgs
		if !ok {
			err, ok := <-errs
			if !ok || err == nil {
				err = relayclient.ErrStreamEnded
			}
			return streamErrMsg{err: err}
		}
		return relayMsg(msg)
	}
}

func publish(client *relayclient.Client, msg relayclient.Message) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Publish(ctx, msg); err != nil {
			return publishErrMsg{err: err}
		}
		return nil
	}
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "relay base URL")
	room := flag.String("room", "lobby", "room to post to (at most 30 characters)")
	user := flag.String("user", os.Getenv("USER"), "username (at most 20 characters)")
	flag.Parse()

	if *user == "" {
		*user = "guest"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := relayclient.New(*addr)
	msgs, errs, err := client.Subscribe(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(
		newModel(client, msgs, errs, *room, *user),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if m, ok := final.(model); ok && m.status != "" {
		fmt.Fprintln(os.Stderr, m.status)
	}
}
