// internal/ui/prompter.go
//
// Terminal prompt surface. Drains the broker's request stream and renders
// each question as a small interactive view; Esc or Ctrl+C dismisses a
// request, which callers treat as a decline.

package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"sshBridge/internal/prompt"
)

// Prompter serves prompt requests on a terminal.
type Prompter struct {
	broker *prompt.Broker
	in     io.Reader
	out    io.Writer
}

// NewPrompter binds the prompt surface to a broker and terminal streams.
func NewPrompter(broker *prompt.Broker, in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		broker: broker,
		in:     in,
		out:    out,
	}
}

// Run serves requests until the broker shuts down. Intended to run on its
// own goroutine for the lifetime of the connection.
func (p *Prompter) Run() {
	for {
		select {
		case req := <-p.broker.Requests():
			p.serve(req)
		case <-p.broker.Done():
			return
		}
	}
}

func (p *Prompter) serve(req *prompt.Request) {
	program := tea.NewProgram(newPromptModel(req), tea.WithInput(p.in), tea.WithOutput(p.out))
	final, err := program.Run()
	if err != nil {
		req.Decline()
		return
	}

	m, ok := final.(promptModel)
	if !ok || m.canceled {
		req.Decline()
		return
	}

	switch req.Kind {
	case prompt.KindString:
		req.Answer(prompt.Response{Answered: true, Text: m.input.Value()})
	default:
		req.Answer(prompt.Response{Answered: true, Confirmed: m.confirmed})
	}
}

// promptModel renders one request.
type promptModel struct {
	req       *prompt.Request
	input     textinput.Model
	confirmed bool
	canceled  bool
}

func newPromptModel(req *prompt.Request) promptModel {
	input := textinput.New()
	input.Prompt = "> "
	if req.Secret {
		input.EchoMode = textinput.EchoPassword
		input.EchoCharacter = '*'
	}
	input.Focus()

	return promptModel{
		req:   req,
		input: input,
	}
}

func (m promptModel) Init() tea.Cmd {
	if m.req.Kind == prompt.KindString {
		return textinput.Blink
	}
	return nil
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch keyMsg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.canceled = true
		return m, tea.Quit
	}

	if m.req.Kind == prompt.KindString {
		if keyMsg.Type == tea.KeyEnter {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	// Boolean and biometric requests take a single key.
	switch keyMsg.String() {
	case "y", "Y":
		m.confirmed = true
		return m, tea.Quit
	case "n", "N":
		m.confirmed = false
		return m, tea.Quit
	}
	return m, nil
}

func (m promptModel) View() string {
	view := TitleStyle.Render(m.req.Label) + "\n"
	if m.req.Instruction != "" {
		view = InstructionStyle.Render(m.req.Instruction) + "\n" + view
	}

	switch m.req.Kind {
	case prompt.KindString:
		view += InputStyle.Render(m.input.View()) + "\n"
		view += HintStyle.Render("enter to confirm, esc to cancel")
	case prompt.KindBiometric:
		view += HintStyle.Render(fmt.Sprintf("confirm use of key '%s': y/n", m.req.KeyHandle))
	default:
		view += HintStyle.Render("y/n (esc to cancel)")
	}
	return WindowStyle.Render(view)
}
