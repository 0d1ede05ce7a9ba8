package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/asmpack/asm"
	"github.com/wippyai/asmpack/pack"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type browseModel struct {
	err      error
	a        *asm.Assembly
	filename string
	view     viewport.Model
	selected int
	width    int
	height   int
	state    browseState
}

type browseState int

const (
	stateSelectFunc browseState = iota
	stateShowTree
)

func newBrowseModel(filename string) *browseModel {
	return &browseModel{
		filename: filename,
		state:    stateSelectFunc,
		width:    80,
		height:   24,
	}
}

type loadedMsg struct {
	err error
	a   *asm.Assembly
}

func (m *browseModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *browseModel) loadModule() tea.Msg {
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	a, err := pack.Decode(data)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{a: a}
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.view.Width = msg.Width
		m.view.Height = msg.Height - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.a != nil && m.selected < len(m.a.Functions)-1 {
				m.selected++
			}

		case "enter":
			if m.state == stateSelectFunc && m.a != nil && len(m.a.Functions) > 0 {
				m.view = viewport.New(m.width, m.height-4)
				m.view.SetContent(formatBody(m.a.Functions[m.selected]))
				m.state = stateShowTree
			}

		case "esc":
			if m.state == stateShowTree {
				m.state = stateSelectFunc
			}
		}

	case loadedMsg:
		m.err = msg.err
		m.a = msg.a
	}

	if m.state == stateShowTree {
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *browseModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.a == nil {
		return "Loading module..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("asmdump"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.a.Functions) == 0 {
			b.WriteString("Module has no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			return b.String()
		}
		b.WriteString("Select a function:\n\n")
		for i := range m.a.Functions {
			line := m.formatFunc(i)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter view • q quit"))

	case stateShowTree:
		b.WriteString(funcStyle.Render(functionHeading(m.a, m.selected)))
		b.WriteString("\n")
		b.WriteString(m.view.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • esc back • q quit"))
	}

	return b.String()
}

func (m *browseModel) formatFunc(i int) string {
	fn := m.a.Functions[i]
	return fmt.Sprintf("%s %s  %s",
		funcStyle.Render(fmt.Sprintf("[%d]", i)),
		typeStyle.Render(formatSignature(fn.Sig)),
		helpStyle.Render(fmt.Sprintf("%d statements", len(fn.Body))))
}

func runInteractive(filename string) error {
	p := tea.NewProgram(newBrowseModel(filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
