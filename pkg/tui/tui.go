// Package tui is a terminal front end for editing a flow.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dukex/chatflow/pkg/flow"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/sample"
	"github.com/dukex/chatflow/pkg/services"
)

const newNodeRowY = 600

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("14"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).PaddingLeft(4)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	modeStyle     = lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("5")).Foreground(lipgloss.Color("15"))
)

const helpText = "j/k move  r rich  c carousel  e edit title  b add button/card  d delete  " +
	"v mode  s save  R reset  y copy json  q quit"

type Model struct {
	ctx     context.Context
	flow    *services.Flow
	copy    func(string) error
	nodes   []*models.Node
	cursor  int
	editing bool
	// node whose editor stays open while its title is being edited
	editingID string
	input     []rune
	status    string
	failed    bool
	width     int
}

type Option func(*Model)

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		m.copy = write
	}
}

func New(ctx context.Context, flowService *services.Flow, opts ...Option) Model {
	m := Model{
		ctx:  ctx,
		flow: flowService,
		copy: clipboard.WriteAll,
	}

	for _, opt := range opts {
		opt(&m)
	}

	m.refresh()

	return m
}

// Run starts the editor full screen and blocks until it quits.
func Run(ctx context.Context, flowService *services.Flow, opts ...Option) error {
	p := tea.NewProgram(New(ctx, flowService, opts...), tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := p.Run()

	return err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}

		return m.updateBrowsing(msg)
	}

	return m, nil
}

func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "j", "down":
		if m.cursor < len(m.nodes)-1 {
			m.cursor++
		}

	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}

	case "r":
		m.addNode(models.NodeTypeRichCard)

	case "c":
		m.addNode(models.NodeTypeCarouselCard)

	case "e", "enter":
		if node := m.selected(); node != nil {
			m.startEditing(node)
		}

	case "b":
		m.addChild()

	case "d", "delete":
		if node := m.selected(); node != nil {
			err := m.flow.ApplyNodeChanges(m.ctx, []flow.NodeChange{{Type: flow.ChangeRemove, ID: node.ID}})
			m.result(err, "Deleted "+node.ID)
		}

	case "v":
		mode := m.flow.Mode().Toggle()
		m.result(m.flow.SetMode(m.ctx, mode), "Mode: "+string(mode))

	case "s":
		if m.flow.Save(m.ctx) {
			m.result(nil, "Saved")
		} else {
			m.report(fmt.Errorf("save failed"))
		}

	case "R":
		_, err := m.flow.Reset(m.ctx)
		m.result(err, "Reset to sample")

	case "y":
		raw, err := json.MarshalIndent(m.flow.State(), "", "  ")
		if err == nil {
			err = m.copy(string(raw))
		}

		m.result(err, "Flow JSON copied")
	}

	m.refresh()

	return m, nil
}

func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.stopEditing()

	case tea.KeyEnter:
		card, err := m.flow.RichCard(m.editingID)
		if err == nil {
			err = card.SetTitle(m.ctx, string(m.input))
		}

		m.result(err, "Title updated")
		m.stopEditing()
		m.refresh()

	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}

	case tea.KeySpace:
		m.input = append(m.input, ' ')

	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
	}

	return m, nil
}

func (m *Model) startEditing(node *models.Node) {
	if node.Type != models.NodeTypeRichCard {
		m.report(fmt.Errorf("only rich card titles are edited here"))

		return
	}

	card, err := m.flow.RichCard(node.ID)
	if err != nil {
		m.report(err)

		return
	}

	m.editing = true
	m.editingID = node.ID
	m.input = []rune(card.Card().Title)
}

func (m *Model) stopEditing() {
	m.flow.CloseEditor(m.editingID)

	m.editing = false
	m.editingID = ""
	m.input = nil
}

func (m *Model) addNode(nodeType models.NodeType) {
	position := models.Position{X: float64(len(m.nodes) * sample.Spacing), Y: newNodeRowY}

	node, err := m.flow.AddNode(m.ctx, nodeType, position)
	if err != nil {
		m.report(err)

		return
	}

	m.result(nil, "Added "+node.ID)
	m.refresh()
	m.cursor = len(m.nodes) - 1
}

// addChild adds a button to a rich card or a card to a carousel.
func (m *Model) addChild() {
	node := m.selected()
	if node == nil {
		return
	}

	switch node.Type {
	case models.NodeTypeRichCard:
		card, err := m.flow.RichCard(node.ID)
		if err == nil {
			_, err = card.AddButton(m.ctx)
		}

		m.result(err, "Button added")
	case models.NodeTypeCarouselCard:
		carousel, err := m.flow.Carousel(node.ID)
		if err == nil {
			_, err = carousel.AddCard(m.ctx)
		}

		m.result(err, "Card added")
	}

	m.flow.CloseEditor(node.ID)
}

func (m *Model) refresh() {
	m.nodes = m.flow.State().Nodes

	if m.cursor >= len(m.nodes) {
		m.cursor = len(m.nodes) - 1
	}

	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) selected() *models.Node {
	if m.cursor < 0 || m.cursor >= len(m.nodes) {
		return nil
	}

	return m.nodes[m.cursor]
}

func (m *Model) result(err error, ok string) {
	if err != nil {
		m.report(err)

		return
	}

	m.status = ok
	m.failed = false
}

func (m *Model) report(err error) {
	m.status = err.Error()
	m.failed = true
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Chatbot flow"))
	b.WriteString(" ")
	b.WriteString(modeStyle.Render(string(m.flow.Mode())))
	b.WriteString("\n\n")

	if len(m.nodes) == 0 {
		b.WriteString(detailStyle.Render("(empty flow)"))
		b.WriteString("\n")
	}

	for i, node := range m.nodes {
		line := fmt.Sprintf("%-14s %s", node.Type, summary(node))
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}

		b.WriteString("\n")

		if i == m.cursor {
			for _, detail := range details(node) {
				b.WriteString(detailStyle.Render(detail))
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")

	if m.editing {
		b.WriteString("Title: " + string(m.input) + "_\n")
	}

	if m.status != "" {
		style := statusStyle
		if m.failed {
			style = errorStyle
		}

		b.WriteString(style.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Width(m.width).Render(helpText))

	return b.String()
}

func summary(node *models.Node) string {
	switch data := node.Data.(type) {
	case *models.RichCardData:
		return fmt.Sprintf("%s  %q", node.ID, data.Title)
	case *models.CarouselCardData:
		return fmt.Sprintf("%s  (%d cards)", node.ID, len(data.Cards))
	default:
		return node.ID
	}
}

func details(node *models.Node) []string {
	var out []string

	switch data := node.Data.(type) {
	case *models.RichCardData:
		if data.Description != "" {
			out = append(out, data.Description)
		}

		for _, button := range data.Buttons {
			out = append(out, "[ "+button.Label+" ]")
		}
	case *models.CarouselCardData:
		for _, card := range data.Cards {
			out = append(out, fmt.Sprintf("- %s (%d buttons)", card.Title, len(card.Buttons)))
		}
	}

	return out
}
