package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/jankowtf/wordstack/internal/embeddings"
	"github.com/jankowtf/wordstack/internal/neighbors"
	"github.com/jankowtf/wordstack/internal/tui/styles"
	"github.com/jankowtf/wordstack/pkg/text"
)

// NeighborFunc returns the k words closest to word.
type NeighborFunc func(word string, k int) ([]neighbors.Result, error)

// Panel represents which panel is focused.
type Panel int

const (
	PanelInput Panel = iota
	PanelTokens
	PanelVector
)

const (
	previewValues = 8
	neighborCount = 8
)

// Model is the explorer state.
type Model struct {
	provider  embeddings.Provider
	neighbors NeighborFunc

	input   textinput.Model
	preview viewport.Model

	panel       Panel
	sentence    *text.Sentence
	cursor      int
	nearest     map[string][]neighbors.Result
	showHelp    bool
	statusMsg   string
	statusIsErr bool
	statusIsOK  bool

	width  int
	height int

	keys KeyMap
}

// New creates an explorer for p. nf may be nil when no neighbour index is
// available.
func New(p embeddings.Provider, nf NeighborFunc) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a sentence and press enter..."
	ti.PromptStyle = styles.InputPromptStyle
	ti.TextStyle = styles.InputTextStyle
	ti.PlaceholderStyle = styles.InputPlaceholderStyle
	ti.Prompt = "  "
	ti.CharLimit = 512
	ti.Focus()

	return Model{
		provider:  p,
		neighbors: nf,
		input:     ti,
		preview:   viewport.New(0, 0),
		panel:     PanelInput,
		nearest:   make(map[string][]neighbors.Result),
		keys:      DefaultKeyMap(),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

type embeddedMsg struct {
	sentence *text.Sentence
	err      error // Per-sentence failure; tokens carry no vectors
}

type neighborsMsg struct {
	word    string
	results []neighbors.Result
}

type copiedMsg struct {
	values int
}

type errMsg struct {
	err error
}

func (m Model) embedSentence(s string) tea.Cmd {
	p := m.provider
	return func() tea.Msg {
		sent := text.NewSentence(s)
		err := p.Embed(context.Background(), []*text.Sentence{sent})
		if err != nil && !embeddings.IsEmbeddingError(err) {
			return errMsg{err}
		}
		return embeddedMsg{sentence: sent, err: err}
	}
}

func (m Model) lookupNeighbors() tea.Cmd {
	tok := m.selected()
	if m.neighbors == nil || tok == nil {
		return nil
	}
	if _, ok := m.nearest[tok.Text]; ok {
		return nil
	}
	nf, word := m.neighbors, tok.Text
	return func() tea.Msg {
		results, err := nf(word, neighborCount)
		if err != nil {
			return errMsg{err}
		}
		return neighborsMsg{word: word, results: results}
	}
}

func copyVector(v text.Vector) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.WriteAll(FormatVector(v)); err != nil {
			return errMsg{fmt.Errorf("copying to clipboard: %w", err)}
		}
		return copiedMsg{values: len(v)}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case msg.Type == tea.KeyCtrlC:
			return m, tea.Quit

		case key.Matches(msg, m.keys.Tab):
			m.panel = (m.panel + 1) % 3
			m.updateFocus()
			return m, nil

		case key.Matches(msg, m.keys.ShiftTab):
			m.panel = (m.panel + 2) % 3
			m.updateFocus()
			return m, nil

		case key.Matches(msg, m.keys.Escape):
			if m.panel == PanelInput && m.input.Value() != "" {
				m.input.SetValue("")
				return m, nil
			}
			m.showHelp = false
			m.panel = PanelInput
			m.updateFocus()
			return m, nil
		}

		switch m.panel {
		case PanelInput:
			return m.updateInput(msg)
		case PanelTokens:
			return m.updateTokens(msg)
		case PanelVector:
			return m.updateVector(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateViewportSize()
		return m, nil

	case embeddedMsg:
		m.sentence = msg.sentence
		m.cursor = 0
		if msg.err != nil {
			m.statusMsg = msg.err.Error()
			m.statusIsErr = true
			m.statusIsOK = false
		} else {
			m.statusMsg = fmt.Sprintf("%d tokens, %d values each", m.sentence.Len(), m.provider.Dimension())
			m.statusIsErr = false
			m.statusIsOK = false
		}
		m.updatePreviewContent()
		return m, m.lookupNeighbors()

	case neighborsMsg:
		m.nearest[msg.word] = msg.results
		m.updatePreviewContent()
		return m, nil

	case copiedMsg:
		m.statusMsg = fmt.Sprintf("copied %d values", msg.values)
		m.statusIsErr = false
		m.statusIsOK = true
		return m, nil

	case errMsg:
		m.statusMsg = msg.err.Error()
		m.statusIsErr = true
		m.statusIsOK = false
		return m, nil
	}

	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Enter):
		s := strings.TrimSpace(m.input.Value())
		if s == "" {
			return m, nil
		}
		m.statusMsg = "embedding..."
		m.statusIsErr = false
		m.statusIsOK = false
		return m, m.embedSentence(s)

	case msg.Type == tea.KeyDown:
		if m.sentence != nil && m.sentence.Len() > 0 {
			m.panel = PanelTokens
			m.updateFocus()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateTokens(msg tea.KeyMsg) (Model, tea.Cmd) {
	n := 0
	if m.sentence != nil {
		n = m.sentence.Len()
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.updatePreviewContent()
			return m, m.lookupNeighbors()
		}
		m.panel = PanelInput
		m.updateFocus()
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < n-1 {
			m.cursor++
			m.updatePreviewContent()
			return m, m.lookupNeighbors()
		}
		return m, nil

	case key.Matches(msg, m.keys.GotoStart):
		m.cursor = 0
		m.updatePreviewContent()
		return m, m.lookupNeighbors()

	case key.Matches(msg, m.keys.GotoEnd):
		if n > 0 {
			m.cursor = n - 1
			m.updatePreviewContent()
		}
		return m, m.lookupNeighbors()

	case key.Matches(msg, m.keys.Enter):
		m.panel = PanelVector
		return m, nil

	case key.Matches(msg, m.keys.Input):
		m.panel = PanelInput
		m.updateFocus()
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		if v, ok := m.selectedVector(); ok {
			return m, copyVector(v)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) updateVector(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil
	case key.Matches(msg, m.keys.Input):
		m.panel = PanelInput
		m.updateFocus()
		return m, nil
	case key.Matches(msg, m.keys.Copy):
		if v, ok := m.selectedVector(); ok {
			return m, copyVector(v)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.preview, cmd = m.preview.Update(msg)
	return m, cmd
}

func (m *Model) updateFocus() {
	if m.panel == PanelInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) updateViewportSize() {
	m.preview.Width = max(1, m.width*60/100-6)
	m.preview.Height = max(1, m.height-9)
}

func (m Model) selected() *text.Token {
	if m.sentence == nil || m.cursor >= m.sentence.Len() {
		return nil
	}
	return m.sentence.Tokens[m.cursor]
}

func (m Model) selectedVector() (text.Vector, bool) {
	tok := m.selected()
	if tok == nil {
		return nil, false
	}
	return tok.Embedding(m.provider.Name())
}

func (m *Model) updatePreviewContent() {
	tok := m.selected()
	if tok == nil {
		m.preview.SetContent("No token selected")
		return
	}

	var sb strings.Builder
	sb.WriteString(styles.VectorTitleStyle.Render(tok.Text))
	sb.WriteString("\n")
	sb.WriteString(styles.VectorMetadataStyle.Render(fmt.Sprintf("token %d, byte offset %d", tok.Index, tok.Start)))
	sb.WriteString("\n\n")

	names := tok.EmbeddingNames()
	if len(names) == 0 {
		sb.WriteString(styles.StatusErrorStyle.Render("no vectors attached"))
	}
	for _, name := range names {
		v, _ := tok.Embedding(name)
		sb.WriteString(styles.VectorNameStyle.Render(name))
		sb.WriteString(styles.VectorMetadataStyle.Render(fmt.Sprintf("  %d values, norm %.4f", len(v), Norm(v))))
		sb.WriteString("\n")
		sb.WriteString(styles.VectorValuesStyle.Render(head(v, previewValues)))
		sb.WriteString("\n\n")
	}

	if results, ok := m.nearest[tok.Text]; ok {
		sb.WriteString(styles.VectorNameStyle.Render("nearest words"))
		sb.WriteString("\n")
		if len(results) == 0 {
			sb.WriteString(styles.VectorMetadataStyle.Render("none"))
		}
		for _, r := range results {
			sb.WriteString(fmt.Sprintf("  %-20s %.4f\n", r.Word, r.Similarity))
		}
	}

	m.preview.SetContent(sb.String())
}

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	tokensWidth := m.width*40/100 - 4
	vectorWidth := m.width*60/100 - 4
	contentHeight := m.height - 6

	kind := m.provider.Kind().String()
	header := styles.TitleStyle.Render("wordstack") +
		styles.SubtitleStyle.Render(" - "+m.provider.Name()) +
		styles.KindBadge(kind).Render(fmt.Sprintf("%s %dd", kind, m.provider.Dimension()))

	inputStyle := styles.PanelStyle
	if m.panel == PanelInput {
		inputStyle = styles.FocusedPanelStyle
	}
	inputBox := inputStyle.Width(m.width - 4).Render(m.input.View())

	tokensStyle := styles.PanelStyle.Width(tokensWidth).Height(contentHeight)
	if m.panel == PanelTokens {
		tokensStyle = styles.FocusedPanelStyle.Width(tokensWidth).Height(contentHeight)
	}
	tokensPanel := tokensStyle.Render(
		styles.PanelTitleStyle.Render("Tokens") + "\n" + m.renderTokens(tokensWidth-2, contentHeight-2),
	)

	vectorStyle := styles.PanelStyle.Width(vectorWidth).Height(contentHeight)
	if m.panel == PanelVector {
		vectorStyle = styles.FocusedPanelStyle.Width(vectorWidth).Height(contentHeight)
	}
	m.preview.Width = max(1, vectorWidth-2)
	m.preview.Height = max(1, contentHeight-3)
	vectorPanel := vectorStyle.Render(
		styles.PanelTitleStyle.Render("Vector") + "\n" + m.preview.View(),
	)

	content := lipgloss.JoinHorizontal(lipgloss.Top, tokensPanel, vectorPanel)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		inputBox,
		content,
		m.renderStatusBar(),
	)
}

func (m Model) renderTokens(width, height int) string {
	if m.sentence == nil || m.sentence.Len() == 0 {
		return styles.HintStyle.Render("Nothing embedded yet.")
	}

	visible := max(1, height)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, m.sentence.Len())

	var sb strings.Builder
	for i := start; i < end; i++ {
		tok := m.sentence.Tokens[i]
		label := tok.Text
		if len(label) > width-4 && width > 7 {
			label = label[:width-7] + "..."
		}

		_, ok := tok.Embedding(m.provider.Name())
		switch {
		case i == m.cursor:
			sb.WriteString(styles.SelectedTokenStyle.Render(label))
		case !ok:
			sb.WriteString(styles.MissingTokenStyle.Render(label))
		default:
			sb.WriteString(styles.TokenStyle.Render(label))
		}
		sb.WriteString("\n")
	}

	if m.sentence.Len() > visible {
		sb.WriteString(fmt.Sprintf("\n%d/%d", m.cursor+1, m.sentence.Len()))
	}
	return sb.String()
}

func (m Model) renderStatusBar() string {
	var status string
	switch {
	case m.statusIsErr:
		status = styles.StatusErrorStyle.Render(m.statusMsg)
	case m.statusIsOK:
		status = styles.StatusSuccessStyle.Render(m.statusMsg)
	default:
		status = styles.StatusValueStyle.Render(m.statusMsg)
	}

	help := styles.HelpKeyStyle.Render("?") +
		styles.HelpDescStyle.Render(" help") +
		styles.HelpSeparatorStyle.Render(" • ") +
		styles.HelpKeyStyle.Render("q") +
		styles.HelpDescStyle.Render(" quit")

	gap := max(0, m.width-len(m.statusMsg)-len(" help • q quit")-10)
	return styles.StatusBarStyle.Render(status + strings.Repeat(" ", gap) + help)
}

func (m Model) renderHelp() string {
	var sb strings.Builder

	sb.WriteString(styles.TitleStyle.Render("Keyboard Shortcuts"))
	sb.WriteString("\n\n")

	helpItems := []struct {
		key  string
		desc string
	}{
		{"/", "Edit sentence"},
		{"Enter", "Embed sentence / Open vector"},
		{"j/k or ↑/↓", "Navigate tokens"},
		{"Tab", "Cycle panels"},
		{"Shift+Tab", "Cycle panels (reverse)"},
		{"g/G", "First/last token"},
		{"y", "Copy vector to clipboard"},
		{"Esc", "Back to input / Clear"},
		{"?", "Toggle help"},
		{"q", "Quit"},
	}

	for _, item := range helpItems {
		sb.WriteString(styles.HelpKeyStyle.Render(fmt.Sprintf("%12s", item.key)))
		sb.WriteString("  ")
		sb.WriteString(styles.HelpDescStyle.Render(item.desc))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(styles.HelpDescStyle.Render("Press ? to close help"))

	return styles.AppStyle.Render(sb.String())
}

// Norm returns the Euclidean length of v.
func Norm(v text.Vector) float64 {
	if len(v) == 0 {
		return 0
	}
	return float64(blas32.Nrm2(blas32.Vector{N: len(v), Inc: 1, Data: v}))
}

// FormatVector renders v as space-separated values.
func FormatVector(v text.Vector) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return strings.Join(parts, " ")
}

func head(v text.Vector, n int) string {
	if len(v) <= n {
		return FormatVector(v)
	}
	return FormatVector(v[:n]) + " ..."
}
