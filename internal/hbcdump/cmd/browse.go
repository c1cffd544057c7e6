package cmd

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	pathpkg "path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"hbcdump/internal/analysis"
	"hbcdump/internal/disasm"
	"hbcdump/internal/hbc"
	"hbcdump/internal/hbcdump/styles"
	"hbcdump/internal/ui/colorize"
)

type viewMode int

const (
	viewOverview viewMode = iota
	viewFunctions
	viewDisassembly
)

type functionItem struct {
	id         uint32
	name       string
	size       uint32
	paramCount uint32
	filterTerm string // Pre-computed filter value
}

func (i functionItem) Title() string {
	// This is used for filtering - return plain text
	return fmt.Sprintf("%d  %s", i.id, i.name)
}

func (i functionItem) Description() string { return "" }

func (i functionItem) FilterValue() string {
	// Return the pre-computed filter term
	return i.filterTerm
}

// Custom item delegate for the functions list
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(functionItem)
	if !ok {
		return
	}

	var idStyle lipgloss.Style
	var indicator string

	if index == m.Index() {
		indicator = ">"
		idStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")) // Purple for selected ID
	} else {
		indicator = " "
		idStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // Gray for normal ID
	}

	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	sizeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	str := fmt.Sprintf(" %s  %s  %s  %s",
		indicator,
		idStyle.Render(fmt.Sprintf("%4d", i.id)),
		nameStyle.Render(i.name),
		sizeStyle.Render(fmt.Sprintf("(%d params, %d bytes)", i.paramCount, i.size)))

	fmt.Fprint(w, str)
}

type model struct {
	viewport      viewport.Model
	functionsList list.Model
	spinner       spinner.Model
	mode          viewMode
	filepath      string
	digest        string
	provider      *hbc.Provider
	disassembler  *disasm.Disassembler
	analyzer      *analysis.Analyzer
	loadingDigest bool
	width         int
	height        int
}

// Message types
type digestCalculatedMsg struct {
	digest string
}

// Commands
func calculateDigestCmd(filepath string) tea.Cmd {
	return func() tea.Msg {
		file, err := os.Open(filepath)
		if err != nil {
			return digestCalculatedMsg{digest: fmt.Sprintf("error: %v", err)}
		}
		defer file.Close()

		hash := sha256.New()
		if _, err := io.Copy(hash, file); err != nil {
			return digestCalculatedMsg{digest: fmt.Sprintf("error: %v", err)}
		}

		return digestCalculatedMsg{digest: fmt.Sprintf("%x", hash.Sum(nil))}
	}
}

func NewModel(filepath string, provider *hbc.Provider, d *disasm.Disassembler, a *analysis.Analyzer) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	// Create custom item delegate
	delegate := itemDelegate{}

	functionsList := list.New([]list.Item{}, delegate, 80, 24)
	functionsList.SetShowStatusBar(false)
	functionsList.SetFilteringEnabled(true)
	functionsList.Title = "Functions"
	functionsList.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)
	functionsList.SetShowHelp(true)

	// Create spinner
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	m := model{
		viewport:      vp,
		functionsList: functionsList,
		spinner:       s,
		mode:          viewOverview,
		filepath:      filepath,
		provider:      provider,
		disassembler:  d,
		analyzer:      a,
		loadingDigest: true,
		width:         80,
		height:        24,
	}

	m.populateFunctionsList()
	m.updateContent()

	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		calculateDigestCmd(m.filepath),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case digestCalculatedMsg:
		m.digest = msg.digest
		m.loadingDigest = false
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loadingDigest {
			m.updateContent()
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.functionsList.SetWidth(msg.Width)
			m.functionsList.SetHeight(msg.Height - 2)

			m.updateContent()
		}

	case tea.KeyMsg:
		// If we're in functions view and the list is filtering, let it
		// handle most keys itself
		if m.mode == viewFunctions && m.functionsList.FilterState() == list.Filtering {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		} else {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			case "o":
				m.mode = viewOverview
				m.updateContent()
				return m, nil
			case "f":
				m.mode = viewFunctions
				return m, nil
			case "enter":
				// If in functions view, show disassembly for the
				// selected function
				if m.mode == viewFunctions {
					if selectedItem := m.functionsList.SelectedItem(); selectedItem != nil {
						if fn, ok := selectedItem.(functionItem); ok {
							content := m.renderDisassembly(fn.id)
							if content != "" {
								m.mode = viewDisassembly
								m.viewport.SetContent(content)
								m.viewport.GotoTop()
							}
						}
					}
				}
				return m, nil
			case "tab":
				switch m.mode {
				case viewOverview:
					m.mode = viewFunctions
				case viewFunctions:
					m.mode = viewDisassembly
				case viewDisassembly:
					m.mode = viewOverview
					m.updateContent()
				}
				return m, nil
			case "shift+tab":
				switch m.mode {
				case viewOverview:
					m.mode = viewDisassembly
				case viewFunctions:
					m.mode = viewOverview
					m.updateContent()
				case viewDisassembly:
					m.mode = viewFunctions
				}
				return m, nil
			}
		}
	}

	// Update the active view
	switch m.mode {
	case viewFunctions:
		m.functionsList, cmd = m.functionsList.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	var content string
	switch m.mode {
	case viewFunctions:
		content = m.functionsList.View()
	default:
		content = m.viewport.View()
	}

	// Add menu bar at the bottom
	var menu string
	switch m.mode {
	case viewFunctions:
		menu = " Enter: disassemble • O: overview • Tab: cycle • Q: quit "
	case viewDisassembly:
		menu = " O: overview • F: functions • Tab: cycle • Q: quit "
	default: // viewOverview
		menu = " F: functions • Tab: cycle • Q: quit "
	}

	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}

func (m *model) updateContent() {
	// Get relative path from current directory
	relPath := m.filepath
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := pathpkg.Rel(cwd, m.filepath); err == nil {
			relPath = rel
		}
	}

	var lines []string

	dir := pathpkg.Dir(relPath)
	base := pathpkg.Base(relPath)

	if dir != "." {
		lines = append(lines, fmt.Sprintf("; %s/", dir))
	}
	lines = append(lines, fmt.Sprintf("; %s", base))

	if m.digest != "" {
		lines = append(lines, fmt.Sprintf("; %s", m.digest))
	} else if m.loadingDigest {
		lines = append(lines, "; Calculating digest...")
	}

	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("; bytecode version %d", m.provider.BytecodeVersion()))
	lines = append(lines, fmt.Sprintf("; %d functions, %d strings, %d filenames",
		m.provider.FunctionCount(), m.provider.StringCount(), m.provider.FilenameCount()))
	lines = append(lines, fmt.Sprintf("; %d instruction segment bytes", m.provider.SegmentSize()))

	markdown := fmt.Sprintf("# Hbcdump\n\n```\n%s\n```", strings.Join(lines, "\n"))

	if m.analyzer.HasProfile() {
		var sb strings.Builder
		sb.WriteString("\n\n## Profile\n\n```\n")
		m.analyzer.WriteSummaryTo(&sb)
		sb.WriteString("```")
		markdown += sb.String()
	}

	if m.loadingDigest && m.digest == "" {
		markdown += fmt.Sprintf("\n\n%s Calculating digest...", m.spinner.View())
	}

	// Render markdown using glamour
	width := m.width
	if width == 0 {
		width = 80
	}
	renderer := styles.GetMarkdownRenderer(width - 2)
	rendered, _ := renderer.Render(markdown)
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

func (m *model) populateFunctionsList() {
	items := make([]list.Item, 0, m.provider.FunctionCount())
	for id := uint32(0); id < m.provider.FunctionCount(); id++ {
		header := m.provider.FunctionHeader(id)
		name := m.provider.FunctionName(id)
		items = append(items, functionItem{
			id:         id,
			name:       name,
			size:       header.Size,
			paramCount: header.ParamCount,
			filterTerm: fmt.Sprintf("%d %s", id, name),
		})
	}

	m.functionsList.SetItems(items)
	m.functionsList.Title = fmt.Sprintf("Functions (%d total)", len(items))
}

// renderDisassembly produces the colorized disassembly view for one function
func (m *model) renderDisassembly(id uint32) string {
	var buf bytes.Buffer
	restore := withOptions(m.disassembler,
		m.disassembler.Options()|disasm.Pretty|disasm.IncludeFunctionIDs|disasm.IncludeSource)
	defer restore()
	if err := m.disassembler.DisassembleFunction(&buf, id); err != nil {
		return fmt.Sprintf("Failed to disassemble function %d: %v", id, err)
	}

	colorized, err := colorize.ColorizeDisassembly(buf.String())
	if err != nil {
		return buf.String()
	}
	return colorized
}
